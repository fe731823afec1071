// Package restoretest provides in-memory collaborator fakes for testing
// restore workflows without a resource provider.
package restoretest

import (
	"context"
	"sync"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/luno/snaprestore"
	"github.com/luno/snaprestore/restore"
)

func key(region, id string) string {
	return region + "/" + id
}

// SnapshotAPI is a fake restore.SnapshotAPI holding snapshot lifecycles in a
// map keyed by region and identifier. Use SetStatus to drive transitions and
// the call counters to assert idempotency.
type SnapshotAPI struct {
	mu        sync.Mutex
	snapshots map[string]restore.Lifecycle

	CopyCalls   int
	StatusCalls int
	DeleteCalls int
	ExistsCalls int

	// Err, when set, is returned by every call.
	Err error
}

func NewSnapshotAPI() *SnapshotAPI {
	return &SnapshotAPI{
		snapshots: make(map[string]restore.Lifecycle),
	}
}

var _ restore.SnapshotAPI = (*SnapshotAPI)(nil)

func (f *SnapshotAPI) SetStatus(region, snapshotID string, status restore.Lifecycle) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status == restore.LifecycleNotFound {
		delete(f.snapshots, key(region, snapshotID))
		return
	}

	f.snapshots[key(region, snapshotID)] = status
}

func (f *SnapshotAPI) SnapshotExists(ctx context.Context, region, snapshotID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ExistsCalls++
	if f.Err != nil {
		return false, f.Err
	}

	_, ok := f.snapshots[key(region, snapshotID)]
	return ok, nil
}

func (f *SnapshotAPI) CopySnapshot(ctx context.Context, sourceRegion, targetRegion, sourceID, targetID string) (restore.SnapshotInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CopyCalls++
	if f.Err != nil {
		return restore.SnapshotInfo{}, f.Err
	}

	if _, ok := f.snapshots[key(sourceRegion, sourceID)]; !ok {
		return restore.SnapshotInfo{}, errors.Wrap(snaprestore.ErrNotFound, "source snapshot not found", j.KV("snapshot_id", sourceID))
	}

	f.snapshots[key(targetRegion, targetID)] = restore.LifecycleCopying

	return restore.SnapshotInfo{
		ID:     targetID,
		Region: targetRegion,
		Status: restore.LifecycleCopying,
	}, nil
}

func (f *SnapshotAPI) CopyStatus(ctx context.Context, region, snapshotID string) (restore.SnapshotInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.StatusCalls++
	if f.Err != nil {
		return restore.SnapshotInfo{}, f.Err
	}

	status, ok := f.snapshots[key(region, snapshotID)]
	if !ok {
		status = restore.LifecycleNotFound
	}

	return restore.SnapshotInfo{
		ID:     snapshotID,
		Region: region,
		Status: status,
	}, nil
}

func (f *SnapshotAPI) DeleteSnapshot(ctx context.Context, region, snapshotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DeleteCalls++
	if f.Err != nil {
		return f.Err
	}

	if _, ok := f.snapshots[key(region, snapshotID)]; !ok {
		return errors.Wrap(snaprestore.ErrNotFound, "snapshot not found", j.KV("snapshot_id", snapshotID))
	}

	delete(f.snapshots, key(region, snapshotID))
	return nil
}

// ClusterAPI is a fake restore.ClusterAPI.
type ClusterAPI struct {
	mu       sync.Mutex
	clusters map[string]restore.ClusterInfo

	DeleteCalls  int
	RestoreCalls int
	StatusCalls  int

	ConfiguredUsers []restore.Credentials

	Err error
}

func NewClusterAPI() *ClusterAPI {
	return &ClusterAPI{
		clusters: make(map[string]restore.ClusterInfo),
	}
}

var _ restore.ClusterAPI = (*ClusterAPI)(nil)

func (f *ClusterAPI) SetCluster(region string, info restore.ClusterInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if info.Status == restore.LifecycleNotFound {
		delete(f.clusters, key(region, info.ID))
		return
	}

	info.Region = region
	f.clusters[key(region, info.ID)] = info
}

func (f *ClusterAPI) DeleteCluster(ctx context.Context, region, clusterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DeleteCalls++
	if f.Err != nil {
		return f.Err
	}

	info, ok := f.clusters[key(region, clusterID)]
	if !ok {
		return errors.Wrap(snaprestore.ErrNotFound, "cluster not found", j.KV("cluster_id", clusterID))
	}

	info.Status = restore.LifecycleDeleting
	f.clusters[key(region, clusterID)] = info
	return nil
}

func (f *ClusterAPI) DeleteStatus(ctx context.Context, region, clusterID string) (restore.ClusterInfo, error) {
	return f.status(region, clusterID)
}

func (f *ClusterAPI) RestoreFromSnapshot(ctx context.Context, region, clusterID, snapshotID string) (restore.ClusterInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.RestoreCalls++
	if f.Err != nil {
		return restore.ClusterInfo{}, f.Err
	}

	info := restore.ClusterInfo{
		ID:     clusterID,
		Region: region,
		Status: restore.LifecycleCreating,
	}
	f.clusters[key(region, clusterID)] = info
	return info, nil
}

func (f *ClusterAPI) RestoreStatus(ctx context.Context, region, clusterID string) (restore.ClusterInfo, error) {
	return f.status(region, clusterID)
}

func (f *ClusterAPI) ConfigureUsers(ctx context.Context, region, clusterID string, creds []restore.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}

	f.ConfiguredUsers = append(f.ConfiguredUsers, creds...)
	return nil
}

func (f *ClusterAPI) status(region, clusterID string) (restore.ClusterInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.StatusCalls++
	if f.Err != nil {
		return restore.ClusterInfo{}, f.Err
	}

	info, ok := f.clusters[key(region, clusterID)]
	if !ok {
		return restore.ClusterInfo{
			ID:     clusterID,
			Region: region,
			Status: restore.LifecycleNotFound,
		}, nil
	}

	return info, nil
}

// ParameterStore is a fake restore.ParameterStore backed by a map.
type ParameterStore struct {
	Params map[string]string
}

var _ restore.ParameterStore = (*ParameterStore)(nil)

func (f *ParameterStore) Parameter(ctx context.Context, name string) (string, error) {
	v, ok := f.Params[name]
	if !ok {
		return "", errors.Wrap(snaprestore.ErrNotFound, "parameter not found", j.KV("name", name))
	}

	return v, nil
}

// SecretStore is a fake restore.SecretStore backed by a map.
type SecretStore struct {
	Secrets map[string]restore.Credentials
}

var _ restore.SecretStore = (*SecretStore)(nil)

func (f *SecretStore) Secret(ctx context.Context, name string) (restore.Credentials, error) {
	v, ok := f.Secrets[name]
	if !ok {
		return restore.Credentials{}, errors.Wrap(snaprestore.ErrNotFound, "secret not found", j.KV("name", name))
	}

	return v, nil
}

// Notification is one recorded publish.
type Notification struct {
	Topic   string
	Subject string
	Message string
}

// Notifier records published notifications.
type Notifier struct {
	mu        sync.Mutex
	Published []Notification

	Err error
}

var _ snaprestore.Notifier = (*Notifier)(nil)

func (f *Notifier) Publish(ctx context.Context, topic, subject, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}

	f.Published = append(f.Published, Notification{
		Topic:   topic,
		Subject: subject,
		Message: message,
	})
	return nil
}
