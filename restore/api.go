package restore

import (
	"context"
)

// Lifecycle is the status token reported by the resource provider for
// snapshots and clusters.
type Lifecycle string

const (
	LifecycleAvailable Lifecycle = "available"
	LifecycleCopying   Lifecycle = "copying"
	LifecycleCreating  Lifecycle = "creating"
	LifecycleDeleting  Lifecycle = "deleting"
	LifecycleFailed    Lifecycle = "failed"
	LifecycleNotFound  Lifecycle = "not-found"
)

type SnapshotInfo struct {
	ID     string
	Region string
	Status Lifecycle
}

type ClusterInfo struct {
	ID       string
	Region   string
	Status   Lifecycle
	Endpoint string
}

// SnapshotAPI is the resource-provider collaborator for snapshot lifecycle
// operations. Describe-type calls report an absent resource with
// LifecycleNotFound rather than an error.
type SnapshotAPI interface {
	SnapshotExists(ctx context.Context, region, snapshotID string) (bool, error)
	CopySnapshot(ctx context.Context, sourceRegion, targetRegion, sourceID, targetID string) (SnapshotInfo, error)
	CopyStatus(ctx context.Context, region, snapshotID string) (SnapshotInfo, error)
	DeleteSnapshot(ctx context.Context, region, snapshotID string) error
}

// ClusterAPI is the resource-provider collaborator for cluster lifecycle
// operations.
type ClusterAPI interface {
	DeleteCluster(ctx context.Context, region, clusterID string) error
	DeleteStatus(ctx context.Context, region, clusterID string) (ClusterInfo, error)
	RestoreFromSnapshot(ctx context.Context, region, clusterID, snapshotID string) (ClusterInfo, error)
	RestoreStatus(ctx context.Context, region, clusterID string) (ClusterInfo, error)
	ConfigureUsers(ctx context.Context, region, clusterID string, creds []Credentials) error
}

type Credentials struct {
	Username string
	Password string
}

// ParameterStore resolves runtime configuration values by name.
type ParameterStore interface {
	Parameter(ctx context.Context, name string) (string, error)
}

// SecretStore resolves structured credentials by secret name.
type SecretStore interface {
	Secret(ctx context.Context, name string) (Credentials, error)
}
