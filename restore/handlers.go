package restore

import (
	"context"
	"strconv"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/luno/snaprestore"
)

// Context keys of the values accumulated across steps. The first invocation's
// payload seeds snapshot_id and the region overrides.
const (
	KeySnapshotID       = "snapshot_id"
	KeySourceRegion     = "source_region"
	KeyTargetRegion     = "target_region"
	KeyClusterID        = "cluster_id"
	KeyCopiedSnapshotID = "copied_snapshot_id"
	KeyClusterEndpoint  = "cluster_endpoint"
	KeyStatus           = "status"
)

// Handlers implements the restore workflow's steps over the resource-provider
// collaborators. One method per step; each validates its inputs from the
// operation context before any external call.
type Handlers struct {
	cfg       Config
	snapshots SnapshotAPI
	clusters  ClusterAPI
	params    ParameterStore
	secrets   SecretStore
	notifier  snaprestore.Notifier
}

func NewHandlers(
	cfg Config,
	snapshots SnapshotAPI,
	clusters ClusterAPI,
	params ParameterStore,
	secrets SecretStore,
	notifier snaprestore.Notifier,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		snapshots: snapshots,
		clusters:  clusters,
		params:    params,
		secrets:   secrets,
		notifier:  notifier,
	}
}

// inputs resolves the common fields, falling back to configured defaults for
// values the payload omitted.
type inputs struct {
	snapshotID   string
	sourceRegion string
	targetRegion string
	clusterID    string
}

func (h *Handlers) inputs(state *snaprestore.OperationState) inputs {
	return inputs{
		snapshotID:   state.Context[KeySnapshotID],
		sourceRegion: valueOr(state, KeySourceRegion, h.cfg.SourceRegion),
		targetRegion: valueOr(state, KeyTargetRegion, h.cfg.TargetRegion),
		clusterID:    valueOr(state, KeyClusterID, h.cfg.ClusterID),
	}
}

func (in inputs) validate() error {
	if err := ValidateSnapshotID(in.snapshotID); err != nil {
		return err
	}
	if err := ValidateRegion(in.sourceRegion); err != nil {
		return err
	}
	if err := ValidateRegion(in.targetRegion); err != nil {
		return err
	}

	return ValidateClusterID(in.clusterID)
}

func (in inputs) sameRegion() bool {
	return in.sourceRegion == in.targetRegion
}

// copyName derives the deterministic identifier of the snapshot copy so that
// re-invocations address the same resource.
func copyName(operationID string) string {
	return "restore-copy-" + operationID
}

// SnapshotCheck validates the request and confirms the source snapshot
// exists. Its result pins the resolved inputs into the operation context so
// later steps see one consistent view.
func (h *Handlers) SnapshotCheck(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
	in := h.inputs(state)
	if err := in.validate(); err != nil {
		return snaprestore.FailedErr("invalid restore request", err), nil
	}

	exists, err := h.snapshots.SnapshotExists(ctx, in.sourceRegion, in.snapshotID)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	if !exists {
		return snaprestore.StepResult{}, errors.Wrap(snaprestore.ErrNotFound, "source snapshot does not exist", j.MKV{
			"snapshot_id": in.snapshotID,
			"region":      in.sourceRegion,
		})
	}

	return snaprestore.Success(map[string]string{
		KeySnapshotID:   in.snapshotID,
		KeySourceRegion: in.sourceRegion,
		KeyTargetRegion: in.targetRegion,
		KeyClusterID:    in.clusterID,
		KeyStatus:       string(LifecycleAvailable),
	}), nil
}

// CopySnapshot starts the cross-region copy. Re-invocation is idempotent: an
// already in-flight or completed copy is detected via the describe call, not
// local memory, and no duplicate copy request is issued. Same-region restores
// short-circuit to the source snapshot itself.
func (h *Handlers) CopySnapshot(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
	in := h.inputs(state)
	if err := in.validate(); err != nil {
		return snaprestore.FailedErr("invalid restore request", err), nil
	}

	if in.sameRegion() {
		return snaprestore.Success(map[string]string{
			KeyCopiedSnapshotID: in.snapshotID,
			KeyStatus:           string(LifecycleAvailable),
		}), nil
	}

	targetID := copyName(state.OperationID)

	info, err := h.snapshots.CopyStatus(ctx, in.targetRegion, targetID)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	switch info.Status {
	case LifecycleCopying, LifecycleCreating, LifecycleAvailable:
		// Already requested by a previous invocation.
		return snaprestore.Success(map[string]string{
			KeyCopiedSnapshotID: targetID,
			KeyStatus:           string(info.Status),
		}), nil
	case LifecycleFailed:
		return snaprestore.Failed(snaprestore.KindPermanent, "previous snapshot copy failed"), nil
	}

	info, err = h.snapshots.CopySnapshot(ctx, in.sourceRegion, in.targetRegion, in.snapshotID, targetID)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	return snaprestore.Success(map[string]string{
		KeyCopiedSnapshotID: targetID,
		KeyStatus:           string(info.Status),
	}), nil
}

// CheckCopyStatus polls the copy until it is available. It never issues
// state-changing calls.
func (h *Handlers) CheckCopyStatus(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
	in := h.inputs(state)
	if in.sameRegion() {
		return snaprestore.Success(map[string]string{
			KeyStatus: string(LifecycleAvailable),
		}), nil
	}

	copiedID := state.Context[KeyCopiedSnapshotID]
	if copiedID == "" {
		return snaprestore.FailedErr("invalid restore request",
			errors.Wrap(snaprestore.ErrValidation, "missing copied snapshot identifier")), nil
	}

	info, err := h.snapshots.CopyStatus(ctx, in.targetRegion, copiedID)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	switch info.Status {
	case LifecycleAvailable:
		return snaprestore.Success(map[string]string{KeyStatus: string(LifecycleAvailable)}), nil
	case LifecycleCopying, LifecycleCreating:
		return snaprestore.InProgress(0, map[string]string{KeyStatus: string(info.Status)}), nil
	case LifecycleFailed:
		return snaprestore.Failed(snaprestore.KindPermanent, "snapshot copy failed"), nil
	default:
		return snaprestore.StepResult{}, errors.Wrap(snaprestore.ErrNotFound, "snapshot copy disappeared", j.MKV{
			"snapshot_id": copiedID,
			"region":      in.targetRegion,
		})
	}
}

// DeleteCluster tears down the stale target cluster. An already-deleting
// cluster is treated as in flight; a missing cluster surfaces as not found.
func (h *Handlers) DeleteCluster(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
	in := h.inputs(state)
	if err := ValidateClusterID(in.clusterID); err != nil {
		return snaprestore.FailedErr("invalid restore request", err), nil
	}

	info, err := h.clusters.DeleteStatus(ctx, in.targetRegion, in.clusterID)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	switch info.Status {
	case LifecycleNotFound:
		return snaprestore.StepResult{}, errors.Wrap(snaprestore.ErrNotFound, "target cluster does not exist", j.MKV{
			"cluster_id": in.clusterID,
			"region":     in.targetRegion,
		})
	case LifecycleDeleting:
		// Already requested by a previous invocation.
		return snaprestore.Success(map[string]string{KeyStatus: string(LifecycleDeleting)}), nil
	}

	err = h.clusters.DeleteCluster(ctx, in.targetRegion, in.clusterID)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	return snaprestore.Success(map[string]string{KeyStatus: string(LifecycleDeleting)}), nil
}

// CheckDeleteStatus polls until the cluster is gone.
func (h *Handlers) CheckDeleteStatus(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
	in := h.inputs(state)

	info, err := h.clusters.DeleteStatus(ctx, in.targetRegion, in.clusterID)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	switch info.Status {
	case LifecycleNotFound:
		return snaprestore.Success(map[string]string{KeyStatus: "deleted"}), nil
	case LifecycleFailed:
		return snaprestore.Failed(snaprestore.KindPermanent, "cluster deletion failed"), nil
	default:
		// Deletion still propagating.
		return snaprestore.InProgress(0, map[string]string{KeyStatus: string(info.Status)}), nil
	}
}

// RestoreSnapshot creates the new cluster from the snapshot copy. Idempotent
// via the describe call: an existing restore is never requested twice.
func (h *Handlers) RestoreSnapshot(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
	in := h.inputs(state)
	copiedID := state.Context[KeyCopiedSnapshotID]
	if err := ValidateSnapshotID(copiedID); err != nil {
		return snaprestore.FailedErr("invalid restore request", err), nil
	}

	info, err := h.clusters.RestoreStatus(ctx, in.targetRegion, in.clusterID)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	switch info.Status {
	case LifecycleCreating, LifecycleAvailable:
		// Already requested by a previous invocation.
		return snaprestore.Success(map[string]string{KeyStatus: string(info.Status)}), nil
	case LifecycleFailed:
		return snaprestore.Failed(snaprestore.KindPermanent, "previous restore attempt failed"), nil
	}

	info, err = h.clusters.RestoreFromSnapshot(ctx, in.targetRegion, in.clusterID, copiedID)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	return snaprestore.Success(map[string]string{KeyStatus: string(info.Status)}), nil
}

// CheckRestoreStatus polls until the restored cluster is available and
// records its endpoint.
func (h *Handlers) CheckRestoreStatus(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
	in := h.inputs(state)

	info, err := h.clusters.RestoreStatus(ctx, in.targetRegion, in.clusterID)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	switch info.Status {
	case LifecycleAvailable:
		return snaprestore.Success(map[string]string{
			KeyStatus:          string(LifecycleAvailable),
			KeyClusterEndpoint: info.Endpoint,
		}), nil
	case LifecycleCreating:
		return snaprestore.InProgress(0, map[string]string{KeyStatus: string(info.Status)}), nil
	case LifecycleFailed:
		return snaprestore.Failed(snaprestore.KindPermanent, "cluster restore failed"), nil
	default:
		return snaprestore.StepResult{}, errors.Wrap(snaprestore.ErrNotFound, "restored cluster not found", j.MKV{
			"cluster_id": in.clusterID,
			"region":     in.targetRegion,
		})
	}
}

// SetupUsers applies the configured credential secrets to the restored
// cluster.
func (h *Handlers) SetupUsers(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
	in := h.inputs(state)

	var creds []Credentials
	for _, name := range h.cfg.UserSecrets {
		cred, err := h.secrets.Secret(ctx, name)
		if err != nil {
			return snaprestore.StepResult{}, errors.Wrap(err, "resolving user secret", j.KV("secret", name))
		}

		creds = append(creds, cred)
	}

	err := h.clusters.ConfigureUsers(ctx, in.targetRegion, in.clusterID, creds)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	return snaprestore.Success(map[string]string{
		"users_configured": strconv.Itoa(len(creds)),
	}), nil
}

// ArchiveSnapshot removes the snapshot copy now that the restore completed.
// Same-region restores never created a copy, so there is nothing to remove.
func (h *Handlers) ArchiveSnapshot(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
	in := h.inputs(state)
	if in.sameRegion() {
		return snaprestore.Success(map[string]string{KeyStatus: "skipped"}), nil
	}

	copiedID := state.Context[KeyCopiedSnapshotID]
	err := h.snapshots.DeleteSnapshot(ctx, in.targetRegion, copiedID)
	if errors.Is(err, snaprestore.ErrNotFound) {
		// Already archived by a previous invocation.
		return snaprestore.Success(map[string]string{KeyStatus: "archived"}), nil
	} else if err != nil {
		return snaprestore.StepResult{}, err
	}

	return snaprestore.Success(map[string]string{KeyStatus: "archived"}), nil
}

type completionNotification struct {
	OperationID string `json:"operation_id"`
	SnapshotID  string `json:"snapshot_id"`
	ClusterID   string `json:"cluster_id"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// Notify publishes the completion notification.
func (h *Handlers) Notify(ctx context.Context, state *snaprestore.OperationState) (snaprestore.StepResult, error) {
	in := h.inputs(state)

	topic := h.cfg.CompletionTopic
	if h.cfg.CompletionTopicParameter != "" {
		var err error
		topic, err = h.params.Parameter(ctx, h.cfg.CompletionTopicParameter)
		if err != nil {
			return snaprestore.StepResult{}, errors.Wrap(err, "resolving completion topic")
		}
	}

	notification := completionNotification{
		OperationID: state.OperationID,
		SnapshotID:  in.snapshotID,
		ClusterID:   in.clusterID,
		Endpoint:    state.Context[KeyClusterEndpoint],
	}
	message, err := snaprestore.Marshal(&notification)
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	subject := "restore operation complete: " + state.OperationID
	err = h.notifier.Publish(ctx, topic, subject, string(message))
	if err != nil {
		return snaprestore.StepResult{}, err
	}

	return snaprestore.Success(map[string]string{KeyStatus: "notified"}), nil
}

func valueOr(state *snaprestore.OperationState, key, fallback string) string {
	if v := state.Context[key]; v != "" {
		return v
	}

	return fallback
}
