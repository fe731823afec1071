package restore

import (
	"time"

	"github.com/luno/snaprestore"
)

// WorkflowName identifies the restore workflow in logs and state records.
const WorkflowName = "database-restore"

// The restore steps, in workflow order.
const (
	StepSnapshotCheck      snaprestore.Step = "snapshot-check"
	StepCopySnapshot       snaprestore.Step = "copy-snapshot"
	StepCheckCopyStatus    snaprestore.Step = "check-copy-status"
	StepDeleteCluster      snaprestore.Step = "delete-cluster"
	StepCheckDeleteStatus  snaprestore.Step = "check-delete-status"
	StepRestoreSnapshot    snaprestore.Step = "restore-snapshot"
	StepCheckRestoreStatus snaprestore.Step = "check-restore-status"
	StepSetupUsers         snaprestore.Step = "setup-users"
	StepArchiveSnapshot    snaprestore.Step = "archive-snapshot"
	StepNotify             snaprestore.Step = "notify"
)

// pollInterval is the re-invocation delay while a status check reports the
// resource still transitioning. Copies and restores take minutes to hours, so
// a minute between polls keeps the describe traffic low without noticeably
// delaying completion.
const pollInterval = time.Minute

// Workflow builds the restore workflow definition over the provided
// collaborators.
func Workflow(
	cfg Config,
	snapshots SnapshotAPI,
	clusters ClusterAPI,
	params ParameterStore,
	secrets SecretStore,
	notifier snaprestore.Notifier,
) (*snaprestore.Definition, error) {
	h := NewHandlers(cfg, snapshots, clusters, params, secrets, notifier)

	return snaprestore.NewBuilder(WorkflowName).
		AddStep(StepSnapshotCheck, snaprestore.HandlerFunc(h.SnapshotCheck)).
		AddStep(StepCopySnapshot, snaprestore.HandlerFunc(h.CopySnapshot)).
		AddStep(StepCheckCopyStatus, snaprestore.HandlerFunc(h.CheckCopyStatus),
			snaprestore.WithWaitInterval(pollInterval)).
		AddStep(StepDeleteCluster, snaprestore.HandlerFunc(h.DeleteCluster)).
		AddStep(StepCheckDeleteStatus, snaprestore.HandlerFunc(h.CheckDeleteStatus),
			snaprestore.WithWaitInterval(pollInterval)).
		AddStep(StepRestoreSnapshot, snaprestore.HandlerFunc(h.RestoreSnapshot)).
		AddStep(StepCheckRestoreStatus, snaprestore.HandlerFunc(h.CheckRestoreStatus),
			snaprestore.WithWaitInterval(pollInterval)).
		AddStep(StepSetupUsers, snaprestore.HandlerFunc(h.SetupUsers)).
		AddStep(StepArchiveSnapshot, snaprestore.HandlerFunc(h.ArchiveSnapshot)).
		AddStep(StepNotify, snaprestore.HandlerFunc(h.Notify)).
		Build()
}
