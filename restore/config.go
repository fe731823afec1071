package restore

// Config carries the shared restore settings. It is immutable and threaded
// into every handler invocation explicitly, never held as ambient global
// state. Per-operation payload values override the configured defaults.
type Config struct {
	// SourceRegion is the region holding the validated snapshot.
	SourceRegion string
	// TargetRegion is the region the cluster is restored into.
	TargetRegion string
	// ClusterID is the identifier of the target cluster that is deleted and
	// restored from the snapshot copy.
	ClusterID string

	// UserSecrets name the credential secrets applied to the restored
	// cluster by the setup-users step.
	UserSecrets []string

	// CompletionTopicParameter optionally names a parameter that resolves to
	// the completion notification topic at runtime. When empty,
	// CompletionTopic is used directly.
	CompletionTopicParameter string
	CompletionTopic          string

	// FailureTopic receives failure notifications via the failure handler.
	FailureTopic string
}
