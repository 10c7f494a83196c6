package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries money-affecting work such as commission generation.
	QueueCritical = "critical"
)
