package domain

import "time"

// TaskState enumerates the pipeline task state machine.
type TaskState string

const (
	StateAdmitted     TaskState = "admitted"
	StateSummarizing  TaskState = "summarizing"
	StateIllustrating TaskState = "illustrating"
	StatePublishing   TaskState = "publishing"
	StateCompleted    TaskState = "completed"
	StateFailed       TaskState = "failed"
	StateSkipped      TaskState = "skipped"
)

// Terminal reports whether no further automatic transition occurs.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateSkipped
}

// PipelineTask tracks one news item through the pipeline. Owned exclusively
// by the coordinator; exactly one non-terminal task exists per dedup key.
type PipelineTask struct {
	ID           string
	Item         NewsItem
	State        TaskState
	Attempts     int
	LastError    string
	ProviderUsed string
	Summary      string
	ImageRef     string
	Published    *PublishedRef
	UpdatedAt    time.Time
}
