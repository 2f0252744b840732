package models

// TaskStatus is the lifecycle of one pipeline invocation. Each stage boundary
// advances it; a hard failure freezes it at "failed" with the last completed
// stage recorded.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskSearching TaskStatus = "searching"
	TaskAnalyzing TaskStatus = "analyzing"
	TaskExpanding TaskStatus = "expanding"
	TaskFiltering TaskStatus = "filtering"
	TaskEnriching TaskStatus = "enriching"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ScrapeTask records one pipeline invocation for audit and resume.
type ScrapeTask struct {
	ID           int64
	Keyword      string
	Parameters   string
	Status       TaskStatus
	LastStage    TaskStatus
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
