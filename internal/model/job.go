package model

// Job kinds.
const (
	JobKindTitle   = "title"
	JobKindArticle = "article"
)

// Job states.
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusError   = "error"
)

// Job is a durable record of one queued translation task.
type Job struct {
	ID        string `json:"id"`
	ItemID    int64  `json:"itemId"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}
