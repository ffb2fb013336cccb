package reminders

import "time"

// Outcome is the per-task result of one scan.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeSkipped  Outcome = "skipped_duplicate"
	OutcomeNoAction Outcome = "no_action"
	OutcomeFailed   Outcome = "failed"
)

// TaskResult records what a scan did with one task.
type TaskResult struct {
	TaskID         string  `json:"task_id"`
	Outcome        Outcome `json:"outcome"`
	Kind           Kind    `json:"kind,omitempty"`
	NotificationID string  `json:"notification_id,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// CycleReport summarises one scan of one user's tasks.
type CycleReport struct {
	UserID     string       `json:"user_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Created    int          `json:"created"`
	Skipped    int          `json:"skipped"`
	NoAction   int          `json:"no_action"`
	Failed     int          `json:"failed"`
	FetchError string       `json:"fetch_error,omitempty"`
	Results    []TaskResult `json:"results"`
}

// Duration is the wall time the scan took.
func (r CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *CycleReport) tally() {
	r.Created, r.Skipped, r.NoAction, r.Failed = 0, 0, 0, 0
	for _, result := range r.Results {
		switch result.Outcome {
		case OutcomeCreated:
			r.Created++
		case OutcomeSkipped:
			r.Skipped++
		case OutcomeNoAction:
			r.NoAction++
		case OutcomeFailed:
			r.Failed++
		}
	}
}
