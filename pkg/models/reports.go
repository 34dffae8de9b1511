package models

import "time"

type SyncStatus string

const (
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusAborted   SyncStatus = "aborted"
	SyncStatusCancelled SyncStatus = "cancelled"
)

// RecordIssue names one job that was skipped or failed during a sync pass.
type RecordIssue struct {
	DocNumber string `json:"doc_number,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	Reason    string `json:"reason"`
}

// SyncReport is what the CRUD layer gets back from a sync pass: counts plus
// reasons, never a raw error dump.
type SyncReport struct {
	CrewCode  string     `json:"crew_code"`
	WeekStart time.Time  `json:"week_start"`
	Status    SyncStatus `json:"status"`

	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	Issues []RecordIssue `json:"issues,omitempty"`
	// AbortReason is set only when Status is aborted — the pass could not even
	// list jobs, which is different from per-record failures.
	AbortReason string    `json:"abort_reason,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Processed is the number of jobs that made it into local storage.
func (r *SyncReport) Processed() int {
	return r.Created + r.Updated + r.Unchanged
}

type UploadOutcome string

const (
	UploadOutcomeSucceeded UploadOutcome = "succeeded"
	UploadOutcomeFailed    UploadOutcome = "failed"
	UploadOutcomeCancelled UploadOutcome = "cancelled"
)

// FileResult records one attachment upload attempt.
type FileResult struct {
	FileName string        `json:"file_name"`
	Key      string        `json:"key"`
	Outcome  UploadOutcome `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
}

// UploadReport enumerates per-file outcomes for one invoice's attachment batch.
type UploadReport struct {
	InvoiceID string       `json:"invoice_id"`
	DocNumber string       `json:"doc_number"`
	Cancelled bool         `json:"cancelled"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Files     []FileResult `json:"files"`
}
