package models

import "time"

// CardJobKind selects which roster a batch renders.
type CardJobKind string

const (
	CardJobKindStudents CardJobKind = "students"
	CardJobKindStaff    CardJobKind = "staff"
)

// CardJobStatus captures background batch lifecycle states.
type CardJobStatus string

const (
	CardJobStatusQueued     CardJobStatus = "QUEUED"
	CardJobStatusProcessing CardJobStatus = "PROCESSING"
	CardJobStatusFinished   CardJobStatus = "FINISHED"
	CardJobStatusFailed     CardJobStatus = "FAILED"
)

// CardJob tracks an asynchronous card batch.
type CardJob struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"sessionId"`
	Kind         CardJobKind   `json:"kind"`
	Status       CardJobStatus `json:"status"`
	Progress     int           `json:"progress"`
	CardCount    int           `json:"cardCount"`
	FileName     string        `json:"fileName,omitempty"`
	StoragePath  string        `json:"-"`
	ResultURL    *string       `json:"resultUrl,omitempty"`
	ExpiresAt    *time.Time    `json:"expiresAt,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	FinishedAt   *time.Time    `json:"finishedAt,omitempty"`
	ErrorMessage *string       `json:"error,omitempty"`
}

// Terminal reports whether the job will not change again.
func (j CardJob) Terminal() bool {
	return j.Status == CardJobStatusFinished || j.Status == CardJobStatusFailed
}
