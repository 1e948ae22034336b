package domain

import "time"

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeImage JobType = "image"
	JobTypeVideo JobType = "video"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job tracks one asynchronous generation request from creation to its
// terminal outcome. The fields copied from the originating request are
// immutable after creation; Results grows one artifact at a time so a
// concurrent status reader observes partial progress.
type Job struct {
	ID           string
	Type         JobType
	Status       JobStatus
	Progress     int
	Results      []string
	SessionID    string
	ErrorMessage string
	CreatedAt    time.Time

	Prompt      string
	AspectRatio string
	Resolution  string
	Mode        string
	Count       int
}
