package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a retroactive rule job
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// RuleJob is the durable payload for one retroactive run: replay one rule
// or one whole rule group over a date-bounded, account-bounded slice of a
// user's transaction history. Exactly one of RuleID and GroupID is set.
type RuleJob struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	RuleID     *uuid.UUID
	GroupID    *uuid.UUID
	AccountIDs []uuid.UUID
	StartDate  time.Time
	EndDate    time.Time

	Status  JobStatus
	Scanned int
	Matched int
	Applied int
	Error   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate ensures the job adheres to domain rules
// Returns an error if validation fails
func (job *RuleJob) Validate() error {
	if job.UserID == uuid.Nil {
		return errors.New("job must have a user")
	}

	if (job.RuleID == nil) == (job.GroupID == nil) {
		return errors.New("job must reference exactly one of a rule or a rule group")
	}

	if job.StartDate.IsZero() || job.EndDate.IsZero() {
		return errors.New("job must have a start and end date")
	}

	if job.EndDate.Before(job.StartDate) {
		return errors.New("job end date must not precede start date")
	}

	return nil
}
