package retro

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
)

// Service enqueues retroactive rule jobs onto the durable queue and
// exposes their status records. Execution happens in the Worker, never
// inline in the request path.
type Service struct {
	jobs domain.JobRepository
}

// NewService creates a new retroactive job service
func NewService(jobs domain.JobRepository) *Service {
	return &Service{jobs: jobs}
}

// EnqueueRule queues a replay of one rule over the accounts and date
// window for the user
func (s *Service) EnqueueRule(ctx context.Context, userID, ruleID uuid.UUID, accountIDs []uuid.UUID, start, end time.Time) (*domain.RuleJob, error) {
	return s.enqueue(ctx, userID, &ruleID, nil, accountIDs, start, end)
}

// EnqueueGroup queues a replay of a whole rule group over the accounts
// and date window for the user
func (s *Service) EnqueueGroup(ctx context.Context, userID, groupID uuid.UUID, accountIDs []uuid.UUID, start, end time.Time) (*domain.RuleJob, error) {
	return s.enqueue(ctx, userID, nil, &groupID, accountIDs, start, end)
}

// Job retrieves a job status record
func (s *Service) Job(ctx context.Context, id uuid.UUID) (*domain.RuleJob, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *Service) enqueue(ctx context.Context, userID uuid.UUID, ruleID, groupID *uuid.UUID, accountIDs []uuid.UUID, start, end time.Time) (*domain.RuleJob, error) {
	job := &domain.RuleJob{
		ID:         uuid.New(),
		UserID:     userID,
		RuleID:     ruleID,
		GroupID:    groupID,
		AccountIDs: accountIDs,
		StartDate:  start,
		EndDate:    end,
		Status:     domain.JobStatusPending,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	return job, nil
}
