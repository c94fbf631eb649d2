package retro

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockJobRepository is a mock implementation of JobRepository for testing
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Enqueue(ctx context.Context, job *domain.RuleJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) ClaimNext(ctx context.Context) (*domain.RuleJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RuleJob), args.Error(1)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RuleJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RuleJob), args.Error(1)
}

func (m *MockJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, scanned, matched, applied int) error {
	args := m.Called(ctx, id, scanned, matched, applied)
	return args.Error(0)
}

func (m *MockJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func TestEnqueueRule_PersistsPendingJob(t *testing.T) {
	ctx := context.Background()
	jobs := new(MockJobRepository)
	service := NewService(jobs)

	userID := uuid.New()
	ruleID := uuid.New()
	accountID := uuid.New()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	jobs.On("Enqueue", ctx, mock.MatchedBy(func(job *domain.RuleJob) bool {
		return job.UserID == userID &&
			job.RuleID != nil && *job.RuleID == ruleID &&
			job.GroupID == nil &&
			job.Status == domain.JobStatusPending &&
			len(job.AccountIDs) == 1 && job.AccountIDs[0] == accountID
	})).Return(nil)

	job, err := service.EnqueueRule(ctx, userID, ruleID, []uuid.UUID{accountID}, start, end)
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	jobs.AssertExpectations(t)
}

func TestEnqueueGroup_PersistsPendingJob(t *testing.T) {
	ctx := context.Background()
	jobs := new(MockJobRepository)
	service := NewService(jobs)

	userID := uuid.New()
	groupID := uuid.New()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	jobs.On("Enqueue", ctx, mock.MatchedBy(func(job *domain.RuleJob) bool {
		return job.RuleID == nil && job.GroupID != nil && *job.GroupID == groupID
	})).Return(nil)

	job, err := service.EnqueueGroup(ctx, userID, groupID, nil, start, start)
	assert.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	jobs.AssertExpectations(t)
}

func TestEnqueueRule_RejectsInvalidWindow(t *testing.T) {
	ctx := context.Background()
	jobs := new(MockJobRepository)
	service := NewService(jobs)

	start := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, -1, 0)

	_, err := service.EnqueueRule(ctx, uuid.New(), uuid.New(), nil, start, end)
	assert.Error(t, err)
	jobs.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}
