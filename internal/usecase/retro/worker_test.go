package retro

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/action"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/engine"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRuleRepository is a mock implementation of RuleRepository for testing
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) ListActiveGroups(ctx context.Context, userID uuid.UUID) ([]*domain.RuleGroup, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RuleGroup), args.Error(1)
}

func (m *MockRuleRepository) GetGroup(ctx context.Context, id uuid.UUID) (*domain.RuleGroup, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RuleGroup), args.Error(1)
}

func (m *MockRuleRepository) GetRule(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rule), args.Error(1)
}

func (m *MockRuleRepository) ReorderRules(ctx context.Context, groupID uuid.UUID, ruleIDs []uuid.UUID) error {
	args := m.Called(ctx, groupID, ruleIDs)
	return args.Error(0)
}

func (m *MockRuleRepository) SoftDeleteRule(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRuleRepository) SoftDeleteGroup(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockJournalRepository is a mock implementation of JournalRepository for
// testing; the worker only lists pages
type MockJournalRepository struct {
	mock.Mock
}

func (m *MockJournalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionJournal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionJournal), args.Error(1)
}

func (m *MockJournalRepository) ListPage(ctx context.Context, userID uuid.UUID, filter domain.JournalFilter, limit, offset int) ([]*domain.TransactionJournal, error) {
	args := m.Called(ctx, userID, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TransactionJournal), args.Error(1)
}

func (m *MockJournalRepository) SetCategory(ctx context.Context, journalID uuid.UUID, name string) error {
	args := m.Called(ctx, journalID, name)
	return args.Error(0)
}

func (m *MockJournalRepository) ClearCategory(ctx context.Context, journalID uuid.UUID) error {
	args := m.Called(ctx, journalID)
	return args.Error(0)
}

func (m *MockJournalRepository) SetBudget(ctx context.Context, journalID uuid.UUID, name string) error {
	args := m.Called(ctx, journalID, name)
	return args.Error(0)
}

func (m *MockJournalRepository) ClearBudget(ctx context.Context, journalID uuid.UUID) error {
	args := m.Called(ctx, journalID)
	return args.Error(0)
}

func (m *MockJournalRepository) AddTag(ctx context.Context, journalID uuid.UUID, name string) error {
	args := m.Called(ctx, journalID, name)
	return args.Error(0)
}

func (m *MockJournalRepository) RemoveTag(ctx context.Context, journalID uuid.UUID, name string) error {
	args := m.Called(ctx, journalID, name)
	return args.Error(0)
}

func (m *MockJournalRepository) RemoveAllTags(ctx context.Context, journalID uuid.UUID) error {
	args := m.Called(ctx, journalID)
	return args.Error(0)
}

func (m *MockJournalRepository) SetDescription(ctx context.Context, journalID uuid.UUID, text string) error {
	args := m.Called(ctx, journalID, text)
	return args.Error(0)
}

func (m *MockJournalRepository) SetNotes(ctx context.Context, journalID uuid.UUID, text string) error {
	args := m.Called(ctx, journalID, text)
	return args.Error(0)
}

func (m *MockJournalRepository) LinkToBill(ctx context.Context, journalID uuid.UUID, name string) error {
	args := m.Called(ctx, journalID, name)
	return args.Error(0)
}

func (m *MockJournalRepository) SetReconciled(ctx context.Context, journalID uuid.UUID, reconciled bool) error {
	args := m.Called(ctx, journalID, reconciled)
	return args.Error(0)
}

func (m *MockJournalRepository) Delete(ctx context.Context, journalID uuid.UUID) error {
	args := m.Called(ctx, journalID)
	return args.Error(0)
}

// MockExecutor is a mock implementation of Executor for testing
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) ApplyRuleToJournal(ctx context.Context, group *domain.RuleGroup, rule *domain.Rule, j *domain.TransactionJournal) (*engine.PassSummary, error) {
	args := m.Called(ctx, group, rule, j)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.PassSummary), args.Error(1)
}

func (m *MockExecutor) ApplyGroupToJournal(ctx context.Context, group *domain.RuleGroup, j *domain.TransactionJournal) (*engine.PassSummary, error) {
	args := m.Called(ctx, group, j)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.PassSummary), args.Error(1)
}

func ruleJobFixture(userID uuid.UUID, ruleID *uuid.UUID, groupID *uuid.UUID) *domain.RuleJob {
	return &domain.RuleJob{
		ID:        uuid.New(),
		UserID:    userID,
		RuleID:    ruleID,
		GroupID:   groupID,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Status:    domain.JobStatusRunning,
	}
}

func journalPage(userID uuid.UUID, n int) []*domain.TransactionJournal {
	page := make([]*domain.TransactionJournal, n)
	for i := range page {
		page[i] = &domain.TransactionJournal{ID: uuid.New(), UserID: userID}
	}
	return page
}

func TestRunOnce_EmptyQueueIsANoOp(t *testing.T) {
	ctx := context.Background()
	jobs := new(MockJobRepository)
	jobs.On("ClaimNext", ctx).Return(nil, nil)

	worker := NewWorker(jobs, new(MockRuleRepository), new(MockJournalRepository),
		new(MockExecutor), nil, time.Second, 10)

	assert.NoError(t, worker.RunOnce(ctx))
	jobs.AssertExpectations(t)
}

func TestRunOnce_RuleJobCompletesWithCounts(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	ruleID := uuid.New()
	groupID := uuid.New()

	rule := &domain.Rule{ID: ruleID, GroupID: groupID, Title: "Categorize Netflix", Order: 1,
		Active: true, Strict: true, TriggerType: domain.PassOnCreate}
	group := &domain.RuleGroup{ID: groupID, UserID: userID, Title: "Subscriptions", Order: 1, Active: true}
	job := ruleJobFixture(userID, &ruleID, nil)
	page := journalPage(userID, 3)

	jobs := new(MockJobRepository)
	jobs.On("ClaimNext", ctx).Return(job, nil)
	jobs.On("MarkCompleted", ctx, job.ID, 3, 2, 2).Return(nil)

	rules := new(MockRuleRepository)
	rules.On("GetRule", ctx, ruleID).Return(rule, nil)
	rules.On("GetGroup", ctx, groupID).Return(group, nil)

	journals := new(MockJournalRepository)
	journals.On("ListPage", ctx, userID, mock.MatchedBy(func(f domain.JournalFilter) bool {
		return f.Start != nil && f.Start.Equal(job.StartDate) &&
			f.End != nil && f.End.Equal(job.EndDate)
	}), 10, 0).Return(page, nil)

	exec := new(MockExecutor)
	exec.On("ApplyRuleToJournal", ctx, group, rule, page[0]).
		Return(&engine.PassSummary{RulesMatched: 1, ActionsApplied: 1}, nil)
	exec.On("ApplyRuleToJournal", ctx, group, rule, page[1]).
		Return(&engine.PassSummary{}, nil)
	exec.On("ApplyRuleToJournal", ctx, group, rule, page[2]).
		Return(&engine.PassSummary{RulesMatched: 1, ActionsApplied: 1}, nil)

	worker := NewWorker(jobs, rules, journals, exec, nil, time.Second, 10)

	assert.NoError(t, worker.RunOnce(ctx))
	jobs.AssertExpectations(t)
	exec.AssertExpectations(t)
}

func TestRunOnce_GroupJobUsesGroupExecutor(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	groupID := uuid.New()

	group := &domain.RuleGroup{ID: groupID, UserID: userID, Title: "Subscriptions", Order: 1, Active: true}
	job := ruleJobFixture(userID, nil, &groupID)
	page := journalPage(userID, 1)

	jobs := new(MockJobRepository)
	jobs.On("ClaimNext", ctx).Return(job, nil)
	jobs.On("MarkCompleted", ctx, job.ID, 1, 1, 2).Return(nil)

	rules := new(MockRuleRepository)
	rules.On("GetGroup", ctx, groupID).Return(group, nil)

	journals := new(MockJournalRepository)
	journals.On("ListPage", ctx, userID, mock.Anything, 10, 0).Return(page, nil)

	exec := new(MockExecutor)
	exec.On("ApplyGroupToJournal", ctx, group, page[0]).
		Return(&engine.PassSummary{RulesMatched: 1, ActionsApplied: 2}, nil)

	worker := NewWorker(jobs, rules, journals, exec, nil, time.Second, 10)

	assert.NoError(t, worker.RunOnce(ctx))
	jobs.AssertExpectations(t)
	exec.AssertExpectations(t)
}

func TestRunOnce_PagesThroughFullWindow(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	groupID := uuid.New()

	group := &domain.RuleGroup{ID: groupID, UserID: userID, Title: "Subscriptions", Order: 1, Active: true}
	job := ruleJobFixture(userID, nil, &groupID)
	first := journalPage(userID, 2)
	second := journalPage(userID, 1)

	jobs := new(MockJobRepository)
	jobs.On("ClaimNext", ctx).Return(job, nil)
	jobs.On("MarkCompleted", ctx, job.ID, 3, 0, 0).Return(nil)

	rules := new(MockRuleRepository)
	rules.On("GetGroup", ctx, groupID).Return(group, nil)

	journals := new(MockJournalRepository)
	journals.On("ListPage", ctx, userID, mock.Anything, 2, 0).Return(first, nil)
	journals.On("ListPage", ctx, userID, mock.Anything, 2, 2).Return(second, nil)

	exec := new(MockExecutor)
	exec.On("ApplyGroupToJournal", ctx, group, mock.Anything).Return(&engine.PassSummary{}, nil)

	worker := NewWorker(jobs, rules, journals, exec, nil, time.Second, 2)

	assert.NoError(t, worker.RunOnce(ctx))
	jobs.AssertExpectations(t)
	journals.AssertExpectations(t)
}

// journalStore is an in-memory JournalRepository covering the calls a
// deleting replay makes. ListPage serves only live journals, so every
// deletion shifts the remaining result set left, the same way the
// soft-delete filter does in postgres.
type journalStore struct {
	domain.JournalRepository
	journals []*domain.TransactionJournal
	deleted  map[uuid.UUID]bool
}

func newJournalStore(journals []*domain.TransactionJournal) *journalStore {
	return &journalStore{journals: journals, deleted: make(map[uuid.UUID]bool)}
}

func (s *journalStore) ListPage(ctx context.Context, userID uuid.UUID, filter domain.JournalFilter, limit, offset int) ([]*domain.TransactionJournal, error) {
	var live []*domain.TransactionJournal
	for _, j := range s.journals {
		if !s.deleted[j.ID] {
			live = append(live, j)
		}
	}
	if offset >= len(live) {
		return nil, nil
	}
	end := offset + limit
	if end > len(live) {
		end = len(live)
	}
	return live[offset:end], nil
}

func (s *journalStore) Delete(ctx context.Context, journalID uuid.UUID) error {
	if s.deleted[journalID] {
		return domain.ErrNotFound
	}
	s.deleted[journalID] = true
	return nil
}

func (s *journalStore) liveCount() int {
	return len(s.journals) - len(s.deleted)
}

func TestRunOnce_DeletingRuleVisitsEveryJournal(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	groupID := uuid.New()
	ruleID := uuid.New()

	group := &domain.RuleGroup{
		ID: groupID, UserID: userID, Title: "Cleanup", Order: 1, Active: true,
		Rules: []domain.Rule{{
			ID: ruleID, GroupID: groupID, Title: "Drop duplicate imports", Order: 1,
			Active: true, Strict: true, TriggerType: domain.PassOnUpdate,
			Triggers: []domain.RuleTrigger{
				{ID: uuid.New(), RuleID: ruleID, Kind: domain.TriggerDescriptionContains, Value: "duplicate", Order: 1},
			},
			Actions: []domain.RuleAction{
				{ID: uuid.New(), RuleID: ruleID, Kind: domain.ActionDeleteTransaction, Order: 1},
			},
		}},
	}
	job := ruleJobFixture(userID, nil, &groupID)

	journals := make([]*domain.TransactionJournal, 4)
	for i := range journals {
		journals[i] = &domain.TransactionJournal{
			ID: uuid.New(), UserID: userID, Description: "Duplicate import",
		}
	}
	store := newJournalStore(journals)

	jobs := new(MockJobRepository)
	jobs.On("ClaimNext", ctx).Return(job, nil)
	jobs.On("MarkCompleted", ctx, job.ID, 4, 4, 4).Return(nil)

	rules := new(MockRuleRepository)
	rules.On("GetGroup", ctx, groupID).Return(group, nil)

	exec := engine.NewService(rules, trigger.NewLibrary(), action.NewLibrary(store), nil)
	worker := NewWorker(jobs, rules, store, exec, nil, time.Second, 2)

	assert.NoError(t, worker.RunOnce(ctx))
	assert.Equal(t, 0, store.liveCount(), "every journal in the window must be processed")
	jobs.AssertExpectations(t)
}

func TestRunOnce_FailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	ruleID := uuid.New()
	job := ruleJobFixture(userID, &ruleID, nil)

	jobs := new(MockJobRepository)
	jobs.On("ClaimNext", ctx).Return(job, nil)
	jobs.On("MarkFailed", ctx, job.ID, mock.MatchedBy(func(reason string) bool {
		return reason != ""
	})).Return(nil)

	rules := new(MockRuleRepository)
	rules.On("GetRule", ctx, ruleID).Return(nil, errors.New("rule vanished"))

	worker := NewWorker(jobs, rules, new(MockJournalRepository), new(MockExecutor),
		nil, time.Second, 10)

	err := worker.RunOnce(ctx)
	assert.Error(t, err)
	jobs.AssertExpectations(t)
	jobs.AssertNotCalled(t, "MarkCompleted",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunOnce_CancellationStopsBetweenJournals(t *testing.T) {
	userID := uuid.New()
	groupID := uuid.New()

	group := &domain.RuleGroup{ID: groupID, UserID: userID, Title: "Subscriptions", Order: 1, Active: true}
	job := ruleJobFixture(userID, nil, &groupID)
	page := journalPage(userID, 5)

	ctx, cancel := context.WithCancel(context.Background())

	jobs := new(MockJobRepository)
	jobs.On("ClaimNext", ctx).Return(job, nil)
	jobs.On("MarkFailed", ctx, job.ID, mock.Anything).Return(nil)

	rules := new(MockRuleRepository)
	rules.On("GetGroup", ctx, groupID).Return(group, nil)

	journals := new(MockJournalRepository)
	journals.On("ListPage", ctx, userID, mock.Anything, 10, 0).Return(page, nil)

	exec := new(MockExecutor)
	exec.On("ApplyGroupToJournal", ctx, group, mock.Anything).
		Run(func(args mock.Arguments) { cancel() }).
		Return(&engine.PassSummary{}, nil).Once()

	worker := NewWorker(jobs, rules, journals, exec, nil, time.Second, 10)

	err := worker.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	exec.AssertExpectations(t)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	jobs := new(MockJobRepository)
	jobs.On("ClaimNext", ctx).Return(nil, nil)

	worker := NewWorker(jobs, new(MockRuleRepository), new(MockJournalRepository),
		new(MockExecutor), nil, time.Millisecond, 10)

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
