package retro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/engine"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPageSize     = 100
)

// Executor is the mutating rule executor surface the worker drives,
// implemented by engine.Service
type Executor interface {
	ApplyRuleToJournal(ctx context.Context, group *domain.RuleGroup, rule *domain.Rule, j *domain.TransactionJournal) (*engine.PassSummary, error)
	ApplyGroupToJournal(ctx context.Context, group *domain.RuleGroup, j *domain.TransactionJournal) (*engine.PassSummary, error)
}

// Worker dequeues retroactive rule jobs and replays the mutating rule
// executor over each job's bounded slice of history. Jobs are claimed one
// at a time per worker; actions are idempotent, so an at-least-once retry
// after a crash is safe.
type Worker struct {
	jobs         domain.JobRepository
	rules        domain.RuleRepository
	journals     domain.JournalRepository
	exec         Executor
	logger       *slog.Logger
	pollInterval time.Duration
	pageSize     int
}

// NewWorker creates a new retroactive job worker
func NewWorker(jobs domain.JobRepository, rules domain.RuleRepository, journals domain.JournalRepository, exec Executor, logger *slog.Logger, pollInterval time.Duration, pageSize int) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	return &Worker{
		jobs:         jobs,
		rules:        rules,
		journals:     journals,
		exec:         exec,
		logger:       logger,
		pollInterval: pollInterval,
		pageSize:     pageSize,
	}
}

// Run polls the queue until the context is cancelled
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("retroactive job failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and executes at most one pending job. It returns nil
// when the queue is empty.
func (w *Worker) RunOnce(ctx context.Context) error {
	job, err := w.jobs.ClaimNext(ctx)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	w.logger.Info("retroactive job started",
		"job_id", job.ID, "user_id", job.UserID,
		"start", job.StartDate.Format("2006-01-02"), "end", job.EndDate.Format("2006-01-02"))

	scanned, matched, applied, execErr := w.execute(ctx, job)
	if execErr != nil {
		if markErr := w.jobs.MarkFailed(ctx, job.ID, execErr.Error()); markErr != nil {
			w.logger.Error("failed to mark job failed", "job_id", job.ID, "error", markErr)
		}
		return fmt.Errorf("job %s: %w", job.ID, execErr)
	}

	if err := w.jobs.MarkCompleted(ctx, job.ID, scanned, matched, applied); err != nil {
		return fmt.Errorf("job %s: mark completed: %w", job.ID, err)
	}

	w.logger.Info("retroactive job completed",
		"job_id", job.ID, "scanned", scanned, "matched", matched, "applied", applied)
	return nil
}

// execute pages through the job's window and applies the executor to
// each journal. Cancellation is cooperative: the context is checked
// before each journal, so a cancelled job stops between journals and
// never leaves an action half-applied.
func (w *Worker) execute(ctx context.Context, job *domain.RuleJob) (scanned, matched, applied int, err error) {
	var group *domain.RuleGroup
	var rule *domain.Rule

	switch {
	case job.RuleID != nil:
		rule, err = w.rules.GetRule(ctx, *job.RuleID)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("load rule: %w", err)
		}
		group, err = w.rules.GetGroup(ctx, rule.GroupID)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("load rule group: %w", err)
		}
	case job.GroupID != nil:
		group, err = w.rules.GetGroup(ctx, *job.GroupID)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("load rule group: %w", err)
		}
	default:
		return 0, 0, 0, errors.New("job references neither a rule nor a group")
	}

	filter := domain.JournalFilter{
		AccountIDs: job.AccountIDs,
		Start:      &job.StartDate,
		End:        &job.EndDate,
	}

	offset := 0
	for {
		page, pageErr := w.journals.ListPage(ctx, job.UserID, filter, w.pageSize, offset)
		if pageErr != nil {
			return scanned, matched, applied, fmt.Errorf("list journals: %w", pageErr)
		}
		if len(page) == 0 {
			return scanned, matched, applied, nil
		}

		deleted := 0
		for _, j := range page {
			if err := ctx.Err(); err != nil {
				return scanned, matched, applied, err
			}

			var summary *engine.PassSummary
			var applyErr error
			if rule != nil {
				summary, applyErr = w.exec.ApplyRuleToJournal(ctx, group, rule, j)
			} else {
				summary, applyErr = w.exec.ApplyGroupToJournal(ctx, group, j)
			}
			if applyErr != nil {
				return scanned, matched, applied, applyErr
			}

			scanned++
			matched += summary.RulesMatched
			applied += summary.ActionsApplied
			if summary.Deleted {
				deleted++
			}
		}

		if len(page) < w.pageSize {
			return scanned, matched, applied, nil
		}
		// A deleted journal drops out of the listing and shifts the rest
		// of the result set left; only the survivors advance the offset.
		offset += len(page) - deleted
	}
}
