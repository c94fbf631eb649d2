package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/lib/pq"
)

// jobRepository implements domain.JobRepository on a postgres table used
// as a durable queue
type jobRepository struct {
	db *DB
}

// NewJobRepository creates a new rule job repository
func NewJobRepository(db *DB) domain.JobRepository {
	return &jobRepository{db: db}
}

// Enqueue persists a new pending job
func (r *jobRepository) Enqueue(ctx context.Context, job *domain.RuleJob) error {
	accountIDs := make([]string, len(job.AccountIDs))
	for i, id := range job.AccountIDs {
		accountIDs[i] = id.String()
	}

	query := `
		INSERT INTO rule_jobs (id, user_id, rule_id, group_id, account_ids, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		nullableUUID(job.RuleID),
		nullableUUID(job.GroupID),
		pq.Array(accountIDs),
		job.StartDate,
		job.EndDate,
		string(domain.JobStatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue rule job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the oldest pending job and marks it
// running. SKIP LOCKED keeps concurrent workers from claiming the same
// job. Returns (nil, nil) when the queue is empty.
func (r *jobRepository) ClaimNext(ctx context.Context) (*domain.RuleJob, error) {
	query := `
		UPDATE rule_jobs SET status = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM rule_jobs
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, rule_id, group_id, account_ids, start_date, end_date,
			status, scanned, matched, applied, COALESCE(error_message, ''), created_at, updated_at
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query,
		string(domain.JobStatusRunning), string(domain.JobStatusPending)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim rule job: %w", err)
	}
	return job, nil
}

// GetByID retrieves a job status record
func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RuleJob, error) {
	query := `
		SELECT id, user_id, rule_id, group_id, account_ids, start_date, end_date,
			status, scanned, matched, applied, COALESCE(error_message, ''), created_at, updated_at
		FROM rule_jobs
		WHERE id = $1
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rule job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule job: %w", err)
	}
	return job, nil
}

// MarkCompleted records final counts and completes the job
func (r *jobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, scanned, matched, applied int) error {
	query := `
		UPDATE rule_jobs
		SET status = $2, scanned = $3, matched = $4, applied = $5, updated_at = NOW()
		WHERE id = $1
	`
	return r.updateJob(ctx, query, id, string(domain.JobStatusCompleted), scanned, matched, applied)
}

// MarkFailed records the failure reason
func (r *jobRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE rule_jobs
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1
	`
	return r.updateJob(ctx, query, id, string(domain.JobStatusFailed), reason)
}

func (r *jobRepository) updateJob(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update rule job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rule job update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule job: %w", domain.ErrNotFound)
	}
	return nil
}

// scanJob reads one job row
func scanJob(row scanTarget) (*domain.RuleJob, error) {
	var job domain.RuleJob
	var ruleID, groupID sql.NullString
	var accountIDs pq.StringArray

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&ruleID,
		&groupID,
		&accountIDs,
		&job.StartDate,
		&job.EndDate,
		&job.Status,
		&job.Scanned,
		&job.Matched,
		&job.Applied,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ruleID.Valid {
		parsed, err := uuid.Parse(ruleID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse job rule id: %w", err)
		}
		job.RuleID = &parsed
	}
	if groupID.Valid {
		parsed, err := uuid.Parse(groupID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse job group id: %w", err)
		}
		job.GroupID = &parsed
	}

	job.AccountIDs = make([]uuid.UUID, 0, len(accountIDs))
	for _, raw := range accountIDs {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse job account id: %w", err)
		}
		job.AccountIDs = append(job.AccountIDs, parsed)
	}

	return &job, nil
}

// nullableUUID converts an optional uuid to a driver-friendly value
func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}
