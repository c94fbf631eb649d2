package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RuleRepository defines the interface for rule persistence operations.
// Soft-deleted records are invisible to every query; collections come
// back ordered by their 1-based order columns.
type RuleRepository interface {
	// ListActiveGroups retrieves the active rule groups for a user in
	// group order, each loaded with its active rules, triggers, and
	// actions in order
	ListActiveGroups(ctx context.Context, userID uuid.UUID) ([]*RuleGroup, error)

	// GetGroup retrieves one rule group by id with its active rules,
	// triggers, and actions loaded in order. The group's own active flag
	// is not checked: an explicitly chosen inactive group can still be
	// replayed over history.
	GetGroup(ctx context.Context, id uuid.UUID) (*RuleGroup, error)

	// GetRule retrieves one rule by id with its triggers and actions
	// loaded in order. Inactive rules are returned too; only live passes
	// restrict themselves to active rules, via ListActiveGroups.
	GetRule(ctx context.Context, id uuid.UUID) (*Rule, error)

	// ReorderRules renumbers the rules of a group to the given sequence.
	// The ids must be exactly the group's active rules; orders are
	// rewritten atomically as a dense 1..N sequence.
	ReorderRules(ctx context.Context, groupID uuid.UUID, ruleIDs []uuid.UUID) error

	// SoftDeleteRule logically removes a rule (retained for audit)
	SoftDeleteRule(ctx context.Context, id uuid.UUID) error

	// SoftDeleteGroup logically removes a group and its rules
	SoftDeleteGroup(ctx context.Context, id uuid.UUID) error
}

// JournalFilter bounds a paged journal scan by account set and date window.
// Nil fields leave that bound open.
type JournalFilter struct {
	AccountIDs []uuid.UUID
	Start      *time.Time
	End        *time.Time
}

// JournalRepository defines the interface for transaction journal
// persistence operations. Each mutation is atomic: it either fully
// applies or returns an error.
type JournalRepository interface {
	// GetByID retrieves a journal with its denormalized rule-engine
	// fields (account names, IBANs, category, budget, tags)
	GetByID(ctx context.Context, id uuid.UUID) (*TransactionJournal, error)

	// ListPage retrieves one page of a user's journals matching the
	// filter, newest-first by date with id as the stable tie-breaker
	ListPage(ctx context.Context, userID uuid.UUID, filter JournalFilter, limit, offset int) ([]*TransactionJournal, error)

	// SetCategory assigns the named category, creating it for the
	// journal's owner if it does not exist yet
	SetCategory(ctx context.Context, journalID uuid.UUID, name string) error

	// ClearCategory removes the journal's category assignment
	ClearCategory(ctx context.Context, journalID uuid.UUID) error

	// SetBudget assigns the named budget; returns ErrNotFound if the
	// owner has no such budget
	SetBudget(ctx context.Context, journalID uuid.UUID, name string) error

	// ClearBudget removes the journal's budget assignment
	ClearBudget(ctx context.Context, journalID uuid.UUID) error

	// AddTag attaches the named tag, creating it for the owner if
	// needed; attaching an already-attached tag is a no-op
	AddTag(ctx context.Context, journalID uuid.UUID, name string) error

	// RemoveTag detaches the named tag if attached
	RemoveTag(ctx context.Context, journalID uuid.UUID, name string) error

	// RemoveAllTags detaches every tag from the journal
	RemoveAllTags(ctx context.Context, journalID uuid.UUID) error

	// SetDescription replaces the journal description
	SetDescription(ctx context.Context, journalID uuid.UUID, text string) error

	// SetNotes replaces the journal notes
	SetNotes(ctx context.Context, journalID uuid.UUID, text string) error

	// LinkToBill links the journal to the named bill; returns
	// ErrNotFound if the owner has no such bill
	LinkToBill(ctx context.Context, journalID uuid.UUID, name string) error

	// SetReconciled sets or clears the reconciliation flag
	SetReconciled(ctx context.Context, journalID uuid.UUID, reconciled bool) error

	// Delete removes the journal; later reads return ErrNotFound
	Delete(ctx context.Context, journalID uuid.UUID) error
}

// JobRepository defines the durable queue for retroactive rule jobs
type JobRepository interface {
	// Enqueue persists a new pending job
	Enqueue(ctx context.Context, job *RuleJob) error

	// ClaimNext atomically claims the oldest pending job and marks it
	// running. Returns (nil, nil) when the queue is empty.
	ClaimNext(ctx context.Context) (*RuleJob, error)

	// GetByID retrieves a job status record
	GetByID(ctx context.Context, id uuid.UUID) (*RuleJob, error)

	// MarkCompleted records final counts and completes the job
	MarkCompleted(ctx context.Context, id uuid.UUID, scanned, matched, applied int) error

	// MarkFailed records the failure reason; already-applied actions are
	// not rolled back, idempotent actions make a retry safe
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}
