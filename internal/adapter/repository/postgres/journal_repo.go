package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// journalRepository implements domain.JournalRepository
type journalRepository struct {
	db *DB
}

// NewJournalRepository creates a new journal repository
func NewJournalRepository(db *DB) domain.JournalRepository {
	return &journalRepository{db: db}
}

const journalColumns = `
	j.id, j.user_id, j.txn_type, j.description, j.notes, j.txn_date,
	j.amount, j.currency_code,
	j.source_account_id, src.name, COALESCE(src.iban, ''),
	j.destination_account_id, dst.name, COALESCE(dst.iban, ''),
	COALESCE(c.name, ''), COALESCE(b.name, ''), COALESCE(bl.name, ''), j.reconciled
`

const journalJoins = `
	FROM transaction_journals j
	JOIN accounts src ON src.id = j.source_account_id
	JOIN accounts dst ON dst.id = j.destination_account_id
	LEFT JOIN categories c ON c.id = j.category_id
	LEFT JOIN budgets b ON b.id = j.budget_id
	LEFT JOIN bills bl ON bl.id = j.bill_id
`

// GetByID retrieves a journal with its denormalized rule-engine fields
func (r *journalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionJournal, error) {
	query := `SELECT` + journalColumns + journalJoins + `WHERE j.id = $1 AND j.deleted_at IS NULL`

	j, err := scanJournal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("journal %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get journal: %w", err)
	}

	tagsByJournal, err := r.loadTags(ctx, []uuid.UUID{j.ID})
	if err != nil {
		return nil, err
	}
	j.Tags = tagsByJournal[j.ID]

	return j, nil
}

// ListPage retrieves one page of a user's journals matching the filter,
// newest-first by date with id as the stable tie-breaker
func (r *journalRepository) ListPage(ctx context.Context, userID uuid.UUID, filter domain.JournalFilter, limit, offset int) ([]*domain.TransactionJournal, error) {
	if limit < 1 {
		return []*domain.TransactionJournal{}, nil
	}

	var conditions []string
	args := []any{userID}
	conditions = append(conditions, "j.user_id = $1", "j.deleted_at IS NULL")

	if len(filter.AccountIDs) > 0 {
		ids := make([]string, len(filter.AccountIDs))
		for i, id := range filter.AccountIDs {
			ids[i] = id.String()
		}
		args = append(args, pq.Array(ids))
		n := len(args)
		conditions = append(conditions,
			fmt.Sprintf("(j.source_account_id = ANY($%d::uuid[]) OR j.destination_account_id = ANY($%d::uuid[]))", n, n))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		conditions = append(conditions, fmt.Sprintf("j.txn_date >= $%d", len(args)))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		conditions = append(conditions, fmt.Sprintf("j.txn_date <= $%d", len(args)))
	}

	args = append(args, limit, offset)
	query := `SELECT` + journalColumns + journalJoins +
		`WHERE ` + strings.Join(conditions, " AND ") +
		fmt.Sprintf(` ORDER BY j.txn_date DESC, j.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journals: %w", err)
	}
	defer rows.Close()

	journals := make([]*domain.TransactionJournal, 0, limit)
	var journalIDs []uuid.UUID
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal: %w", err)
		}
		journals = append(journals, j)
		journalIDs = append(journalIDs, j.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journals: %w", err)
	}

	if len(journalIDs) > 0 {
		tagsByJournal, err := r.loadTags(ctx, journalIDs)
		if err != nil {
			return nil, err
		}
		for _, j := range journals {
			j.Tags = tagsByJournal[j.ID]
		}
	}

	return journals, nil
}

// SetCategory assigns the named category, creating it for the journal's
// owner if it does not exist yet
func (r *journalRepository) SetCategory(ctx context.Context, journalID uuid.UUID, name string) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	userID, err := journalOwner(ctx, dbTx, journalID)
	if err != nil {
		return err
	}

	var categoryID uuid.UUID
	err = dbTx.QueryRowContext(ctx, `
		INSERT INTO categories (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, lower(name)) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, uuid.New(), userID, name).Scan(&categoryID)
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}

	_, err = dbTx.ExecContext(ctx,
		`UPDATE transaction_journals SET category_id = $1, updated_at = NOW() WHERE id = $2`,
		categoryID, journalID,
	)
	if err != nil {
		return fmt.Errorf("failed to set journal category: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ClearCategory removes the journal's category assignment
func (r *journalRepository) ClearCategory(ctx context.Context, journalID uuid.UUID) error {
	return r.updateJournal(ctx, journalID,
		`UPDATE transaction_journals SET category_id = NULL, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`)
}

// SetBudget assigns the named budget; the budget must already exist
func (r *journalRepository) SetBudget(ctx context.Context, journalID uuid.UUID, name string) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	userID, err := journalOwner(ctx, dbTx, journalID)
	if err != nil {
		return err
	}

	var budgetID uuid.UUID
	err = dbTx.QueryRowContext(ctx,
		`SELECT id FROM budgets WHERE user_id = $1 AND lower(name) = lower($2)`,
		userID, name,
	).Scan(&budgetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("budget %q: %w", name, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to look up budget: %w", err)
	}

	_, err = dbTx.ExecContext(ctx,
		`UPDATE transaction_journals SET budget_id = $1, updated_at = NOW() WHERE id = $2`,
		budgetID, journalID,
	)
	if err != nil {
		return fmt.Errorf("failed to set journal budget: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ClearBudget removes the journal's budget assignment
func (r *journalRepository) ClearBudget(ctx context.Context, journalID uuid.UUID) error {
	return r.updateJournal(ctx, journalID,
		`UPDATE transaction_journals SET budget_id = NULL, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`)
}

// AddTag attaches the named tag, creating it for the owner if needed.
// Re-attaching an attached tag is a no-op.
func (r *journalRepository) AddTag(ctx context.Context, journalID uuid.UUID, name string) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	userID, err := journalOwner(ctx, dbTx, journalID)
	if err != nil {
		return err
	}

	var tagID uuid.UUID
	err = dbTx.QueryRowContext(ctx, `
		INSERT INTO tags (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, lower(name)) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, uuid.New(), userID, name).Scan(&tagID)
	if err != nil {
		return fmt.Errorf("failed to upsert tag: %w", err)
	}

	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO journal_tags (journal_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		journalID, tagID,
	)
	if err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RemoveTag detaches the named tag if attached
func (r *journalRepository) RemoveTag(ctx context.Context, journalID uuid.UUID, name string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM journal_tags jt
		USING tags t
		WHERE jt.journal_id = $1 AND jt.tag_id = t.id AND lower(t.name) = lower($2)
	`, journalID, name)
	if err != nil {
		return fmt.Errorf("failed to remove tag: %w", err)
	}
	return nil
}

// RemoveAllTags detaches every tag from the journal
func (r *journalRepository) RemoveAllTags(ctx context.Context, journalID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM journal_tags WHERE journal_id = $1`, journalID)
	if err != nil {
		return fmt.Errorf("failed to remove tags: %w", err)
	}
	return nil
}

// SetDescription replaces the journal description
func (r *journalRepository) SetDescription(ctx context.Context, journalID uuid.UUID, text string) error {
	return r.updateJournal(ctx, journalID,
		`UPDATE transaction_journals SET description = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, text)
}

// SetNotes replaces the journal notes
func (r *journalRepository) SetNotes(ctx context.Context, journalID uuid.UUID, text string) error {
	return r.updateJournal(ctx, journalID,
		`UPDATE transaction_journals SET notes = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, text)
}

// LinkToBill links the journal to the named bill; the bill must exist
func (r *journalRepository) LinkToBill(ctx context.Context, journalID uuid.UUID, name string) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	userID, err := journalOwner(ctx, dbTx, journalID)
	if err != nil {
		return err
	}

	var billID uuid.UUID
	err = dbTx.QueryRowContext(ctx,
		`SELECT id FROM bills WHERE user_id = $1 AND lower(name) = lower($2)`,
		userID, name,
	).Scan(&billID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("bill %q: %w", name, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to look up bill: %w", err)
	}

	_, err = dbTx.ExecContext(ctx,
		`UPDATE transaction_journals SET bill_id = $1, updated_at = NOW() WHERE id = $2`,
		billID, journalID,
	)
	if err != nil {
		return fmt.Errorf("failed to link journal to bill: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetReconciled sets or clears the reconciliation flag
func (r *journalRepository) SetReconciled(ctx context.Context, journalID uuid.UUID, reconciled bool) error {
	return r.updateJournal(ctx, journalID,
		`UPDATE transaction_journals SET reconciled = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, reconciled)
}

// Delete logically removes the journal; later reads return ErrNotFound
func (r *journalRepository) Delete(ctx context.Context, journalID uuid.UUID) error {
	return r.updateJournal(ctx, journalID,
		`UPDATE transaction_journals SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`)
}

// updateJournal runs a single-journal UPDATE and maps zero affected rows
// to ErrNotFound
func (r *journalRepository) updateJournal(ctx context.Context, journalID uuid.UUID, query string, extraArgs ...any) error {
	args := append([]any{journalID}, extraArgs...)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update journal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check journal update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("journal %s: %w", journalID, domain.ErrNotFound)
	}
	return nil
}

// loadTags fetches the tag names attached to the given journals
func (r *journalRepository) loadTags(ctx context.Context, journalIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	ids := make([]string, len(journalIDs))
	for i, id := range journalIDs {
		ids[i] = id.String()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT jt.journal_id, t.name
		FROM journal_tags jt
		JOIN tags t ON t.id = jt.tag_id
		WHERE jt.journal_id = ANY($1::uuid[])
		ORDER BY jt.journal_id, t.name
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query journal tags: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]string, len(journalIDs))
	for rows.Next() {
		var journalID uuid.UUID
		var name string
		if err := rows.Scan(&journalID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan journal tag: %w", err)
		}
		out[journalID] = append(out[journalID], name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal tags: %w", err)
	}

	return out, nil
}

// journalOwner resolves the owning user inside a transaction
func journalOwner(ctx context.Context, dbTx *sql.Tx, journalID uuid.UUID) (uuid.UUID, error) {
	var userID uuid.UUID
	err := dbTx.QueryRowContext(ctx,
		`SELECT user_id FROM transaction_journals WHERE id = $1 AND deleted_at IS NULL`,
		journalID,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("journal %s: %w", journalID, domain.ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("failed to resolve journal owner: %w", err)
	}
	return userID, nil
}

// scanTarget matches both *sql.Row and *sql.Rows
type scanTarget interface {
	Scan(dest ...any) error
}

// scanJournal reads one journal row in journalColumns order
func scanJournal(row scanTarget) (*domain.TransactionJournal, error) {
	var j domain.TransactionJournal
	var amountStr string

	err := row.Scan(
		&j.ID,
		&j.UserID,
		&j.Type,
		&j.Description,
		&j.Notes,
		&j.Date,
		&amountStr,
		&j.CurrencyCode,
		&j.SourceAccountID,
		&j.SourceAccountName,
		&j.SourceAccountIBAN,
		&j.DestinationAccountID,
		&j.DestinationAccountName,
		&j.DestinationAccountIBAN,
		&j.CategoryName,
		&j.BudgetName,
		&j.BillName,
		&j.Reconciled,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse journal amount: %w", err)
	}
	j.Amount = amount

	return &j, nil
}
