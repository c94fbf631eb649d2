package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the direction of a transaction journal
type TransactionType string

const (
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
)

// TransactionJournal represents one transaction in the domain layer,
// denormalized with the related entity fields the rule engine reads
// (account names, IBANs, category, budget, tags).
type TransactionJournal struct {
	ID                     uuid.UUID
	UserID                 uuid.UUID
	Type                   TransactionType
	Description            string
	Notes                  string
	Date                   time.Time
	Amount                 decimal.Decimal // ABSOLUTE VALUE (Always Positive)
	CurrencyCode           string
	SourceAccountID        uuid.UUID
	SourceAccountName      string
	SourceAccountIBAN      string
	DestinationAccountID   uuid.UUID
	DestinationAccountName string
	DestinationAccountIBAN string
	CategoryName           string // empty when uncategorized
	BudgetName             string // empty when unbudgeted
	BillName               string // empty when not linked to a bill
	Tags                   []string
	Reconciled             bool
}

// Validate ensures the journal adheres to domain rules
// Returns an error if validation fails
func (j *TransactionJournal) Validate() error {
	if j.Type != TransactionTypeWithdrawal &&
		j.Type != TransactionTypeDeposit &&
		j.Type != TransactionTypeTransfer {
		return errors.New("transaction type must be WITHDRAWAL, DEPOSIT, or TRANSFER")
	}

	if j.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("journal amount must be positive (absolute value)")
	}

	if j.CurrencyCode == "" {
		return errors.New("journal must have a currency code")
	}

	if j.Date.IsZero() {
		return errors.New("journal must have a date")
	}

	return nil
}

// MatchContext is a read-only projection of one transaction journal used
// by trigger evaluation. It is constructed fresh per evaluation and never
// mutated by triggers, so a rule always sees a consistent snapshot even
// while earlier rules in the same pass mutate the journal.
type MatchContext struct {
	JournalID              uuid.UUID
	Type                   TransactionType
	Description            string
	Notes                  string
	Date                   time.Time
	Amount                 decimal.Decimal
	CurrencyCode           string
	SourceAccountName      string
	SourceAccountIBAN      string
	DestinationAccountName string
	DestinationAccountIBAN string
	CategoryName           string
	BudgetName             string
	BillName               string
	Tags                   []string
	Reconciled             bool
}

// NewMatchContext builds a snapshot of the journal for trigger evaluation.
// The tag slice is copied so mutations to the journal cannot leak into a
// context captured earlier.
func NewMatchContext(j *TransactionJournal) *MatchContext {
	tags := make([]string, len(j.Tags))
	copy(tags, j.Tags)

	return &MatchContext{
		JournalID:              j.ID,
		Type:                   j.Type,
		Description:            j.Description,
		Notes:                  j.Notes,
		Date:                   j.Date,
		Amount:                 j.Amount,
		CurrencyCode:           j.CurrencyCode,
		SourceAccountName:      j.SourceAccountName,
		SourceAccountIBAN:      j.SourceAccountIBAN,
		DestinationAccountName: j.DestinationAccountName,
		DestinationAccountIBAN: j.DestinationAccountIBAN,
		CategoryName:           j.CategoryName,
		BudgetName:             j.BudgetName,
		BillName:               j.BillName,
		Tags:                   tags,
		Reconciled:             j.Reconciled,
	}
}

// HasTag reports whether the context carries the given tag (case-insensitive)
func (c *MatchContext) HasTag(name string) bool {
	for _, tag := range c.Tags {
		if strings.EqualFold(tag, name) {
			return true
		}
	}
	return false
}
