package trigger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sampleContext() *domain.MatchContext {
	return domain.NewMatchContext(&domain.TransactionJournal{
		ID:                     uuid.New(),
		UserID:                 uuid.New(),
		Type:                   domain.TransactionTypeWithdrawal,
		Description:            "Netflix Subscription March",
		Notes:                  "shared with flatmates",
		Date:                   time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC),
		Amount:                 decimal.RequireFromString("12.99"),
		CurrencyCode:           "EUR",
		SourceAccountName:      "Main Checking",
		SourceAccountIBAN:      "NL91 ABNA 0417 1643 00",
		DestinationAccountName: "Netflix International B.V.",
		CategoryName:           "Entertainment",
		Tags:                   []string{"streaming", "monthly"},
	})
}

func TestEvaluate_DescriptionPredicates(t *testing.T) {
	lib := NewLibrary()
	mctx := sampleContext()

	tests := []struct {
		name  string
		kind  domain.TriggerKind
		value string
		want  bool
	}{
		{"is, case-insensitive", domain.TriggerDescriptionIs, "netflix subscription march", true},
		{"is, different text", domain.TriggerDescriptionIs, "Netflix", false},
		{"starts", domain.TriggerDescriptionStarts, "netflix", true},
		{"starts, wrong prefix", domain.TriggerDescriptionStarts, "Spotify", false},
		{"ends", domain.TriggerDescriptionEnds, "MARCH", true},
		{"contains", domain.TriggerDescriptionContains, "subscription", true},
		{"contains, absent", domain.TriggerDescriptionContains, "refund", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lib.Evaluate(tt.kind, tt.value, mctx)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_AccountPredicates(t *testing.T) {
	lib := NewLibrary()
	mctx := sampleContext()

	got, err := lib.Evaluate(domain.TriggerSourceAccountIs, "main checking", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerDestinationAccountContains, "netflix", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	// IBAN comparison ignores case and embedded spaces
	got, err = lib.Evaluate(domain.TriggerSourceIBANIs, "nl91abna0417164300", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerDestinationIBANIs, "NL91 ABNA 0417 1643 00", mctx)
	assert.NoError(t, err)
	assert.False(t, got, "destination has no IBAN, empty never matches")
}

func TestEvaluate_AmountPredicates(t *testing.T) {
	lib := NewLibrary()
	mctx := sampleContext()

	got, err := lib.Evaluate(domain.TriggerAmountExactly, "12.99", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	// trailing zeros must not matter, amounts compare as exact decimals
	got, err = lib.Evaluate(domain.TriggerAmountExactly, "12.9900", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerAmountLess, "13", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerAmountMore, "12.99", mctx)
	assert.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluate_AmountRejectsNonNumericValue(t *testing.T) {
	lib := NewLibrary()

	_, err := lib.Evaluate(domain.TriggerAmountMore, "lots", sampleContext())

	var invalid *domain.InvalidValueError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, "lots", invalid.Value)
}

func TestEvaluate_DatePredicates(t *testing.T) {
	lib := NewLibrary()
	mctx := sampleContext()

	got, err := lib.Evaluate(domain.TriggerDateIs, "2024-03-15", mctx)
	assert.NoError(t, err)
	assert.True(t, got, "same calendar day matches regardless of time of day")

	got, err = lib.Evaluate(domain.TriggerDateBefore, "2024-04-01", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerDateAfter, "2024-03-15", mctx)
	assert.NoError(t, err)
	assert.False(t, got, "the named day itself is not after")

	got, err = lib.Evaluate(domain.TriggerDateAfter, "2024-03-14", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	_, err = lib.Evaluate(domain.TriggerDateIs, "15/03/2024", mctx)
	var invalid *domain.InvalidValueError
	assert.ErrorAs(t, err, &invalid)
}

func TestEvaluate_MetadataPredicates(t *testing.T) {
	lib := NewLibrary()
	mctx := sampleContext()

	got, err := lib.Evaluate(domain.TriggerCurrencyIs, "eur", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerTransactionTypeIs, "withdrawal", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerHasAnyCategory, "", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerCategoryIs, "entertainment", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerHasAnyBudget, "", mctx)
	assert.NoError(t, err)
	assert.False(t, got)

	got, err = lib.Evaluate(domain.TriggerHasNoBudget, "", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerBudgetIs, "", mctx)
	assert.NoError(t, err)
	assert.False(t, got, "an unbudgeted journal never matches budget_is")
}

func TestEvaluate_TagPredicates(t *testing.T) {
	lib := NewLibrary()
	mctx := sampleContext()

	got, err := lib.Evaluate(domain.TriggerTagIs, "STREAMING", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerHasAnyTag, "", mctx)
	assert.NoError(t, err)
	assert.True(t, got)

	got, err = lib.Evaluate(domain.TriggerHasNoTags, "", mctx)
	assert.NoError(t, err)
	assert.False(t, got)

	bare := domain.NewMatchContext(&domain.TransactionJournal{})
	got, err = lib.Evaluate(domain.TriggerHasNoTags, "", bare)
	assert.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_UnknownKind(t *testing.T) {
	lib := NewLibrary()

	_, err := lib.Evaluate("description_rhymes_with", "orange", sampleContext())

	var unknown *domain.UnknownTriggerError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, domain.TriggerKind("description_rhymes_with"), unknown.Kind)
}

func TestEvaluate_NeverMutatesContext(t *testing.T) {
	lib := NewLibrary()
	mctx := sampleContext()
	before := *mctx

	_, err := lib.Evaluate(domain.TriggerDescriptionContains, "netflix", mctx)
	assert.NoError(t, err)
	_, err = lib.Evaluate(domain.TriggerAmountMore, "1", mctx)
	assert.NoError(t, err)

	assert.Equal(t, before.Description, mctx.Description)
	assert.Equal(t, before.Amount, mctx.Amount)
	assert.Equal(t, before.Tags, mctx.Tags)
}
