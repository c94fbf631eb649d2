package trigger

import (
	"strings"
	"time"

	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for date trigger values
const DateLayout = "2006-01-02"

// Library evaluates trigger predicates against a match context.
// Predicates are pure: they read only the context, never mutate it, and
// never touch the datastore. Construct one Library at process start and
// inject it wherever rules are evaluated.
type Library struct{}

// NewLibrary creates a new trigger library
func NewLibrary() *Library {
	return &Library{}
}

// Evaluate runs the predicate selected by kind with the given value
// against the context. String predicates compare case-insensitively.
// Returns UnknownTriggerError for a kind outside the closed set and
// InvalidValueError when the value cannot be parsed for the kind.
func (l *Library) Evaluate(kind domain.TriggerKind, value string, mctx *domain.MatchContext) (bool, error) {
	switch kind {
	case domain.TriggerDescriptionIs:
		return strings.EqualFold(mctx.Description, value), nil
	case domain.TriggerDescriptionStarts:
		return hasPrefixFold(mctx.Description, value), nil
	case domain.TriggerDescriptionEnds:
		return hasSuffixFold(mctx.Description, value), nil
	case domain.TriggerDescriptionContains:
		return containsFold(mctx.Description, value), nil

	case domain.TriggerNotesAre:
		return strings.EqualFold(mctx.Notes, value), nil
	case domain.TriggerNotesContain:
		return containsFold(mctx.Notes, value), nil

	case domain.TriggerSourceAccountIs:
		return strings.EqualFold(mctx.SourceAccountName, value), nil
	case domain.TriggerSourceAccountContains:
		return containsFold(mctx.SourceAccountName, value), nil
	case domain.TriggerSourceIBANIs:
		return equalIBAN(mctx.SourceAccountIBAN, value), nil
	case domain.TriggerDestinationAccountIs:
		return strings.EqualFold(mctx.DestinationAccountName, value), nil
	case domain.TriggerDestinationAccountContains:
		return containsFold(mctx.DestinationAccountName, value), nil
	case domain.TriggerDestinationIBANIs:
		return equalIBAN(mctx.DestinationAccountIBAN, value), nil

	case domain.TriggerAmountExactly:
		amount, err := parseAmount(kind, value)
		if err != nil {
			return false, err
		}
		return mctx.Amount.Equal(amount), nil
	case domain.TriggerAmountLess:
		amount, err := parseAmount(kind, value)
		if err != nil {
			return false, err
		}
		return mctx.Amount.LessThan(amount), nil
	case domain.TriggerAmountMore:
		amount, err := parseAmount(kind, value)
		if err != nil {
			return false, err
		}
		return mctx.Amount.GreaterThan(amount), nil

	case domain.TriggerDateIs:
		date, err := parseDate(kind, value)
		if err != nil {
			return false, err
		}
		y1, m1, d1 := mctx.Date.Date()
		y2, m2, d2 := date.Date()
		return y1 == y2 && m1 == m2 && d1 == d2, nil
	case domain.TriggerDateBefore:
		date, err := parseDate(kind, value)
		if err != nil {
			return false, err
		}
		return mctx.Date.Before(date), nil
	case domain.TriggerDateAfter:
		date, err := parseDate(kind, value)
		if err != nil {
			return false, err
		}
		// The value names a day; anything from the following midnight on
		// counts as after it.
		return !mctx.Date.Before(date.AddDate(0, 0, 1)), nil

	case domain.TriggerCurrencyIs:
		return strings.EqualFold(mctx.CurrencyCode, value), nil
	case domain.TriggerTransactionTypeIs:
		return strings.EqualFold(string(mctx.Type), value), nil

	case domain.TriggerHasAnyCategory:
		return mctx.CategoryName != "", nil
	case domain.TriggerHasNoCategory:
		return mctx.CategoryName == "", nil
	case domain.TriggerCategoryIs:
		return mctx.CategoryName != "" && strings.EqualFold(mctx.CategoryName, value), nil

	case domain.TriggerHasAnyBudget:
		return mctx.BudgetName != "", nil
	case domain.TriggerHasNoBudget:
		return mctx.BudgetName == "", nil
	case domain.TriggerBudgetIs:
		return mctx.BudgetName != "" && strings.EqualFold(mctx.BudgetName, value), nil

	case domain.TriggerTagIs:
		return mctx.HasTag(value), nil
	case domain.TriggerHasAnyTag:
		return len(mctx.Tags) > 0, nil
	case domain.TriggerHasNoTags:
		return len(mctx.Tags) == 0, nil

	default:
		return false, &domain.UnknownTriggerError{Kind: kind}
	}
}

// parseAmount parses an amount trigger value with exact decimal
// semantics; amounts are never compared as binary floating point
func parseAmount(kind domain.TriggerKind, value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, &domain.InvalidValueError{
			Kind:   string(kind),
			Value:  value,
			Reason: "expected a decimal amount",
		}
	}
	return amount, nil
}

func parseDate(kind domain.TriggerKind, value string) (time.Time, error) {
	date, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, &domain.InvalidValueError{
			Kind:   string(kind),
			Value:  value,
			Reason: "expected a date in YYYY-MM-DD form",
		}
	}
	return date, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

func hasSuffixFold(s, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(suffix))
}

// equalIBAN compares IBANs ignoring case and embedded spaces
func equalIBAN(a, b string) bool {
	normalize := func(s string) string {
		return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	}
	return normalize(a) != "" && normalize(a) == normalize(b)
}
