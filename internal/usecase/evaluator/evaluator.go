package evaluator

import (
	"sort"

	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
)

// TriggerEvaluator evaluates one trigger predicate against a context
type TriggerEvaluator interface {
	Evaluate(kind domain.TriggerKind, value string, mctx *domain.MatchContext) (bool, error)
}

// Verdict is the terminal outcome of evaluating one rule against one
// context. There are no partial or ambiguous states.
type Verdict int

const (
	VerdictRejected Verdict = iota
	VerdictMatched
)

// Result carries the verdict plus how many triggers were actually
// evaluated, which makes short-circuit behavior observable in tests
type Result struct {
	Verdict           Verdict
	TriggersEvaluated int
}

// EvaluateRule evaluates the rule's ordered trigger list against the
// context and returns a single match decision.
// Logic:
//  1. A rule with zero triggers never matches, under either mode
//  2. Strict (AND): the first false trigger rejects immediately; a true
//     trigger flagged stop_processing ends evaluation early with the
//     remaining triggers skipped (the verdict is already match-shaped and
//     the flag is honored as documented intent, so it cannot flip the
//     outcome); all true matches
//  3. Non-strict (OR): the first true trigger matches immediately; all
//     false rejects
//
// A predicate error (unknown kind, unparseable value) aborts evaluation
// of this rule and is returned to the caller.
func EvaluateRule(lib TriggerEvaluator, rule *domain.Rule, mctx *domain.MatchContext) (Result, error) {
	triggers := orderedTriggers(rule.Triggers)

	result := Result{Verdict: VerdictRejected}
	if len(triggers) == 0 {
		return result, nil
	}

	if rule.Strict {
		for _, trig := range triggers {
			ok, err := lib.Evaluate(trig.Kind, trig.Value, mctx)
			if err != nil {
				return Result{}, err
			}
			result.TriggersEvaluated++
			if !ok {
				return result, nil
			}
			if trig.StopProcessing {
				break
			}
		}
		result.Verdict = VerdictMatched
		return result, nil
	}

	for _, trig := range triggers {
		ok, err := lib.Evaluate(trig.Kind, trig.Value, mctx)
		if err != nil {
			return Result{}, err
		}
		result.TriggersEvaluated++
		if ok {
			result.Verdict = VerdictMatched
			return result, nil
		}
	}
	return result, nil
}

// orderedTriggers returns the triggers sorted by their order column
// without mutating the rule's slice
func orderedTriggers(triggers []domain.RuleTrigger) []domain.RuleTrigger {
	sorted := make([]domain.RuleTrigger, len(triggers))
	copy(sorted, triggers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}
