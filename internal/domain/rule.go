package domain

import (
	"errors"

	"github.com/google/uuid"
)

// PassType selects which rules fire for a given engine pass
type PassType string

const (
	PassOnCreate PassType = "on-create"
	PassOnUpdate PassType = "on-update"
)

// TriggerKind is the closed set of predicates a rule trigger can name.
// Dispatch is a switch over this enum, so an unmapped kind is a data
// problem surfaced as UnknownTriggerError, never silent behavior.
type TriggerKind string

const (
	TriggerDescriptionIs              TriggerKind = "description_is"
	TriggerDescriptionStarts          TriggerKind = "description_starts"
	TriggerDescriptionEnds            TriggerKind = "description_ends"
	TriggerDescriptionContains        TriggerKind = "description_contains"
	TriggerNotesAre                   TriggerKind = "notes_are"
	TriggerNotesContain               TriggerKind = "notes_contain"
	TriggerSourceAccountIs            TriggerKind = "source_account_is"
	TriggerSourceAccountContains      TriggerKind = "source_account_contains"
	TriggerSourceIBANIs               TriggerKind = "source_iban_is"
	TriggerDestinationAccountIs       TriggerKind = "destination_account_is"
	TriggerDestinationAccountContains TriggerKind = "destination_account_contains"
	TriggerDestinationIBANIs          TriggerKind = "destination_iban_is"
	TriggerAmountExactly              TriggerKind = "amount_exactly"
	TriggerAmountLess                 TriggerKind = "amount_less"
	TriggerAmountMore                 TriggerKind = "amount_more"
	TriggerDateIs                     TriggerKind = "date_is"
	TriggerDateBefore                 TriggerKind = "date_before"
	TriggerDateAfter                  TriggerKind = "date_after"
	TriggerCurrencyIs                 TriggerKind = "currency_is"
	TriggerTransactionTypeIs          TriggerKind = "transaction_type_is"
	TriggerHasAnyCategory             TriggerKind = "has_any_category"
	TriggerHasNoCategory              TriggerKind = "has_no_category"
	TriggerCategoryIs                 TriggerKind = "category_is"
	TriggerHasAnyBudget               TriggerKind = "has_any_budget"
	TriggerHasNoBudget                TriggerKind = "has_no_budget"
	TriggerBudgetIs                   TriggerKind = "budget_is"
	TriggerTagIs                      TriggerKind = "tag_is"
	TriggerHasAnyTag                  TriggerKind = "has_any_tag"
	TriggerHasNoTags                  TriggerKind = "has_no_tags"
)

// ActionKind is the closed set of mutators a rule action can name
type ActionKind string

const (
	ActionSetCategory        ActionKind = "set_category"
	ActionClearCategory      ActionKind = "clear_category"
	ActionSetBudget          ActionKind = "set_budget"
	ActionClearBudget        ActionKind = "clear_budget"
	ActionAddTag             ActionKind = "add_tag"
	ActionRemoveTag          ActionKind = "remove_tag"
	ActionRemoveAllTags      ActionKind = "remove_all_tags"
	ActionSetDescription     ActionKind = "set_description"
	ActionAppendDescription  ActionKind = "append_description"
	ActionPrependDescription ActionKind = "prepend_description"
	ActionSetNotes           ActionKind = "set_notes"
	ActionAppendNotes        ActionKind = "append_notes"
	ActionPrependNotes       ActionKind = "prepend_notes"
	ActionClearNotes         ActionKind = "clear_notes"
	ActionLinkToBill         ActionKind = "link_to_bill"
	ActionMarkReconciled     ActionKind = "mark_reconciled"
	ActionClearReconciled    ActionKind = "clear_reconciled"
	ActionDeleteTransaction  ActionKind = "delete_transaction"
)

// RuleGroup represents an ordered, user-defined container of rules
type RuleGroup struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	Description string
	Order       int // 1-based, unique per owner
	Active      bool
	Rules       []Rule
}

// Rule represents an ordered set of triggers and actions with a
// composition mode (Strict: AND, otherwise OR) and short-circuit flags
type Rule struct {
	ID             uuid.UUID
	GroupID        uuid.UUID
	Title          string
	Description    string
	Order          int // 1-based, unique per group
	Active         bool
	Strict         bool
	StopProcessing bool // on match, terminate the whole pass after this rule's actions
	TriggerType    PassType
	Triggers       []RuleTrigger
	Actions        []RuleAction
}

// RuleTrigger is a named predicate instance with a value
type RuleTrigger struct {
	ID             uuid.UUID
	RuleID         uuid.UUID
	Kind           TriggerKind
	Value          string
	Order          int  // 1-based, unique per rule
	StopProcessing bool // end evaluation early once the verdict is decided
}

// RuleAction is a named mutator instance with a value
type RuleAction struct {
	ID             uuid.UUID
	RuleID         uuid.UUID
	Kind           ActionKind
	Value          string
	Order          int  // 1-based, unique per rule
	StopProcessing bool // after this action runs, skip the rule's remaining actions
}

// Validate ensures the rule group adheres to domain rules
// Returns an error if validation fails
// CRITICAL: rule orders must form a dense 1..N sequence
func (g *RuleGroup) Validate() error {
	if g.Title == "" {
		return errors.New("rule group must have a title")
	}
	if g.Order < 1 {
		return errors.New("rule group order must be 1-based")
	}
	if err := validateDenseOrder(len(g.Rules), func(i int) int { return g.Rules[i].Order }); err != nil {
		return errors.New("rule orders within a group " + err.Error())
	}
	return nil
}

// Validate ensures the rule adheres to domain rules
// Returns an error if validation fails
// CRITICAL: trigger and action orders must each form a dense 1..N sequence
func (r *Rule) Validate() error {
	if r.Title == "" {
		return errors.New("rule must have a title")
	}
	if r.Order < 1 {
		return errors.New("rule order must be 1-based")
	}
	if r.TriggerType != PassOnCreate && r.TriggerType != PassOnUpdate {
		return errors.New("rule trigger type must be on-create or on-update")
	}
	if err := validateDenseOrder(len(r.Triggers), func(i int) int { return r.Triggers[i].Order }); err != nil {
		return errors.New("trigger orders within a rule " + err.Error())
	}
	if err := validateDenseOrder(len(r.Actions), func(i int) int { return r.Actions[i].Order }); err != nil {
		return errors.New("action orders within a rule " + err.Error())
	}
	return nil
}

// validateDenseOrder checks that the n order values form exactly 1..n
// with no gaps or duplicates
func validateDenseOrder(n int, orderAt func(int) int) error {
	seen := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		o := orderAt(i)
		if o < 1 || o > n {
			return errors.New("must form a dense 1..N sequence")
		}
		if seen[o] {
			return errors.New("must not contain duplicates")
		}
		seen[o] = true
	}
	return nil
}
