package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/evaluator"
)

// ActionApplier applies one rule action to a journal. It reports whether
// the journal changed and whether the rule's remaining actions should be
// skipped.
type ActionApplier interface {
	Apply(ctx context.Context, kind domain.ActionKind, value string, j *domain.TransactionJournal) (applied bool, halt bool, err error)
}

// RuleOutcome records what one rule did during a pass
type RuleOutcome struct {
	RuleID         uuid.UUID
	GroupID        uuid.UUID
	Title          string
	Matched        bool
	ActionsApplied int
	Error          string
}

// PassSummary reports one full pass of the rule engine over one journal
type PassSummary struct {
	JournalID      uuid.UUID
	RulesEvaluated int
	RulesMatched   int
	ActionsApplied int
	ShortCircuited bool // a matched rule's stop_processing ended the pass
	Deleted        bool // a terminating action removed the journal
	Outcomes       []RuleOutcome
}

// Service orchestrates rule passes: for each active group in order, for
// each active rule in order, evaluate and on match apply the rule's
// actions, honoring the per-rule and per-action short-circuit signals
type Service struct {
	rules    domain.RuleRepository
	triggers evaluator.TriggerEvaluator
	actions  ActionApplier
	logger   *slog.Logger
}

// NewService creates a new rule engine service
func NewService(rules domain.RuleRepository, triggers evaluator.TriggerEvaluator, actions ActionApplier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rules:    rules,
		triggers: triggers,
		actions:  actions,
		logger:   logger,
	}
}

// RunOnCreate runs the on-create pass for a freshly stored journal
func (s *Service) RunOnCreate(ctx context.Context, j *domain.TransactionJournal) (*PassSummary, error) {
	return s.runPass(ctx, j, domain.PassOnCreate)
}

// RunOnUpdate runs the on-update pass for a just-updated journal
func (s *Service) RunOnUpdate(ctx context.Context, j *domain.TransactionJournal) (*PassSummary, error) {
	return s.runPass(ctx, j, domain.PassOnUpdate)
}

// runPass evaluates all of the owner's active rule groups against the
// journal. Rules whose trigger type does not match the pass are skipped
// entirely. A failing rule is logged and recorded in its outcome but
// never aborts the rest of the pass: one broken rule must not silently
// disable a user's other rules.
func (s *Service) runPass(ctx context.Context, j *domain.TransactionJournal, pass domain.PassType) (*PassSummary, error) {
	groups, err := s.rules.ListActiveGroups(ctx, j.UserID)
	if err != nil {
		return nil, err
	}

	summary := &PassSummary{JournalID: j.ID}
	for _, group := range groups {
		for i := range group.Rules {
			rule := &group.Rules[i]
			if rule.TriggerType != pass {
				continue
			}
			halted := s.runRule(ctx, group, rule, j, summary)
			if summary.Deleted {
				return summary, nil
			}
			if halted {
				summary.ShortCircuited = true
				return summary, nil
			}
		}
	}
	return summary, nil
}

// ApplyRuleToJournal runs a single-rule mutating pass against the
// journal, used by retroactive runs. The rule's trigger type filter does
// not apply when replaying history.
func (s *Service) ApplyRuleToJournal(ctx context.Context, group *domain.RuleGroup, rule *domain.Rule, j *domain.TransactionJournal) (*PassSummary, error) {
	summary := &PassSummary{JournalID: j.ID}
	s.runRule(ctx, group, rule, j, summary)
	return summary, nil
}

// ApplyGroupToJournal runs one whole group's active rules in order
// against the journal, honoring rule-level stop_processing, used by
// retroactive runs
func (s *Service) ApplyGroupToJournal(ctx context.Context, group *domain.RuleGroup, j *domain.TransactionJournal) (*PassSummary, error) {
	summary := &PassSummary{JournalID: j.ID}
	for i := range group.Rules {
		rule := &group.Rules[i]
		halted := s.runRule(ctx, group, rule, j, summary)
		if summary.Deleted {
			return summary, nil
		}
		if halted {
			summary.ShortCircuited = true
			return summary, nil
		}
	}
	return summary, nil
}

// runRule evaluates one rule and, on match, applies its ordered actions.
// Returns whether the rule's stop_processing flag should end the pass.
func (s *Service) runRule(ctx context.Context, group *domain.RuleGroup, rule *domain.Rule, j *domain.TransactionJournal, summary *PassSummary) bool {
	outcome := RuleOutcome{
		RuleID:  rule.ID,
		GroupID: group.ID,
		Title:   rule.Title,
	}
	summary.RulesEvaluated++

	mctx := domain.NewMatchContext(j)
	result, err := evaluator.EvaluateRule(s.triggers, rule, mctx)
	if err != nil {
		s.logger.Error("rule evaluation failed",
			"group_id", group.ID, "rule_id", rule.ID, "rule", rule.Title, "error", err)
		outcome.Error = err.Error()
		summary.Outcomes = append(summary.Outcomes, outcome)
		return false
	}

	if result.Verdict != evaluator.VerdictMatched {
		summary.Outcomes = append(summary.Outcomes, outcome)
		return false
	}

	outcome.Matched = true
	summary.RulesMatched++

	for _, act := range orderedActions(rule.Actions) {
		applied, halt, err := s.actions.Apply(ctx, act.Kind, act.Value, j)
		if err != nil {
			s.logger.Error("rule action failed",
				"group_id", group.ID, "rule_id", rule.ID, "rule", rule.Title,
				"action", string(act.Kind), "error", err)
			outcome.Error = err.Error()
			break
		}
		if applied {
			outcome.ActionsApplied++
		}
		if act.Kind == domain.ActionDeleteTransaction {
			// Terminating action: nothing may touch this journal again.
			summary.Deleted = true
			break
		}
		if halt || act.StopProcessing {
			break
		}
	}

	summary.ActionsApplied += outcome.ActionsApplied
	summary.Outcomes = append(summary.Outcomes, outcome)
	return rule.StopProcessing
}

// orderedActions returns the actions sorted by their order column
// without mutating the rule's slice
func orderedActions(actions []domain.RuleAction) []domain.RuleAction {
	sorted := make([]domain.RuleAction, len(actions))
	copy(sorted, actions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}
