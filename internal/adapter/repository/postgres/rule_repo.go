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

// ruleRepository implements domain.RuleRepository
type ruleRepository struct {
	db *DB
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *DB) domain.RuleRepository {
	return &ruleRepository{db: db}
}

// ListActiveGroups retrieves the active rule groups for a user in group
// order, each loaded with its active rules, triggers, and actions
func (r *ruleRepository) ListActiveGroups(ctx context.Context, userID uuid.UUID) ([]*domain.RuleGroup, error) {
	groupQuery := `
		SELECT id, user_id, title, description, group_order, active
		FROM rule_groups
		WHERE user_id = $1 AND active AND deleted_at IS NULL
		ORDER BY group_order ASC
	`

	rows, err := r.db.QueryContext(ctx, groupQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.RuleGroup
	var groupIDs []string
	for rows.Next() {
		var group domain.RuleGroup
		err := rows.Scan(
			&group.ID,
			&group.UserID,
			&group.Title,
			&group.Description,
			&group.Order,
			&group.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule group: %w", err)
		}
		groups = append(groups, &group)
		groupIDs = append(groupIDs, group.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule groups: %w", err)
	}

	if len(groups) == 0 {
		return groups, nil
	}

	if err := r.loadRules(ctx, groups, groupIDs); err != nil {
		return nil, err
	}

	return groups, nil
}

// GetGroup retrieves one rule group by id, regardless of its active
// flag, with its active rules loaded
func (r *ruleRepository) GetGroup(ctx context.Context, id uuid.UUID) (*domain.RuleGroup, error) {
	groupQuery := `
		SELECT id, user_id, title, description, group_order, active
		FROM rule_groups
		WHERE id = $1 AND deleted_at IS NULL
	`

	var group domain.RuleGroup
	err := r.db.QueryRowContext(ctx, groupQuery, id).Scan(
		&group.ID,
		&group.UserID,
		&group.Title,
		&group.Description,
		&group.Order,
		&group.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rule group %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule group: %w", err)
	}

	groups := []*domain.RuleGroup{&group}
	if err := r.loadRules(ctx, groups, []string{group.ID.String()}); err != nil {
		return nil, err
	}

	return &group, nil
}

// GetRule retrieves one rule by id, regardless of its active flag, with
// its triggers and actions loaded
func (r *ruleRepository) GetRule(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	ruleQuery := `
		SELECT id, group_id, title, description, rule_order, active, strict, stop_processing, trigger_type
		FROM rules
		WHERE id = $1 AND deleted_at IS NULL
	`

	var rule domain.Rule
	err := r.db.QueryRowContext(ctx, ruleQuery, id).Scan(
		&rule.ID,
		&rule.GroupID,
		&rule.Title,
		&rule.Description,
		&rule.Order,
		&rule.Active,
		&rule.Strict,
		&rule.StopProcessing,
		&rule.TriggerType,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	rulesByID := map[uuid.UUID]*domain.Rule{rule.ID: &rule}
	if err := r.loadTriggersAndActions(ctx, rulesByID, []string{rule.ID.String()}); err != nil {
		return nil, err
	}

	return &rule, nil
}

// ReorderRules renumbers a group's active rules to the given sequence
// atomically. The ids must cover exactly the group's active rules.
func (r *ruleRepository) ReorderRules(ctx context.Context, groupID uuid.UUID, ruleIDs []uuid.UUID) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var count int
	countQuery := `SELECT COUNT(*) FROM rules WHERE group_id = $1 AND deleted_at IS NULL`
	if err := dbTx.QueryRowContext(ctx, countQuery, groupID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count rules: %w", err)
	}
	if count != len(ruleIDs) {
		return fmt.Errorf("reorder must name all %d rules of the group, got %d", count, len(ruleIDs))
	}

	// Two phases so the renumber never trips the per-group unique
	// constraint on rule_order.
	for i, ruleID := range ruleIDs {
		res, err := dbTx.ExecContext(ctx,
			`UPDATE rules SET rule_order = $1 WHERE id = $2 AND group_id = $3 AND deleted_at IS NULL`,
			-(i + 1), ruleID, groupID,
		)
		if err != nil {
			return fmt.Errorf("failed to renumber rule: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check renumbered rule: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("rule %s in group %s: %w", ruleID, groupID, domain.ErrNotFound)
		}
	}

	_, err = dbTx.ExecContext(ctx,
		`UPDATE rules SET rule_order = -rule_order WHERE group_id = $1 AND rule_order < 0`,
		groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize rule order: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SoftDeleteRule logically removes a rule and renumbers its remaining
// siblings so rule orders stay a dense 1..N sequence
func (r *ruleRepository) SoftDeleteRule(ctx context.Context, id uuid.UUID) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var groupID uuid.UUID
	err = dbTx.QueryRowContext(ctx,
		`UPDATE rules SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING group_id`,
		id,
	).Scan(&groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to soft-delete rule: %w", err)
	}

	if err := renumberRules(ctx, dbTx, groupID); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SoftDeleteGroup logically removes a group and its rules, and renumbers
// the owner's remaining groups
func (r *ruleRepository) SoftDeleteGroup(ctx context.Context, id uuid.UUID) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var userID uuid.UUID
	err = dbTx.QueryRowContext(ctx,
		`UPDATE rule_groups SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING user_id`,
		id,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("rule group %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to soft-delete rule group: %w", err)
	}

	_, err = dbTx.ExecContext(ctx,
		`UPDATE rules SET deleted_at = NOW() WHERE group_id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft-delete group rules: %w", err)
	}

	_, err = dbTx.ExecContext(ctx, `
		UPDATE rule_groups g SET group_order = numbered.rn
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY group_order ASC) AS rn
			FROM rule_groups
			WHERE user_id = $1 AND deleted_at IS NULL
		) numbered
		WHERE g.id = numbered.id
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to renumber rule groups: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// loadRules attaches each group's active rules, triggers, and actions
func (r *ruleRepository) loadRules(ctx context.Context, groups []*domain.RuleGroup, groupIDs []string) error {
	ruleQuery := `
		SELECT id, group_id, title, description, rule_order, active, strict, stop_processing, trigger_type
		FROM rules
		WHERE group_id = ANY($1::uuid[]) AND active AND deleted_at IS NULL
		ORDER BY rule_order ASC
	`

	rows, err := r.db.QueryContext(ctx, ruleQuery, pq.Array(groupIDs))
	if err != nil {
		return fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	groupsByID := make(map[uuid.UUID]*domain.RuleGroup, len(groups))
	for _, group := range groups {
		groupsByID[group.ID] = group
	}

	rulesByID := make(map[uuid.UUID]*domain.Rule)
	var ruleIDs []string
	var ruleOrder []uuid.UUID
	for rows.Next() {
		var rule domain.Rule
		err := rows.Scan(
			&rule.ID,
			&rule.GroupID,
			&rule.Title,
			&rule.Description,
			&rule.Order,
			&rule.Active,
			&rule.Strict,
			&rule.StopProcessing,
			&rule.TriggerType,
		)
		if err != nil {
			return fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesByID[rule.ID] = &rule
		ruleIDs = append(ruleIDs, rule.ID.String())
		ruleOrder = append(ruleOrder, rule.ID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rules: %w", err)
	}

	if len(ruleIDs) > 0 {
		if err := r.loadTriggersAndActions(ctx, rulesByID, ruleIDs); err != nil {
			return err
		}
	}

	for _, ruleID := range ruleOrder {
		rule := rulesByID[ruleID]
		group, ok := groupsByID[rule.GroupID]
		if !ok {
			continue
		}
		group.Rules = append(group.Rules, *rule)
	}

	return nil
}

// loadTriggersAndActions attaches ordered triggers and actions to the
// given rules
func (r *ruleRepository) loadTriggersAndActions(ctx context.Context, rulesByID map[uuid.UUID]*domain.Rule, ruleIDs []string) error {
	triggerQuery := `
		SELECT id, rule_id, kind, value, trigger_order, stop_processing
		FROM rule_triggers
		WHERE rule_id = ANY($1::uuid[]) AND deleted_at IS NULL
		ORDER BY trigger_order ASC
	`

	rows, err := r.db.QueryContext(ctx, triggerQuery, pq.Array(ruleIDs))
	if err != nil {
		return fmt.Errorf("failed to query rule triggers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var trig domain.RuleTrigger
		err := rows.Scan(
			&trig.ID,
			&trig.RuleID,
			&trig.Kind,
			&trig.Value,
			&trig.Order,
			&trig.StopProcessing,
		)
		if err != nil {
			return fmt.Errorf("failed to scan rule trigger: %w", err)
		}
		if rule, ok := rulesByID[trig.RuleID]; ok {
			rule.Triggers = append(rule.Triggers, trig)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rule triggers: %w", err)
	}

	actionQuery := `
		SELECT id, rule_id, kind, value, action_order, stop_processing
		FROM rule_actions
		WHERE rule_id = ANY($1::uuid[]) AND deleted_at IS NULL
		ORDER BY action_order ASC
	`

	actionRows, err := r.db.QueryContext(ctx, actionQuery, pq.Array(ruleIDs))
	if err != nil {
		return fmt.Errorf("failed to query rule actions: %w", err)
	}
	defer actionRows.Close()

	for actionRows.Next() {
		var act domain.RuleAction
		err := actionRows.Scan(
			&act.ID,
			&act.RuleID,
			&act.Kind,
			&act.Value,
			&act.Order,
			&act.StopProcessing,
		)
		if err != nil {
			return fmt.Errorf("failed to scan rule action: %w", err)
		}
		if rule, ok := rulesByID[act.RuleID]; ok {
			rule.Actions = append(rule.Actions, act)
		}
	}
	if err := actionRows.Err(); err != nil {
		return fmt.Errorf("error iterating rule actions: %w", err)
	}

	return nil
}

// renumberRules rewrites a group's active rule orders as a dense 1..N
// sequence
func renumberRules(ctx context.Context, dbTx *sql.Tx, groupID uuid.UUID) error {
	_, err := dbTx.ExecContext(ctx, `
		UPDATE rules r SET rule_order = numbered.rn
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY rule_order ASC) AS rn
			FROM rules
			WHERE group_id = $1 AND deleted_at IS NULL
		) numbered
		WHERE r.id = numbered.id
	`, groupID)
	if err != nil {
		return fmt.Errorf("failed to renumber rules: %w", err)
	}
	return nil
}
