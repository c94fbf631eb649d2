package action

import (
	"context"
	"errors"
	"strings"

	"github.com/ledgerkit/ledgerkit-backend/internal/domain"
)

// Library applies rule actions to a transaction journal. Every mutation
// goes through the journal repository and is mirrored onto the in-memory
// journal, so rules evaluated later in the same pass see the mutated
// state. Actions are idempotent: replaying one against an already-mutated
// journal reports applied=false and writes nothing.
type Library struct {
	journals domain.JournalRepository
}

// NewLibrary creates a new action library backed by the given journal
// repository
func NewLibrary(journals domain.JournalRepository) *Library {
	return &Library{journals: journals}
}

// Apply runs the mutator selected by kind with the given value against
// the journal. It returns whether the journal changed and whether the
// rule's remaining actions should be skipped. Returns UnknownActionError
// for a kind outside the closed set, InvalidValueError for a malformed or
// dangling value, and MutationFailedError when the underlying write fails.
func (l *Library) Apply(ctx context.Context, kind domain.ActionKind, value string, j *domain.TransactionJournal) (bool, bool, error) {
	switch kind {
	case domain.ActionSetCategory:
		name, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		if strings.EqualFold(j.CategoryName, name) {
			return false, false, nil
		}
		if err := l.journals.SetCategory(ctx, j.ID, name); err != nil {
			return false, false, l.wrapWriteError(kind, value, err)
		}
		j.CategoryName = name
		return true, false, nil

	case domain.ActionClearCategory:
		if j.CategoryName == "" {
			return false, false, nil
		}
		if err := l.journals.ClearCategory(ctx, j.ID); err != nil {
			return false, false, l.wrapWriteError(kind, value, err)
		}
		j.CategoryName = ""
		return true, false, nil

	case domain.ActionSetBudget:
		name, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		if strings.EqualFold(j.BudgetName, name) {
			return false, false, nil
		}
		if err := l.journals.SetBudget(ctx, j.ID, name); err != nil {
			return false, false, l.wrapWriteError(kind, value, err)
		}
		j.BudgetName = name
		return true, false, nil

	case domain.ActionClearBudget:
		if j.BudgetName == "" {
			return false, false, nil
		}
		if err := l.journals.ClearBudget(ctx, j.ID); err != nil {
			return false, false, l.wrapWriteError(kind, value, err)
		}
		j.BudgetName = ""
		return true, false, nil

	case domain.ActionAddTag:
		name, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		if hasTag(j.Tags, name) {
			return false, false, nil
		}
		if err := l.journals.AddTag(ctx, j.ID, name); err != nil {
			return false, false, l.wrapWriteError(kind, value, err)
		}
		j.Tags = append(j.Tags, name)
		return true, false, nil

	case domain.ActionRemoveTag:
		name, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		if !hasTag(j.Tags, name) {
			return false, false, nil
		}
		if err := l.journals.RemoveTag(ctx, j.ID, name); err != nil {
			return false, false, l.wrapWriteError(kind, value, err)
		}
		j.Tags = withoutTag(j.Tags, name)
		return true, false, nil

	case domain.ActionRemoveAllTags:
		if len(j.Tags) == 0 {
			return false, false, nil
		}
		if err := l.journals.RemoveAllTags(ctx, j.ID); err != nil {
			return false, false, l.wrapWriteError(kind, value, err)
		}
		j.Tags = nil
		return true, false, nil

	case domain.ActionSetDescription:
		text, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		return l.writeDescription(ctx, kind, j, text)

	case domain.ActionAppendDescription:
		text, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		if strings.HasSuffix(j.Description, text) {
			return false, false, nil
		}
		return l.writeDescription(ctx, kind, j, j.Description+text)

	case domain.ActionPrependDescription:
		text, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		if strings.HasPrefix(j.Description, text) {
			return false, false, nil
		}
		return l.writeDescription(ctx, kind, j, text+j.Description)

	case domain.ActionSetNotes:
		text, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		return l.writeNotes(ctx, kind, j, text)

	case domain.ActionAppendNotes:
		text, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		if strings.HasSuffix(j.Notes, text) {
			return false, false, nil
		}
		return l.writeNotes(ctx, kind, j, j.Notes+text)

	case domain.ActionPrependNotes:
		text, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		if strings.HasPrefix(j.Notes, text) {
			return false, false, nil
		}
		return l.writeNotes(ctx, kind, j, text+j.Notes)

	case domain.ActionClearNotes:
		if j.Notes == "" {
			return false, false, nil
		}
		return l.writeNotes(ctx, kind, j, "")

	case domain.ActionLinkToBill:
		name, err := requireValue(kind, value)
		if err != nil {
			return false, false, err
		}
		if strings.EqualFold(j.BillName, name) {
			return false, false, nil
		}
		if err := l.journals.LinkToBill(ctx, j.ID, name); err != nil {
			return false, false, l.wrapWriteError(kind, value, err)
		}
		j.BillName = name
		return true, false, nil

	case domain.ActionMarkReconciled:
		if j.Reconciled {
			return false, false, nil
		}
		if err := l.journals.SetReconciled(ctx, j.ID, true); err != nil {
			return false, false, l.wrapWriteError(kind, value, err)
		}
		j.Reconciled = true
		return true, false, nil

	case domain.ActionClearReconciled:
		if !j.Reconciled {
			return false, false, nil
		}
		if err := l.journals.SetReconciled(ctx, j.ID, false); err != nil {
			return false, false, l.wrapWriteError(kind, value, err)
		}
		j.Reconciled = false
		return true, false, nil

	case domain.ActionDeleteTransaction:
		if err := l.journals.Delete(ctx, j.ID); err != nil {
			// Already gone counts as applied on a replay.
			if errors.Is(err, domain.ErrNotFound) {
				return false, true, nil
			}
			return false, false, l.wrapWriteError(kind, value, err)
		}
		return true, true, nil

	default:
		return false, false, &domain.UnknownActionError{Kind: kind}
	}
}

func (l *Library) writeDescription(ctx context.Context, kind domain.ActionKind, j *domain.TransactionJournal, text string) (bool, bool, error) {
	if j.Description == text {
		return false, false, nil
	}
	if err := l.journals.SetDescription(ctx, j.ID, text); err != nil {
		return false, false, l.wrapWriteError(kind, text, err)
	}
	j.Description = text
	return true, false, nil
}

func (l *Library) writeNotes(ctx context.Context, kind domain.ActionKind, j *domain.TransactionJournal, text string) (bool, bool, error) {
	if j.Notes == text {
		return false, false, nil
	}
	if err := l.journals.SetNotes(ctx, j.ID, text); err != nil {
		return false, false, l.wrapWriteError(kind, text, err)
	}
	j.Notes = text
	return true, false, nil
}

// wrapWriteError maps a dangling reference (e.g. a budget that no longer
// exists) to InvalidValueError and every other write failure to
// MutationFailedError
func (l *Library) wrapWriteError(kind domain.ActionKind, value string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.InvalidValueError{
			Kind:   string(kind),
			Value:  value,
			Reason: "referenced entity does not exist",
		}
	}
	return &domain.MutationFailedError{Kind: kind, Err: err}
}

func requireValue(kind domain.ActionKind, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", &domain.InvalidValueError{
			Kind:   string(kind),
			Value:  value,
			Reason: "value must not be empty",
		}
	}
	return trimmed, nil
}

func hasTag(tags []string, name string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, name) {
			return true
		}
	}
	return false
}

func withoutTag(tags []string, name string) []string {
	out := tags[:0]
	for _, tag := range tags {
		if !strings.EqualFold(tag, name) {
			out = append(out, tag)
		}
	}
	return out
}
