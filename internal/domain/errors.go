package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories when a referenced entity does
// not exist (or is soft-deleted)
var ErrNotFound = errors.New("not found")

// UnknownTriggerError indicates a rule trigger names a predicate kind the
// library does not implement. This is a data-integrity problem, not a
// normal non-match.
type UnknownTriggerError struct {
	Kind TriggerKind
}

func (e *UnknownTriggerError) Error() string {
	return fmt.Sprintf("unknown trigger kind %q", string(e.Kind))
}

// UnknownActionError indicates a rule action names a mutator kind the
// library does not implement
type UnknownActionError struct {
	Kind ActionKind
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action kind %q", string(e.Kind))
}

// InvalidValueError indicates a trigger or action value cannot be
// interpreted for its kind (e.g. a non-numeric amount, or a reference to
// a budget that does not exist)
type InvalidValueError struct {
	Kind   string
	Value  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Kind, e.Reason)
}

// MutationFailedError indicates an action's underlying datastore write
// failed. The action either fully applied or failed; there is no
// partially-applied state.
type MutationFailedError struct {
	Kind ActionKind
	Err  error
}

func (e *MutationFailedError) Error() string {
	return fmt.Sprintf("action %s failed: %v", string(e.Kind), e.Err)
}

func (e *MutationFailedError) Unwrap() error {
	return e.Err
}
