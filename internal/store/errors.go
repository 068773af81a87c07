package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a read that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrConstraint is the umbrella for unique and foreign-key violations;
	// match with errors.Is, inspect the kind with errors.As on
	// *ConstraintError.
	ErrConstraint = errors.New("constraint violation")
	// ErrUnavailable reports a database read failure; callers surface it as
	// a "no data" condition rather than a crash.
	ErrUnavailable = errors.New("data unavailable")
)

// ConstraintKind distinguishes the two constraint failures callers can react
// to differently.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
)

// ConstraintError wraps a driver error identified as a constraint violation.
type ConstraintError struct {
	Kind ConstraintKind
	Err  error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s constraint violation: %v", e.Kind, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConstraint) match any constraint kind.
func (e *ConstraintError) Is(target error) bool { return target == ErrConstraint }

// TxError reports a failed write. It carries the entity kind and natural key
// for retry decisions but never the bound parameter values.
type TxError struct {
	Entity string
	Key    string
	Err    error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("write %s (%s): %v", e.Entity, e.Key, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }
