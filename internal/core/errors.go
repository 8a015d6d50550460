package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures so the boundary layer can map them to a
// transport status without parsing messages.
type ErrorKind string

const (
	KindUnauthenticated     ErrorKind = "unauthenticated"
	KindForbidden           ErrorKind = "forbidden"
	KindValidation          ErrorKind = "validation"
	KindReferentialConflict ErrorKind = "referential_conflict"
	KindSelfDeletion        ErrorKind = "self_deletion"
	KindNotFound            ErrorKind = "not_found"
	KindStore               ErrorKind = "store"
)

// CodeInvalidCategoryType marks a validation error caused by a category of
// the wrong type for the row being written.
const CodeInvalidCategoryType = "invalid_category_type"

// Error is the structured error returned by every ledger operation.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	// Blockers lists the collections whose rows prevent a delete.
	Blockers []string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Blockers) > 0 {
		b.WriteString(" (referenced by ")
		b.WriteString(strings.Join(e.Blockers, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) *Error {
	return newError(KindUnauthenticated, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func Invalid(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func InvalidCategoryType(format string, args ...any) *Error {
	e := newError(KindValidation, format, args...)
	e.Code = CodeInvalidCategoryType
	return e
}

// ReferentialConflict reports that blockers still reference the row.
func ReferentialConflict(blockers []string, format string, args ...any) *Error {
	e := newError(KindReferentialConflict, format, args...)
	e.Blockers = blockers
	return e
}

func SelfDeletion() *Error {
	return newError(KindSelfDeletion, "cannot delete the signed-in user")
}

func NotFound(entity string, id int64) *Error {
	return newError(KindNotFound, "%s %d not found", entity, id)
}

// StoreFailure wraps a persistence error. Already classified errors pass
// through untouched.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: KindStore, Message: op, Err: err}
}

// KindOf returns the kind of err, or KindStore for unclassified errors.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindStore
}

func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
