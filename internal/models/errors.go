package models

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ErrUnknownSource is returned when a scrape is requested for a source that is not registered.
var ErrUnknownSource = errors.New("unknown source")

// RetrievalReason says why an adapter could not produce data.
type RetrievalReason string

const (
	ReasonUnreachable RetrievalReason = "unreachable"
	ReasonAuth        RetrievalReason = "auth_required"
	ReasonParse       RetrievalReason = "unparsable"
)

// RetrievalError is returned by adapters that cannot produce postings.
type RetrievalError struct {
	Source string
	Reason RetrievalReason
	Err    error
	Stack  []byte
}

// NewRetrievalError wraps err with the source and reason, capturing the caller's stack.
func NewRetrievalError(source string, reason RetrievalReason, err error) *RetrievalError {
	var stack []byte
	var stackErr *goerrors.Error
	if errors.As(err, &stackErr) {
		stack = stackErr.Stack()
	} else if err != nil {
		stack = goerrors.Wrap(err, 1).Stack()
	} else {
		stack = goerrors.New(string(reason)).Stack()
	}
	return &RetrievalError{Source: source, Reason: reason, Err: err, Stack: stack}
}

func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retrieve %s (%s): %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("retrieve %s (%s)", e.Source, e.Reason)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// PersistenceError is returned when a store write or read fails.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ClassificationError marks a posting that lacks the text needed to classify it.
type ClassificationError struct {
	Fields []string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("insufficient data: missing %v", e.Fields)
}
