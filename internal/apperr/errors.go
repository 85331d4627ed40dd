// Package apperr defines the error kinds shared by the pipeline stages and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindMissingParameter
	KindInvalidInput
	KindNoData
	KindExternalService
	KindComputation
)

func (k Kind) String() string {
	switch k {
	case KindMissingParameter:
		return "missing_parameter"
	case KindInvalidInput:
		return "invalid_input"
	case KindNoData:
		return "no_data"
	case KindExternalService:
		return "external_service"
	case KindComputation:
		return "computation"
	default:
		return "unknown"
	}
}

// Error carries a Kind and the operation that failed. Op is something like
// "search.duckduckgo" or "budget.optimize".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func MissingParameter(name string) error {
	return newError(KindMissingParameter, "", fmt.Errorf("Missing required parameter: %s", name))
}

func InvalidInput(op, msg string) error {
	return newError(KindInvalidInput, op, errors.New(msg))
}

func NoData(op, msg string) error {
	return newError(KindNoData, op, errors.New(msg))
}

// ExternalService wraps a failure of a search, generation, embedding, store
// or index backend. A nil err yields nil.
func ExternalService(op string, err error) error {
	if err == nil {
		return nil
	}
	return newError(KindExternalService, op, err)
}

func Computation(op, msg string) error {
	return newError(KindComputation, op, errors.New(msg))
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
