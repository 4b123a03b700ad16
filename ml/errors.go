package ml

import (
	"errors"
	"fmt"
)

var (
	ErrDimensionMismatch      = errors.New("dimension mismatch")
	ErrUnknownFeatureName     = errors.New("unknown feature name")
	ErrEmptyInput             = errors.New("empty input")
	ErrResourceBudgetExceeded = errors.New("resource budget exceeded")
	ErrInvalidInput           = errors.New("invalid input")
	ErrParse                  = errors.New("parse error")
)

// InferenceError carries one of the sentinel kinds above plus enough
// context (row, widths, feature name, budget) to diagnose the failure.
type InferenceError struct {
	Kind error
	Msg  string
}

func (e *InferenceError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *InferenceError) Unwrap() error { return e.Kind }

func dimensionf(format string, args ...any) error {
	return &InferenceError{Kind: ErrDimensionMismatch, Msg: fmt.Sprintf(format, args...)}
}

func unknownName(name string) error {
	return &InferenceError{Kind: ErrUnknownFeatureName, Msg: fmt.Sprintf("%q", name)}
}

func emptyf(format string, args ...any) error {
	return &InferenceError{Kind: ErrEmptyInput, Msg: fmt.Sprintf(format, args...)}
}

// Invalidf builds an ErrInvalidInput failure.
func Invalidf(format string, args ...any) error {
	return &InferenceError{Kind: ErrInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

// Parsef builds an ErrParse failure.
func Parsef(format string, args ...any) error {
	return &InferenceError{Kind: ErrParse, Msg: fmt.Sprintf(format, args...)}
}

// BudgetExceeded reports that demand for the named budget is above its limit.
func BudgetExceeded(budget string, limit, demand int64) error {
	return &InferenceError{
		Kind: ErrResourceBudgetExceeded,
		Msg:  fmt.Sprintf("%s: need %d bytes, limit %d", budget, demand, limit),
	}
}

var kinds = []error{
	ErrResourceBudgetExceeded,
	ErrDimensionMismatch,
	ErrUnknownFeatureName,
	ErrEmptyInput,
	ErrInvalidInput,
	ErrParse,
}

// KindOf returns the sentinel err wraps, or nil if it wraps none of them.
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
