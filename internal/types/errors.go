package types

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation rejects malformed ingestion input; nothing is stored.
	ErrValidation = errors.New("validation error")
	// ErrNotFound means the referenced row or reference data does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConsistency rejects a second evaluation of an already evaluated decision.
	ErrConsistency = errors.New("consistency error")
	// ErrDegradedData marks input that was resolved to a neutral value.
	ErrDegradedData = errors.New("degraded data")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Consistencyf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConsistency, fmt.Sprintf(format, args...))
}

func Degradedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDegradedData, fmt.Sprintf(format, args...))
}
