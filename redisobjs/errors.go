package redisobjs

import (
	"errors"
	"fmt"
)

var (
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrSerialization    = errors.New("cannot serialize value")
	ErrNestedSet        = errors.New("a set cannot be nested inside another value")
	ErrUnsupportedRType = errors.New("unsupported redis type")
	ErrUnchunkableSet   = errors.New("a whole set cannot be read in chunks")
	ErrInvalidBatchSize = errors.New("batch size must be at least 1")
)

// TypeMismatchError is returned when an update write does not fit the type
// already stored at the key.
type TypeMismatchError struct {
	Key      string
	Existing RType
	Got      string // shape of the rejected value
	Expected string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf(
		"cannot update %s (%s) with %s; expected %s", e.Key, e.Existing, e.Got, e.Expected,
	)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// SerializationError is returned when a value, or something nested in it,
// cannot be JSON encoded.
type SerializationError struct {
	Value any
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s %T: %v", ErrSerialization, e.Value, e.Err)
}

func (e *SerializationError) Unwrap() []error {
	return []error{ErrSerialization, e.Err}
}

func unsupportedRTypeError(key, name string) error {
	return fmt.Errorf("%w %s: %s", ErrUnsupportedRType, key, name)
}
