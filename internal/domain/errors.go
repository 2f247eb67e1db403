package domain

import (
	"errors"
	"fmt"
)

// Event store and projection errors
var (
	ErrDuplicateStream    = errors.New("stream already exists")
	ErrStreamNotFound     = errors.New("stream not found")
	ErrMalformedEvent     = errors.New("malformed event")
	ErrProjectionConflict = errors.New("projection write conflict")
)

// TransientStoreError marks a storage fault that is expected to clear on
// retry. The consumer must not acknowledge a message that failed with it.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error: %v", e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Err: err}
}

func IsTransient(err error) bool {
	var t *TransientStoreError
	return errors.As(err, &t)
}

// Terminal reports errors that redelivery cannot fix; the consumer routes
// those to the dead-letter topic instead of retrying.
func Terminal(err error) bool {
	return errors.Is(err, ErrMalformedEvent) || errors.Is(err, ErrStreamNotFound)
}
