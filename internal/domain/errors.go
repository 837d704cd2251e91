package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by every lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrSessionNotFound is returned when a game session does not exist.
	ErrSessionNotFound = fmt.Errorf("game session %w", ErrNotFound)
	// ErrPlayerNotFound is returned when a player score record does not exist.
	ErrPlayerNotFound = fmt.Errorf("player %w", ErrNotFound)

	// ErrInvalidTransition is returned when a play command does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid play transition")
	// ErrJoinInProgress is returned when a second join races the first one.
	ErrJoinInProgress = errors.New("join already in progress")
	// ErrControllerClosed is returned once a play controller has been torn down.
	ErrControllerClosed = errors.New("play controller closed")

	// ErrDuplicatePlayer is returned when a name is already taken within a session.
	ErrDuplicatePlayer = &ValidationError{Field: "playerName", Reason: "already taken in this session"}
)

// StorageError wraps a failed call to the backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err, leaving nil and already classified errors untouched.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.Is(err, ErrNotFound) || errors.As(err, &se) || IsValidation(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ValidationError reports input the caller should have rejected before acting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
