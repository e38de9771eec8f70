package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoQuestions is returned when the provider answered with an empty batch.
	ErrNoQuestions = errors.New("no questions available")
	// ErrNotLoggedIn is returned when a quiz action is attempted without a user.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrRateLimited marks a provider response asking the client to slow down.
	ErrRateLimited = errors.New("rate limited by question provider")
)

// FetchMessage is shown to the user when questions could not be loaded.
const FetchMessage = "Failed to load questions after multiple attempts. Please try again later."

// FetchError reports that the question provider could not deliver a batch.
type FetchError struct {
	Message  string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s (after %d attempts: %v)", e.Message, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError rejects user input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// PersistenceError wraps a storage backend failure. It is logged, never surfaced.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
