package models

import "errors"

var (
	// ErrInvalidInput indicates empty or malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoSession indicates the operation requires an authenticated identity.
	ErrNoSession = errors.New("no active session")
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRecipientNotFound indicates no user matches the requested recipient.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrSelfRequest indicates a user tried to befriend themselves.
	ErrSelfRequest = errors.New("cannot befriend yourself")
	// ErrStore wraps underlying document store I/O failures.
	ErrStore = errors.New("document store failure")
	// ErrPartialAcceptance indicates a friendship acceptance did not write both edges.
	ErrPartialAcceptance = errors.New("friendship acceptance incomplete")
)

// Message maps an error to the short human-readable text shown to callers.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "Please check your input and try again."
	case errors.Is(err, ErrNoSession):
		return "User not logged in."
	case errors.Is(err, ErrRecipientNotFound):
		return "No user found with that email."
	case errors.Is(err, ErrSelfRequest):
		return "You cannot add yourself."
	case errors.Is(err, ErrNotFound):
		return "Not found."
	case errors.Is(err, ErrPartialAcceptance):
		return "Friend request could not be fully accepted. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
