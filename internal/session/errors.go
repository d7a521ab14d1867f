package session

import "errors"

var (
	// ErrSessionNotFound indicates no session file exists for the ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionCorrupt indicates a session file exists but cannot be trusted:
	// invalid JSON, an ID mismatch or a broken invariant.
	ErrSessionCorrupt = errors.New("session corrupt")

	// ErrInvalidTransition indicates a status change that does not move forward.
	ErrInvalidTransition = errors.New("invalid session status transition")

	// ErrInvalidID indicates a malformed session ID.
	ErrInvalidID = errors.New("invalid session id")

	// ErrSessionExists indicates Create would overwrite an existing session.
	ErrSessionExists = errors.New("session already exists")
)
