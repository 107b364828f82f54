package types

import "errors"

// Expected, user-facing outcomes of session and timer operations.
// None of these indicate a programming fault and none are retried internally.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotParticipant  = errors.New("user is not a participant in this session")
	ErrSessionInactive = errors.New("session is not active")
	ErrAlreadyRunning  = errors.New("your timer is already running")
	ErrNoActiveTimer   = errors.New("no active timer to stop")
	ErrNotOwner        = errors.New("you can only stop your own timer")
	ErrAlreadyEnded    = errors.New("session is already ended")
	ErrUserNotFound    = errors.New("user not found")
)
