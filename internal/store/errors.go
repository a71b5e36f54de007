package store

import "errors"

// ErrSessionNotFound is returned when a session id has no matching row.
var ErrSessionNotFound = errors.New("store: session not found")

// ErrInvalidProfileType is returned by SetProfile/GetProfile for any
// profile_type other than "agent" or "user".
var ErrInvalidProfileType = errors.New("store: profile_type must be \"agent\" or \"user\"")
