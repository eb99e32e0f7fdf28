package party

import "errors"

var (
	// ErrPartyNotFound is returned for unknown or malformed party codes.
	ErrPartyNotFound = errors.New("party not found")

	// ErrWrongPassword is returned when a password-protected party is
	// joined with a missing or non-matching password.
	ErrWrongPassword = errors.New("wrong password")

	// ErrNotInParty is returned for operations that require an active
	// party membership.
	ErrNotInParty = errors.New("not in a party")
)
