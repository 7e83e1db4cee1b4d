package od

import "errors"

// Sentinel errors returned by the object dictionary.
var (
	// ErrNotFound is returned when (index, subIndex) has no entry.
	ErrNotFound = errors.New("od: entry not found")
	// ErrTypeMismatch is returned when a mutation's value tag does not
	// match the entry's stable tag (invariant I1).
	ErrTypeMismatch = errors.New("od: type mismatch")
	// ErrEdsFormat is returned for malformed EDS content.
	ErrEdsFormat = errors.New("od: invalid EDS format")
)
