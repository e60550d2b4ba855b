// Package idgen generates the service's primary-key identifiers.
//
// Every row that is indexed by creation time (tenants, API keys,
// templates, evaluations, audit entries) uses a UUIDv7: a 128-bit,
// time-ordered identifier that stays monotonic under concurrent creation
// within the same process. This replaces the source system's reliance on
// a mix of random and time-ordered UUID generation for the same purpose.
package idgen

import "github.com/google/uuid"

// New returns a new time-ordered UUID.
func New() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system entropy source is broken;
		// a random v4 is a safe, if non-monotonic, fallback.
		return uuid.New()
	}
	return id
}
