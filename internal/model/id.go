package model

import "github.com/oklog/ulid/v2"

// NewID generates a ULID string for use as a job identifier. ULIDs sort by
// creation time, which keeps the job journal naturally ordered.
func NewID() string {
	return ulid.Make().String()
}
