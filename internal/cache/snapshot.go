package cache

import (
	"time"

	"github.com/steveyegge/trackergw/internal/types"
)

// Snapshot is the immutable tabular projection of the tracker. It is never
// mutated after construction — replacement is always a wholesale pointer
// swap (SPEC_FULL §3, invariant: "mutated only by wholesale replacement").
type Snapshot struct {
	Issues   []types.Issue
	Projects []types.Project
	Versions []types.Version
	Users    []types.User

	Meta Metadata
}

// EndpointError records that one of the tracker's listing endpoints was
// unreachable for this refresh (e.g. "users endpoint returned 403"), which
// the Cache Engine must tolerate without failing initialization.
type EndpointError struct {
	Endpoint string
	Status   int
}

// Metadata is the snapshot's bookkeeping record.
type Metadata struct {
	LastUpdated time.Time
	TTL         time.Duration

	// Generation increments on every successful swap; a cheap identity
	// signal for "which snapshot served this aggregation" without
	// comparing pointers (SPEC_FULL §3 supplement).
	Generation uint64

	IssueCount   int
	ProjectCount int
	VersionCount int
	UserCount    int

	IssuesTruncated bool
	EndpointErrors  []EndpointError
}

// Age returns how long ago the snapshot was built, relative to now.
func (m Metadata) Age(now time.Time) time.Duration {
	if m.LastUpdated.IsZero() {
		return 0
	}
	return now.Sub(m.LastUpdated)
}

// Stale reports whether the snapshot is older than its TTL as of now.
func (m Metadata) Stale(now time.Time) bool {
	return m.Age(now) > m.TTL
}
