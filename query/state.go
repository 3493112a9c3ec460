package query

import "time"

// Status is the lifecycle status of a query entry or mutation.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of a cache entry.
type State struct {
	Data   any
	Error  error
	Status Status
	// UpdatedAt is the time of the last successful write. Zero until the
	// entry first holds data.
	UpdatedAt      time.Time
	ErrorUpdatedAt time.Time
	// FailureCount counts failed attempts of the latest fetch.
	FailureCount  int
	IsFetching    bool
	IsInvalidated bool

	// seq orders snapshots of the same key; listeners drop older ones.
	seq uint64
}

// HasData reports whether the entry ever received data.
func (s State) HasData() bool { return !s.UpdatedAt.IsZero() }

// IsStale reports whether data written at UpdatedAt is older than
// staleTime at now. Invalidated and empty entries are always stale.
func (s State) IsStale(staleTime time.Duration, now time.Time) bool {
	if s.IsInvalidated || !s.HasData() {
		return true
	}
	if staleTime == Forever {
		return false
	}
	return now.Sub(s.UpdatedAt) > staleTime
}

// Patch mutates an entry in place. Patches run under the store lock and
// must not call back into the store or client.
type Patch func(*State)

// Listener receives the entry snapshot after every write.
type Listener func(State)
