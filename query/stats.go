package query

import "sync/atomic"

const tracerName = "github.com/agentuity/go-query"

// Stats are cumulative counters of a Client.
type Stats struct {
	// Fetches counts query function runs started (retries excluded).
	Fetches uint64
	// Deduplicated counts fetch requests that joined one in flight.
	Deduplicated uint64
	// Hits counts reads served from fresh cached data.
	Hits             uint64
	Failures         uint64
	Retries          uint64
	Evictions        uint64
	Invalidations    uint64
	Mutations        uint64
	MutationFailures uint64
	// Entries is the current number of cache entries.
	Entries int
}

type counters struct {
	fetches          atomic.Uint64
	deduplicated     atomic.Uint64
	hits             atomic.Uint64
	failures         atomic.Uint64
	retries          atomic.Uint64
	invalidations    atomic.Uint64
	mutations        atomic.Uint64
	mutationFailures atomic.Uint64
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	return Stats{
		Fetches:          c.counters.fetches.Load(),
		Deduplicated:     c.counters.deduplicated.Load(),
		Hits:             c.counters.hits.Load(),
		Failures:         c.counters.failures.Load(),
		Retries:          c.counters.retries.Load(),
		Evictions:        c.store.evictions.Load(),
		Invalidations:    c.counters.invalidations.Load(),
		Mutations:        c.counters.mutations.Load(),
		MutationFailures: c.counters.mutationFailures.Load(),
		Entries:          c.store.Len(),
	}
}
