package query

import (
	"context"
	"math"
	"time"

	"github.com/agentuity/go-query/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Forever disables a time window: a StaleTime of Forever never goes stale
// and a CacheTime of Forever is never collected.
const Forever time.Duration = math.MaxInt64

// AlwaysStale as a StaleTime makes data stale as soon as it is written,
// whatever the client default.
const AlwaysStale time.Duration = -1

// DefaultCacheTime is how long an unobserved entry is kept.
const DefaultCacheTime = 5 * time.Minute

// DefaultGCInterval is how often unobserved entries are swept.
const DefaultGCInterval = time.Minute

// QueryFunc fetches the data for one query key. The context is the client's
// base context; it is not cancelled when observers go away.
type QueryFunc func(ctx context.Context) (any, error)

// Options configure one query. Zero durations and nil policies fall back to
// the client defaults.
type Options struct {
	// Key identifies the query. See package key for the encoding rules.
	Key any
	// Fn fetches the data. Required unless the query is disabled.
	Fn QueryFunc
	// Enabled gates fetching. nil means enabled.
	Enabled *bool
	// StaleTime is the freshness window after a successful fetch. Zero uses
	// the client default; AlwaysStale opts out of it.
	StaleTime time.Duration
	// CacheTime is how long the entry survives without observers.
	CacheTime time.Duration
	// KeepPreviousData shows the previous key's data while a new key loads.
	KeepPreviousData bool
	// RefetchOnWindowFocus refetches stale data on Client.Focus. nil means true.
	RefetchOnWindowFocus *bool
	// RefetchOnMount refetches stale data when an observer mounts. nil means true.
	RefetchOnMount *bool
	// RefetchOnReconnect refetches stale data on Client.Reconnect. nil means true.
	RefetchOnReconnect *bool
	// RefetchInterval polls while the observer is mounted when positive.
	RefetchInterval time.Duration
	// Retry decides whether a failed attempt is retried.
	Retry RetryPolicy
	// RetryDelay sets the wait before each retry.
	RetryDelay RetryDelay
	// ClearDataOnError drops previously fetched data when a fetch fails.
	ClearDataOnError bool
}

// Bool returns a pointer to b, for the tri-state flags of Options.
func Bool(b bool) *bool { return &b }

func flag(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// fetchOptions is the part of Options that drives the executor.
type fetchOptions struct {
	retry            RetryPolicy
	retryDelay       RetryDelay
	cacheTime        time.Duration
	clearDataOnError bool
}

type resolvedOptions struct {
	fetchOptions
	enabled              bool
	staleTime            time.Duration
	keepPreviousData     bool
	refetchOnWindowFocus bool
	refetchOnMount       bool
	refetchOnReconnect   bool
	refetchInterval      time.Duration
}

func (c *config) resolve(o Options) resolvedOptions {
	r := resolvedOptions{
		fetchOptions: fetchOptions{
			retry:            o.Retry,
			retryDelay:       o.RetryDelay,
			cacheTime:        o.CacheTime,
			clearDataOnError: o.ClearDataOnError,
		},
		enabled:              flag(o.Enabled, true),
		staleTime:            o.StaleTime,
		keepPreviousData:     o.KeepPreviousData,
		refetchOnWindowFocus: flag(o.RefetchOnWindowFocus, true),
		refetchOnMount:       flag(o.RefetchOnMount, true),
		refetchOnReconnect:   flag(o.RefetchOnReconnect, true),
		refetchInterval:      o.RefetchInterval,
	}
	switch {
	case r.staleTime == 0:
		r.staleTime = c.staleTime
	case r.staleTime < 0:
		r.staleTime = 0
	}
	if r.cacheTime <= 0 {
		r.cacheTime = c.cacheTime
	}
	if r.retry == nil {
		r.retry = c.retry
	}
	if r.retryDelay == nil {
		r.retryDelay = c.retryDelay
	}
	return r
}

// config holds the resolved configuration for a Client.
type config struct {
	staleTime      time.Duration
	cacheTime      time.Duration
	gcInterval     time.Duration
	retry          RetryPolicy
	retryDelay     RetryDelay
	logger         logger.Logger
	now            func() time.Time
	onAuthError    func(error)
	tracerProvider trace.TracerProvider
}

// Option configures a Client.
type Option func(*config)

func defaultConfig() config {
	return config{
		cacheTime:  DefaultCacheTime,
		gcInterval: DefaultGCInterval,
		retry:      DefaultRetry,
		now:        time.Now,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewConsoleLogger()
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	return cfg
}

// WithStaleTime sets the default freshness window. Defaults to zero: data is
// stale as soon as it is written.
func WithStaleTime(d time.Duration) Option {
	return func(c *config) { c.staleTime = d }
}

// WithCacheTime sets the default time an unobserved entry is kept. Defaults
// to DefaultCacheTime (5 minutes).
func WithCacheTime(d time.Duration) Option {
	return func(c *config) { c.cacheTime = d }
}

// WithGCInterval sets the interval of the background sweep of unobserved
// entries. Defaults to DefaultGCInterval (1 minute).
func WithGCInterval(d time.Duration) Option {
	return func(c *config) { c.gcInterval = d }
}

// WithRetry sets the default retry policy. Defaults to DefaultRetry.
func WithRetry(p RetryPolicy) Option {
	return func(c *config) { c.retry = p }
}

// WithRetryDelay sets the default wait between attempts. Defaults to an
// exponential backoff starting at one second, capped at 30 seconds.
func WithRetryDelay(d RetryDelay) Option {
	return func(c *config) { c.retryDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithAuthErrorHandler registers the side channel invoked whenever a query
// or mutation fails with an authentication error.
func WithAuthErrorHandler(fn func(error)) Option {
	return func(c *config) { c.onAuthError = fn }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}
