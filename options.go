package streamcache

import (
	"net/http"
	"time"
)

// Compile-time tunables from spec section 6. BlockSize should stay a power
// of two; 64 KiB matches typical HTTP range-fetch granularity for media
// fragments. MaxCacheBlocks and MaxForwardReadBlocks are small deliberately
// — this bounds per-stream residency and how far the prefetcher is allowed
// to run ahead of the decoder.
const (
	DefaultBlockSize           int64 = 64 * 1024
	DefaultMaxCacheBlocks            = 64
	DefaultMaxForwardReadBlocks      = 16

	// defaultTickIdleSleep is how long the Scheduler sleeps between polls
	// when no stream needs a fetch (spec 4.3, "Tick when idle").
	defaultTickIdleSleep = 20 * time.Millisecond
	// defaultReadWaitSleep is how long a Reader Adapter sleeps between
	// cache-miss polls (spec 4.4, step 5).
	defaultReadWaitSleep = 20 * time.Millisecond
	// defaultErrorSettleSleep is the pause a Reader Adapter takes before
	// returning EOF once it observes a Stream has gone to error/quit
	// (spec 4.4, step 6).
	defaultErrorSettleSleep = 100 * time.Millisecond
	// cpuBoostAmount is the fixed CPU-quota boost a Reader Adapter applies
	// while starved on a cache miss (spec 4.4, step 4).
	cpuBoostAmount = 25
)

// Option configures a Scheduler at construction time. The functional-option
// form is used (rather than a bare struct literal, as the teacher's
// DownloadManager uses) because a Scheduler wires together several
// independently optional collaborators — Fetcher, Logger, Metrics,
// CPULimiter — and zero-value defaults for all of them must be safe.
type Option func(*Scheduler)

// WithHTTPClient sets the *http.Client used by the default Fetcher when a
// Stream doesn't carry its own SessionList. Mirrors the teacher's
// DownloadManager.Client field.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scheduler) {
		s.fetcher = &httpFetcher{client: c}
	}
}

// WithFetcher overrides the HTTP Fetcher entirely; useful for tests and for
// hosts that already maintain their own connection pool (spec 4.5).
func WithFetcher(f Fetcher) Option {
	return func(s *Scheduler) { s.fetcher = f }
}

// WithLogger installs a diagnostic hook. Defaults to a wrapper around
// log.Printf. Pass a no-op Logger to silence the scheduler entirely.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics installs a telemetry sink. Defaults to noopMetrics{}, which
// makes every call a no-op so the Scheduler never needs nil checks on the
// hot path.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithCPULimiter installs the process-level CPU-quota hook used by Reader
// Adapters while starved (spec 4.4 step 4, 5.1 "Resource policy"). Defaults
// to a no-op limiter.
func WithCPULimiter(c CPULimiter) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cpuLimiter = c
		}
	}
}

// WithIdleSleep overrides the Scheduler's idle-tick sleep (spec 4.3).
func WithIdleSleep(d time.Duration) Option {
	return func(s *Scheduler) { s.idleSleep = d }
}

// WithMaxForwardReadBlocks overrides the prefetch look-ahead window
// (spec 6). Defaults to DefaultMaxForwardReadBlocks.
func WithMaxForwardReadBlocks(n int) Option {
	return func(s *Scheduler) { s.maxForwardReadBlocks = n }
}

// WithMaxCacheBlocks overrides the per-stream cache residency cap
// (spec 3/6). Applied to streams added after the option is set; existing
// streams keep whatever cap they were created with.
func WithMaxCacheBlocks(n int) Option {
	return func(s *Scheduler) { s.maxCacheBlocks = n }
}

// WithBlockSize overrides the block granularity (spec 3/6). Applied to
// streams added after the option is set.
func WithBlockSize(n int64) Option {
	return func(s *Scheduler) { s.blockSize = n }
}
