package streamcache

import (
	"net/http"
	"sync/atomic"
)

// WaitingStatus values a Reader Adapter publishes onto its Stream while
// blocked, so UI/diagnostic observers can tell what a decoder is stuck on
// (spec section 3's waiting_status, carried forward with the extra
// "seeking" granularity original_source distinguishes — see SPEC_FULL.md's
// supplemented-features section).
const (
	WaitingStatusReading = "Reading stream"
	WaitingStatusSeeking = "Reading stream (init, seek)"
)

// Decoder is the external collaborator a Reader Adapter propagates
// interrupts to and from (spec section 4.4: "a pointer to ... its owning
// decoder (for interrupt propagation)"). A host decoder implements this to
// learn when a blocked read was cancelled.
type Decoder interface {
	// Interrupted reports whether the decoder has asked in-flight reads to
	// abort.
	Interrupted() bool
	// SetNeedReinit is called when a Read returns early because Interrupted
	// was observed true; the decoder uses this to know it must reinitialize
	// before trusting further reads.
	SetNeedReinit()
}

// Stream is a handle to one remote resource: URL, length (once known), read
// cursor, status flags, and its Block Cache (spec section 3, component B).
// It is created externally and handed to a Scheduler, which owns its
// lifetime from that point on (spec section 3 "Lifecycle", section 9
// "Scheduler worker ownership").
//
// Shared mutable fields are sync/atomic values with documented publication
// order (spec section 5): length/blockCount are stored before ready flips
// true, and block bytes are inserted into the cache (which itself performs
// the publish under its own lock) before any Reader can observe them via
// IsAvailable.
type Stream struct {
	url atomic.Value // string

	wholeDownload bool
	sessionList   *http.Client // nil => scheduler's shared client

	readHead atomic.Int64

	length     atomic.Int64 // -1 until known
	blockCount atomic.Uint32
	ready      atomic.Bool

	errorFlag         atomic.Bool
	errKind           atomic.Int32
	quitRequest       atomic.Bool
	suspendRequest    atomic.Bool
	livestreamEOF     atomic.Bool
	livestreamPrivate atomic.Bool
	disableInterrupt  atomic.Bool

	waitingStatus atomic.Value // string

	seqHead atomic.Int64
	seqID   atomic.Int64
	hasSeq  atomic.Bool

	cache          *BlockCache
	blockSize      int64
	maxCacheBlocks int
}

// NewStream creates a Stream for url. wholeDownload selects the fetch shape
// (spec section 3): true fetches the entire resource in one GET (small live
// fragments carrying sequence headers), false fetches block-by-block via
// Range requests. sessionList, if non-nil, is used instead of the owning
// Scheduler's shared HTTP client (spec: "nil => use the worker's
// thread-local pool").
func NewStream(url string, wholeDownload bool, sessionList *http.Client) *Stream {
	return newStreamWithSizing(url, wholeDownload, sessionList, DefaultBlockSize, DefaultMaxCacheBlocks)
}

func newStreamWithSizing(url string, wholeDownload bool, sessionList *http.Client, blockSize int64, maxCacheBlocks int) *Stream {
	s := &Stream{
		wholeDownload:  wholeDownload,
		sessionList:    sessionList,
		blockSize:      blockSize,
		maxCacheBlocks: maxCacheBlocks,
		cache:          NewBlockCache(blockSize, maxCacheBlocks),
	}
	s.url.Store(url)
	s.length.Store(-1)
	s.waitingStatus.Store("")
	return s
}

// URL returns the current effective URL, updated to the redirect target
// after each fetch (spec section 3).
func (s *Stream) URL() string { return s.url.Load().(string) }

// setURL records u as the effective URL. An empty u (a fetch that failed
// before any response arrived) leaves the current URL unchanged.
func (s *Stream) setURL(u string) {
	if u == "" {
		return
	}
	s.url.Store(u)
}

// ReadHead returns the decoder's current read cursor in bytes.
func (s *Stream) ReadHead() int64 { return s.readHead.Load() }

// Ready reports whether len/block_count are known.
func (s *Stream) Ready() bool { return s.ready.Load() }

// Len returns the resource's byte length. Only meaningful once Ready()
// is true.
func (s *Stream) Len() int64 { return s.length.Load() }

// BlockCount returns ceil(Len()/BlockSize). Only meaningful once Ready().
func (s *Stream) BlockCount() uint32 { return s.blockCount.Load() }

// Err reports whether this Stream is in the sticky error state (spec
// section 7: "all errors are sticky ... and terminal").
func (s *Stream) Err() bool { return s.errorFlag.Load() }

// ErrKind returns the Kind recorded for the sticky error, if any. Only
// meaningful when Err() is true.
func (s *Stream) ErrKind() Kind { return Kind(s.errKind.Load()) }

// setError records kind and flips the sticky error flag. kind is stored
// first so any observer that sees errorFlag true also sees an accurate Kind
// (best-effort ordering; not relied on for correctness, only diagnostics).
func (s *Stream) setError(kind Kind) {
	s.errKind.Store(int32(kind))
	s.errorFlag.Store(true)
}

// LivestreamEOF reports whether the origin signalled end-of-live-resource
// (HTTP 204/404 on a fetch, in either fetch mode).
func (s *Stream) LivestreamEOF() bool { return s.livestreamEOF.Load() }

// LivestreamPrivate reports whether the origin signalled an unreachable
// ended live resource (HTTP 403 on a fetch, in either fetch mode).
func (s *Stream) LivestreamPrivate() bool { return s.livestreamPrivate.Load() }

// WaitingStatus returns the human-readable tag set while a Reader Adapter
// is blocked on this Stream, or "" if none is waiting.
func (s *Stream) WaitingStatus() string { return s.waitingStatus.Load().(string) }

// SeqInfo returns the live-fragment sequence headers recorded during the
// most recent whole-mode fetch, if any.
func (s *Stream) SeqInfo() (seqHead, seqID int64, ok bool) {
	return s.seqHead.Load(), s.seqID.Load(), s.hasSeq.Load()
}

// RequestQuit sets quit_request; the Scheduler reaps this Stream on its
// next tick (spec section 4.2).
func (s *Stream) RequestQuit() { s.quitRequest.Store(true) }

// QuitRequested reports whether RequestQuit has been called.
func (s *Stream) QuitRequested() bool { return s.quitRequest.Load() }

// RequestSuspend sets or clears suspend_request; while true, the Scheduler
// skips this Stream entirely (spec section 4.2).
func (s *Stream) RequestSuspend(suspend bool) { s.suspendRequest.Store(suspend) }

// Suspended reports whether this Stream is currently suspended.
func (s *Stream) Suspended() bool { return s.suspendRequest.Load() }

// SetDisableInterrupt toggles whether Reader Adapter waits on this Stream
// should ignore the owning decoder's interrupt flag (spec section 4.4 step
// 2: "if !disable_interrupt and ... interrupt").
func (s *Stream) SetDisableInterrupt(disable bool) { s.disableInterrupt.Store(disable) }

// IsAvailable reports whether [start, start+size) is fully cached. Requires
// Ready(); returns false otherwise, matching spec section 4.1.
func (s *Stream) IsAvailable(start, size int64) bool {
	if !s.Ready() {
		return false
	}
	return s.cache.IsAvailable(start, size, s.Len())
}

// Read returns the exact size bytes at start. Precondition: IsAvailable(start, size).
func (s *Stream) Read(start, size int64) []byte {
	return s.cache.Read(start, size)
}

// CoveragePercent delegates to the Block Cache (spec section 4.1).
func (s *Stream) CoveragePercent() float64 {
	if !s.Ready() {
		return 0
	}
	return s.cache.CoveragePercent(s.Len())
}

// CoverageHistogram delegates to the Block Cache (spec section 4.1).
func (s *Stream) CoverageHistogram(n int) []float64 {
	if !s.Ready() {
		return make([]float64, n)
	}
	return s.cache.CoverageHistogram(n, s.Len())
}

func (s *Stream) blockIndex(offset int64) uint32 {
	return uint32(offset / s.blockSize)
}

func (s *Stream) cursorBlock() uint32 {
	return s.blockIndex(s.readHead.Load())
}
