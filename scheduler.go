package streamcache

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Scheduler owns a dynamic set of Streams and runs one worker that, each
// tick, picks the neediest Stream and issues one HTTP fetch (spec section
// 4.3, component C). It is the Go realization of the teacher's
// DownloadManager/downloader_thread, generalized from "download whole files
// to disk" to "prefetch blocks of a streaming resource into memory ahead of
// a decoder's read cursor."
type Scheduler struct {
	mu      sync.Mutex // streams lock (spec section 5)
	streams []*Stream  // nil-able slots; freed positions are reused

	fetcher    Fetcher
	logger     Logger
	metrics    Metrics
	cpuLimiter CPULimiter

	idleSleep            time.Duration
	maxForwardReadBlocks int
	maxCacheBlocks       int
	blockSize            int64

	cancel context.CancelFunc
}

// NewScheduler constructs a Scheduler with the given options applied over
// spec-mandated defaults (section 6's tunables).
func NewScheduler(opts ...Option) *Scheduler {
	sch := &Scheduler{
		fetcher:              newHTTPFetcher(),
		logger:               defaultLogger,
		metrics:              noopMetrics{},
		cpuLimiter:           noopCPULimiter{},
		idleSleep:            defaultTickIdleSleep,
		maxForwardReadBlocks: DefaultMaxForwardReadBlocks,
		maxCacheBlocks:       DefaultMaxCacheBlocks,
		blockSize:            DefaultBlockSize,
	}
	for _, opt := range opts {
		opt(sch)
	}
	return sch
}

// NewStream builds a Stream sized according to this Scheduler's configured
// BlockSize/MaxCacheBlocks, but does not add it yet — call Add.
func (sch *Scheduler) NewStream(url string, wholeDownload bool, sessionList *http.Client) *Stream {
	return newStreamWithSizing(url, wholeDownload, sessionList, sch.blockSize, sch.maxCacheBlocks)
}

// Add hands a Stream to the Scheduler (spec section 3: "created externally
// and handed to the Scheduler; logically owned by the Scheduler from that
// point"). It is placed in the first nil slot, reusing positions freed by
// earlier reaps (spec section 3, "Scheduler" data model), or appended if
// none are free.
func (sch *Scheduler) Add(s *Stream) {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	for i, slot := range sch.streams {
		if slot == nil {
			sch.streams[i] = s
			sch.metrics.SetActiveStreams(sch.activeCountLocked())
			return
		}
	}
	sch.streams = append(sch.streams, s)
	sch.metrics.SetActiveStreams(sch.activeCountLocked())
}

// AddStream is a convenience that builds and adds a Stream in one call,
// returning the handle so the caller can drive its Reader Adapter and
// later call RequestQuit.
func (sch *Scheduler) AddStream(url string, wholeDownload bool, sessionList *http.Client) *Stream {
	s := sch.NewStream(url, wholeDownload, sessionList)
	sch.Add(s)
	return s
}

// Streams returns a snapshot of the current slots (nil entries included),
// for observers (spec section 5: "Additional observer threads may read
// non-mutating progress telemetry").
func (sch *Scheduler) Streams() []*Stream {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	out := make([]*Stream, len(sch.streams))
	copy(out, sch.streams)
	return out
}

func (sch *Scheduler) activeCountLocked() int {
	n := 0
	for _, s := range sch.streams {
		if s != nil {
			n++
		}
	}
	return n
}

// StreamProgress is one Stream's playback/buffering position, for a UI
// progress bar (SPEC_FULL.md's supplemented "buffering progress bar"
// feature, carried over from original_source's per-kind progress bars).
type StreamProgress struct {
	URL       string
	Fraction  float64 // read_head / len, 0 if len is 0
	Histogram []float64
}

// Progress snapshots buffering progress across all ready streams.
func (sch *Scheduler) Progress(histogramBins int) []StreamProgress {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	out := make([]StreamProgress, 0, len(sch.streams))
	for _, s := range sch.streams {
		if s == nil || !s.Ready() {
			continue
		}
		length := s.Len()
		var frac float64
		if length > 0 {
			frac = float64(s.ReadHead()) / float64(length)
		}
		out = append(out, StreamProgress{
			URL:       s.URL(),
			Fraction:  frac,
			Histogram: s.CoverageHistogram(histogramBins),
		})
	}
	return out
}

// Run drives the worker loop until ctx is cancelled or Stop is called
// (spec section 4.3: reap, select, fetch, sleep-if-idle; section 4.3
// "Shutdown": thread_exit_requested maps to ctx cancellation here).
func (sch *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	sch.mu.Lock()
	sch.cancel = cancel
	sch.mu.Unlock()
	defer cancel()

	for {
		if ctx.Err() != nil {
			sch.shutdown()
			return
		}

		if sch.tick(ctx) {
			continue
		}

		select {
		case <-ctx.Done():
			sch.shutdown()
			return
		case <-time.After(sch.idleSleep):
		}
	}
}

// Stop requests the worker loop to exit on its next check, without the
// caller needing to own the context passed to Run.
func (sch *Scheduler) Stop() {
	sch.mu.Lock()
	cancel := sch.cancel
	sch.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (sch *Scheduler) shutdown() {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	for _, s := range sch.streams {
		if s != nil {
			s.RequestQuit()
		}
	}
}

// tick performs one scheduling round: reap streams flagged for quit, pick
// at most one stream to advance, and (if one was picked) issue exactly one
// HTTP fetch for it. Returns true if a fetch was issued.
func (sch *Scheduler) tick(ctx context.Context) bool {
	sch.mu.Lock()

	var selected *Stream
	var selectedNext uint32
	var selectedIsInit bool
	marginMin := float64(-1)
	haveCandidate := false

	for i := range sch.streams {
		st := sch.streams[i]
		if st == nil {
			continue
		}
		if st.QuitRequested() {
			sch.streams[i] = nil
			continue
		}
		if st.Err() || st.Suspended() {
			continue
		}

		if !st.Ready() {
			selected = st
			selectedIsInit = true
			break // initialization-urgent wins immediately, first slot order
		}

		if st.wholeDownload {
			continue // already fully cached in one shot
		}

		cursorBlock := st.cursorBlock()
		blockCount := st.BlockCount()
		window := cursorBlock + uint32(sch.maxForwardReadBlocks)

		var next uint32
		found := false
		for b := cursorBlock; b < blockCount && b < window; b++ {
			if !st.cache.contains(b) {
				next = b
				found = true
				break
			}
		}
		if !found {
			continue
		}

		var margin float64
		if next == cursorBlock {
			margin = 0
		} else {
			margin = float64(int64(next)*st.blockSize-st.ReadHead()) * 100 / float64(st.Len())
		}

		if !haveCandidate || margin < marginMin {
			marginMin = margin
			selected = st
			selectedNext = next
			haveCandidate = true
		}
	}

	sch.metrics.SetActiveStreams(sch.activeCountLocked())
	sch.mu.Unlock()

	if selected == nil {
		return false
	}

	if selected.wholeDownload {
		sch.doWholeFetch(ctx, selected)
	} else {
		sch.doRangedFetch(ctx, selected, selectedIsInit, selectedNext)
	}
	return true
}

// doRangedFetch issues the single Range-based GET for the block a prior
// tick's selection identified as next-needed (or, for a not-yet-ready
// stream, the block covering its current read cursor) — spec section 4.3,
// "Fetch — ranged mode."
func (sch *Scheduler) doRangedFetch(ctx context.Context, st *Stream, isInit bool, next uint32) {
	blockReading := next
	if isInit {
		blockReading = st.cursorBlock()
	} else if blockReading >= st.BlockCount() {
		// Selection guarantees a valid next-needed block; this would mean
		// tick() and doRangedFetch disagreed about the window.
		st.setError(KindReadPastEnd)
		sch.logger("streamcache: %s: selected block %d past block count %d", st.URL(), blockReading, st.BlockCount())
		return
	}

	start := int64(blockReading) * st.blockSize
	var end int64
	if st.Ready() {
		end = min64(int64(blockReading+1)*st.blockSize, st.Len())
	} else {
		end = int64(blockReading+1) * st.blockSize
	}
	expected := end - start

	headers := map[string]string{
		"Range": fmt.Sprintf("bytes=%d-%d", start, end-1),
	}

	began := time.Now()
	result := sch.fetcher.Fetch(ctx, st.sessionList, st.URL(), headers)
	sch.metrics.ObserveFetch(false, time.Since(began), int64(len(result.Data)), fetchErr(result))
	st.setURL(result.RedirectedURL)

	if result.Fail || !statusIsSuccess(result.StatusCode) {
		st.setError(KindTransportFailure)
		sch.mapFailureStatus(st, result.StatusCode)
		sch.logger("streamcache: ranged fetch failed for %s: %v (status %d)", st.URL(), result.Err, result.StatusCode)
		return
	}

	if !st.Ready() {
		total, ok := parseContentRangeTotal(result.GetHeader("Content-Range"))
		if !ok {
			st.setError(KindHeaderMalformed)
			sch.logger("streamcache: unparseable Content-Range for %s: %q", st.URL(), result.GetHeader("Content-Range"))
			return
		}
		// Accept a short first block: len comes from Content-Range
		// regardless of how much of the requested window actually arrived
		// (spec section 9's resolved open question).
		st.length.Store(total)
		st.blockCount.Store(uint32(ceilDiv(total, st.blockSize)))
		st.ready.Store(true)
	} else if int64(len(result.Data)) != expected {
		st.setError(KindSizeDiscrepancy)
		sch.logger("streamcache: size discrepancy for %s: expected %d got %d", st.URL(), expected, len(result.Data))
		return
	}

	evicted := st.cache.Insert(blockReading, result.Data, st.cursorBlock())
	if evicted {
		sch.metrics.ObserveEviction()
	}
	sch.metrics.SetCoverage(st.URL(), st.CoveragePercent())
}

// doWholeFetch issues the single plain GET used for whole-mode streams
// (small live fragments carrying sequence headers) — spec section 4.3,
// "Fetch — whole mode."
func (sch *Scheduler) doWholeFetch(ctx context.Context, st *Stream) {
	began := time.Now()
	result := sch.fetcher.Fetch(ctx, st.sessionList, st.URL(), nil)
	sch.metrics.ObserveFetch(true, time.Since(began), int64(len(result.Data)), fetchErr(result))
	st.setURL(result.RedirectedURL)

	if result.Fail || !statusIsSuccess(result.StatusCode) || len(result.Data) == 0 {
		st.setError(KindTransportFailure)
		sch.mapFailureStatus(st, result.StatusCode)
		sch.logger("streamcache: whole fetch failed for %s: %v (status %d)", st.URL(), result.Err, result.StatusCode)
		return
	}

	seqHead, ok1 := parseHeaderInt(result.GetHeader("x-head-seqnum"))
	seqID, ok2 := parseHeaderInt(result.GetHeader("x-sequence-num"))
	if !ok1 || !ok2 {
		st.setError(KindHeaderMalformed)
		sch.logger("streamcache: missing/malformed sequence headers for %s", st.URL())
		return
	}
	st.seqHead.Store(seqHead)
	st.seqID.Store(seqID)
	st.hasSeq.Store(true)

	total := int64(len(result.Data))
	st.length.Store(total)
	st.blockCount.Store(uint32(ceilDiv(total, st.blockSize)))

	for off := int64(0); off < total; off += st.blockSize {
		end := off + st.blockSize
		if end > total {
			end = total
		}
		idx := uint32(off / st.blockSize)
		st.cache.Insert(idx, result.Data[off:end], 0)
	}
	st.ready.Store(true)
	sch.metrics.SetCoverage(st.URL(), st.CoveragePercent())
}

// mapFailureStatus applies spec section 4.3's "Fetch failure mapping":
// 204/404 additionally sets livestream_eof, 403 additionally sets
// livestream_private. It is called from both the ranged and the whole
// fetch path.
func (sch *Scheduler) mapFailureStatus(st *Stream, statusCode int) {
	switch statusCode {
	case http.StatusNoContent, http.StatusNotFound:
		st.livestreamEOF.Store(true)
	case http.StatusForbidden:
		st.livestreamPrivate.Store(true)
	}
}

func fetchErr(r *FetchResult) error {
	if r.Fail {
		return r.Err
	}
	if !statusIsSuccess(r.StatusCode) {
		return fmt.Errorf("unexpected status %d", r.StatusCode)
	}
	return nil
}

func ceilDiv(total, unit int64) int64 {
	if total <= 0 {
		return 0
	}
	return (total + unit - 1) / unit
}

// parseContentRangeTotal parses the <total> suffix of a "Content-Range:
// bytes <start>-<end>/<total>" header value (spec section 6: "the core
// parses <total> (decimal, to end-of-string)").
func parseContentRangeTotal(headerVal string) (int64, bool) {
	idx := strings.LastIndexByte(headerVal, '/')
	if idx < 0 || idx+1 >= len(headerVal) {
		return 0, false
	}
	total, err := strconv.ParseInt(headerVal[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// parseHeaderInt parses a header value as a decimal integer; absence, an
// empty value, or trailing non-digits are all failures (spec section 6).
func parseHeaderInt(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
