package streamcache

import (
	"fmt"
	"io"
	"time"
)

// Reader is the Reader Adapter (spec section 4.4, component D): a
// synchronous, blocking io.ReadSeeker a decoder calls on its own thread,
// backed by a Stream that a Scheduler is filling concurrently. It owns no
// goroutine of its own — every method blocks the caller until data is
// available, an interrupt is observed, or the Stream goes terminal.
type Reader struct {
	stream  *Stream
	decoder Decoder
	limiter CPULimiter
	logger  Logger

	readWaitSleep    time.Duration
	errorSettleSleep time.Duration
}

// NewReader builds a Reader Adapter over stream, reporting interrupts
// through decoder and sharing sch's CPU-limit hook and logger (spec section
// 4.4: "a pointer to ... its owning decoder", "the scheduler's CPU-limit
// hook"). decoder may be nil if the caller never interrupts reads.
func NewReader(stream *Stream, decoder Decoder, sch *Scheduler) *Reader {
	return &Reader{
		stream:           stream,
		decoder:          decoder,
		limiter:          sch.cpuLimiter,
		logger:           sch.logger,
		readWaitSleep:    defaultReadWaitSleep,
		errorSettleSleep: defaultErrorSettleSleep,
	}
}

// Read implements io.Reader. It blocks until the Stream is ready and the
// whole range [cursor, cursor+min(len(p), Len()-cursor)) is cached, then
// copies that range and advances the cursor by the amount returned (spec
// section 4.4, "Read").
func (r *Reader) Read(p []byte) (int, error) {
	st := r.stream

	if err := r.waitUntilReady(WaitingStatusReading); err != nil {
		return 0, err
	}

	readHead := st.ReadHead()
	remaining := st.Len() - readHead
	if remaining <= 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	size := int64(len(p))
	if size > remaining {
		size = remaining
	}

	if err := r.waitUntilAvailable(readHead, size, WaitingStatusReading); err != nil {
		return 0, err
	}

	data := st.Read(readHead, size)
	n := copy(p, data)
	st.readHead.Store(readHead + int64(n))
	return n, nil
}

// Seek implements io.Seeker. It blocks until the Stream is ready (length
// must be known to validate and resolve whence), then moves the read
// cursor without waiting for the target range to be cached — the next Read
// does that waiting (spec section 4.4, "Seek").
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	st := r.stream

	if err := r.waitUntilReady(WaitingStatusSeeking); err != nil {
		return 0, err
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = st.ReadHead() + offset
	case io.SeekEnd:
		target = st.Len() + offset
	default:
		return 0, newError(KindSeekOutOfRange, st.URL(), fmt.Errorf("invalid whence %d", whence))
	}

	if target < 0 || target > st.Len() {
		return 0, newError(KindSeekOutOfRange, st.URL(), fmt.Errorf("offset %d out of [0,%d]", target, st.Len()))
	}

	st.readHead.Store(target)
	return target, nil
}

// waitUntilReady blocks until the Stream has learned its length, applying
// a CPU boost for the duration and publishing status as the waiting_status
// an external observer would see (spec section 4.4 steps 1-4). If the
// Stream is already ready, it returns immediately without running the
// interrupt/error checks at all — those only gate the wait itself.
func (r *Reader) waitUntilReady(status string) error {
	st := r.stream
	if st.Ready() {
		return nil
	}

	st.waitingStatus.Store(status)
	r.limiter.Boost(cpuBoostAmount)
	defer func() {
		r.limiter.Release(cpuBoostAmount)
		st.waitingStatus.Store("")
	}()

	for !st.Ready() {
		if r.checkAbort() {
			return io.EOF
		}
		time.Sleep(r.readWaitSleep)
	}
	return nil
}

// waitUntilAvailable blocks until [start, start+size) is fully cached,
// applying the same CPU-boost/waiting-status discipline as waitUntilReady
// (spec section 4.4 steps 4-5). A cache hit that's already available is
// served unconditionally, with no interrupt/error gate.
func (r *Reader) waitUntilAvailable(start, size int64, status string) error {
	st := r.stream
	if st.IsAvailable(start, size) {
		return nil
	}

	st.waitingStatus.Store(status)
	r.limiter.Boost(cpuBoostAmount)
	defer func() {
		r.limiter.Release(cpuBoostAmount)
		st.waitingStatus.Store("")
	}()

	for !st.IsAvailable(start, size) {
		if r.checkAbort() {
			return io.EOF
		}
		time.Sleep(r.readWaitSleep)
	}
	return nil
}

// checkAbort reports whether the current wait should end early: a sticky
// Stream error, a quit request on the Stream, or a decoder-requested
// interrupt (spec section 4.4 step 2,
// section 7's "sticky errors"). Either case ends the wait with io.EOF at
// the Reader boundary (spec section 4.4 steps 2 and 6, section 7's policy
// "Reader Adapters convert stuck/error states into EOF at their boundary;
// higher layers observe error flags directly"); Stream.Err/ErrKind/
// LivestreamEOF/LivestreamPrivate remain available for that diagnosis.
func (r *Reader) checkAbort() bool {
	st := r.stream

	if st.Err() || st.QuitRequested() {
		time.Sleep(r.errorSettleSleep)
		return true
	}

	if !st.disableInterrupt.Load() && r.decoder != nil && r.decoder.Interrupted() {
		r.decoder.SetNeedReinit()
		return true
	}

	return false
}
