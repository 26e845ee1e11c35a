package streamcache

import "fmt"

// Kind classifies the sticky, terminal error conditions a Stream can land
// in. Once a Stream carries an error it is excluded from further scheduling
// (see Scheduler.tick); Kind lets callers distinguish why without needing to
// inspect every flag on the Stream by hand. The live-resource outcomes
// (204/404, 403) are the exception: they are reported through
// Stream.LivestreamEOF and Stream.LivestreamPrivate.
type Kind int

const (
	// KindTransportFailure means a fetch failed: the HTTP Fetcher itself
	// reported failure (e.g. connection refused, timeout, TLS error), the
	// response status was not 2xx, or a whole-mode response had an empty
	// body. The Scheduler records this Kind for 204/404/403 responses too.
	KindTransportFailure Kind = iota
	// KindHeaderMalformed means a required response header was missing or
	// not parseable as a decimal integer (Content-Range's total, or the
	// whole-mode x-head-seqnum/x-sequence-num headers).
	KindHeaderMalformed
	// KindSizeDiscrepancy means a ranged response body's length didn't
	// match the requested window once the Stream was already ready.
	KindSizeDiscrepancy
	// KindReadPastEnd means the Scheduler was asked to fetch for a Stream
	// that had no next needed block (selection bug, not a runtime
	// condition reachable through normal scheduling).
	KindReadPastEnd
	// KindLiveEnded names the 204/404 outcome: the live resource has no
	// more data to offer. The Scheduler does not store this Kind on a
	// Stream; such a fetch is recorded as KindTransportFailure with
	// Stream.LivestreamEOF set.
	KindLiveEnded
	// KindLivePrivate names the 403 outcome: the resource ended and its
	// archive is unreachable. The Scheduler does not store this Kind on a
	// Stream; such a fetch is recorded as KindTransportFailure with
	// Stream.LivestreamPrivate set.
	KindLivePrivate
	// KindInterrupted means a Reader wait was cancelled by the owning
	// decoder's interrupt flag. Not stored on Stream.error; the Reader
	// boundary converts this straight to io.EOF and calls the decoder's
	// SetNeedReinit, so this Kind only exists for completeness of the
	// taxonomy, never as a returned *Error.
	KindInterrupted
	// KindSeekOutOfRange means a Seek target exceeded the Stream's length.
	KindSeekOutOfRange
)

func (k Kind) String() string {
	switch k {
	case KindTransportFailure:
		return "transport_failure"
	case KindHeaderMalformed:
		return "header_malformed"
	case KindSizeDiscrepancy:
		return "size_discrepancy"
	case KindReadPastEnd:
		return "read_past_end"
	case KindLiveEnded:
		return "live_ended"
	case KindLivePrivate:
		return "live_private"
	case KindInterrupted:
		return "interrupted"
	case KindSeekOutOfRange:
		return "seek_out_of_range"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with the URL snapshot and underlying cause, if any. It
// is returned by Reader.Seek for an invalid whence or an out-of-range
// target (KindSeekOutOfRange). Reader waits never return *Error (they
// convert stuck/error Streams into io.EOF at their boundary per spec), and
// Streams do not hold an *Error: their sticky state is read through
// Stream.Err and Stream.ErrKind.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("streamcache: %s: %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("streamcache: %s: %s", e.Kind, e.URL)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, url string, cause error) *Error {
	return &Error{Kind: kind, URL: url, Err: cause}
}
