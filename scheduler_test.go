package streamcache

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newRangedServer serves body in response to Range requests, matching the
// origin shape the ranged-mode Fetcher expects (Content-Range + 206).
func newRangedServer(body []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var start, end int64
		if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if end >= int64(len(body)) {
			end = int64(len(body)) - 1
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(body)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[start : end+1])
	}))
}

func newWholeServer(body []byte, seqHead, seqID int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-head-seqnum", strconv.FormatInt(seqHead, 10))
		w.Header().Set("x-sequence-num", strconv.FormatInt(seqID, 10))
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
}

func TestScheduler_RangedFetchFillsFirstBlockAndLearnsLength(t *testing.T) {
	body := make([]byte, 100)
	for i := range body {
		body[i] = byte(i)
	}
	srv := newRangedServer(body)
	defer srv.Close()

	sch := NewScheduler(WithBlockSize(16), WithMaxCacheBlocks(8))
	st := sch.AddStream(srv.URL, false, nil)

	require.True(t, sch.tick(context.Background()))
	require.True(t, st.Ready())
	require.Equal(t, int64(100), st.Len())
	require.True(t, st.IsAvailable(0, 16))
	require.Equal(t, body[0:16], st.Read(0, 16))
}

func TestScheduler_WholeFetchParsesSequenceHeaders(t *testing.T) {
	body := []byte("live-fragment-payload")
	srv := newWholeServer(body, 42, 40)
	defer srv.Close()

	sch := NewScheduler(WithBlockSize(8))
	st := sch.AddStream(srv.URL, true, nil)

	require.True(t, sch.tick(context.Background()))
	require.True(t, st.Ready())
	require.Equal(t, int64(len(body)), st.Len())

	seqHead, seqID, ok := st.SeqInfo()
	require.True(t, ok)
	require.Equal(t, int64(42), seqHead)
	require.Equal(t, int64(40), seqID)

	require.True(t, st.IsAvailable(0, int64(len(body))))
	require.Equal(t, body, st.Read(0, int64(len(body))))
}

func TestScheduler_WholeFetchMissingSequenceHeadersIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("no sequence headers here"))
	}))
	defer srv.Close()

	sch := NewScheduler()
	st := sch.AddStream(srv.URL, true, nil)

	sch.tick(context.Background())

	require.True(t, st.Err())
	require.Equal(t, KindHeaderMalformed, st.ErrKind())
}

func TestScheduler_StatusCodeMapping(t *testing.T) {
	cases := []struct {
		name         string
		status       int
		wantEOF      bool
		wantPrivate  bool
	}{
		{"404 maps to livestream eof", http.StatusNotFound, true, false},
		{"204 maps to livestream eof", http.StatusNoContent, true, false},
		{"403 maps to livestream private", http.StatusForbidden, false, true},
		{"500 sets plain error only", http.StatusInternalServerError, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			sch := NewScheduler()
			st := sch.AddStream(srv.URL, true, nil)
			sch.tick(context.Background())

			require.True(t, st.Err())
			require.Equal(t, tc.wantEOF, st.LivestreamEOF())
			require.Equal(t, tc.wantPrivate, st.LivestreamPrivate())
		})
	}
}

func TestScheduler_SelectionPrefersNotYetReadyStream(t *testing.T) {
	body := make([]byte, 32)

	readySrv := newRangedServer(body)
	defer readySrv.Close()
	sch := NewScheduler(WithBlockSize(16), WithMaxCacheBlocks(8))
	stA := sch.AddStream(readySrv.URL, false, nil)
	require.True(t, sch.tick(context.Background()))
	require.True(t, stA.Ready())

	notReadySrv := newRangedServer(body)
	defer notReadySrv.Close()
	stB := sch.AddStream(notReadySrv.URL, false, nil)

	require.True(t, sch.tick(context.Background()))
	require.True(t, stB.Ready(), "not-yet-ready stream must be selected ahead of any ready stream")
}

func TestScheduler_SkipsErroredAndSuspendedStreams(t *testing.T) {
	sch := NewScheduler()

	errored := sch.NewStream("http://example.invalid/errored", true, nil)
	errored.setError(KindTransportFailure)
	sch.Add(errored)

	suspended := sch.NewStream("http://example.invalid/suspended", true, nil)
	suspended.RequestSuspend(true)
	sch.Add(suspended)

	require.False(t, sch.tick(context.Background()), "tick should find no eligible stream to fetch")
}

func TestScheduler_ReapsQuitRequestedStream(t *testing.T) {
	sch := NewScheduler()
	st := sch.AddStream("http://example.invalid/never-fetched", false, nil)
	st.RequestQuit()

	sch.tick(context.Background())

	for _, s := range sch.Streams() {
		require.Nil(t, s)
	}
}

type fakeMetrics struct {
	fetches   int
	evictions int
}

func (f *fakeMetrics) ObserveFetch(bool, time.Duration, int64, error) { f.fetches++ }
func (f *fakeMetrics) ObserveEviction()                               { f.evictions++ }
func (f *fakeMetrics) SetActiveStreams(int)                           {}
func (f *fakeMetrics) SetCoverage(string, float64)                    {}

func TestScheduler_ObservesEvictionUnderCapacityPressure(t *testing.T) {
	body := make([]byte, 64)
	srv := newRangedServer(body)
	defer srv.Close()

	fm := &fakeMetrics{}
	sch := NewScheduler(WithBlockSize(16), WithMaxCacheBlocks(1), WithMetrics(fm))
	st := sch.AddStream(srv.URL, false, nil)

	for i := 0; i < 3; i++ {
		sch.tick(context.Background())
	}

	require.True(t, st.Ready())
	require.GreaterOrEqual(t, fm.fetches, 2)
	require.GreaterOrEqual(t, fm.evictions, 1)
}

func TestScheduler_RunStopsOnContextCancel(t *testing.T) {
	sch := NewScheduler(WithIdleSleep(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sch.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
