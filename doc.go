// Package streamcache provides a bounded, cursor-aware block cache and a
// single-worker prefetch scheduler for reading a remote HTTP resource as if
// it were a local, seekable file.
//
// A Stream is a handle to one remote resource, created by a Scheduler and
// filled by it one HTTP fetch at a time: either block-by-block via Range
// requests (ranged mode, for large on-demand resources) or in one shot
// (whole mode, for small live fragments that carry sequence headers). A
// Reader wraps a Stream as an io.ReadSeeker a decoder can call synchronously
// from its own thread, blocking until the Scheduler's worker has filled the
// requested range, while propagating interrupts through a host-supplied
// Decoder and CPU-quota hints through a host-supplied CPULimiter.
//
// The three pieces compose as:
//
//	sch := streamcache.NewScheduler(streamcache.WithHTTPClient(client))
//	go sch.Run(ctx)
//	st := sch.AddStream(url, false, nil)
//	r := streamcache.NewReader(st, decoder, sch)
//	io.ReadFull(r, buf)
package streamcache
