package streamcache

import "log"

// Logger is an injectable diagnostic hook, not a concrete logging backend.
// streamcache is a library embedded in a host decoder process (spec section
// 1 lists "log sinks" as out of scope, owned by the host), so it takes the
// same shape the teacher's DownloadManager does with its Logger/logf hook:
// a plain formatting function the host can route wherever it likes.
type Logger func(format string, args ...any)

func defaultLogger(format string, args ...any) {
	log.Printf(format, args...)
}

// NopLogger discards everything written to it. Pass it to WithLogger to
// silence a Scheduler's diagnostics entirely.
func NopLogger(string, ...any) {}
