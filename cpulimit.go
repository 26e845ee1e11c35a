package streamcache

// CPULimiter is the process-level CPU-quota hook spec section 1 lists as an
// external collaborator ("Process-level resource throttling (CPU quota
// adjustment)"). Reader Adapters call Boost while starved on a cache miss
// and Release on every exit path from that wait (spec section 4.4 step 4,
// section 5 "Resource policy": "any +25 boost taken during a read wait must
// be released on every exit path"). The core never adjusts OS scheduling
// itself; it only ever calls through this interface.
type CPULimiter interface {
	Boost(amount int)
	Release(amount int)
}

// noopCPULimiter is the default CPULimiter: a host that doesn't care about
// CPU quota simply never hears about it.
type noopCPULimiter struct{}

func (noopCPULimiter) Boost(int)   {}
func (noopCPULimiter) Release(int) {}
