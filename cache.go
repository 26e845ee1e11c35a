package streamcache

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// BlockCache is a sparse, bounded map from block index to fetched bytes
// (spec section 4.1, component A). The resident-block index is kept in a
// roaring.Bitmap (the teacher's own dependency, used in file.go to track
// which blocks of a File are on disk) rather than a hand-rolled balanced
// tree: Minimum/Maximum/Contains/GetCardinality give the ordered-index
// operations the eviction policy and forward-scan need, in the same spirit
// as spec section 9's "sparse cache container" note. Raw bytes live in a
// plain map keyed by the same block index; the bitmap is the order, the map
// is storage.
//
// All exported methods are safe for concurrent use; BlockCache serializes
// itself with an internal mutex (spec section 5, "per-Stream cache lock").
type BlockCache struct {
	mu sync.Mutex

	blockSize      int64
	maxCacheBlocks int

	index  *roaring.Bitmap
	blocks map[uint32][]byte
}

// NewBlockCache constructs a BlockCache for the given block size and
// residency cap.
func NewBlockCache(blockSize int64, maxCacheBlocks int) *BlockCache {
	return &BlockCache{
		blockSize:      blockSize,
		maxCacheBlocks: maxCacheBlocks,
		index:          roaring.New(),
		blocks:         make(map[uint32][]byte),
	}
}

// IsAvailable returns true iff every block intersecting [start, start+size)
// is resident. length is the Stream's known byte length; callers must not
// call this before the Stream is ready (spec: "Requires ready").
func (c *BlockCache) IsAvailable(start, size, length int64) bool {
	if size <= 0 {
		return true
	}
	if start+size > length {
		return false
	}

	startBlock := uint32(start / c.blockSize)
	endBlock := uint32((start + size - 1) / c.blockSize)

	c.mu.Lock()
	defer c.mu.Unlock()

	for b := startBlock; b <= endBlock; b++ {
		if !c.index.Contains(b) {
			return false
		}
	}
	return true
}

// Read returns the exact size bytes starting at start. The caller must have
// already confirmed IsAvailable(start, size, length); behavior is undefined
// (panics) otherwise, matching spec's "undefined if precondition fails."
func (c *BlockCache) Read(start, size int64) []byte {
	out := make([]byte, size)

	startBlock := uint32(start / c.blockSize)
	endBlock := uint32((start + size - 1) / c.blockSize)

	c.mu.Lock()
	defer c.mu.Unlock()

	written := int64(0)
	for b := startBlock; b <= endBlock; b++ {
		data, ok := c.blocks[b]
		if !ok {
			panic("streamcache: Read called on unavailable range")
		}

		blockStart := int64(b) * c.blockSize
		lo := int64(0)
		if start > blockStart {
			lo = start - blockStart
		}
		hi := int64(len(data))
		if end := start + size; blockStart+hi > end {
			hi = end - blockStart
		}

		n := copy(out[written:], data[lo:hi])
		written += int64(n)
	}

	return out
}

// Insert stores a block, evicting exactly one resident block per spec
// section 4.1's policy if residency would exceed maxCacheBlocks.
// cursorBlock is the decoder's current read position expressed in block
// units (read_head / BLOCK_SIZE), used only to pick the eviction victim.
func (c *BlockCache) Insert(blockIndex uint32, data []byte, cursorBlock uint32) (evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// copy so the caller's buffer (often an HTTP response body slice) can't
	// mutate cached data after insertion.
	cp := make([]byte, len(data))
	copy(cp, data)

	c.blocks[blockIndex] = cp
	c.index.Add(blockIndex)

	if int(c.index.GetCardinality()) <= c.maxCacheBlocks {
		return false
	}

	lowest := c.index.Minimum()
	var victim uint32
	if lowest < cursorBlock {
		victim = lowest
	} else {
		victim = c.index.Maximum()
	}

	c.index.Remove(victim)
	delete(c.blocks, victim)
	return true
}

// CoveragePercent returns resident_blocks * blockSize * 100 / length,
// capped at 100 (a short final block would otherwise push it past 100).
func (c *BlockCache) CoveragePercent(length int64) float64 {
	if length <= 0 {
		return 0
	}

	c.mu.Lock()
	resident := float64(c.index.GetCardinality())
	c.mu.Unlock()

	pct := resident * float64(c.blockSize) * 100 / float64(length)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// CoverageHistogram returns, for each of n equal-width byte-range bins
// covering [0, length), the percentage of that bin covered by resident
// blocks. Used to drive a UI buffering progress bar (spec 4.1).
func (c *BlockCache) CoverageHistogram(n int, length int64) []float64 {
	out := make([]float64, n)
	if length <= 0 || n <= 0 {
		return out
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < n; i++ {
		binLo := length * int64(i) / int64(n)
		binHi := length * int64(i+1) / int64(n)
		if binHi > length {
			binHi = length
		}
		if binHi <= binLo {
			continue
		}

		firstBlock := uint32(binLo / c.blockSize)
		lastBlock := uint32((binHi - 1) / c.blockSize)

		var covered int64
		for b := firstBlock; b <= lastBlock; b++ {
			if !c.index.Contains(b) {
				continue
			}
			blockLo := int64(b) * c.blockSize
			blockHi := blockLo + c.blockSize
			lo := max64(blockLo, binLo)
			hi := min64(blockHi, binHi)
			if hi > lo {
				covered += hi - lo
			}
		}

		out[i] = float64(covered) * 100 / float64(binHi-binLo)
	}

	return out
}

// residentCount returns the number of resident blocks, for tests and
// metrics.
func (c *BlockCache) residentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.index.GetCardinality())
}

// contains reports whether blockIndex is resident, without requiring a
// length/ready check — used internally by the Scheduler's "next needed
// block" scan (spec 4.3), which must work before a Stream is ready.
func (c *BlockCache) contains(blockIndex uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Contains(blockIndex)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
