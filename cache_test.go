package streamcache

import "testing"

func TestBlockCache_IsAvailableRequiresFullCoverage(t *testing.T) {
	c := NewBlockCache(4, 8)
	c.Insert(0, []byte{1, 2, 3, 4}, 0)

	if !c.IsAvailable(0, 4, 100) {
		t.Error("IsAvailable(0,4) = false, want true after inserting block 0")
	}
	if c.IsAvailable(0, 8, 100) {
		t.Error("IsAvailable(0,8) = true, want false: block 1 not resident")
	}
	if c.IsAvailable(0, 4, 2) {
		t.Error("IsAvailable with size past length should be false")
	}
}

func TestBlockCache_ReadReturnsInsertedBytes(t *testing.T) {
	c := NewBlockCache(4, 8)
	c.Insert(0, []byte{1, 2, 3, 4}, 0)
	c.Insert(1, []byte{5, 6, 7, 8}, 0)

	got := c.Read(2, 4)
	want := []byte{3, 4, 5, 6}
	if string(got) != string(want) {
		t.Errorf("Read(2,4) = %v, want %v", got, want)
	}
}

func TestBlockCache_InsertCopiesData(t *testing.T) {
	c := NewBlockCache(4, 8)
	buf := []byte{1, 2, 3, 4}
	c.Insert(0, buf, 0)
	buf[0] = 99

	got := c.Read(0, 4)
	if got[0] != 1 {
		t.Errorf("cached block aliased caller buffer: got[0] = %d, want 1", got[0])
	}
}

// TestBlockCache_EvictsLowestWhenBehindCursor covers the eviction rule:
// when cache is full, evict the lowest-indexed resident block if it is
// behind the cursor, otherwise evict the highest-indexed resident block.
func TestBlockCache_EvictsLowestWhenBehindCursor(t *testing.T) {
	c := NewBlockCache(4, 2)
	c.Insert(5, []byte{0, 0, 0, 0}, 10) // resident: {5}
	c.Insert(10, []byte{0, 0, 0, 0}, 10) // resident: {5, 10}, at cap

	evicted := c.Insert(11, []byte{0, 0, 0, 0}, 10) // cursor is block 10
	if !evicted {
		t.Fatal("Insert() evicted = false, want true once cache is at capacity")
	}

	// block 5 is behind cursor block 10 -> it must be the one evicted.
	if c.contains(5) {
		t.Error("block 5 (lowest, behind cursor) should have been evicted")
	}
	if !c.contains(10) || !c.contains(11) {
		t.Error("blocks 10 and 11 should remain resident")
	}
}

func TestBlockCache_EvictsHighestWhenLowestAheadOfCursor(t *testing.T) {
	c := NewBlockCache(4, 2)
	c.Insert(10, []byte{0, 0, 0, 0}, 0) // resident: {10}
	c.Insert(20, []byte{0, 0, 0, 0}, 0) // resident: {10, 20}, at cap

	// cursor is block 0: after the insert the lowest resident block (5) is
	// NOT behind the cursor, so the highest (20) must be evicted instead.
	evicted := c.Insert(5, []byte{0, 0, 0, 0}, 0)
	if !evicted {
		t.Fatal("Insert() evicted = false, want true once cache is at capacity")
	}

	if c.contains(20) {
		t.Error("block 20 (highest, ahead of cursor, lowest not behind cursor) should have been evicted")
	}
	if !c.contains(5) || !c.contains(10) {
		t.Error("blocks 5 and 10 should remain resident")
	}
}

func TestBlockCache_InsertUnderCapacityNeverEvicts(t *testing.T) {
	c := NewBlockCache(4, 8)
	for i := uint32(0); i < 4; i++ {
		if evicted := c.Insert(i, []byte{0, 0, 0, 0}, 0); evicted {
			t.Fatalf("Insert(%d) evicted = true, want false under capacity", i)
		}
	}
	if c.residentCount() != 4 {
		t.Fatalf("residentCount() = %d, want 4", c.residentCount())
	}
}

func TestBlockCache_CoveragePercent(t *testing.T) {
	c := NewBlockCache(10, 8)
	c.Insert(0, make([]byte, 10), 0)
	c.Insert(1, make([]byte, 10), 0)

	got := c.CoveragePercent(100)
	if got != 20 {
		t.Errorf("CoveragePercent() = %v, want 20", got)
	}
}

func TestBlockCache_CoverageHistogram(t *testing.T) {
	c := NewBlockCache(10, 8)
	c.Insert(0, make([]byte, 10), 0) // bytes [0,10) resident

	hist := c.CoverageHistogram(4, 40) // bins: [0,10) [10,20) [20,30) [30,40)
	want := []float64{100, 0, 0, 0}
	for i, v := range want {
		if hist[i] != v {
			t.Errorf("hist[%d] = %v, want %v (full histogram %v)", i, hist[i], v, hist)
		}
	}
}
