package pipeline

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/traceview/pkg/domain"
)

// streamEntries builds entries for streamID with the given timestamps,
// tagging PID with the input position so stability is observable.
func streamEntries(streamID int, ts ...int64) []domain.Entry {
	entries := make([]domain.Entry, len(ts))
	for i, t := range ts {
		entries[i] = domain.Entry{
			StreamID: int16(streamID),
			TS:       t,
			PID:      int32(i),
			Visible:  domain.VisibleAll,
		}
	}
	return entries
}

func assertSorted(t *testing.T, entries []domain.Entry) {
	t.Helper()
	for i := 1; i < len(entries); i++ {
		require.LessOrEqual(t, entries[i-1].TS, entries[i].TS,
			"timestamps must be non-decreasing at %d", i)
	}
}

func TestMerge(t *testing.T) {
	a := streamEntries(0, 10, 30, 50)
	b := streamEntries(1, 20, 30, 60)

	out := Merge(a, b)
	require.Len(t, out, 6)
	assertSorted(t, out)

	// Stability: at the t=30 tie the entry from a comes first.
	assert.Equal(t, int16(0), out[2].StreamID)
	assert.Equal(t, int16(1), out[3].StreamID)
}

func TestMergeEmptyInputs(t *testing.T) {
	a := streamEntries(0, 10, 20)

	out := Merge(a, nil)
	assert.Len(t, out, 2)

	out = Merge(nil, a)
	assert.Len(t, out, 2)

	out = Merge(nil, nil)
	assert.Empty(t, out)
}

// TestMergeIsPermutation merges random sorted arrays and checks the
// result is a sorted permutation of the union.
func TestMergeIsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		na, nb := rng.Intn(200), rng.Intn(200)
		tsa := make([]int64, na)
		tsb := make([]int64, nb)
		for i := range tsa {
			tsa[i] = int64(rng.Intn(100))
		}
		for i := range tsb {
			tsb[i] = int64(rng.Intn(100))
		}
		sort.Slice(tsa, func(i, j int) bool { return tsa[i] < tsa[j] })
		sort.Slice(tsb, func(i, j int) bool { return tsb[i] < tsb[j] })

		out := Merge(streamEntries(0, tsa...), streamEntries(1, tsb...))
		require.Len(t, out, na+nb)
		assertSorted(t, out)

		var union, merged []int64
		union = append(union, tsa...)
		union = append(union, tsb...)
		for _, e := range out {
			merged = append(merged, e.TS)
		}
		sort.Slice(union, func(i, j int) bool { return union[i] < union[j] })
		assert.Equal(t, union, merged)
	}
}

func TestAppendDominanceBoundary(t *testing.T) {
	// a covers t=[0..90], b starts at t=55: everything in a before 55
	// is copied verbatim, the rest interleaves.
	a := streamEntries(0, 0, 10, 20, 30, 40, 50, 60, 70, 80, 90)
	b := streamEntries(1, 55, 65, 75)

	out := Append(a, b)
	require.Len(t, out, 13)
	assertSorted(t, out)

	for i := 0; i < 6; i++ {
		assert.Equal(t, a[i].TS, out[i].TS, "dominated prefix is verbatim")
		assert.Equal(t, int16(0), out[i].StreamID)
	}
	assert.Equal(t, int64(55), out[6].TS)
}

func TestAppendEmptySides(t *testing.T) {
	a := streamEntries(0, 10, 20)

	out := Append(a, nil)
	assert.Len(t, out, 2)
	assertSorted(t, out)

	out = Append(nil, a)
	assert.Len(t, out, 2)
}

func TestRelink(t *testing.T) {
	out := []domain.Entry{
		{StreamID: 0, CPU: 0, TS: 10},
		{StreamID: 0, CPU: 1, TS: 20},
		{StreamID: 0, CPU: 0, TS: 30},
		{StreamID: 1, CPU: 0, TS: 40},
		{StreamID: 0, CPU: 1, TS: 50},
	}
	relink(out)

	assert.Equal(t, int32(2), out[0].Next, "cpu 0 chain: 0 -> 2")
	assert.Equal(t, int32(4), out[1].Next, "cpu 1 chain: 1 -> 4")
	assert.Equal(t, domain.NoEntry, out[2].Next)
	assert.Equal(t, domain.NoEntry, out[3].Next, "other stream has its own chain")
	assert.Equal(t, domain.NoEntry, out[4].Next)
}
