package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/traceview/pkg/collection"
	"github.com/yairfalse/traceview/pkg/domain"
)

// sortedEntries builds a stream-0 array with one entry per timestamp.
func sortedEntries(ts ...int64) []domain.Entry {
	entries := make([]domain.Entry, len(ts))
	for i, t := range ts {
		entries[i] = domain.Entry{TS: t, PID: 1, Visible: domain.VisibleAll}
	}
	return entries
}

func TestFindEntryByTime(t *testing.T) {
	data := sortedEntries(10, 20, 20, 30, 40)

	tests := []struct {
		name string
		t    int64
		want int
	}{
		{name: "before first", t: 5, want: AllGreater},
		{name: "exact first", t: 10, want: 0},
		{name: "between entries", t: 15, want: 1},
		{name: "first of equal run", t: 20, want: 1},
		{name: "exact last", t: 40, want: 4},
		{name: "after last", t: 41, want: AllSmaller},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindEntryByTime(tt.t, data, 0, len(data)-1)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindEntryByTimeSubRange(t *testing.T) {
	data := sortedEntries(10, 20, 30, 40, 50)

	assert.Equal(t, 2, FindEntryByTime(25, data, 1, 3))
	assert.Equal(t, AllSmaller, FindEntryByTime(45, data, 1, 3))
	assert.Equal(t, AllGreater, FindEntryByTime(5, data, 1, 3))
	assert.Equal(t, AllGreater, FindEntryByTime(10, data, 3, 1), "inverted range")
}

func TestFindEntryByTimeSentinelProperties(t *testing.T) {
	data := sortedEntries(10, 20, 30)
	n := len(data)

	for _, ts := range []int64{0, 10, 15, 30, 99} {
		got := FindEntryByTime(ts, data, 0, n-1)
		switch {
		case data[n-1].TS < ts:
			assert.Equal(t, AllSmaller, got, "t=%d", ts)
		case data[0].TS > ts:
			assert.Equal(t, AllGreater, got, "t=%d", ts)
		default:
			require.GreaterOrEqual(t, got, 0, "t=%d", ts)
			assert.GreaterOrEqual(t, data[got].TS, ts)
			if got > 0 {
				assert.Less(t, data[got-1].TS, ts, "must be the smallest such index")
			}
		}
	}
}

func TestGetFront(t *testing.T) {
	data := sortedEntries(10, 20, 30, 40, 50)
	data[2].PID = 7
	data[4].PID = 7

	req := &Request{First: 0, N: len(data), Match: domain.MatchPID, StreamID: 0, Values: []int64{7}}

	at, outcome := req.GetFront(data)
	require.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, 2, at)

	req.First = 3
	at, outcome = req.GetFront(data)
	assert.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, 4, at)

	req.First = 0
	req.N = 2 // span ends before the first match
	_, outcome = req.GetFront(data)
	assert.Equal(t, OutcomeNone, outcome)
}

func TestGetBack(t *testing.T) {
	data := sortedEntries(10, 20, 30, 40, 50)
	data[1].PID = 7
	data[3].PID = 7

	req := &Request{First: 4, N: 5, Match: domain.MatchPID, StreamID: 0, Values: []int64{7}}

	at, outcome := req.GetBack(data)
	assert.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, 3, at)

	// Clamped at the array start: scanning a span larger than the
	// prefix just stops at index 0.
	req = &Request{First: 0, N: 10, Match: domain.MatchPID, StreamID: 0, Values: []int64{7}}
	_, outcome = req.GetBack(data)
	assert.Equal(t, OutcomeNone, outcome)
}

// A structurally matching entry that is filtered out must surface as
// OutcomeHidden, not OutcomeNone, and the scan must not silently skip
// past it to a later visible match.
func TestGetFrontHiddenMatch(t *testing.T) {
	data := sortedEntries(10, 20, 30, 40)
	data[1].PID = 7
	data[1].Visible &^= domain.GraphViewMask // hidden in graph view
	data[3].PID = 7                          // visible later match

	req := &Request{
		First: 0, N: len(data),
		Match: domain.MatchPID, StreamID: 0, Values: []int64{7},
		VisibleOnly: true, VisibleMask: domain.GraphViewMask,
	}

	at, outcome := req.GetFront(data)
	assert.Equal(t, OutcomeHidden, outcome)
	assert.Equal(t, 1, at, "the hidden match decides the outcome")

	// Without the visibility demand the same entry is a plain match.
	req.VisibleOnly = false
	at, outcome = req.GetFront(data)
	assert.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, 1, at)

	// The dummy-entry sentinel viewers hand around for this signal.
	d := domain.DummyEntry()
	assert.True(t, d.IsDummy())
}

func TestGetFrontWithCollection(t *testing.T) {
	data := sortedEntries(make([]int64, 100)...)
	for i := range data {
		data[i].TS = int64(i * 10)
		data[i].PID = 1
	}
	data[60].PID = 7

	reg := collection.NewRegistry(nil)
	c := reg.Register(data, domain.MatchPID, 0, []int64{7}, 3)
	require.Equal(t, 1, c.Size())

	req := &Request{
		First: 0, N: len(data),
		Match: domain.MatchPID, StreamID: 0, Values: []int64{7},
		Collection: c,
	}
	at, outcome := req.GetFront(data)
	assert.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, 60, at)

	// A sub-range that excludes every interval finds nothing.
	req.N = 40
	_, outcome = req.GetFront(data)
	assert.Equal(t, OutcomeNone, outcome)
}

func TestGetBackWithCollection(t *testing.T) {
	data := sortedEntries(make([]int64, 100)...)
	for i := range data {
		data[i].TS = int64(i * 10)
		data[i].PID = 1
	}
	data[20].PID = 7
	data[60].PID = 7

	reg := collection.NewRegistry(nil)
	c := reg.Register(data, domain.MatchPID, 0, []int64{7}, 3)
	require.Equal(t, 2, c.Size())

	req := &Request{
		First: 99, N: 100,
		Match: domain.MatchPID, StreamID: 0, Values: []int64{7},
		Collection: c,
	}
	at, outcome := req.GetBack(data)
	assert.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, 60, at)

	// Starting below the later interval lands on the earlier match.
	req.First = 50
	at, outcome = req.GetBack(data)
	assert.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, 20, at)
}

func TestGetFrontEmptyCollection(t *testing.T) {
	data := sortedEntries(10, 20, 30)
	reg := collection.NewRegistry(nil)
	c := reg.Register(data, domain.MatchPID, 0, []int64{7}, 3)
	require.True(t, c.Empty())

	req := &Request{
		First: 0, N: len(data),
		Match: domain.MatchPID, StreamID: 0, Values: []int64{7},
		Collection: c,
	}
	_, outcome := req.GetFront(data)
	assert.Equal(t, OutcomeNone, outcome, "reset/empty collections short-circuit")
}
