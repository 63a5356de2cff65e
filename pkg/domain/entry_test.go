package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTime(t *testing.T) {
	tests := []struct {
		name      string
		ts        int64
		wantSecs  int64
		wantUsecs int64
	}{
		{name: "zero", ts: 0, wantSecs: 0, wantUsecs: 0},
		{name: "sub-microsecond truncates", ts: 999, wantSecs: 0, wantUsecs: 0},
		{name: "one microsecond", ts: 1_000, wantSecs: 0, wantUsecs: 1},
		{name: "just below a second", ts: 999_999_999, wantSecs: 0, wantUsecs: 999_999},
		{name: "mixed", ts: 1_500_000_500, wantSecs: 1, wantUsecs: 500_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secs, usecs := SplitTime(tt.ts)
			assert.Equal(t, tt.wantSecs, secs)
			assert.Equal(t, tt.wantUsecs, usecs)
		})
	}
}

func TestOffsetCalib(t *testing.T) {
	assert.Equal(t, int64(150), OffsetCalib(100, []int64{50}))
	assert.Equal(t, int64(50), OffsetCalib(100, []int64{-50}))
}

func TestDummyEntry(t *testing.T) {
	d := DummyEntry()
	assert.True(t, d.IsDummy())

	real := Entry{TS: 10, CPU: 1, PID: 7, EventID: 3}
	assert.False(t, real.IsDummy())

	// Same timestamp as the sentinel but real ids.
	tsZero := Entry{TS: 0, CPU: 0, PID: 0, EventID: 0}
	assert.False(t, tsZero.IsDummy())
}

func TestMatchFuncs(t *testing.T) {
	e := Entry{StreamID: 1, CPU: 2, PID: 7, EventID: 5, Visible: TextViewMask | GraphViewMask}

	assert.True(t, MatchPID(&e, 1, []int64{7}))
	assert.False(t, MatchPID(&e, 0, []int64{7}), "wrong stream")
	assert.False(t, MatchPID(&e, 1, []int64{8}))

	assert.True(t, MatchCPU(&e, 1, []int64{2}))
	assert.True(t, MatchEventID(&e, 1, []int64{5}))

	assert.True(t, MatchVisible(&e, 1, []int64{int64(GraphViewMask)}))
	assert.False(t, MatchVisible(&e, 1, []int64{int64(EventViewMask)}))
}
