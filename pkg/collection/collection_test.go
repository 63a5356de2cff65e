package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yairfalse/traceview/pkg/domain"
)

// entriesWithPIDs builds a stream-0 array whose pid sequence is given.
func entriesWithPIDs(pids ...int) []domain.Entry {
	entries := make([]domain.Entry, len(pids))
	for i, pid := range pids {
		entries[i] = domain.Entry{TS: int64(i), PID: int32(pid)}
	}
	return entries
}

// sparseEntries places pid 7 at the given indices of an n-entry array.
func sparseEntries(n int, at ...int) []domain.Entry {
	entries := make([]domain.Entry, n)
	for i := range entries {
		entries[i] = domain.Entry{TS: int64(i), PID: 1}
	}
	for _, i := range at {
		entries[i].PID = 7
	}
	return entries
}

func TestRegisterMargin(t *testing.T) {
	// pid 7 appears only at indices 10 and 50; margin 5 must produce
	// two intervals, each containing its match widened by 5 on both
	// sides, and index 30 must stay outside every interval.
	data := sparseEntries(100, 10, 50)
	r := NewRegistry(zaptest.NewLogger(t))

	c := r.Register(data, domain.MatchPID, 0, []int64{7}, 5)
	require.Equal(t, 2, c.Size())

	assert.Equal(t, []int{5, 45}, c.ResumePoints)
	assert.Equal(t, []int{16, 56}, c.BreakPoints)

	_, inside := c.Contains(30)
	assert.False(t, inside, "index far from any match must stay uncovered")
	_, inside = c.Contains(10)
	assert.True(t, inside)
	_, inside = c.Contains(50)
	assert.True(t, inside)
}

func TestRegisterClampsAtBounds(t *testing.T) {
	data := sparseEntries(20, 1, 18)
	r := NewRegistry(nil)

	c := r.Register(data, domain.MatchPID, 0, []int64{7}, 5)
	require.Equal(t, 2, c.Size())
	assert.Equal(t, 0, c.ResumePoints[0], "left edge clamps at 0")
	assert.Equal(t, 20, c.BreakPoints[1], "right edge clamps at len(data)")
}

func TestRegisterMergesNearbyMatches(t *testing.T) {
	// Matches at 10 and 16 with margin 5: the gap (6) is within twice
	// the margin, so they share one interval.
	data := sparseEntries(40, 10, 16)
	r := NewRegistry(nil)

	c := r.Register(data, domain.MatchPID, 0, []int64{7}, 5)
	require.Equal(t, 1, c.Size())
	assert.Equal(t, []int{5}, c.ResumePoints)
	assert.Equal(t, []int{22}, c.BreakPoints)
}

func TestRegisterZeroMargin(t *testing.T) {
	data := sparseEntries(10, 3, 7)
	r := NewRegistry(nil)

	c := r.Register(data, domain.MatchPID, 0, []int64{7}, 0)
	require.Equal(t, 2, c.Size())
	assert.Equal(t, []int{3, 7}, c.ResumePoints)
	assert.Equal(t, []int{4, 8}, c.BreakPoints)
}

func TestRegisterNoMatches(t *testing.T) {
	data := entriesWithPIDs(1, 1, 1)
	r := NewRegistry(nil)

	c := r.Register(data, domain.MatchPID, 0, []int64{7}, 5)
	assert.True(t, c.Empty())
	assert.NotNil(t, r.Find(domain.MatchPID, 0, []int64{7}), "empty collections stay registered")
}

// TestCollectionSoundness checks the load-bearing invariant: every
// entry outside all intervals must fail the predicate. False positives
// inside an interval are allowed; false negatives outside are not.
func TestCollectionSoundness(t *testing.T) {
	pids := make([]int, 500)
	for i := range pids {
		pids[i] = 1
		if i%37 == 0 || (i > 200 && i < 210) {
			pids[i] = 7
		}
	}
	data := entriesWithPIDs(pids...)
	r := NewRegistry(nil)

	for _, margin := range []int{0, 1, 5, 25} {
		c := r.Register(data, domain.MatchPID, 0, []int64{7}, margin)
		for i := range data {
			if _, inside := c.Contains(i); !inside {
				assert.False(t, c.Match(&data[i]),
					"margin %d: entry %d outside all intervals must not match", margin, i)
			}
		}
	}
}

func TestFindByKey(t *testing.T) {
	data := sparseEntries(20, 5)
	r := NewRegistry(nil)

	c := r.Register(data, domain.MatchPID, 0, []int64{7}, 2)

	assert.Same(t, c, r.Find(domain.MatchPID, 0, []int64{7}))
	assert.Nil(t, r.Find(domain.MatchPID, 1, []int64{7}), "different stream")
	assert.Nil(t, r.Find(domain.MatchPID, 0, []int64{8}), "different values")
	assert.Nil(t, r.Find(domain.MatchCPU, 0, []int64{7}), "different predicate")
}

func TestRegisterReplacesSameKey(t *testing.T) {
	data := sparseEntries(20, 5)
	r := NewRegistry(nil)

	r.Register(data, domain.MatchPID, 0, []int64{7}, 2)
	c2 := r.Register(data, domain.MatchPID, 0, []int64{7}, 4)

	assert.Equal(t, 1, r.Len())
	assert.Same(t, c2, r.Find(domain.MatchPID, 0, []int64{7}))
}

func TestResetKeepsRegistration(t *testing.T) {
	data := sparseEntries(20, 5)
	r := NewRegistry(nil)

	c := r.Register(data, domain.MatchPID, 0, []int64{7}, 2)
	require.False(t, c.Empty())

	r.Reset(c)
	assert.True(t, c.Empty())
	assert.Same(t, c, r.Find(domain.MatchPID, 0, []int64{7}))
}

func TestUnregister(t *testing.T) {
	data := sparseEntries(20, 5)
	r := NewRegistry(nil)

	r.Register(data, domain.MatchPID, 0, []int64{7}, 2)
	r.Unregister(domain.MatchPID, 0, []int64{7})
	assert.Nil(t, r.Find(domain.MatchPID, 0, []int64{7}))
	assert.Equal(t, 0, r.Len())
}

func TestUnregisterStream(t *testing.T) {
	data := sparseEntries(20, 5)
	r := NewRegistry(nil)

	r.Register(data, domain.MatchPID, 0, []int64{7}, 2)
	r.Register(data, domain.MatchCPU, 0, []int64{0}, 2)

	other := []domain.Entry{{StreamID: 3, PID: 7}}
	r.Register(other, domain.MatchPID, 3, []int64{7}, 2)

	r.UnregisterStream(0)
	assert.Equal(t, 1, r.Len())
	assert.NotNil(t, r.Find(domain.MatchPID, 3, []int64{7}))
}
