// Package collection caches, per predicate, the sparse set of intervals
// of the master entry array that can contain matching entries. Searches
// bounded by a collection skip the rest of the array entirely.
package collection

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/yairfalse/traceview/pkg/domain"
)

// Collection bounds where one predicate can match inside the master
// entry array. ResumePoints and BreakPoints are parallel arrays of
// disjoint, increasing intervals [ResumePoints[i], BreakPoints[i]).
//
// Entries outside every interval are guaranteed not to satisfy the
// predicate. Entries inside an interval may or may not satisfy it: the
// intervals are widened by the margin, trading a larger scan window for
// fewer interval boundaries.
type Collection struct {
	StreamID int
	Values   []int64

	ResumePoints []int
	BreakPoints  []int

	match   domain.MatchFunc
	matchID uintptr
	margin  int
}

// Match evaluates the collection's predicate on e.
func (c *Collection) Match(e *domain.Entry) bool {
	return c.match(e, c.StreamID, c.Values)
}

// Size returns the number of intervals.
func (c *Collection) Size() int {
	return len(c.ResumePoints)
}

// Empty reports whether the collection holds no intervals. A reset
// collection stays registered but is empty, short-circuiting lookups
// that are known to find nothing.
func (c *Collection) Empty() bool {
	return len(c.ResumePoints) == 0
}

// Contains reports whether index i falls inside one of the intervals,
// and returns that interval's position.
func (c *Collection) Contains(i int) (int, bool) {
	for k, resume := range c.ResumePoints {
		if i >= resume && i < c.BreakPoints[k] {
			return k, true
		}
	}
	return 0, false
}

// build scans data once and records one interval per cluster of
// matches. Consecutive matches closer than twice the margin share an
// interval; a wider gap closes the current interval and opens a new
// one. Every interval is widened by the margin on each side, clamped at
// the array bounds.
func (c *Collection) build(data []domain.Entry) {
	c.ResumePoints = c.ResumePoints[:0]
	c.BreakPoints = c.BreakPoints[:0]

	last := -1
	for i := range data {
		if !c.Match(&data[i]) {
			continue
		}
		if last >= 0 && i-last <= 2*c.margin {
			last = i
			continue
		}
		if last >= 0 {
			c.BreakPoints = append(c.BreakPoints, clamp(last+c.margin+1, len(data)))
		}
		c.ResumePoints = append(c.ResumePoints, max(0, i-c.margin))
		last = i
	}
	if last >= 0 {
		c.BreakPoints = append(c.BreakPoints, clamp(last+c.margin+1, len(data)))
	}
}

func clamp(v, hi int) int {
	if v > hi {
		return hi
	}
	return v
}

// Registry owns every registered collection, keyed by (predicate
// identity, stream id, value tuple).
type Registry struct {
	collections []*Collection
	logger      *zap.Logger
}

// NewRegistry returns an empty collection registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger.Named("collections")}
}

func matchID(fn domain.MatchFunc) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

func sameValues(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Register scans data and stores a new collection for the key. A
// collection already registered under the same key is replaced. The
// engine never auto-invalidates: whenever filtering changes the shape
// of visible data, callers re-register around the change.
func (r *Registry) Register(data []domain.Entry, match domain.MatchFunc, streamID int, values []int64, margin int) *Collection {
	if margin < 0 {
		margin = 0
	}
	r.Unregister(match, streamID, values)
	c := &Collection{
		StreamID: streamID,
		Values:   values,
		match:    match,
		matchID:  matchID(match),
		margin:   margin,
	}
	c.build(data)
	r.collections = append(r.collections, c)
	r.logger.Debug("collection registered",
		zap.Int("stream", streamID),
		zap.Int("intervals", c.Size()),
		zap.Int("margin", margin),
	)
	return c
}

// Find returns the collection registered under the key, or nil.
func (r *Registry) Find(match domain.MatchFunc, streamID int, values []int64) *Collection {
	id := matchID(match)
	for _, c := range r.collections {
		if c.matchID == id && c.StreamID == streamID && sameValues(c.Values, values) {
			return c
		}
	}
	return nil
}

// Reset empties a collection's intervals without unregistering it. The
// key stays bound, so a later rebuild needs no new registration.
func (r *Registry) Reset(c *Collection) {
	c.ResumePoints = nil
	c.BreakPoints = nil
}

// Unregister removes and drops the collection registered under the key.
func (r *Registry) Unregister(match domain.MatchFunc, streamID int, values []int64) {
	id := matchID(match)
	for i, c := range r.collections {
		if c.matchID == id && c.StreamID == streamID && sameValues(c.Values, values) {
			r.collections = append(r.collections[:i], r.collections[i+1:]...)
			return
		}
	}
}

// UnregisterStream removes every collection keyed to a stream. Invoked
// on stream close.
func (r *Registry) UnregisterStream(streamID int) {
	kept := r.collections[:0]
	for _, c := range r.collections {
		if c.StreamID != streamID {
			kept = append(kept, c)
		}
	}
	r.collections = kept
}

// Len returns the number of registered collections.
func (r *Registry) Len() int {
	return len(r.collections)
}
