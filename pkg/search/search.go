// Package search provides the random-access query primitives viewers
// use against the master entry array: binary search by time and
// bounded directional scans, optionally restricted to a collection's
// intervals.
//
// All functions are read-only over the entry array and safe for
// concurrent readers, provided no load/merge/re-filter is in flight.
package search

import (
	"sort"

	"github.com/yairfalse/traceview/pkg/collection"
	"github.com/yairfalse/traceview/pkg/domain"
)

// Sentinels returned by FindEntryByTime when the whole range lies on
// one side of the requested time. Callers must branch on these before
// indexing.
const (
	// AllGreater means every entry in [lo, hi] has a timestamp > t.
	AllGreater = -1

	// AllSmaller means every entry in [lo, hi] has a timestamp < t.
	AllSmaller = -2
)

// FindEntryByTime binary-searches data inside [lo, hi] (inclusive) and
// returns the smallest index whose timestamp is >= t, or one of the
// AllGreater / AllSmaller sentinels.
func FindEntryByTime(t int64, data []domain.Entry, lo, hi int) int {
	if lo < 0 || hi >= len(data) || lo > hi {
		return AllGreater
	}
	if data[hi].TS < t {
		return AllSmaller
	}
	if data[lo].TS > t {
		return AllGreater
	}
	n := hi - lo + 1
	i := sort.Search(n, func(k int) bool {
		return data[lo+k].TS >= t
	})
	return lo + i
}

// Outcome classifies the result of a directional scan.
type Outcome int

const (
	// OutcomeNone: no entry in the scanned span satisfies the predicate.
	OutcomeNone Outcome = iota

	// OutcomeFound: the returned index satisfies the predicate and, if
	// requested, the visibility mask.
	OutcomeFound

	// OutcomeHidden: an entry satisfying the predicate exists in the
	// span, but the first such entry is filtered out of the requested
	// views. Callers wanting an Entry value for this signal use
	// domain.DummyEntry. This is deliberately distinct from OutcomeNone:
	// "jump to nearest visible" logic must not treat a hidden match as
	// absence.
	OutcomeHidden
)

// Request bundles one bounded directional scan.
type Request struct {
	// First is the index the scan starts at.
	First int

	// N is the number of indices to scan.
	N int

	// Match is the predicate, evaluated with StreamID and Values.
	Match    domain.MatchFunc
	StreamID int
	Values   []int64

	// VisibleOnly restricts matches to entries carrying every bit of
	// VisibleMask.
	VisibleOnly bool
	VisibleMask uint8

	// Collection, when set, restricts the scan to the collection's
	// intervals; indices outside them are skipped without evaluation.
	Collection *collection.Collection
}

// visible reports whether e passes the request's visibility demand.
func (r *Request) visible(e *domain.Entry) bool {
	return !r.VisibleOnly || e.Visible&r.VisibleMask == r.VisibleMask
}

// scan walks indices from first by step until n entries were examined,
// returning on the first structural match. The scan does not skip past
// a hidden match: the first structural hit decides the outcome.
func (r *Request) scan(data []domain.Entry, first, n, step int) (int, Outcome) {
	for i, seen := first, 0; seen < n && i >= 0 && i < len(data); i, seen = i+step, seen+1 {
		e := &data[i]
		if !r.Match(e, r.StreamID, r.Values) {
			continue
		}
		if r.visible(e) {
			return i, OutcomeFound
		}
		return i, OutcomeHidden
	}
	return -1, OutcomeNone
}

// GetFront scans [First, First+N) in increasing index order and returns
// the first entry satisfying the request.
func (r *Request) GetFront(data []domain.Entry) (int, Outcome) {
	if r.Collection != nil {
		return r.frontIn(data)
	}
	return r.scan(data, r.First, r.N, 1)
}

// GetBack scans (First-N, First] in decreasing index order, clamped at
// the array start.
func (r *Request) GetBack(data []domain.Entry) (int, Outcome) {
	if r.Collection != nil {
		return r.backIn(data)
	}
	return r.scan(data, r.First, r.N, -1)
}

// frontIn walks the collection's intervals instead of the full span,
// skipping intervals entirely outside [First, First+N).
func (r *Request) frontIn(data []domain.Entry) (int, Outcome) {
	c := r.Collection
	end := r.First + r.N
	for k := 0; k < c.Size(); k++ {
		resume, brk := c.ResumePoints[k], c.BreakPoints[k]
		if brk <= r.First {
			continue
		}
		if resume >= end {
			break
		}
		lo := max(resume, r.First)
		hi := min(brk, end)
		if i, out := r.scan(data, lo, hi-lo, 1); out != OutcomeNone {
			return i, out
		}
	}
	return -1, OutcomeNone
}

// backIn is the decreasing-index counterpart of frontIn.
func (r *Request) backIn(data []domain.Entry) (int, Outcome) {
	c := r.Collection
	end := r.First - r.N // exclusive lower bound
	for k := c.Size() - 1; k >= 0; k-- {
		resume, brk := c.ResumePoints[k], c.BreakPoints[k]
		if resume > r.First {
			continue
		}
		if brk-1 <= end {
			break
		}
		hi := min(brk-1, r.First)
		lo := max(resume, end+1)
		if i, out := r.scan(data, hi, hi-lo+1, -1); out != OutcomeNone {
			return i, out
		}
	}
	return -1, OutcomeNone
}
