package pipeline

import (
	"sort"

	"github.com/yairfalse/traceview/pkg/domain"
)

// Merge interleaves two individually sorted entry arrays into one
// sorted array. The merge is stable: at equal timestamps entries from a
// come before entries from b.
func Merge(a, b []domain.Entry) []domain.Entry {
	out := make([]domain.Entry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].TS <= b[j].TS {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	relink(out)
	return out
}

// Append merges a later-loaded sorted array b into the existing sorted
// array a. Every entry of a before b's first timestamp dominates the
// merge, so that prefix is found by binary search and copied verbatim;
// only the overlapping remainder is interleaved.
func Append(a, b []domain.Entry) []domain.Entry {
	if len(b) == 0 {
		out := make([]domain.Entry, len(a))
		copy(out, a)
		relink(out)
		return out
	}
	if len(a) == 0 {
		out := make([]domain.Entry, len(b))
		copy(out, b)
		relink(out)
		return out
	}
	boundary := sort.Search(len(a), func(i int) bool {
		return a[i].TS > b[0].TS
	})
	out := make([]domain.Entry, 0, len(a)+len(b))
	out = append(out, a[:boundary]...)
	out = append(out, Merge(a[boundary:], b)...)
	relink(out)
	return out
}

// mergeN K-way merges per-stream sorted arrays, one cursor per array.
// The globally earliest head wins each round; ties go to the
// lowest-index array, preserving stable input order.
func mergeN(arrays [][]domain.Entry) []domain.Entry {
	total := 0
	for _, arr := range arrays {
		total += len(arr)
	}
	out := make([]domain.Entry, 0, total)
	cursors := make([]int, len(arrays))

	for {
		best := -1
		for k, arr := range arrays {
			if cursors[k] >= len(arr) {
				continue
			}
			if best < 0 || arr[cursors[k]].TS < arrays[best][cursors[best]].TS {
				best = k
			}
		}
		if best < 0 {
			return out
		}
		out = append(out, arrays[best][cursors[best]])
		cursors[best]++
	}
}

// relink rebuilds the per-(stream, cpu) Next chains of a freshly built
// array. Next links are indices into the array itself, so any merge
// that moves entries invalidates them; one backward pass restores every
// chain.
func relink(out []domain.Entry) {
	heads := make(map[int32]int32)
	for i := len(out) - 1; i >= 0; i-- {
		key := int32(out[i].StreamID)<<16 | int32(uint16(out[i].CPU))
		if next, ok := heads[key]; ok {
			out[i].Next = next
		} else {
			out[i].Next = domain.NoEntry
		}
		heads[key] = int32(i)
	}
}
