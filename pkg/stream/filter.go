package stream

import (
	"go.uber.org/zap"

	"github.com/yairfalse/traceview/pkg/domain"
	"github.com/yairfalse/traceview/pkg/hashset"
)

// FilterKind names one of the stream's ID filters, or the format-owned
// content filter.
type FilterKind string

const (
	ShowTaskFilter  FilterKind = "show-task"
	HideTaskFilter  FilterKind = "hide-task"
	ShowEventFilter FilterKind = "show-event"
	HideEventFilter FilterKind = "hide-event"
	ShowCPUFilter   FilterKind = "show-cpu"
	HideCPUFilter   FilterKind = "hide-cpu"
	ContentFilter   FilterKind = "content"
)

// FilterSet returns the hash set behind an ID filter kind, or nil for
// ContentFilter and unknown kinds.
func (s *Stream) FilterSet(kind FilterKind) *hashset.Set {
	switch kind {
	case ShowTaskFilter:
		return s.ShowTaskFilterSet
	case HideTaskFilter:
		return s.HideTaskFilterSet
	case ShowEventFilter:
		return s.ShowEventFilterSet
	case HideEventFilter:
		return s.HideEventFilterSet
	case ShowCPUFilter:
		return s.ShowCPUFilterSet
	case HideCPUFilter:
		return s.HideCPUFilterSet
	}
	return nil
}

// SetFilter replaces the ids of one ID filter.
func (s *Stream) SetFilter(kind FilterKind, ids []int) {
	set := s.FilterSet(kind)
	if set == nil {
		return
	}
	set.Clear()
	for _, id := range ids {
		set.Add(id)
	}
	s.logger.Debug("filter set",
		zap.String("kind", string(kind)),
		zap.Int("ids", len(ids)),
	)
}

// FiltersAreSet reports whether any ID or content filter is active.
func (s *Stream) FiltersAreSet() bool {
	if !s.ShowTaskFilterSet.Empty() || !s.HideTaskFilterSet.Empty() ||
		!s.ShowEventFilterSet.Empty() || !s.HideEventFilterSet.Empty() ||
		!s.ShowCPUFilterSet.Empty() || !s.HideCPUFilterSet.Empty() {
		return true
	}
	return s.ContentFilterActive()
}

// ContentFilterActive reports whether the format has a content filter
// installed.
func (s *Stream) ContentFilterActive() bool {
	cf, ok := s.format.(ContentFilterer)
	return ok && cf.ContentFilter(s) != ""
}

// visibleFor implements the per-dimension rule: an id passes when the
// show filter is empty or contains it, and the hide filter is empty or
// does not contain it.
func visibleFor(show, hide *hashset.Set, id int) bool {
	if !show.Empty() && !show.Find(id) {
		return false
	}
	if !hide.Empty() && hide.Find(id) {
		return false
	}
	return true
}

// ApplyIDFilters sets or clears the view bits of mask on e according to
// the stream's six ID filters. Applying unchanged filters twice yields
// the same visibility byte. The untouched bit is never modified here.
func (s *Stream) ApplyIDFilters(e *domain.Entry, mask uint8) {
	mask &= domain.AllViewsMask
	shown := visibleFor(s.ShowTaskFilterSet, s.HideTaskFilterSet, int(e.PID)) &&
		visibleFor(s.ShowEventFilterSet, s.HideEventFilterSet, int(e.EventID)) &&
		visibleFor(s.ShowCPUFilterSet, s.HideCPUFilterSet, int(e.CPU))
	if shown {
		e.Visible |= mask
	} else {
		e.Visible &^= mask
	}
}

// ReapplyIDFilters re-runs ApplyIDFilters over an already loaded array.
// When a content filter is active this is disallowed: content matching
// needs the raw records, so the caller must request a full reload
// instead. ID filters alone never need raw access.
func (s *Stream) ReapplyIDFilters(entries []domain.Entry, mask uint8) error {
	if s.ContentFilterActive() {
		return ErrReloadRequired
	}
	for i := range entries {
		if int(entries[i].StreamID) != s.ID {
			continue
		}
		s.ApplyIDFilters(&entries[i], mask)
	}
	return nil
}

// SetContentFilter installs a format-owned content filter expression.
func (s *Stream) SetContentFilter(expr string) error {
	cf, ok := s.format.(ContentFilterer)
	if !ok {
		return ErrNoContentFilter
	}
	return cf.SetContentFilter(s, expr)
}

// ClearContentFilter removes the content filter, if any.
func (s *Stream) ClearContentFilter() {
	if cf, ok := s.format.(ContentFilterer); ok {
		cf.ClearContentFilter(s)
	}
}

// ClearAllFilters empties every ID filter and the content filter.
// Restoring entry visibility is the caller's job, since the stream does
// not own the merged array.
func (s *Stream) ClearAllFilters() {
	s.ShowTaskFilterSet.Clear()
	s.HideTaskFilterSet.Clear()
	s.ShowEventFilterSet.Clear()
	s.HideEventFilterSet.Clear()
	s.ShowCPUFilterSet.Clear()
	s.HideCPUFilterSet.Clear()
	if s.format != nil {
		s.ClearContentFilter()
	}
}
