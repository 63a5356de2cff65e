package stream

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FilterState is the serializable form of one filter. The persistence
// layer owns where these documents live; the stream only guarantees the
// round-trip.
type FilterState struct {
	Kind       FilterKind `yaml:"kind" json:"kind"`
	StreamID   int        `yaml:"stream" json:"stream"`
	IDs        []int      `yaml:"ids,omitempty" json:"ids,omitempty"`
	Expression string     `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// ExportFilters returns the state of every non-empty filter, ID filters
// first in a fixed kind order, then the content filter.
func (s *Stream) ExportFilters() []FilterState {
	kinds := []FilterKind{
		ShowTaskFilter, HideTaskFilter,
		ShowEventFilter, HideEventFilter,
		ShowCPUFilter, HideCPUFilter,
	}
	var states []FilterState
	for _, kind := range kinds {
		set := s.FilterSet(kind)
		if set.Empty() {
			continue
		}
		states = append(states, FilterState{
			Kind:     kind,
			StreamID: s.ID,
			IDs:      set.IDs(),
		})
	}
	if cf, ok := s.format.(ContentFilterer); ok {
		if expr := cf.ContentFilter(s); expr != "" {
			states = append(states, FilterState{
				Kind:       ContentFilter,
				StreamID:   s.ID,
				Expression: expr,
			})
		}
	}
	return states
}

// ImportFilters restores filter state exported by ExportFilters. All
// existing filters are cleared first, so an empty slice round-trips to
// a clean stream.
func (s *Stream) ImportFilters(states []FilterState) error {
	s.ClearAllFilters()
	for _, st := range states {
		switch st.Kind {
		case ContentFilter:
			if err := s.SetContentFilter(st.Expression); err != nil {
				return fmt.Errorf("importing content filter: %w", err)
			}
		case ShowTaskFilter, HideTaskFilter,
			ShowEventFilter, HideEventFilter,
			ShowCPUFilter, HideCPUFilter:
			s.SetFilter(st.Kind, st.IDs)
		default:
			return fmt.Errorf("unknown filter kind %q", st.Kind)
		}
	}
	return nil
}

// MarshalFilters renders the stream's filter state as one YAML document.
func (s *Stream) MarshalFilters() ([]byte, error) {
	return yaml.Marshal(s.ExportFilters())
}

// UnmarshalFilters restores filter state from a YAML document produced
// by MarshalFilters.
func (s *Stream) UnmarshalFilters(doc []byte) error {
	var states []FilterState
	if err := yaml.Unmarshal(doc, &states); err != nil {
		return fmt.Errorf("decoding filter document: %w", err)
	}
	return s.ImportFilters(states)
}
