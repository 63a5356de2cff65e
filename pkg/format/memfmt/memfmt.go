// Package memfmt is an in-memory trace format used by tests, demos and
// benchmarks: records are generated synthetically instead of decoded
// from a file, but flow through the exact same decode interface.
package memfmt

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yairfalse/traceview/pkg/domain"
	"github.com/yairfalse/traceview/pkg/stream"
)

// Record is one synthetic raw record.
type Record struct {
	TS    int64
	CPU   int
	PID   int
	Event string
	Task  string
	Info  string
}

// Format serves synthetic records. One Format serves one stream; the
// record slice is the backing store and Entry.Offset indexes into it.
type Format struct {
	records    []Record
	eventIDs   map[string]int
	eventNames []string

	contentFilter string
}

var _ stream.Format = (*Format)(nil)
var _ stream.ContentFilterer = (*Format)(nil)

// New returns a format backed by records. The slice must be in per-CPU
// chronological order (a fully time-sorted slice always qualifies).
func New(records []Record) *Format {
	return &Format{records: records, eventIDs: make(map[string]int)}
}

// Generate builds nRecords records round-robin across nCPUs, cycling
// through pids and event names, one record every step nanoseconds.
func Generate(nRecords, nCPUs int, pids []int, events []string, step int64) []Record {
	records := make([]Record, nRecords)
	for i := range records {
		pid := pids[i%len(pids)]
		records[i] = Record{
			TS:    int64(i) * step,
			CPU:   i % nCPUs,
			PID:   pid,
			Event: events[i%len(events)],
			Task:  fmt.Sprintf("task-%d", pid),
			Info:  fmt.Sprintf("record %d", i),
		}
	}
	return records
}

// Name implements stream.Format.
func (f *Format) Name() string { return "memfmt" }

// Open implements stream.Format. The path is ignored; the backing
// store was handed to New.
func (f *Format) Open(s *stream.Stream, path string) error {
	maxCPU := -1
	for _, rec := range f.records {
		if _, ok := f.eventIDs[rec.Event]; !ok {
			f.eventIDs[rec.Event] = len(f.eventNames)
			f.eventNames = append(f.eventNames, rec.Event)
		}
		if rec.CPU > maxCPU {
			maxCPU = rec.CPU
		}
	}
	s.NCPUs = maxCPU + 1
	s.NEvents = len(f.eventNames)
	return nil
}

// Close implements stream.Format.
func (f *Format) Close(s *stream.Stream) error { return nil }

func (f *Format) record(e *domain.Entry) (*Record, error) {
	if e.Offset < 0 || e.Offset >= int64(len(f.records)) {
		return nil, fmt.Errorf("no record at offset %d", e.Offset)
	}
	return &f.records[e.Offset], nil
}

// PID implements stream.Format.
func (f *Format) PID(s *stream.Stream, e *domain.Entry) (int, error) {
	rec, err := f.record(e)
	if err != nil {
		return -1, err
	}
	return rec.PID, nil
}

// EventID implements stream.Format.
func (f *Format) EventID(s *stream.Stream, e *domain.Entry) (int, error) {
	rec, err := f.record(e)
	if err != nil {
		return -1, err
	}
	return f.eventIDs[rec.Event], nil
}

// EventName implements stream.Format.
func (f *Format) EventName(s *stream.Stream, e *domain.Entry) (string, error) {
	if int(e.EventID) < 0 || int(e.EventID) >= len(f.eventNames) {
		return "", fmt.Errorf("unknown event id %d", e.EventID)
	}
	return f.eventNames[e.EventID], nil
}

// TaskName implements stream.Format.
func (f *Format) TaskName(s *stream.Stream, e *domain.Entry) (string, error) {
	rec, err := f.record(e)
	if err != nil {
		return "", err
	}
	return rec.Task, nil
}

// Latency implements stream.Format.
func (f *Format) Latency(s *stream.Stream, e *domain.Entry) (string, error) {
	return "", nil
}

// Info implements stream.Format.
func (f *Format) Info(s *stream.Stream, e *domain.Entry) (string, error) {
	rec, err := f.record(e)
	if err != nil {
		return "", err
	}
	return rec.Info, nil
}

// DumpEntry implements stream.Format.
func (f *Format) DumpEntry(s *stream.Stream, e *domain.Entry) string {
	rec, err := f.record(e)
	if err != nil {
		return fmt.Sprintf("%d; cpu=%d; <unreadable>", e.TS, e.CPU)
	}
	secs, usecs := domain.SplitTime(e.TS)
	return fmt.Sprintf("%d.%06d; cpu=%d; %s-%d; %s; %s",
		secs, usecs, e.CPU, rec.Task, rec.PID, rec.Event, rec.Info)
}

// EventIDByName implements stream.Format.
func (f *Format) EventIDByName(s *stream.Stream, name string) (int, bool) {
	id, ok := f.eventIDs[name]
	return id, ok
}

// AllEventIDs implements stream.Format.
func (f *Format) AllEventIDs(s *stream.Stream) ([]int, error) {
	ids := make([]int, 0, len(f.eventNames))
	for id := range f.eventNames {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// ReadEventField implements stream.Format. Synthetic records expose a
// single numeric field, their cpu.
func (f *Format) ReadEventField(s *stream.Stream, e *domain.Entry, field string) (int64, error) {
	rec, err := f.record(e)
	if err != nil {
		return 0, err
	}
	if field != "cpu" {
		return 0, fmt.Errorf("record has no field %q", field)
	}
	return int64(rec.CPU), nil
}

// LoadEntries implements stream.Format.
func (f *Format) LoadEntries(ctx context.Context, s *stream.Stream) (*stream.EntryArena, error) {
	arena := &stream.EntryArena{
		Entries:  make([]domain.Entry, 0, len(f.records)),
		CPUHeads: make([]int32, s.NCPUs),
	}
	tails := make([]int32, s.NCPUs)
	for i := range arena.CPUHeads {
		arena.CPUHeads[i] = domain.NoEntry
		tails[i] = domain.NoEntry
	}
	for i, rec := range f.records {
		at := int32(len(arena.Entries))
		arena.Entries = append(arena.Entries, domain.Entry{
			Next:     domain.NoEntry,
			Visible:  domain.VisibleAll,
			StreamID: int16(s.ID),
			CPU:      int16(rec.CPU),
			PID:      int32(rec.PID),
			EventID:  int16(f.eventIDs[rec.Event]),
			Offset:   int64(i),
			TS:       rec.TS,
		})
		if tails[rec.CPU] == domain.NoEntry {
			arena.CPUHeads[rec.CPU] = at
		} else {
			arena.Entries[tails[rec.CPU]].Next = at
		}
		tails[rec.CPU] = at
	}
	return arena, nil
}

// LoadMatrix implements stream.Format.
func (f *Format) LoadMatrix(ctx context.Context, s *stream.Stream) (*stream.Matrix, error) {
	arena, err := f.LoadEntries(ctx, s)
	if err != nil {
		return nil, err
	}
	m := &stream.Matrix{
		CPUs:     make([]int16, len(arena.Entries)),
		PIDs:     make([]int32, len(arena.Entries)),
		EventIDs: make([]int16, len(arena.Entries)),
		Offsets:  make([]int64, len(arena.Entries)),
		TS:       make([]int64, len(arena.Entries)),
	}
	for i := range arena.Entries {
		e := &arena.Entries[i]
		m.CPUs[i] = e.CPU
		m.PIDs[i] = e.PID
		m.EventIDs[i] = e.EventID
		m.Offsets[i] = e.Offset
		m.TS[i] = e.TS
	}
	return m, nil
}

// SetContentFilter implements stream.ContentFilterer.
func (f *Format) SetContentFilter(s *stream.Stream, expr string) error {
	f.contentFilter = expr
	return nil
}

// ClearContentFilter implements stream.ContentFilterer.
func (f *Format) ClearContentFilter(s *stream.Stream) {
	f.contentFilter = ""
}

// ContentFilter implements stream.ContentFilterer.
func (f *Format) ContentFilter(s *stream.Stream) string {
	return f.contentFilter
}

// MatchContent implements stream.ContentFilterer.
func (f *Format) MatchContent(s *stream.Stream, e *domain.Entry) bool {
	rec, err := f.record(e)
	if err != nil {
		return false
	}
	return f.contentFilter == "" || strings.Contains(rec.Info, f.contentFilter)
}
