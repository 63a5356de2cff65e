// Package jsonl implements the decode interface for JSON-lines trace
// files: one record object per line, indexed by byte offset so any
// record can be re-read on demand.
//
// The format is a reference implementation; binary kernel trace formats
// plug in through the same stream.Format interface.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/yairfalse/traceview/pkg/domain"
	"github.com/yairfalse/traceview/pkg/stream"
)

// record is the wire shape of one line.
type record struct {
	TS      int64            `json:"ts"`
	CPU     int              `json:"cpu"`
	PID     int              `json:"pid"`
	Event   string           `json:"event"`
	Task    string           `json:"task,omitempty"`
	Latency string           `json:"latency,omitempty"`
	Info    string           `json:"info,omitempty"`
	Fields  map[string]int64 `json:"fields,omitempty"`
}

// state is the per-stream decode state, kept outside the Format so one
// Format value can serve many streams.
type state struct {
	file *os.File

	// eventIDs assigns stream-local ids to event names in order of
	// first appearance.
	eventIDs   map[string]int
	eventNames []string

	// taskNames caches pid -> task name as seen in the trace.
	taskNames map[int]string

	// contentFilter is a substring matched against the record's info.
	contentFilter string
}

// Format decodes JSON-lines trace files.
type Format struct {
	logger  *zap.Logger
	streams map[int]*state
}

var _ stream.Format = (*Format)(nil)
var _ stream.ContentFilterer = (*Format)(nil)

// New returns a jsonl Format.
func New(logger *zap.Logger) *Format {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Format{
		logger:  logger.Named("jsonl"),
		streams: make(map[int]*state),
	}
}

// Name implements stream.Format.
func (f *Format) Name() string { return "jsonl" }

// Open scans the file once to build the event-name table, the task
// table and the cpu count. Unparseable lines are skipped here and at
// load time; an unreadable file fails the open.
func (f *Format) Open(s *stream.Stream, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening trace file: %w", err)
	}
	st := &state{
		file:      file,
		eventIDs:  make(map[string]int),
		taskNames: make(map[int]string),
	}

	maxCPU := -1
	decoded := 0
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<20)
	for sc.Scan() {
		var rec record
		if json.Unmarshal(sc.Bytes(), &rec) != nil {
			continue
		}
		decoded++
		if _, ok := st.eventIDs[rec.Event]; !ok {
			st.eventIDs[rec.Event] = len(st.eventNames)
			st.eventNames = append(st.eventNames, rec.Event)
		}
		if rec.Task != "" {
			st.taskNames[rec.PID] = rec.Task
		}
		if rec.CPU > maxCPU {
			maxCPU = rec.CPU
		}
	}
	if err := sc.Err(); err != nil {
		file.Close()
		return fmt.Errorf("scanning trace file: %w", err)
	}
	// Open doubles as the format probe: a file without a single
	// decodable record is not a jsonl trace.
	if decoded == 0 {
		file.Close()
		return fmt.Errorf("no decodable records in %s", path)
	}

	f.streams[s.ID] = st
	s.NCPUs = maxCPU + 1
	s.NEvents = len(st.eventNames)
	return nil
}

// Close implements stream.Format.
func (f *Format) Close(s *stream.Stream) error {
	st, ok := f.streams[s.ID]
	if !ok {
		return nil
	}
	delete(f.streams, s.ID)
	if err := st.file.Close(); err != nil {
		return fmt.Errorf("closing trace file: %w", err)
	}
	return nil
}

func (f *Format) state(s *stream.Stream) (*state, error) {
	st, ok := f.streams[s.ID]
	if !ok {
		return nil, fmt.Errorf("stream %d not open in jsonl format", s.ID)
	}
	return st, nil
}

// readAt re-reads the single raw record at the entry's byte offset. The
// caller holds the stream's re-read mutex.
func (st *state) readAt(offset int64) (*record, error) {
	if _, err := st.file.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking record at %d: %w", offset, err)
	}
	line, err := bufio.NewReader(st.file).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading record at %d: %w", offset, err)
	}
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("decoding record at %d: %w", offset, err)
	}
	return &rec, nil
}

// PID implements stream.Format.
func (f *Format) PID(s *stream.Stream, e *domain.Entry) (int, error) {
	st, err := f.state(s)
	if err != nil {
		return -1, err
	}
	rec, err := st.readAt(e.Offset)
	if err != nil {
		return -1, err
	}
	return rec.PID, nil
}

// EventID implements stream.Format.
func (f *Format) EventID(s *stream.Stream, e *domain.Entry) (int, error) {
	st, err := f.state(s)
	if err != nil {
		return -1, err
	}
	rec, err := st.readAt(e.Offset)
	if err != nil {
		return -1, err
	}
	id, ok := st.eventIDs[rec.Event]
	if !ok {
		return -1, fmt.Errorf("unknown event %q", rec.Event)
	}
	return id, nil
}

// EventName implements stream.Format.
func (f *Format) EventName(s *stream.Stream, e *domain.Entry) (string, error) {
	st, err := f.state(s)
	if err != nil {
		return "", err
	}
	if int(e.EventID) < 0 || int(e.EventID) >= len(st.eventNames) {
		return "", fmt.Errorf("unknown event id %d", e.EventID)
	}
	return st.eventNames[e.EventID], nil
}

// TaskName implements stream.Format.
func (f *Format) TaskName(s *stream.Stream, e *domain.Entry) (string, error) {
	st, err := f.state(s)
	if err != nil {
		return "", err
	}
	if name, ok := st.taskNames[int(e.PID)]; ok {
		return name, nil
	}
	rec, err := st.readAt(e.Offset)
	if err != nil {
		return "", err
	}
	return rec.Task, nil
}

// Latency implements stream.Format.
func (f *Format) Latency(s *stream.Stream, e *domain.Entry) (string, error) {
	st, err := f.state(s)
	if err != nil {
		return "", err
	}
	rec, err := st.readAt(e.Offset)
	if err != nil {
		return "", err
	}
	return rec.Latency, nil
}

// Info implements stream.Format.
func (f *Format) Info(s *stream.Stream, e *domain.Entry) (string, error) {
	st, err := f.state(s)
	if err != nil {
		return "", err
	}
	rec, err := st.readAt(e.Offset)
	if err != nil {
		return "", err
	}
	return rec.Info, nil
}

// DumpEntry implements stream.Format.
func (f *Format) DumpEntry(s *stream.Stream, e *domain.Entry) string {
	st, err := f.state(s)
	if err != nil {
		return ""
	}
	rec, err := st.readAt(e.Offset)
	if err != nil {
		return fmt.Sprintf("%d; cpu=%d; <unreadable>", e.TS, e.CPU)
	}
	secs, usecs := domain.SplitTime(e.TS)
	return fmt.Sprintf("%d.%06d; cpu=%d; %s-%d; %s; %s",
		secs, usecs, e.CPU, rec.Task, rec.PID, rec.Event, rec.Info)
}

// EventIDByName implements stream.Format.
func (f *Format) EventIDByName(s *stream.Stream, name string) (int, bool) {
	st, err := f.state(s)
	if err != nil {
		return -1, false
	}
	id, ok := st.eventIDs[name]
	return id, ok
}

// AllEventIDs implements stream.Format.
func (f *Format) AllEventIDs(s *stream.Stream) ([]int, error) {
	st, err := f.state(s)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(st.eventNames))
	for id := range st.eventNames {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// ReadEventField implements stream.Format.
func (f *Format) ReadEventField(s *stream.Stream, e *domain.Entry, field string) (int64, error) {
	st, err := f.state(s)
	if err != nil {
		return 0, err
	}
	rec, err := st.readAt(e.Offset)
	if err != nil {
		return 0, err
	}
	v, ok := rec.Fields[field]
	if !ok {
		return 0, fmt.Errorf("record has no field %q", field)
	}
	return v, nil
}

// LoadEntries implements stream.Format: one pass over the file,
// chaining entries per CPU in the order they appear. Lines that fail to
// decode are skipped and counted, not fatal.
func (f *Format) LoadEntries(ctx context.Context, s *stream.Stream) (*stream.EntryArena, error) {
	st, err := f.state(s)
	if err != nil {
		return nil, err
	}
	if _, err := st.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding trace file: %w", err)
	}

	arena := &stream.EntryArena{
		CPUHeads: make([]int32, s.NCPUs),
	}
	for i := range arena.CPUHeads {
		arena.CPUHeads[i] = domain.NoEntry
	}
	tails := make([]int32, s.NCPUs)
	for i := range tails {
		tails[i] = domain.NoEntry
	}

	// Offsets must count the bytes actually consumed per line, newline
	// and any carriage return included, or every later re-read lands
	// one byte short of a record boundary.
	offset := int64(0)
	rd := bufio.NewReader(st.file)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, readErr := rd.ReadBytes('\n')
		if len(line) > 0 {
			var rec record
			if err := json.Unmarshal(line, &rec); err != nil || rec.CPU < 0 || rec.CPU >= s.NCPUs {
				arena.Skipped++
			} else {
				at := int32(len(arena.Entries))
				arena.Entries = append(arena.Entries, domain.Entry{
					Next:     domain.NoEntry,
					Visible:  domain.VisibleAll,
					StreamID: int16(s.ID),
					CPU:      int16(rec.CPU),
					PID:      int32(rec.PID),
					EventID:  int16(st.eventIDs[rec.Event]),
					Offset:   offset,
					TS:       rec.TS,
				})
				if tails[rec.CPU] == domain.NoEntry {
					arena.CPUHeads[rec.CPU] = at
				} else {
					arena.Entries[tails[rec.CPU]].Next = at
				}
				tails[rec.CPU] = at
			}
			offset += int64(len(line))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("loading trace file: %w", readErr)
		}
	}
	if arena.Skipped > 0 {
		f.logger.Warn("skipped undecodable records",
			zap.Int("stream", s.ID),
			zap.Int("skipped", arena.Skipped),
		)
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

// SetContentFilter implements stream.ContentFilterer. The expression is
// a plain substring matched against the record's info text.
func (f *Format) SetContentFilter(s *stream.Stream, expr string) error {
	st, err := f.state(s)
	if err != nil {
		return err
	}
	st.contentFilter = expr
	return nil
}

// ClearContentFilter implements stream.ContentFilterer.
func (f *Format) ClearContentFilter(s *stream.Stream) {
	if st, ok := f.streams[s.ID]; ok {
		st.contentFilter = ""
	}
}

// ContentFilter implements stream.ContentFilterer.
func (f *Format) ContentFilter(s *stream.Stream) string {
	if st, ok := f.streams[s.ID]; ok {
		return st.contentFilter
	}
	return ""
}

// MatchContent implements stream.ContentFilterer by re-reading the raw
// record, which is why content filtering only happens during a load
// pass.
func (f *Format) MatchContent(s *stream.Stream, e *domain.Entry) bool {
	st, ok := f.streams[s.ID]
	if !ok || st.contentFilter == "" {
		return true
	}
	rec, err := st.readAt(e.Offset)
	if err != nil {
		return false
	}
	return strings.Contains(rec.Info, st.contentFilter)
}
