// Package stream models one open trace source: its decode interface,
// its ID filters, its task registry and its clock calibration.
package stream

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yairfalse/traceview/pkg/domain"
	"github.com/yairfalse/traceview/pkg/hashset"
)

// filterBits is the bucket width of the per-stream ID filters. Filters
// hold at most a few hundred ids, so small tables are enough.
const filterBits = 8

var (
	// ErrReloadRequired is returned when an operation would need raw
	// record access that only a full load pass can provide.
	ErrReloadRequired = errors.New("content filter active: full reload required")

	// ErrNoContentFilter is returned when the stream's format does not
	// implement content filtering.
	ErrNoContentFilter = errors.New("format does not support content filters")
)

// Stream is one open trace source. A Stream is owned exclusively by the
// registry that opened it; its id is invalid the moment the registry
// closes it.
type Stream struct {
	// ID is the registry slot of this stream.
	ID int

	// File is the path of the backing store.
	File string

	// NCPUs is the number of CPUs the trace was taken on.
	NCPUs int

	// NEvents is the number of distinct event types in the trace.
	NEvents int

	// Tasks registers every task id observed while loading.
	Tasks *hashset.Set

	// The six ID filters, show/hide per dimension.
	ShowTaskFilterSet  *hashset.Set
	HideTaskFilterSet  *hashset.Set
	ShowEventFilterSet *hashset.Set
	HideEventFilterSet *hashset.Set
	ShowCPUFilterSet   *hashset.Set
	HideCPUFilterSet   *hashset.Set

	format Format
	calib  domain.CalibFunc
	argv   []int64
	logger *zap.Logger

	// mu guards on-demand re-reads of the raw backing store. It is held
	// only for the duration of a single record read, never across
	// unrelated work, so independent streams never serialize each other.
	mu sync.Mutex
}

// New returns a stream bound to a registry slot. The format is attached
// separately via Attach, after Open succeeds.
func New(id int, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		ID:                 id,
		Tasks:              hashset.New(filterBits),
		ShowTaskFilterSet:  hashset.New(filterBits),
		HideTaskFilterSet:  hashset.New(filterBits),
		ShowEventFilterSet: hashset.New(filterBits),
		HideEventFilterSet: hashset.New(filterBits),
		ShowCPUFilterSet:   hashset.New(filterBits),
		HideCPUFilterSet:   hashset.New(filterBits),
		logger:             logger.Named(fmt.Sprintf("stream-%d", id)),
	}
}

// Attach binds the stream to its decode interface and backing file.
func (s *Stream) Attach(f Format, path string) error {
	if err := f.Open(s, path); err != nil {
		return fmt.Errorf("opening %s as %s: %w", path, f.Name(), err)
	}
	s.format = f
	s.File = path
	s.logger.Info("stream opened",
		zap.String("format", f.Name()),
		zap.String("file", path),
		zap.Int("cpus", s.NCPUs),
		zap.Int("event_types", s.NEvents),
	)
	return nil
}

// Format returns the stream's decode interface.
func (s *Stream) Format() Format {
	return s.format
}

// Release closes the decode interface and drops all filter state.
// Filter state is never reused across a reopened file.
func (s *Stream) Release() error {
	s.ClearAllFilters()
	s.Tasks.Clear()
	if s.format == nil {
		return nil
	}
	err := s.format.Close(s)
	s.format = nil
	if err != nil {
		return fmt.Errorf("closing stream %d: %w", s.ID, err)
	}
	return nil
}

// SetCalibration installs the clock calibration applied to every
// timestamp decoded from this stream.
func (s *Stream) SetCalibration(fn domain.CalibFunc, argv []int64) {
	s.calib = fn
	s.argv = argv
}

// Calibrate returns ts adjusted by the stream's calibration, or ts
// unchanged when none is installed.
func (s *Stream) Calibrate(ts int64) int64 {
	if s.calib == nil {
		return ts
	}
	return s.calib(ts, s.argv)
}

// On-demand accessors. Each takes the stream's re-read mutex because
// the format may have to re-read the raw record behind the entry.

// PID re-derives the pid of the raw record behind e.
func (s *Stream) PID(e *domain.Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.PID(s, e)
}

// EventID re-derives the event id of the raw record behind e.
func (s *Stream) EventID(e *domain.Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.EventID(s, e)
}

// EventName resolves the display name of e's event type.
func (s *Stream) EventName(e *domain.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.EventName(s, e)
}

// TaskName resolves the task name of e's pid.
func (s *Stream) TaskName(e *domain.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.TaskName(s, e)
}

// Latency returns the format's latency annotation for e.
func (s *Stream) Latency(e *domain.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.Latency(s, e)
}

// Info returns the decoded payload of e.
func (s *Stream) Info(e *domain.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.Info(s, e)
}

// DumpEntry renders e as one human-readable line.
func (s *Stream) DumpEntry(e *domain.Entry) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.DumpEntry(s, e)
}

// ReadEventField reads one named numeric field of the record behind e.
func (s *Stream) ReadEventField(e *domain.Entry, field string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.ReadEventField(s, e, field)
}
