package stream

import (
	"context"

	"github.com/yairfalse/traceview/pkg/domain"
)

// Format is the decode interface every trace-format implementation
// provides. The core never reaches into format-specific storage
// directly; everything it knows about a raw record flows through this
// interface.
//
// Accessors taking an *domain.Entry may re-read the raw record behind
// Entry.Offset. Callers must go through the Stream wrappers, which hold
// the stream's re-read mutex for the duration of the call.
type Format interface {
	// Name returns the format identifier, e.g. "jsonl".
	Name() string

	// Open attaches the format to the backing file and fills in the
	// stream's cpu and event-type counts. Called once per stream by the
	// registry.
	Open(s *Stream, path string) error

	// Close releases format-owned resources.
	Close(s *Stream) error

	// PID re-derives the pid of the raw record behind e.
	PID(s *Stream, e *domain.Entry) (int, error)

	// EventID re-derives the event type of the raw record behind e.
	EventID(s *Stream, e *domain.Entry) (int, error)

	// EventName resolves an event id to its display name.
	EventName(s *Stream, e *domain.Entry) (string, error)

	// TaskName resolves the task (command) name of the record's pid.
	TaskName(s *Stream, e *domain.Entry) (string, error)

	// Latency returns the format's latency annotation for the record.
	Latency(s *Stream, e *domain.Entry) (string, error)

	// Info returns the decoded free-form payload of the record.
	Info(s *Stream, e *domain.Entry) (string, error)

	// DumpEntry renders one entry as a single human-readable line.
	DumpEntry(s *Stream, e *domain.Entry) string

	// EventIDByName maps an event name back to its id.
	EventIDByName(s *Stream, name string) (int, bool)

	// AllEventIDs lists every event type id the stream contains.
	AllEventIDs(s *Stream) ([]int, error)

	// ReadEventField reads one named numeric field of the raw record.
	ReadEventField(s *Stream, e *domain.Entry, field string) (int64, error)

	// LoadEntries bulk-decodes the backing store into an entry arena:
	// entries in per-CPU chronological chains, Next links and CPUHeads
	// set, timestamps raw (uncalibrated), visibility VisibleAll.
	LoadEntries(ctx context.Context, s *Stream) (*EntryArena, error)

	// LoadMatrix bulk-decodes into parallel columns for columnar
	// consumers.
	LoadMatrix(ctx context.Context, s *Stream) (*Matrix, error)
}

// ContentFilterer is the optional content ("advanced") filter extension
// of a Format. Content filtering matches decoded field values, so it
// needs raw-record access; it can only be applied during a load pass,
// never by bulk re-filtering an already loaded array.
type ContentFilterer interface {
	// SetContentFilter installs a filter expression. The expression
	// syntax is owned by the format.
	SetContentFilter(s *Stream, expr string) error

	// ClearContentFilter removes the installed expression.
	ClearContentFilter(s *Stream)

	// ContentFilter returns the installed expression, empty if none.
	ContentFilter(s *Stream) string

	// MatchContent evaluates the installed expression against the raw
	// record behind e. Only meaningful while a load pass holds the
	// record readable.
	MatchContent(s *Stream, e *domain.Entry) bool
}

// EntryArena is the bulk-load product of a Format: one owning slice of
// entries plus the index of each CPU's chronologically first entry.
// Next links are arena indices (domain.NoEntry terminates a chain).
type EntryArena struct {
	Entries  []domain.Entry
	CPUHeads []int32

	// Skipped counts raw records dropped as undecodable. Missing data,
	// not an error.
	Skipped int
}

// Matrix holds the same records as an EntryArena decomposed into
// parallel columns, for consumers that want columnar layout.
type Matrix struct {
	CPUs     []int16
	PIDs     []int32
	EventIDs []int16
	Offsets  []int64
	TS       []int64
}

// Size returns the number of records in the matrix.
func (m *Matrix) Size() int {
	return len(m.TS)
}
