package domain

// Entry is the generic, format-independent representation of one trace
// record. Decoders produce entries; every downstream consumer (filters,
// collections, search, viewers) operates on them without knowing the
// trace file format.
//
// Timestamp and Offset are immutable once the entry is created. Visible
// and PID may be rewritten exactly once, by a plugin event hook during
// the load pass.
type Entry struct {
	// Next is the arena index of the chronologically next entry from
	// the same CPU of the same stream, or NoEntry. It is an index into
	// the owning arena, never a pointer, so merges that reallocate the
	// backing array cannot leave it dangling.
	Next int32

	// Visible is the per-view visibility bitmask, see the *View masks.
	Visible uint8

	// StreamID identifies the stream this entry was decoded from.
	StreamID int16

	// CPU the record was taken from.
	CPU int16

	// PID of the task this record belongs to.
	PID int32

	// EventID is the stream-local event type identifier.
	EventID int16

	// Offset of the raw record inside the stream's backing store. Used
	// to re-fetch full detail on demand.
	Offset int64

	// TS is the timestamp in nanoseconds since the stream's epoch.
	TS int64
}

// NoEntry marks the end of a per-CPU entry chain.
const NoEntry int32 = -1

// Visibility mask bits. The exact meaning of each view bit is a
// convention shared with the viewers consuming the entry array; the
// core only sets and clears them.
const (
	// TextViewMask marks the entry visible in the text (table) view.
	TextViewMask uint8 = 1 << 0

	// GraphViewMask marks the entry visible in the graph view.
	GraphViewMask uint8 = 1 << 1

	// EventViewMask marks the entry visible in event-aggregation views.
	EventViewMask uint8 = 1 << 2

	// PluginUntouchedMask is set on freshly decoded entries and cleared
	// by a plugin event hook that rewrites the entry. Consumers must
	// not trust the embedded pid/event of an entry without this bit and
	// should re-derive them from the raw record.
	PluginUntouchedMask uint8 = 1 << 7

	// AllViewsMask covers every view bit.
	AllViewsMask = TextViewMask | GraphViewMask | EventViewMask

	// VisibleAll is the visibility byte of an unfiltered, untouched entry.
	VisibleAll = AllViewsMask | PluginUntouchedMask
)

// Dummy entry field values. A dummy entry signals "a structural match
// exists but is filtered out", which callers must distinguish from "no
// match". Prefer branching on search.Outcome; the concrete sentinel is
// for callers that need an Entry value to hand to a viewer.
const (
	dummyCPU     int16 = -1
	dummyPID     int32 = -1
	dummyEventID int16 = -1
)

// DummyEntry returns the matched-but-hidden sentinel entry.
func DummyEntry() Entry {
	return Entry{
		Next:    NoEntry,
		CPU:     dummyCPU,
		PID:     dummyPID,
		EventID: dummyEventID,
	}
}

// IsDummy reports whether e is the matched-but-hidden sentinel.
func (e *Entry) IsDummy() bool {
	return e.TS == 0 && e.CPU == dummyCPU && e.PID == dummyPID && e.EventID == dummyEventID
}

// MatchFunc is the predicate type shared by collections and directional
// search. Implementations must be pure functions of the entry and the
// value tuple: collection keys compare predicates by function identity.
type MatchFunc func(e *Entry, streamID int, values []int64) bool

// MatchPID matches entries of one stream whose pid equals values[0].
func MatchPID(e *Entry, streamID int, values []int64) bool {
	return int(e.StreamID) == streamID && int64(e.PID) == values[0]
}

// MatchCPU matches entries of one stream taken on cpu values[0].
func MatchCPU(e *Entry, streamID int, values []int64) bool {
	return int(e.StreamID) == streamID && int64(e.CPU) == values[0]
}

// MatchEventID matches entries of one stream with event id values[0].
func MatchEventID(e *Entry, streamID int, values []int64) bool {
	return int(e.StreamID) == streamID && int64(e.EventID) == values[0]
}

// MatchVisible matches entries of one stream carrying every view bit in
// values[0].
func MatchVisible(e *Entry, streamID int, values []int64) bool {
	mask := uint8(values[0])
	return int(e.StreamID) == streamID && e.Visible&mask == mask
}
