// Package registry owns the table of concurrently open trace streams,
// the global view filter mask, the plugin hook registry and the
// collection registry. One Registry is one explicit "session": nothing
// here is process-global, embedders construct it, thread it through,
// and tear it down.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yairfalse/traceview/pkg/collection"
	"github.com/yairfalse/traceview/pkg/domain"
	"github.com/yairfalse/traceview/pkg/plugin"
	"github.com/yairfalse/traceview/pkg/stream"
)

// DefaultMaxStreams bounds how many streams one registry can hold open.
const DefaultMaxStreams = 256

var (
	// ErrRegistryFull is returned by Open when every slot is taken.
	ErrRegistryFull = errors.New("stream registry full")

	// ErrStreamNotFound is returned for ids with no open stream. A
	// stream id is invalid immediately after Close.
	ErrStreamNotFound = errors.New("no such stream")

	// ErrNoFormat is returned by Open when no registered format accepts
	// the file.
	ErrNoFormat = errors.New("no registered format accepts file")
)

// Registry is the session-wide state of the trace store.
type Registry struct {
	mu      sync.RWMutex
	streams []*stream.Stream
	count   int

	// filterMask is the set of view bits downstream viewers honor when
	// the registry applies ID filters.
	filterMask uint8

	// formats is the probe list Open tries in registration order.
	formats []stream.Format

	hooks       *plugin.Registry
	collections *collection.Registry
	logger      *zap.Logger
}

// New returns an empty registry with capacity for maxStreams open
// streams (DefaultMaxStreams when <= 0).
func New(maxStreams int, logger *zap.Logger) *Registry {
	if maxStreams <= 0 {
		maxStreams = DefaultMaxStreams
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		streams:     make([]*stream.Stream, maxStreams),
		filterMask:  domain.TextViewMask | domain.GraphViewMask | domain.EventViewMask,
		hooks:       plugin.NewRegistry(logger),
		collections: collection.NewRegistry(logger),
		logger:      logger.Named("registry"),
	}
}

// RegisterFormat appends a format to the probe list Open consults.
// Registration order is probe order; the first format whose opener
// accepts a file wins.
func (r *Registry) RegisterFormat(f stream.Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats = append(r.formats, f)
}

// FormatByName returns the registered format with the given name.
func (r *Registry) FormatByName(name string) (stream.Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.formats {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// Open allocates a stream slot and probes path against every registered
// format, in registration order, until one accepts it. Returns the new
// stream id, or ErrNoFormat when every opener rejects the file. The
// stream count grows only on success.
func (r *Registry) Open(path string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.freeSlot()
	if err != nil {
		return -1, err
	}
	for _, f := range r.formats {
		s := stream.New(slot, r.logger)
		if err := s.Attach(f, path); err != nil {
			r.logger.Debug("format probe rejected file",
				zap.String("format", f.Name()),
				zap.String("file", path),
				zap.Error(err),
			)
			continue
		}
		r.streams[slot] = s
		r.count++
		return slot, nil
	}
	return -1, fmt.Errorf("%w: %s", ErrNoFormat, path)
}

// OpenWith allocates a stream slot and opens path with an explicitly
// chosen format, bypassing the probe.
func (r *Registry) OpenWith(path string, f stream.Format) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.freeSlot()
	if err != nil {
		return -1, err
	}
	s := stream.New(slot, r.logger)
	if err := s.Attach(f, path); err != nil {
		return -1, fmt.Errorf("opening stream: %w", err)
	}
	r.streams[slot] = s
	r.count++
	return slot, nil
}

func (r *Registry) freeSlot() (int, error) {
	for i, s := range r.streams {
		if s == nil {
			return i, nil
		}
	}
	return -1, ErrRegistryFull
}

// Get returns the open stream behind id, or ErrStreamNotFound.
func (r *Registry) Get(id int) (*stream.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || id >= len(r.streams) || r.streams[id] == nil {
		return nil, ErrStreamNotFound
	}
	return r.streams[id], nil
}

// Streams returns every open stream in slot order.
func (r *Registry) Streams() []*stream.Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	open := make([]*stream.Stream, 0, r.count)
	for _, s := range r.streams {
		if s != nil {
			open = append(open, s)
		}
	}
	return open
}

// Count returns the number of open streams.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Close tears one stream down: unregisters its collections, detaches
// its plugins, clears its filters and releases its decode interface.
// The id is invalid from this point on.
func (r *Registry) Close(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked(id)
}

func (r *Registry) closeLocked(id int) error {
	if id < 0 || id >= len(r.streams) || r.streams[id] == nil {
		return ErrStreamNotFound
	}
	s := r.streams[id]
	r.collections.UnregisterStream(id)
	r.hooks.CloseStream(s)
	err := s.Release()
	r.streams[id] = nil
	r.count--
	r.logger.Info("stream closed", zap.Int("stream", id))
	if err != nil {
		return err
	}
	return nil
}

// CloseAll closes every open stream. Idempotent and safe during
// teardown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.streams {
		if s == nil {
			continue
		}
		if err := r.closeLocked(id); err != nil {
			r.logger.Warn("closing stream", zap.Int("stream", id), zap.Error(err))
		}
	}
}

// Hooks returns the registry's plugin hook registry.
func (r *Registry) Hooks() *plugin.Registry {
	return r.hooks
}

// Collections returns the registry's collection registry.
func (r *Registry) Collections() *collection.Registry {
	return r.collections
}

// FilterMask returns the view bits ID filtering currently acts on.
func (r *Registry) FilterMask() uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterMask
}

// SetFilterMask selects which view bits ID filtering acts on.
func (r *Registry) SetFilterMask(mask uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filterMask = mask & domain.AllViewsMask
}

// ClearAllFilters resets every stream's filters and restores every
// entry to fully visible.
func (r *Registry) ClearAllFilters(entries []domain.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.streams {
		if s != nil {
			s.ClearAllFilters()
		}
	}
	for i := range entries {
		entries[i].Visible |= domain.AllViewsMask
	}
}
