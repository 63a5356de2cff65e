// Package plugin implements the hook registry the load pipeline and the
// external renderer consult, plus the lifecycle contract plugins follow
// when attaching to a stream.
//
// Hot-loading plugin binaries is out of scope: a loader that brings code
// in from anywhere can call the same registration API a statically
// linked plugin does.
package plugin

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/yairfalse/traceview/pkg/domain"
	"github.com/yairfalse/traceview/pkg/stream"
)

// EventHandlerFunc processes one entry during the load pass. It may
// rewrite the entry's PID and clear domain.PluginUntouchedMask to tell
// downstream consumers to re-derive pid/event from the raw record.
type EventHandlerFunc func(s *stream.Stream, e *domain.Entry)

// DrawAction tells a draw handler what the renderer is drawing.
type DrawAction int

const (
	DrawTaskPlot DrawAction = iota
	DrawCPUPlot
)

// DrawContext carries the renderer state a draw handler works against.
// The canvas is opaque to the core; its type is a contract between the
// renderer and the plugin.
type DrawContext struct {
	StreamID int
	Action   DrawAction
	Value    int
	Canvas   any
}

// DrawHandlerFunc annotates the rendering of one plot. Consumed only by
// the external renderer, never by the load pipeline.
type DrawHandlerFunc func(s *stream.Stream, ctx *DrawContext)

// EventHandler is one node of a stream's event-hook list.
type EventHandler struct {
	Next    *EventHandler
	EventID int
	Fn      EventHandlerFunc
}

// DrawHandler is one node of a stream's draw-hook list.
type DrawHandler struct {
	Next *DrawHandler
	Fn   DrawHandlerFunc
}

// funcID identifies a handler function for unregistration. Handlers
// are matched structurally by code pointer, the same way they were
// registered.
func funcID(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// FindEventHandler scans a hook list starting at head for the first
// handler registered for eventID. Call it again with the returned
// node's Next to visit every matching hook: a single (stream, event)
// pair may carry cooperating hooks from different plugins, and all of
// them must run.
func FindEventHandler(head *EventHandler, eventID int) *EventHandler {
	for h := head; h != nil; h = h.Next {
		if h.EventID == eventID {
			return h
		}
	}
	return nil
}

// Plugin is the lifecycle contract. Init may call back into the hook
// registry; Close must undo every registration Init made.
type Plugin interface {
	Name() string
	Init(s *stream.Stream, hooks *Registry) error
	Close(s *stream.Stream, hooks *Registry) error
}

// Registry holds the per-stream hook lists and the plugins attached to
// each stream.
type Registry struct {
	event   map[int]*EventHandler
	draw    map[int]*DrawHandler
	plugins map[int][]Plugin
	logger  *zap.Logger
}

// NewRegistry returns an empty hook registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		event:   make(map[int]*EventHandler),
		draw:    make(map[int]*DrawHandler),
		plugins: make(map[int][]Plugin),
		logger:  logger.Named("plugins"),
	}
}

// RegisterEventHandler prepends a hook to the stream's event-hook list.
// Duplicate (eventID, fn) pairs are allowed to coexist; avoiding double
// registration is the caller's job.
func (r *Registry) RegisterEventHandler(streamID, eventID int, fn EventHandlerFunc) {
	r.event[streamID] = &EventHandler{
		Next:    r.event[streamID],
		EventID: eventID,
		Fn:      fn,
	}
}

// UnregisterEventHandler removes the first handler structurally
// matching (eventID, fn) from the stream's list.
func (r *Registry) UnregisterEventHandler(streamID, eventID int, fn EventHandlerFunc) {
	var prev *EventHandler
	for h := r.event[streamID]; h != nil; h = h.Next {
		if h.EventID == eventID && funcID(h.Fn) == funcID(fn) {
			if prev == nil {
				r.event[streamID] = h.Next
			} else {
				prev.Next = h.Next
			}
			return
		}
		prev = h
	}
}

// EventHandlers returns the head of the stream's event-hook list.
func (r *Registry) EventHandlers(streamID int) *EventHandler {
	return r.event[streamID]
}

// RegisterDrawHandler prepends a hook to the stream's draw-hook list.
func (r *Registry) RegisterDrawHandler(streamID int, fn DrawHandlerFunc) {
	r.draw[streamID] = &DrawHandler{
		Next: r.draw[streamID],
		Fn:   fn,
	}
}

// UnregisterDrawHandler removes the first handler with the same
// function from the stream's draw-hook list.
func (r *Registry) UnregisterDrawHandler(streamID int, fn DrawHandlerFunc) {
	var prev *DrawHandler
	for h := r.draw[streamID]; h != nil; h = h.Next {
		if funcID(h.Fn) == funcID(fn) {
			if prev == nil {
				r.draw[streamID] = h.Next
			} else {
				prev.Next = h.Next
			}
			return
		}
		prev = h
	}
}

// DrawHandlers returns the head of the stream's draw-hook list.
func (r *Registry) DrawHandlers(streamID int) *DrawHandler {
	return r.draw[streamID]
}

// Attach runs a plugin's initializer against a stream and records the
// attachment. Multiple plugins may be active per stream.
func (r *Registry) Attach(p Plugin, s *stream.Stream) error {
	if err := p.Init(s, r); err != nil {
		return fmt.Errorf("plugin %s init on stream %d: %w", p.Name(), s.ID, err)
	}
	r.plugins[s.ID] = append(r.plugins[s.ID], p)
	r.logger.Info("plugin attached",
		zap.String("plugin", p.Name()),
		zap.Int("stream", s.ID),
	)
	return nil
}

// Detach runs a plugin's deinitializer and forgets the attachment. The
// plugin itself stays usable for other streams.
func (r *Registry) Detach(p Plugin, s *stream.Stream) error {
	attached := r.plugins[s.ID]
	for i, q := range attached {
		if q != p {
			continue
		}
		r.plugins[s.ID] = append(attached[:i], attached[i+1:]...)
		if err := p.Close(s, r); err != nil {
			return fmt.Errorf("plugin %s close on stream %d: %w", p.Name(), s.ID, err)
		}
		return nil
	}
	return nil
}

// CloseStream detaches every plugin from a stream and drops its hook
// lists. Invoked by the registry when the stream closes.
func (r *Registry) CloseStream(s *stream.Stream) {
	for _, p := range r.plugins[s.ID] {
		if err := p.Close(s, r); err != nil {
			r.logger.Warn("plugin close failed",
				zap.String("plugin", p.Name()),
				zap.Int("stream", s.ID),
				zap.Error(err),
			)
		}
	}
	delete(r.plugins, s.ID)
	delete(r.event, s.ID)
	delete(r.draw, s.ID)
}

// Attached lists the plugins currently attached to a stream.
func (r *Registry) Attached(streamID int) []Plugin {
	return r.plugins[streamID]
}
