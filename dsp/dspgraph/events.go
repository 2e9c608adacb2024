package dspgraph

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// HandlerID identifies a registered node event handler.
type HandlerID uint64

// NodeFaultEvent is posted when a node's kernel panics, fails, or cannot be
// initialized or updated.
type NodeFaultEvent struct {
	Err error
}

type nodeEvent struct {
	node    NodeHandle
	payload any
}

type handlerEntry struct {
	id HandlerID
	fn func(NodeHandle, any)
}

type eventHandlers struct {
	mu     sync.RWMutex
	next   HandlerID
	byType map[reflect.Type][]handlerEntry
	types  map[HandlerID]reflect.Type
}

func newEventHandlers() *eventHandlers {
	return &eventHandlers{
		byType: make(map[reflect.Type][]handlerEntry),
		types:  make(map[HandlerID]reflect.Type),
	}
}

// AddNodeEventHandler registers fn for node events whose payload has type T.
// Handlers run on the graph's dispatcher goroutine in registration order.
func AddNodeEventHandler[T any](g *Graph, fn func(node NodeHandle, event T)) (HandlerID, error) {
	if fn == nil {
		return 0, fmt.Errorf("%w: nil handler", ErrInvalidParameter)
	}

	if g.disposed.Load() {
		return 0, ErrGraphDisposed
	}

	typ := reflect.TypeFor[T]()
	h := g.handlers

	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := h.next
	h.byType[typ] = append(h.byType[typ], handlerEntry{
		id: id,
		fn: func(node NodeHandle, payload any) {
			fn(node, payload.(T))
		},
	})
	h.types[id] = typ

	return id, nil
}

// RemoveNodeEventHandler unregisters a handler and reports whether it was
// registered.
func (g *Graph) RemoveNodeEventHandler(id HandlerID) bool {
	h := g.handlers

	h.mu.Lock()
	defer h.mu.Unlock()

	typ, ok := h.types[id]
	if !ok {
		return false
	}

	delete(h.types, id)

	list := h.byType[typ]
	i := sort.Search(len(list), func(i int) bool { return list[i].id >= id })

	if i < len(list) && list[i].id == id {
		h.byType[typ] = append(list[:i:i], list[i+1:]...)
	}

	if len(h.byType[typ]) == 0 {
		delete(h.byType, typ)
	}

	return true
}

func (h *eventHandlers) dispatch(ev nodeEvent) int {
	h.mu.RLock()
	list := h.byType[reflect.TypeOf(ev.payload)]
	h.mu.RUnlock()

	for _, e := range list {
		e.fn(ev.node, ev.payload)
	}

	return len(list)
}

func (g *Graph) postEvent(node NodeHandle, payload any) bool {
	select {
	case g.events <- nodeEvent{node: node, payload: payload}:
		return true
	default:
		g.metrics.eventsDropped.Inc()
		return false
	}
}

func (g *Graph) wakeDispatcher() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop delivers node events and update request callbacks on the
// control side until the graph is disposed.
func (g *Graph) dispatchLoop() {
	defer close(g.dispatcherDone)

	for {
		select {
		case ev := <-g.events:
			g.deliver(ev)
		case <-g.wake:
			g.completed.drain(g.finishRequest)
		case <-g.stop:
			for {
				select {
				case ev := <-g.events:
					g.deliver(ev)
				default:
					g.completed.drain(g.finishRequest)
					return
				}
			}
		}
	}
}

func (g *Graph) deliver(ev nodeEvent) {
	if fault, ok := ev.payload.(NodeFaultEvent); ok {
		g.metrics.nodeFaults.Inc()
		g.logger.Warn().Err(fault.Err).Stringer("node", ev.node).Msg("node faulted")
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Stringer("node", ev.node).Msg("event handler panic recovered")
		}
	}()

	g.handlers.dispatch(ev)
}
