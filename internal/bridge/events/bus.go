// Package events is the broadcast channel every bridge event flows through.
// Events coming from the peer, the host SDK and the mock synthesizer are all
// dispatched here, so a subscriber sees one stream regardless of origin.
package events

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"
)

// DefaultWindow is how many recent event identities a Bus remembers.
const DefaultWindow = 256

// Source names where an event was dispatched from.
type Source string

const (
	SourceBroadcast Source = "broadcast"
	SourceSDK       Source = "sdk"
	SourceMock      Source = "mock"
)

// Event is a named payload. Detail holds the JSON payload as delivered.
type Event struct {
	Name   string
	Detail json.RawMessage
	// ID identifies the logical event. When empty, Dispatch uses the
	// top-level "requestId" of Detail if there is one.
	ID     string
	Source Source
}

// New encodes detail into an Event.
func New(name string, detail any) (Event, error) {
	b, err := json.Marshal(detail)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Detail: b}, nil
}

// Decode unmarshals the event detail into v.
func (e Event) Decode(v any) error {
	if len(e.Detail) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(e.Detail, v)
}

// Handler receives dispatched events.
type Handler func(Event)

// Listener is the handle returned by Subscribe.
type Listener struct {
	name    string
	handler Handler
	once    bool
	removed bool
}

// Name returns the event name the listener is registered for.
func (l *Listener) Name() string { return l.name }

// Bus delivers events synchronously in registration order.
type Bus struct {
	mu        sync.Mutex
	listeners map[string][]*Listener
	window    int
	seen      map[string]struct{}
	order     []string
}

// NewBus returns a bus that remembers up to window identities. window <= 0
// uses DefaultWindow.
func NewBus(window int) *Bus {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Bus{
		listeners: make(map[string][]*Listener),
		window:    window,
		seen:      make(map[string]struct{}),
	}
}

// Subscribe registers h for name. A once listener is removed before its
// first delivery.
func (b *Bus) Subscribe(name string, h Handler, once bool) *Listener {
	l := &Listener{name: name, handler: h, once: once}
	b.mu.Lock()
	b.listeners[name] = append(b.listeners[name], l)
	b.mu.Unlock()
	return l
}

// Unsubscribe removes l. It reports whether l was still registered.
func (b *Bus) Unsubscribe(l *Listener) bool {
	if l == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(l)
}

func (b *Bus) removeLocked(l *Listener) bool {
	if l.removed {
		return false
	}
	list := b.listeners[l.name]
	for i, cur := range list {
		if cur != l {
			continue
		}
		next := make([]*Listener, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.listeners, l.name)
		} else {
			b.listeners[l.name] = next
		}
		l.removed = true
		return true
	}
	return false
}

// Dispatch delivers ev to the current listeners of ev.Name and returns how
// many were called. An event whose identity was already dispatched under the
// same name is dropped.
func (b *Bus) Dispatch(ev Event) int {
	if ev.ID == "" {
		ev.ID = identity(ev.Detail)
	}
	b.mu.Lock()
	if ev.ID != "" && !b.remember(ev.Name+"\x00"+ev.ID) {
		b.mu.Unlock()
		return 0
	}
	targets := append([]*Listener(nil), b.listeners[ev.Name]...)
	for _, l := range targets {
		if l.once {
			b.removeLocked(l)
		}
	}
	b.mu.Unlock()

	for _, l := range targets {
		l.handler(ev)
	}
	return len(targets)
}

// remember must be called with mu held. It reports whether key is new.
func (b *Bus) remember(key string) bool {
	if _, ok := b.seen[key]; ok {
		return false
	}
	if len(b.order) >= b.window {
		delete(b.seen, b.order[0])
		b.order = b.order[1:]
	}
	b.seen[key] = struct{}{}
	b.order = append(b.order, key)
	return true
}

// Names lists event names with at least one listener, sorted.
func (b *Bus) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.listeners))
	for name := range b.listeners {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ListenerCount returns the number of listeners registered for name.
func (b *Bus) ListenerCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[name])
}

func identity(detail json.RawMessage) string {
	detail = bytes.TrimSpace(detail)
	if len(detail) == 0 || detail[0] != '{' {
		return ""
	}
	var probe struct {
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(detail, &probe); err != nil {
		return ""
	}
	return probe.RequestID
}
