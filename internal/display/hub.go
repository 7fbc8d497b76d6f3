// Package display relays bridge events to the one attached display and keeps
// enough recent output to repaint a display that attaches mid-session.
package display

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/Raj-Manghani/terminus-prime/internal/shellbridge"
)

var (
	// ErrAlreadyAttached is returned by Attach while another display is attached.
	ErrAlreadyAttached = errors.New("a display is already attached")
	// ErrClosed is returned by Attach after the event source closed.
	ErrClosed = errors.New("display hub closed")
)

const attachmentBuffer = 64

// Hub is the sole consumer of a bridge's event channel.
type Hub struct {
	source     <-chan shellbridge.Event
	scrollback *ScrollbackBuffer
	done       chan struct{}

	mu         sync.Mutex
	current    *Attachment
	lastStatus *shellbridge.Event
	closed     bool
}

// NewHub creates a hub over source. Call Run to start consuming.
func NewHub(source <-chan shellbridge.Event, scrollbackBytes int) *Hub {
	return &Hub{
		source:     source,
		scrollback: NewScrollbackBuffer(scrollbackBytes),
		done:       make(chan struct{}),
	}
}

// Attachment is one attached display.
type Attachment struct {
	// Scrollback is the output of the current attempt up to the attach.
	Scrollback []byte
	// Status is the most recent status event, if any.
	Status *shellbridge.Event

	hub      *Hub
	events   chan shellbridge.Event
	detached chan struct{}
	once     sync.Once
}

// Events delivers every event after the attach. It is closed when the hub
// stops.
func (a *Attachment) Events() <-chan shellbridge.Event {
	return a.events
}

// Detach releases the hub for another display.
func (a *Attachment) Detach() {
	a.once.Do(func() {
		close(a.detached)
		a.hub.mu.Lock()
		if a.hub.current == a {
			a.hub.current = nil
		}
		a.hub.mu.Unlock()
		log.Printf("[display] detached")
	})
}

// Attach registers a display and returns what it needs to repaint.
func (h *Hub) Attach() (*Attachment, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if h.current != nil {
		return nil, ErrAlreadyAttached
	}
	a := &Attachment{
		Scrollback: h.scrollback.Snapshot(),
		hub:        h,
		events:     make(chan shellbridge.Event, attachmentBuffer),
		detached:   make(chan struct{}),
	}
	if h.lastStatus != nil {
		st := *h.lastStatus
		a.Status = &st
	}
	h.current = a
	log.Printf("[display] attached, replaying %d bytes", len(a.Scrollback))
	return a, nil
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run consumes events until the source closes or ctx is cancelled. Events
// with no display attached are recorded and dropped; an attached display
// that stops reading holds up the bridge until it detaches.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.shutdown()

	for {
		var e shellbridge.Event
		var ok bool
		select {
		case <-ctx.Done():
			return
		case e, ok = <-h.source:
			if !ok {
				return
			}
		}

		a := h.record(e)
		if a == nil {
			continue
		}
		select {
		case a.events <- e:
		case <-a.detached:
		case <-ctx.Done():
			return
		}
	}
}

// record updates scrollback and status under the lock Attach uses, so every
// event lands either in an attachment's snapshot or in its channel.
func (h *Hub) record(e shellbridge.Event) *Attachment {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch e.Type {
	case shellbridge.EventStatus:
		if e.Status == shellbridge.StatusConnected {
			h.scrollback.Reset()
		}
		st := e
		h.lastStatus = &st
	case shellbridge.EventData, shellbridge.EventEcho:
		h.scrollback.Write(e.Data)
	}
	return h.current
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	a := h.current
	h.current = nil
	h.closed = true
	h.mu.Unlock()
	if a != nil {
		close(a.events)
	}
}
