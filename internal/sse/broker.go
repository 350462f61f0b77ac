// Package sse implements a Server-Sent Events broker that tells connected
// readers when the book was rebuilt.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Event types.
const (
	TypeBuildCompleted  = "build.completed"
	TypeBuildFailed     = "build.failed"
	TypeStepUpdated     = "step.updated"
	TypeStepRemoved     = "step.removed"
	TypeManifestUpdated = "manifest.updated"
)

// BuildCompleted is the payload of a build.completed event.
type BuildCompleted struct {
	RunID      string `json:"runId"`
	Steps      int    `json:"steps"`
	DurationMS int64  `json:"durationMs"`
}

type stepEventReq struct {
	kind string
	slug string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal event loop owns the client set and the manifest throttle
// timestamp. Public methods talk to the loop through channels.
type Broker struct {
	manifestMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	stepEventCh   chan stepEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits manifest.updated at most once per
// manifestThrottle.
func NewBroker(manifestThrottle time.Duration) *Broker {
	if manifestThrottle <= 0 {
		manifestThrottle = 2 * time.Second
	}

	b := &Broker{
		manifestMin:   manifestThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		stepEventCh:   make(chan stepEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastManifest time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.stepEventCh:
			broadcast(Event{Type: req.kind, Data: map[string]string{"slug": req.slug}})

			now := time.Now()
			if now.Sub(lastManifest) >= b.manifestMin {
				lastManifest = now
				broadcast(Event{Type: TypeManifestUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishStepEvent publishes a step.updated or step.removed event followed
// by a throttled manifest.updated event. Unknown kinds are ignored.
func (b *Broker) PublishStepEvent(kind, slug string) {
	if kind != TypeStepUpdated && kind != TypeStepRemoved {
		return
	}
	if b.closed.Load() {
		return
	}
	select {
	case b.stepEventCh <- stepEventReq{kind: kind, slug: slug}:
	case <-b.stopped:
	}
}

// PublishBuild announces a finished rebuild and the steps it changed.
func (b *Broker) PublishBuild(summary BuildCompleted, updated, removed []string) {
	b.Publish(Event{Type: TypeBuildCompleted, Data: summary})
	for _, slug := range updated {
		b.PublishStepEvent(TypeStepUpdated, slug)
	}
	for _, slug := range removed {
		b.PublishStepEvent(TypeStepRemoved, slug)
	}
}

// PublishBuildFailed announces a rebuild that left the previous output in place.
func (b *Broker) PublishBuildFailed(err error) {
	b.Publish(Event{Type: TypeBuildFailed, Data: map[string]string{"error": err.Error()}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
