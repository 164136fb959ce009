// Package events implements a small in-process progress bus. It exists
// so internal listeners (the structured-logging LogListener) can react to
// job progress as it happens instead of re-polling the Job Store on their
// own schedule. The TUI dashboard and the metrics registry do not
// subscribe to it. It is never exposed over HTTP.
package events

import "sync"

// Event is one progress notification for a job.
type Event struct {
	JobID    string
	Progress int
	Stage    string // "search", "researched_answers", "debate", "judge", "" for plain progress ticks
}

// Bus fans out Events to every registered subscriber, matching the
// register/unregister/broadcast shape of a typical SSE hub but keeping
// events in-process instead of writing them to an HTTP response.
type Bus struct {
	mu         sync.RWMutex
	clients    map[chan Event]bool
	broadcast  chan Event
	register   chan chan Event
	unregister chan chan Event
	done       chan struct{}
}

// NewBus creates a Bus. Call Run in a goroutine to start dispatching.
func NewBus() *Bus {
	return &Bus{
		clients:    make(map[chan Event]bool),
		broadcast:  make(chan Event),
		register:   make(chan chan Event),
		unregister: make(chan chan Event),
		done:       make(chan struct{}),
	}
}

// Run dispatches events to subscribers until Stop is called.
func (b *Bus) Run() {
	for {
		select {
		case <-b.done:
			return
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
			}
			b.mu.Unlock()
		case event := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- event:
				default:
					// slow subscriber; drop rather than block the bus
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Stop ends the dispatch loop.
func (b *Bus) Stop() {
	close(b.done)
}

// Subscribe registers a new listener channel. Callers must eventually
// call Unsubscribe to release it.
func (b *Bus) Subscribe() chan Event {
	client := make(chan Event, 16)
	b.register <- client
	return client
}

// Unsubscribe deregisters a listener previously returned by Subscribe.
func (b *Bus) Unsubscribe(client chan Event) {
	b.unregister <- client
}

// Publish broadcasts a plain progress update. It satisfies the
// progressPublisher shape the Async Worker expects.
func (b *Bus) Publish(jobID string, progress int) {
	b.broadcast <- Event{JobID: jobID, Progress: progress}
}

// PublishStage broadcasts a stage-transition event, used by the Research
// Pipeline's progress hook.
func (b *Bus) PublishStage(jobID, stage string) {
	b.broadcast <- Event{JobID: jobID, Stage: stage}
}
