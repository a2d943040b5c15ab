// websocket/hub.go
package websocket

import (
	"sync"

	"boleto-import-backend/imports/services"
)

// subscriberBuffer is how many events a slow subscriber may lag before it is dropped
const subscriberBuffer = 64

// Subscriber receives the progress events of one import
type Subscriber struct {
	ImportID string
	Send     chan services.ProgressEvent
}

// Hub fans progress events out to the subscribers of each import
type Hub struct {
	subscribers map[string]map[*Subscriber]bool
	broadcast   chan services.ProgressEvent
	register    chan *Subscriber
	unregister  chan *Subscriber
	done        chan struct{}
	stopOnce    sync.Once
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Subscriber]bool),
		broadcast:   make(chan services.ProgressEvent),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		done:        make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			if h.subscribers[sub.ImportID] == nil {
				h.subscribers[sub.ImportID] = make(map[*Subscriber]bool)
			}
			h.subscribers[sub.ImportID][sub] = true
			h.mu.Unlock()

		case sub := <-h.unregister:
			h.mu.Lock()
			h.remove(sub)
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.broadcastToImport(event)

		case <-h.done:
			h.mu.Lock()
			for _, subs := range h.subscribers {
				for sub := range subs {
					h.remove(sub)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends Run and closes every subscriber channel
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Subscribe registers interest in one import. It returns nil once the hub is stopped.
func (h *Hub) Subscribe(importID string) *Subscriber {
	sub := &Subscriber{
		ImportID: importID,
		Send:     make(chan services.ProgressEvent, subscriberBuffer),
	}
	select {
	case h.register <- sub:
		return sub
	case <-h.done:
		return nil
	}
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Broadcast sends an event to the subscribers of its import
func (h *Hub) Broadcast(event services.ProgressEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

// SubscriberCount returns the number of live subscribers for an import
func (h *Hub) SubscriberCount(importID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[importID])
}

func (h *Hub) broadcastToImport(event services.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers[event.ImportID] {
		select {
		case sub.Send <- event:
		default:
			h.remove(sub)
		}
	}
}

// remove must be called with mu held
func (h *Hub) remove(sub *Subscriber) {
	subs, ok := h.subscribers[sub.ImportID]
	if !ok || !subs[sub] {
		return
	}
	delete(subs, sub)
	close(sub.Send)
	if len(subs) == 0 {
		delete(h.subscribers, sub.ImportID)
	}
}
