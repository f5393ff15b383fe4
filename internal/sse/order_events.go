package sse

import (
	"context"
	"sync"

	"ms-storefront/internal/models"
)

const allProducts = ""

// OrderEventEmitter fans order lifecycle events out to connected SSE clients.
type OrderEventEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan models.OrderEvent
	buffer  int
}

func NewOrderEventEmitter() *OrderEventEmitter {
	return &OrderEventEmitter{
		clients: make(map[string][]chan models.OrderEvent),
		buffer:  16,
	}
}

// Subscribe registers a client for events of productID, or of every product
// when productID is empty. The channel closes once ctx is done.
func (e *OrderEventEmitter) Subscribe(ctx context.Context, productID string) <-chan models.OrderEvent {
	clientChan := make(chan models.OrderEvent, e.buffer)

	e.mu.Lock()
	e.clients[productID] = append(e.clients[productID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(productID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts event without blocking; slow clients miss events.
func (e *OrderEventEmitter) Emit(event models.OrderEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, key := range []string{allProducts, event.ProductID} {
		for _, clientChan := range e.clients[key] {
			select {
			case clientChan <- event:
			default:
			}
		}
		if event.ProductID == allProducts {
			break
		}
	}
}

// PublishOrderEvent lets the emitter stand in as an event publisher.
func (e *OrderEventEmitter) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	e.Emit(event)
	return nil
}

// Subscribers reports the number of connected clients.
func (e *OrderEventEmitter) Subscribers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, list := range e.clients {
		n += len(list)
	}
	return n
}

func (e *OrderEventEmitter) remove(productID string, clientChan chan models.OrderEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[productID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[productID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[productID]) == 0 {
		delete(e.clients, productID)
	}
}
