package ledgerbridge

import "sync"

// Bus is an in-process NotificationBus. Ledger adapters publish decoded
// events into it; the projector subscribes one handler per event name.
// Publish runs the handlers synchronously in subscription order, which is
// what lets a dry run's projection land before the dry-run call returns.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]NotificationHandler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]NotificationHandler)}
}

// Subscribe registers a handler for one event name.
func (b *Bus) Subscribe(event string, handler NotificationHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish delivers one event to every handler subscribed to its name.
// Events with no subscriber are dropped.
func (b *Bus) Publish(event string, payload [][]byte) {
	b.mu.RLock()
	handlers := b.handlers[event]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}
