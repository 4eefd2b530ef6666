// internal/events/events.go
package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Event names published after a write transaction commits. Handlers run
// best-effort: a failing handler is logged, never propagated back into the
// committed write.
const (
	OrderConfirmed = "order.confirmed"
	ReviewSaved    = "review.saved"
	StockLow       = "stock.low"
)

type Event struct {
	Name    string
	Payload interface{}
}

type Handler func(ctx context.Context, e Event)

// Dispatcher is a small in-process post-commit hook bus. Writes register
// interest up front; publishers fan out synchronously after commit so side
// effects (receipts, notifications, aggregate recomputes) stay out of the
// transaction itself.
type Dispatcher struct {
	mtx      sync.RWMutex
	handlers map[string][]Handler
	log      *logrus.Entry
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		log:      logrus.WithField("component", "events"),
	}
}

func (d *Dispatcher) Subscribe(name string, h Handler) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.handlers[name] = append(d.handlers[name], h)
}

func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	d.mtx.RLock()
	handlers := d.handlers[e.Name]
	d.mtx.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.log.WithField("event", e.Name).Errorf("event handler panicked: %v", r)
				}
			}()
			h(ctx, e)
		}()
	}
}
