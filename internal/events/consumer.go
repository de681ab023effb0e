package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"papertrader/internal/logging"
)

// Handler processes one event.
type Handler func(ctx context.Context, e TradingEvent) error

// Consumer dispatches events to handlers registered per event type. Events
// without a handler go to the default handler when one is set.
type Consumer struct {
	mu             sync.RWMutex
	handlers       map[EventType][]Handler
	defaultHandler Handler
	logger         zerolog.Logger
}

// NewConsumer creates a consumer with no handlers.
func NewConsumer(logger zerolog.Logger) *Consumer {
	return &Consumer{
		handlers: make(map[EventType][]Handler),
		logger:   logging.WithComponent(logger, "consumer"),
	}
}

// RegisterHandler appends h to the handlers for t.
func (c *Consumer) RegisterHandler(t EventType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = append(c.handlers[t], h)
}

// SetDefaultHandler sets the handler for events with no registered handler.
func (c *Consumer) SetDefaultHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultHandler = h
}

// Dispatch runs the handlers for e in registration order. Handler errors and
// panics are logged and do not stop later handlers. The number of handlers
// that failed is returned.
func (c *Consumer) Dispatch(ctx context.Context, e TradingEvent) int {
	c.mu.RLock()
	handlers := c.handlers[e.EventType]
	if len(handlers) == 0 && c.defaultHandler != nil {
		handlers = []Handler{c.defaultHandler}
	}
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug().Str("event_type", string(e.EventType)).Msg("No handler for event type")
		return 0
	}

	failed := 0
	for _, h := range handlers {
		if err := c.call(ctx, h, e); err != nil {
			failed++
			c.logger.Error().Err(err).
				Str("event_type", string(e.EventType)).
				Str("event_id", e.EventID).
				Msg("Error in handler")
		}
	}
	return failed
}

func (c *Consumer) call(ctx context.Context, h Handler, e TradingEvent) error {
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = h(ctx, e) })
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("handler panicked: %v", r.Value)
	}
	return err
}

// HandlePayload decodes and dispatches one raw message.
func (c *Consumer) HandlePayload(ctx context.Context, payload []byte) error {
	e, err := Decode(payload)
	if err != nil {
		return err
	}
	c.handle(ctx, e)
	return nil
}

func (c *Consumer) handle(ctx context.Context, e TradingEvent) {
	c.logger.Info().
		Str("event_type", string(e.EventType)).
		Str("ticker", e.Ticker).
		Str("source", e.Source).
		Msgf("Received: %s", e)
	c.Dispatch(ctx, e)
}

// Run consumes sub until ctx is done or the subscription closes. Decoding
// and dispatch run on separate goroutines so a slow handler does not stall
// the subscription; events are still handled one at a time in arrival order.
func (c *Consumer) Run(ctx context.Context, sub Subscription) error {
	decoded := make(chan TradingEvent, 64)

	var wg conc.WaitGroup
	wg.Go(func() {
		defer close(decoded)
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-sub.Messages():
				if !ok {
					return
				}
				e, err := Decode(payload)
				if err != nil {
					c.logger.Warn().Err(err).Msg("Error processing message")
					continue
				}
				select {
				case decoded <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	})
	wg.Go(func() {
		for e := range decoded {
			c.handle(ctx, e)
		}
	})

	c.logger.Info().Msg("Consumer started, waiting for events")
	recovered := wg.WaitAndRecover()
	if err := sub.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Closing subscription")
	}
	c.logger.Info().Msg("Consumer stopped")

	if recovered != nil {
		return recovered.AsError()
	}
	return ctx.Err()
}
