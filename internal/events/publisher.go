package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"papertrader/internal/logging"
)

// Publisher builds trading events and publishes them on a channel. It
// remembers the last price per ticker to detect significant moves.
type Publisher struct {
	bus       Bus
	channel   string
	threshold float64
	logger    zerolog.Logger
	now       func() time.Time

	mu         sync.Mutex
	lastPrices map[string]float64
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithAlertThreshold sets the percent move that turns an update into an alert.
func WithAlertThreshold(pct float64) PublisherOption {
	return func(p *Publisher) { p.threshold = pct }
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger zerolog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logging.WithComponent(logger, "publisher") }
}

// NewPublisher creates a publisher writing to channel on bus.
func NewPublisher(bus Bus, channel string, opts ...PublisherOption) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	p := &Publisher{
		bus:        bus,
		channel:    channel,
		threshold:  DefaultAlertThreshold,
		logger:     zerolog.Nop(),
		now:        time.Now,
		lastPrices: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish encodes and publishes e, returning the number of receivers.
func (p *Publisher) Publish(ctx context.Context, e TradingEvent) (int64, error) {
	payload, err := Encode(e)
	if err != nil {
		return 0, err
	}
	n, err := p.bus.Publish(ctx, p.channel, payload)
	if err != nil {
		return 0, err
	}
	p.logger.Debug().
		Str("event_type", string(e.EventType)).
		Str("ticker", e.Ticker).
		Int64("receivers", n).
		Msg("Published event")
	return n, nil
}

// PublishPriceUpdate publishes a price_update, or a price_alert when the
// price moved at least the alert threshold since the last update.
func (p *Publisher) PublishPriceUpdate(ctx context.Context, ticker string, price float64, volume *int64, source string) (TradingEvent, error) {
	if source == "" {
		source = "price_monitor"
	}
	now := p.now()

	p.mu.Lock()
	previous, seen := p.lastPrices[ticker]
	p.lastPrices[ticker] = price
	p.mu.Unlock()

	data := PriceData{Ticker: ticker, Price: price, Volume: volume, Timestamp: now}
	if seen {
		data.PreviousPrice = &previous
		if previous > 0 {
			change := (price - previous) / previous * 100
			data.ChangePercent = &change
		}
	}

	eventType, priority := EventPriceUpdate, PriorityLow
	if data.ExceedsThreshold(p.threshold) {
		eventType, priority = EventPriceAlert, PriorityHigh
	}

	e := NewEvent(eventType, ticker, data.Map(), source, priority, now)
	_, err := p.Publish(ctx, e)
	return e, err
}

// PublishNews publishes a news event.
func (p *Publisher) PublishNews(ctx context.Context, ticker, headline, sentiment, url, source string) (TradingEvent, error) {
	if source == "" {
		source = "news_monitor"
	}
	data := map[string]any{"headline": headline, "sentiment": nilIfEmpty(sentiment), "url": nilIfEmpty(url)}
	e := NewEvent(EventNews, ticker, data, source, PriorityNormal, p.now())
	_, err := p.Publish(ctx, e)
	return e, err
}

// PublishTradeSignal publishes a trade signal. quantity is optional.
func (p *Publisher) PublishTradeSignal(ctx context.Context, ticker, signal string, confidence float64, quantity int, reason, source string) (TradingEvent, error) {
	if source == "" {
		source = "signal_generator"
	}
	data := map[string]any{"signal": signal, "confidence": confidence, "reason": nilIfEmpty(reason)}
	if quantity > 0 {
		data["quantity"] = quantity
	}
	e := NewEvent(EventTradeSignal, ticker, data, source, PriorityHigh, p.now())
	_, err := p.Publish(ctx, e)
	return e, err
}

// PublishScheduled publishes a scheduled event for tickers.
func (p *Publisher) PublishScheduled(ctx context.Context, tickers []string, source string) (TradingEvent, error) {
	if source == "" {
		source = "scheduler"
	}
	if tickers == nil {
		tickers = []string{}
	}
	e := NewEvent(EventScheduled, "", map[string]any{"tickers": tickers}, source, PriorityNormal, p.now())
	_, err := p.Publish(ctx, e)
	return e, err
}

// HealthCheck reports whether the bus is reachable.
func (p *Publisher) HealthCheck(ctx context.Context) bool {
	return p.bus.Ping(ctx) == nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
