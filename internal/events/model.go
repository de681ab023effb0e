// Package events defines trading events and moves them over Redis pub/sub.
package events

import (
	"fmt"
	"math"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"papertrader/internal/errors"
)

// EventType identifies the kind of trading event.
type EventType string

const (
	EventPriceUpdate EventType = "price_update"
	EventPriceAlert  EventType = "price_alert" // significant price move
	EventNews        EventType = "news"
	EventSentiment   EventType = "sentiment"
	EventTradeSignal EventType = "trade_signal"
	EventScheduled   EventType = "scheduled"
)

// EventTypes lists every event type.
var EventTypes = []EventType{EventPriceUpdate, EventPriceAlert, EventNews, EventSentiment, EventTradeSignal, EventScheduled}

// ParseEventType parses s.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range EventTypes {
		if t == known {
			return t, nil
		}
	}
	return "", errors.Wrapf(errors.ErrInvalidEvent, "unknown event type %q", s)
}

// Priorities assigned by the publisher.
const (
	PriorityLow    = 1
	PriorityNormal = 5
	PriorityHigh   = 10
)

// DefaultAlertThreshold is the percent move that makes a price update an alert.
const DefaultAlertThreshold = 2.0

// TradingEvent is one message on the event channel.
type TradingEvent struct {
	EventType EventType      `json:"event_type"`
	Ticker    string         `json:"ticker,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Priority  int            `json:"priority"`
	EventID   string         `json:"event_id"`
}

// NewEvent creates an event stamped with now.
func NewEvent(t EventType, ticker string, data map[string]any, source string, priority int, now time.Time) TradingEvent {
	if data == nil {
		data = map[string]any{}
	}
	if source == "" {
		source = "unknown"
	}
	return TradingEvent{
		EventType: t,
		Ticker:    ticker,
		Data:      data,
		Timestamp: now,
		Source:    source,
		Priority:  priority,
		EventID:   NewEventID(now),
	}
}

// NewEventID formats now as yyyymmddHHMMSS followed by microseconds.
func NewEventID(now time.Time) string {
	return now.Format("20060102150405") + fmt.Sprintf("%06d", now.Nanosecond()/1000)
}

func (e TradingEvent) String() string {
	ticker := ""
	if e.Ticker != "" {
		ticker = " [" + e.Ticker + "]"
	}
	return fmt.Sprintf("Event(%s%s from %s)", e.EventType, ticker, e.Source)
}

// wireEvent carries the timestamp as text so zoneless ISO timestamps decode.
type wireEvent struct {
	EventType string         `json:"event_type"`
	Ticker    *string        `json:"ticker"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
	Priority  int            `json:"priority"`
	EventID   string         `json:"event_id"`
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Encode serializes e.
func Encode(e TradingEvent) ([]byte, error) {
	w := wireEvent{
		EventType: string(e.EventType),
		Data:      e.Data,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Source:    e.Source,
		Priority:  e.Priority,
		EventID:   e.EventID,
	}
	if e.Ticker != "" {
		ticker := e.Ticker
		w.Ticker = &ticker
	}
	if w.Data == nil {
		w.Data = map[string]any{}
	}
	return json.Marshal(w)
}

// Decode parses an event. Missing source, data and event id get defaults.
func Decode(data []byte) (TradingEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return TradingEvent{}, errors.Wrapf(errors.ErrInvalidEvent, "decoding event: %v", err)
	}

	t, err := ParseEventType(w.EventType)
	if err != nil {
		return TradingEvent{}, err
	}
	e := TradingEvent{
		EventType: t,
		Data:      w.Data,
		Source:    w.Source,
		Priority:  w.Priority,
		EventID:   w.EventID,
	}
	if w.Ticker != nil {
		e.Ticker = *w.Ticker
	}
	if w.Timestamp != "" {
		if e.Timestamp, err = parseTimestamp(w.Timestamp); err != nil {
			return TradingEvent{}, errors.Wrap(errors.ErrInvalidEvent, err.Error())
		}
	} else {
		e.Timestamp = time.Now()
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if e.Source == "" {
		e.Source = "unknown"
	}
	if e.EventID == "" {
		e.EventID = NewEventID(e.Timestamp)
	}
	return e, nil
}

// PriceData is the payload of price_update and price_alert events.
type PriceData struct {
	Ticker        string
	Price         float64
	PreviousPrice *float64
	ChangePercent *float64
	Volume        *int64
	Timestamp     time.Time
}

// IsSignificantMove reports whether the move is at least DefaultAlertThreshold percent.
func (p PriceData) IsSignificantMove() bool {
	return p.ExceedsThreshold(DefaultAlertThreshold)
}

// ExceedsThreshold reports whether |change| >= threshold percent.
func (p PriceData) ExceedsThreshold(threshold float64) bool {
	if p.ChangePercent == nil {
		return false
	}
	return math.Abs(*p.ChangePercent) >= threshold
}

// Map renders p as an event payload.
func (p PriceData) Map() map[string]any {
	m := map[string]any{
		"ticker":         p.Ticker,
		"price":          p.Price,
		"previous_price": nil,
		"change_percent": nil,
		"volume":         nil,
		"timestamp":      p.Timestamp.Format(time.RFC3339Nano),
	}
	if p.PreviousPrice != nil {
		m["previous_price"] = *p.PreviousPrice
	}
	if p.ChangePercent != nil {
		m["change_percent"] = *p.ChangePercent
	}
	if p.Volume != nil {
		m["volume"] = *p.Volume
	}
	return m
}

// Number reads a numeric payload field. JSON numbers decode as float64 but
// producers sometimes send numeric strings.
func Number(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// String reads a string payload field.
func String(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// Strings reads a list of strings payload field.
func Strings(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
