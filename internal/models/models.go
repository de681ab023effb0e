// Package models provides the ledger domain models for the paper trading engine.
package models

import (
	"fmt"
	"strings"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// PositionSide says whether an order acts on the long or the short book.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusExpired   OrderStatus = "expired"
)

// TimeInForce represents how long an order stays working.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

var (
	orderSides    = []OrderSide{OrderSideBuy, OrderSideSell}
	orderTypes    = []OrderType{OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit}
	positionSides = []PositionSide{PositionSideLong, PositionSideShort}
	orderStatuses = []OrderStatus{
		OrderStatusPending, OrderStatusSubmitted, OrderStatusPartial, OrderStatusFilled,
		OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired,
	}
	timesInForce = []TimeInForce{TimeInForceDay, TimeInForceGTC, TimeInForceIOC, TimeInForceFOK}
)

func parseEnum[T ~string](kind, s string, values []T) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range values {
		if v == known {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, s)
}

func validEnum[T ~string](v T, values []T) bool {
	for _, known := range values {
		if v == known {
			return true
		}
	}
	return false
}

// ParseOrderSide parses a case-insensitive order side.
func ParseOrderSide(s string) (OrderSide, error) { return parseEnum("order side", s, orderSides) }

// ParseOrderType parses a case-insensitive order type.
func ParseOrderType(s string) (OrderType, error) { return parseEnum("order type", s, orderTypes) }

// ParsePositionSide parses a case-insensitive position side.
func ParsePositionSide(s string) (PositionSide, error) {
	return parseEnum("position side", s, positionSides)
}

// ParseOrderStatus parses a case-insensitive order status.
func ParseOrderStatus(s string) (OrderStatus, error) {
	return parseEnum("order status", s, orderStatuses)
}

// ParseTimeInForce parses a case-insensitive time-in-force.
func ParseTimeInForce(s string) (TimeInForce, error) {
	return parseEnum("time in force", s, timesInForce)
}

func (s OrderSide) Valid() bool    { return validEnum(s, orderSides) }
func (t OrderType) Valid() bool    { return validEnum(t, orderTypes) }
func (s PositionSide) Valid() bool { return validEnum(s, positionSides) }
func (s OrderStatus) Valid() bool  { return validEnum(s, orderStatuses) }
func (t TimeInForce) Valid() bool  { return validEnum(t, timesInForce) }

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// UnmarshalText rejects values outside the closed set.
func (s *OrderSide) UnmarshalText(b []byte) error {
	v, err := ParseOrderSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalText rejects values outside the closed set.
func (t *OrderType) UnmarshalText(b []byte) error {
	v, err := ParseOrderType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// UnmarshalText rejects values outside the closed set.
func (s *PositionSide) UnmarshalText(b []byte) error {
	v, err := ParsePositionSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalText rejects values outside the closed set.
func (s *OrderStatus) UnmarshalText(b []byte) error {
	v, err := ParseOrderStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalText rejects values outside the closed set.
func (t *TimeInForce) UnmarshalText(b []byte) error {
	v, err := ParseTimeInForce(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
