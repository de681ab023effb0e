package models

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"papertrader/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Order is a request to trade. Build it with NewOrder so it is validated.
type Order struct {
	Ticker        string       `json:"ticker" validate:"required"`
	Side          OrderSide    `json:"side" validate:"required,oneof=buy sell"`
	Quantity      int          `json:"quantity" validate:"gt=0"`
	Type          OrderType    `json:"order_type" validate:"required,oneof=market limit stop stop_limit"`
	LimitPrice    *float64     `json:"limit_price,omitempty" validate:"omitempty,gt=0"`
	StopPrice     *float64     `json:"stop_price,omitempty" validate:"omitempty,gt=0"`
	PositionSide  PositionSide `json:"position_side" validate:"required,oneof=long short"`
	ClientOrderID string       `json:"client_order_id" validate:"required"`
	TimeInForce   TimeInForce  `json:"time_in_force" validate:"required,oneof=day gtc ioc fok"`
}

// OrderOption customises an order built by NewOrder.
type OrderOption func(*Order)

// WithType sets the order type.
func WithType(t OrderType) OrderOption {
	return func(o *Order) { o.Type = t }
}

// WithLimitPrice sets the limit price and makes the order a limit order
// unless a type was already chosen.
func WithLimitPrice(price float64) OrderOption {
	return func(o *Order) {
		o.LimitPrice = &price
		if o.Type == OrderTypeMarket {
			o.Type = OrderTypeLimit
		}
	}
}

// WithStopPrice sets the stop price.
func WithStopPrice(price float64) OrderOption {
	return func(o *Order) { o.StopPrice = &price }
}

// WithPositionSide selects the long or short book.
func WithPositionSide(side PositionSide) OrderOption {
	return func(o *Order) { o.PositionSide = side }
}

// WithClientOrderID sets a caller-chosen id.
func WithClientOrderID(id string) OrderOption {
	return func(o *Order) { o.ClientOrderID = id }
}

// WithTimeInForce sets the time in force.
func WithTimeInForce(tif TimeInForce) OrderOption {
	return func(o *Order) { o.TimeInForce = tif }
}

// NewOrder builds a validated order. Defaults: market, long, day, random client id.
func NewOrder(ticker string, side OrderSide, quantity int, opts ...OrderOption) (Order, error) {
	o := Order{
		Ticker:       strings.TrimSpace(ticker),
		Side:         side,
		Quantity:     quantity,
		Type:         OrderTypeMarket,
		PositionSide: PositionSideLong,
		TimeInForce:  TimeInForceDay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ClientOrderID == "" {
		o.ClientOrderID = uuid.NewString()
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Validate checks field constraints and the price each order type requires.
func (o Order) Validate() error {
	if err := validate.Struct(o); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return errors.NewValidationError(fe.Field(), fe.Value(), describeTag(fe))
		}
		return errors.Wrap(errors.ErrInvalidOrder, err.Error())
	}

	switch o.Type {
	case OrderTypeLimit:
		if o.LimitPrice == nil {
			return errors.NewValidationError("limit_price", nil, "limit orders require limit_price")
		}
	case OrderTypeStop:
		if o.StopPrice == nil {
			return errors.NewValidationError("stop_price", nil, "stop orders require stop_price")
		}
	case OrderTypeStopLimit:
		if o.LimitPrice == nil || o.StopPrice == nil {
			return errors.NewValidationError("stop_price", nil, "stop_limit orders require limit_price and stop_price")
		}
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be positive"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return fmt.Sprintf("failed %s check", fe.Tag())
}

// OrderResult is the outcome of submitting an order.
type OrderResult struct {
	OrderID           string      `json:"order_id"`
	ClientOrderID     string      `json:"client_order_id"`
	Ticker            string      `json:"ticker"`
	Side              OrderSide   `json:"side"`
	QuantityRequested int         `json:"quantity_requested"`
	QuantityFilled    int         `json:"quantity_filled"`
	Status            OrderStatus `json:"status"`
	AveragePrice      *float64    `json:"average_price"`
	Message           string      `json:"message,omitempty"`
	SubmittedAt       time.Time   `json:"submitted_at"`
	FilledAt          *time.Time  `json:"filled_at"`
}

// IsFilled reports whether the order completely filled.
func (r OrderResult) IsFilled() bool {
	return r.Status == OrderStatusFilled
}

// IsTerminal reports whether the order can no longer change.
func (r OrderResult) IsTerminal() bool {
	return r.Status.IsTerminal()
}
