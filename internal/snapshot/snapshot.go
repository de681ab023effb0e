// Package snapshot converts ledger state to and from the JSON state file.
package snapshot

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

const (
	// Version is the state file format written by Encode.
	Version = 1
	// DefaultMaxSlippage applies when a state file predates max_slippage.
	DefaultMaxSlippage = 0.005
)

// State is the durable part of the ledger.
type State struct {
	Version           int
	SavedAt           time.Time
	InitialCash       float64
	Cash              float64
	MarginRequirement float64
	MarginUsed        float64
	MaxSlippage       float64
	Positions         map[string]models.Position
	Orders            map[string]models.OrderResult
	Prices            map[string]float64
	PendingOrders     map[string]models.Order
}

type fileState struct {
	Version           *int                       `json:"version"`
	SavedAt           string                     `json:"saved_at"`
	InitialCash       *float64                   `json:"initial_cash"`
	Cash              *float64                   `json:"cash"`
	MarginRequirement *float64                   `json:"margin_requirement"`
	MarginUsed        *float64                   `json:"margin_used"`
	MaxSlippage       *float64                   `json:"max_slippage"`
	Positions         map[string]filePosition    `json:"positions"`
	Orders            map[string]fileOrderResult `json:"orders"`
	Prices            map[string]float64         `json:"prices"`
	PendingOrders     map[string]models.Order    `json:"pending_orders,omitempty"`
}

type filePosition struct {
	Quantity    *int                 `json:"quantity"`
	Side        *models.PositionSide `json:"side"`
	AverageCost *float64             `json:"average_cost"`
	RealizedPnL float64              `json:"realized_pnl"`
}

type fileOrderResult struct {
	OrderID           *string             `json:"order_id"`
	ClientOrderID     *string             `json:"client_order_id"`
	Ticker            *string             `json:"ticker"`
	Side              *models.OrderSide   `json:"side"`
	QuantityRequested *int                `json:"quantity_requested"`
	QuantityFilled    *int                `json:"quantity_filled"`
	Status            *models.OrderStatus `json:"status"`
	AveragePrice      *float64            `json:"average_price"`
	Message           *string             `json:"message"`
	SubmittedAt       *string             `json:"submitted_at"`
	FilledAt          *string             `json:"filled_at"`
}

// Timestamps without a zone are read as local time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Encode renders state as indented JSON.
func Encode(s State) ([]byte, error) {
	version := Version
	fs := fileState{
		Version:           &version,
		SavedAt:           formatTime(s.SavedAt),
		InitialCash:       &s.InitialCash,
		Cash:              &s.Cash,
		MarginRequirement: &s.MarginRequirement,
		MarginUsed:        &s.MarginUsed,
		MaxSlippage:       &s.MaxSlippage,
		Positions:         make(map[string]filePosition, len(s.Positions)),
		Orders:            make(map[string]fileOrderResult, len(s.Orders)),
		Prices:            s.Prices,
	}
	if fs.Prices == nil {
		fs.Prices = map[string]float64{}
	}

	for ticker, p := range s.Positions {
		fs.Positions[ticker] = filePosition{
			Quantity:    &p.Quantity,
			Side:        &p.Side,
			AverageCost: &p.AverageCost,
			RealizedPnL: p.RealizedPnL,
		}
	}

	for id, r := range s.Orders {
		submitted := formatTime(r.SubmittedAt)
		fr := fileOrderResult{
			OrderID:           &r.OrderID,
			ClientOrderID:     &r.ClientOrderID,
			Ticker:            &r.Ticker,
			Side:              &r.Side,
			QuantityRequested: &r.QuantityRequested,
			QuantityFilled:    &r.QuantityFilled,
			Status:            &r.Status,
			AveragePrice:      r.AveragePrice,
			SubmittedAt:       &submitted,
		}
		if r.Message != "" {
			fr.Message = &r.Message
		}
		if r.FilledAt != nil {
			filled := formatTime(*r.FilledAt)
			fr.FilledAt = &filled
		}
		fs.Orders[id] = fr
	}

	if len(s.PendingOrders) > 0 {
		fs.PendingOrders = s.PendingOrders
	}

	return json.MarshalIndent(fs, "", "  ")
}

// Decode parses a state file. Optional fields fall back to their defaults;
// a missing required field or a malformed value is an error.
func Decode(data []byte) (State, error) {
	var fs fileState
	if err := json.Unmarshal(data, &fs); err != nil {
		return State{}, errors.Wrap(errors.ErrSnapshotInvalid, err.Error())
	}

	s := State{
		Version:       Version,
		MaxSlippage:   DefaultMaxSlippage,
		Positions:     make(map[string]models.Position, len(fs.Positions)),
		Orders:        make(map[string]models.OrderResult, len(fs.Orders)),
		Prices:        make(map[string]float64, len(fs.Prices)),
		PendingOrders: make(map[string]models.Order, len(fs.PendingOrders)),
	}

	if fs.Version != nil {
		if *fs.Version > Version {
			return State{}, fmt.Errorf("%w: unsupported version %d", errors.ErrSnapshotInvalid, *fs.Version)
		}
		s.Version = *fs.Version
	}
	if fs.SavedAt != "" {
		if t, err := parseTime(fs.SavedAt); err == nil {
			s.SavedAt = t
		}
	}

	required := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"initial_cash", fs.InitialCash, &s.InitialCash},
		{"cash", fs.Cash, &s.Cash},
		{"margin_requirement", fs.MarginRequirement, &s.MarginRequirement},
		{"margin_used", fs.MarginUsed, &s.MarginUsed},
	}
	for _, f := range required {
		if f.src == nil {
			return State{}, missing(f.name)
		}
		*f.dst = *f.src
	}
	if fs.MaxSlippage != nil {
		s.MaxSlippage = *fs.MaxSlippage
	}

	for ticker, price := range fs.Prices {
		s.Prices[ticker] = price
	}

	for ticker, fp := range fs.Positions {
		if fp.Quantity == nil || fp.Side == nil || fp.AverageCost == nil {
			return State{}, missing("positions." + ticker)
		}
		qty := *fp.Quantity
		// Older files stored shorts as negative quantities.
		if qty < 0 {
			qty = -qty
		}
		s.Positions[ticker] = models.Position{
			Ticker:      ticker,
			Quantity:    qty,
			Side:        *fp.Side,
			AverageCost: *fp.AverageCost,
			RealizedPnL: fp.RealizedPnL,
		}
	}

	for id, fr := range fs.Orders {
		r, err := decodeOrderResult(id, fr)
		if err != nil {
			return State{}, err
		}
		s.Orders[id] = r
	}

	for id, o := range fs.PendingOrders {
		if err := o.Validate(); err != nil {
			return State{}, fmt.Errorf("%w: pending_orders.%s: %v", errors.ErrSnapshotInvalid, id, err)
		}
		s.PendingOrders[id] = o
	}

	return s, nil
}

func decodeOrderResult(id string, fr fileOrderResult) (models.OrderResult, error) {
	if fr.OrderID == nil || fr.ClientOrderID == nil || fr.Ticker == nil || fr.Side == nil ||
		fr.QuantityRequested == nil || fr.QuantityFilled == nil || fr.Status == nil || fr.SubmittedAt == nil {
		return models.OrderResult{}, missing("orders." + id)
	}

	submitted, err := parseTime(*fr.SubmittedAt)
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("%w: orders.%s: %v", errors.ErrSnapshotInvalid, id, err)
	}

	r := models.OrderResult{
		OrderID:           *fr.OrderID,
		ClientOrderID:     *fr.ClientOrderID,
		Ticker:            *fr.Ticker,
		Side:              *fr.Side,
		QuantityRequested: *fr.QuantityRequested,
		QuantityFilled:    *fr.QuantityFilled,
		Status:            *fr.Status,
		AveragePrice:      fr.AveragePrice,
		SubmittedAt:       submitted,
	}
	if fr.Message != nil {
		r.Message = *fr.Message
	}
	if fr.FilledAt != nil && *fr.FilledAt != "" {
		filled, err := parseTime(*fr.FilledAt)
		if err != nil {
			return models.OrderResult{}, fmt.Errorf("%w: orders.%s: %v", errors.ErrSnapshotInvalid, id, err)
		}
		r.FilledAt = &filled
	}
	return r, nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing required field %s", errors.ErrSnapshotInvalid, field)
}

// Save writes state to path, creating parent directories. The file is
// replaced atomically.
func Save(path string, s State) error {
	data, err := Encode(s)
	if err != nil {
		return errors.NewSnapshotError(path, "encode", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewSnapshotError(path, "create directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.NewSnapshotError(path, "create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewSnapshotError(path, "write", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewSnapshotError(path, "close", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.NewSnapshotError(path, "rename", err)
	}
	return nil
}

// Load reads and decodes the state file at path.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, errors.NewSnapshotError(path, "read", err)
	}
	s, err := Decode(data)
	if err != nil {
		return State{}, errors.NewSnapshotError(path, "decode", err)
	}
	return s, nil
}

// Equal reports whether two states hold the same economic content, ignoring
// SavedAt and treating timestamps at their instant.
func Equal(a, b State) bool {
	if !floatEq(a.InitialCash, b.InitialCash) || !floatEq(a.Cash, b.Cash) ||
		!floatEq(a.MarginRequirement, b.MarginRequirement) || !floatEq(a.MarginUsed, b.MarginUsed) ||
		!floatEq(a.MaxSlippage, b.MaxSlippage) {
		return false
	}
	if len(a.Positions) != len(b.Positions) || len(a.Orders) != len(b.Orders) ||
		len(a.Prices) != len(b.Prices) || len(a.PendingOrders) != len(b.PendingOrders) {
		return false
	}
	for k, pa := range a.Positions {
		pb, ok := b.Positions[k]
		if !ok || pa.Quantity != pb.Quantity || pa.Side != pb.Side ||
			!floatEq(pa.AverageCost, pb.AverageCost) || !floatEq(pa.RealizedPnL, pb.RealizedPnL) {
			return false
		}
	}
	for k, ra := range a.Orders {
		rb, ok := b.Orders[k]
		if !ok || !resultEq(ra, rb) {
			return false
		}
	}
	for k, pa := range a.Prices {
		pb, ok := b.Prices[k]
		if !ok || !floatEq(pa, pb) {
			return false
		}
	}
	for k := range a.PendingOrders {
		if _, ok := b.PendingOrders[k]; !ok {
			return false
		}
	}
	return true
}

func resultEq(a, b models.OrderResult) bool {
	if a.OrderID != b.OrderID || a.ClientOrderID != b.ClientOrderID || a.Ticker != b.Ticker ||
		a.Side != b.Side || a.QuantityRequested != b.QuantityRequested ||
		a.QuantityFilled != b.QuantityFilled || a.Status != b.Status || a.Message != b.Message {
		return false
	}
	if (a.AveragePrice == nil) != (b.AveragePrice == nil) {
		return false
	}
	if a.AveragePrice != nil && !floatEq(*a.AveragePrice, *b.AveragePrice) {
		return false
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return false
	}
	if (a.FilledAt == nil) != (b.FilledAt == nil) {
		return false
	}
	return a.FilledAt == nil || a.FilledAt.Equal(*b.FilledAt)
}

func floatEq(a, b float64) bool {
	return a == b || math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
