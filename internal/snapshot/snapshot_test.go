package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

func sampleState() State {
	price := 101.25
	submitted := time.Date(2024, 3, 1, 14, 30, 0, 123456000, time.UTC)
	filled := submitted.Add(time.Second)
	limit := 95.0

	return State{
		SavedAt:           submitted,
		InitialCash:       100000,
		Cash:              89874.5,
		MarginRequirement: 0.5,
		MarginUsed:        1000,
		MaxSlippage:       0.01,
		Positions: map[string]models.Position{
			"AAPL": {Ticker: "AAPL", Quantity: 100, Side: models.PositionSideLong, AverageCost: 101.25},
			"TSLA": {Ticker: "TSLA", Quantity: 10, Side: models.PositionSideShort, AverageCost: 200, RealizedPnL: -12.5},
		},
		Orders: map[string]models.OrderResult{
			"o-1": {
				OrderID: "o-1", ClientOrderID: "c-1", Ticker: "AAPL", Side: models.OrderSideBuy,
				QuantityRequested: 100, QuantityFilled: 100, Status: models.OrderStatusFilled,
				AveragePrice: &price, SubmittedAt: submitted, FilledAt: &filled,
			},
			"o-2": {
				OrderID: "o-2", ClientOrderID: "c-2", Ticker: "AAPL", Side: models.OrderSideBuy,
				QuantityRequested: 5, Status: models.OrderStatusPending,
				Message: "Order pending - limit price not reached", SubmittedAt: submitted,
			},
		},
		Prices: map[string]float64{"AAPL": 101.25, "TSLA": 200},
		PendingOrders: map[string]models.Order{
			"o-2": {
				Ticker: "AAPL", Side: models.OrderSideBuy, Quantity: 5, Type: models.OrderTypeLimit,
				LimitPrice: &limit, PositionSide: models.PositionSideLong, ClientOrderID: "c-2",
				TimeInForce: models.TimeInForceDay,
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleState()

	data, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !Equal(want, got) {
		t.Errorf("round trip changed state:\nwant %+v\ngot  %+v", want, got)
	}
	if got.Version != Version {
		t.Errorf("Version = %d, want %d", got.Version, Version)
	}
	if got.Orders["o-2"].AveragePrice != nil || got.Orders["o-2"].FilledAt != nil {
		t.Errorf("pending order gained fill fields: %+v", got.Orders["o-2"])
	}
	if lp := got.PendingOrders["o-2"].LimitPrice; lp == nil || *lp != 95.0 {
		t.Errorf("pending limit price = %v, want 95", lp)
	}
}

func TestDecodeAppliesDefaults(t *testing.T) {
	data := []byte(`{
		"initial_cash": 1000,
		"cash": 1000,
		"margin_requirement": 0.5,
		"margin_used": 0,
		"positions": {"AAPL": {"quantity": 3, "side": "long", "average_cost": 10}}
	}`)

	s, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if s.MaxSlippage != DefaultMaxSlippage {
		t.Errorf("MaxSlippage = %v, want %v", s.MaxSlippage, DefaultMaxSlippage)
	}
	if len(s.Prices) != 0 || len(s.Orders) != 0 || len(s.PendingOrders) != 0 {
		t.Errorf("expected empty maps, got prices=%v orders=%v pending=%v", s.Prices, s.Orders, s.PendingOrders)
	}
	if pnl := s.Positions["AAPL"].RealizedPnL; pnl != 0 {
		t.Errorf("RealizedPnL = %v, want 0", pnl)
	}
}

func TestDecodeAcceptsZonelessTimestampsAndNegativeShorts(t *testing.T) {
	data := []byte(`{
		"version": 1,
		"saved_at": "2024-01-02T09:30:00.500000",
		"initial_cash": 1000, "cash": 1500, "margin_requirement": 0.5, "margin_used": 500,
		"positions": {"TSLA": {"quantity": -10, "side": "short", "average_cost": 100, "realized_pnl": 0}},
		"orders": {"x": {"order_id": "x", "client_order_id": "y", "ticker": "TSLA", "side": "sell",
			"quantity_requested": 10, "quantity_filled": 10, "status": "filled", "average_price": 100,
			"message": null, "submitted_at": "2024-01-02T09:29:59", "filled_at": "2024-01-02T09:29:59"}},
		"prices": {"TSLA": 100}
	}`)

	s, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	pos := s.Positions["TSLA"]
	if pos.Quantity != 10 || pos.Side != models.PositionSideShort {
		t.Errorf("TSLA position = %+v, want 10 short", pos)
	}
	if s.SavedAt.Year() != 2024 {
		t.Errorf("SavedAt = %v", s.SavedAt)
	}
	if s.Orders["x"].FilledAt == nil {
		t.Error("FilledAt not decoded")
	}
	if msg := s.Orders["x"].Message; msg != "" {
		t.Errorf("Message = %q, want empty", msg)
	}
}

func TestDecodeRejectsBrokenInput(t *testing.T) {
	tests := map[string]string{
		"malformed":        `{"initial_cash": `,
		"missing cash":     `{"initial_cash": 1, "margin_requirement": 0.5, "margin_used": 0}`,
		"missing margin":   `{"initial_cash": 1, "cash": 1, "margin_used": 0}`,
		"bad side":         `{"initial_cash": 1, "cash": 1, "margin_requirement": 0.5, "margin_used": 0, "positions": {"A": {"quantity": 1, "side": "flat", "average_cost": 1}}}`,
		"position no cost": `{"initial_cash": 1, "cash": 1, "margin_requirement": 0.5, "margin_used": 0, "positions": {"A": {"quantity": 1, "side": "long"}}}`,
		"order no status":  `{"initial_cash": 1, "cash": 1, "margin_requirement": 0.5, "margin_used": 0, "orders": {"a": {"order_id": "a", "client_order_id": "b", "ticker": "A", "side": "buy", "quantity_requested": 1, "quantity_filled": 0, "submitted_at": "2024-01-01T00:00:00"}}}`,
		"future version":   `{"version": 99, "initial_cash": 1, "cash": 1, "margin_requirement": 0.5, "margin_used": 0}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			if !errors.Is(err, errors.ErrSnapshotInvalid) {
				t.Errorf("Decode() error = %v, want ErrSnapshotInvalid", err)
			}
		})
	}
}

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	want := sampleState()

	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !Equal(want, got) {
		t.Errorf("loaded state differs:\nwant %+v\ngot  %+v", want, got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (temp file left behind)", len(entries))
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("Load() of missing file succeeded")
	}

	var serr *errors.SnapshotError
	if !errors.As(err, &serr) {
		t.Fatalf("error %v is not a SnapshotError", err)
	}
	if !os.IsNotExist(serr.Err) {
		t.Errorf("SnapshotError.Err = %v, want not-exist", serr.Err)
	}
}
