package broker

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"papertrader/internal/models"
)

func propertyParams() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	return parameters
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// step applies one generated action to b: 0 buy, 1 sell, 2 short, 3 cover.
func step(b *PaperBroker, action, qty int, price float64) models.OrderResult {
	b.SetPrice("X", price)
	side := models.OrderSideBuy
	pos := models.PositionSideLong
	switch action {
	case 1:
		side = models.OrderSideSell
	case 2:
		side, pos = models.OrderSideSell, models.PositionSideShort
	case 3:
		pos = models.PositionSideShort
	}
	order, _ := models.NewOrder("X", side, qty, models.WithPositionSide(pos))
	return b.SubmitOrder(order)
}

// Property: after every fill, equity reported by GetAccount equals cash plus the
// market value of every position.
func TestProperty_LedgerConservation(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("equity equals cash plus position value after each fill", prop.ForAll(
		func(actions []int, qtys []int, prices []float64) bool {
			b := NewPaperBroker(Config{InitialCash: 100_000, MarginRequirement: 0.5})
			for i := range min(len(actions), len(qtys), len(prices)) {
				step(b, actions[i], qtys[i], prices[i])

				acct := b.GetAccount()
				var value float64
				for _, p := range b.GetPositions() {
					value += p.MarketValue
				}
				if !nearlyEqual(acct.Equity, acct.Cash+value) {
					return false
				}
				if !nearlyEqual(acct.BuyingPower, acct.Cash-acct.MarginUsed) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(25, gen.IntRange(0, 3)),
		gen.SliceOfN(25, gen.IntRange(1, 200)),
		gen.SliceOfN(25, gen.Float64Range(1, 500)),
	))

	properties.TestingRun(t)
}

// Property: long-only trading never drives cash negative and every position
// has a positive quantity.
func TestProperty_LongOnlyCashNeverNegative(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("cash stays non-negative", prop.ForAll(
		func(actions []int, qtys []int, prices []float64) bool {
			b := NewPaperBroker(Config{InitialCash: 10_000, MarginRequirement: 0.5})
			for i := range min(len(actions), len(qtys), len(prices)) {
				step(b, actions[i], qtys[i], prices[i])
				if b.GetAccount().Cash < 0 {
					return false
				}
				for _, p := range b.GetPositions() {
					if p.Quantity <= 0 {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(30, gen.IntRange(0, 1)),
		gen.SliceOfN(30, gen.IntRange(1, 500)),
		gen.SliceOfN(30, gen.Float64Range(0.01, 1000)),
	))

	properties.TestingRun(t)
}

// Property: two buys q1@p1 and q2@p2 leave average cost (q1p1+q2p2)/(q1+q2).
func TestProperty_WeightedAverageCost(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("average cost is quantity weighted", prop.ForAll(
		func(q1, q2 int, p1, p2 float64) bool {
			b := NewPaperBroker(Config{InitialCash: 1e12, MarginRequirement: 0.5})
			step(b, 0, q1, p1)
			step(b, 0, q2, p2)

			pos, ok := b.GetPosition("X")
			if !ok || pos.Quantity != q1+q2 {
				return false
			}
			want := (float64(q1)*p1 + float64(q2)*p2) / float64(q1+q2)
			return nearlyEqual(pos.AverageCost, want)
		},
		gen.IntRange(1, 10_000),
		gen.IntRange(1, 10_000),
		gen.Float64Range(0.01, 5000),
		gen.Float64Range(0.01, 5000),
	))

	properties.TestingRun(t)
}

// Property: a buy costing more than the cash on hand fills floor(cash/price)
// shares and spends exactly that much.
func TestProperty_CashClamp(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("over-budget buy clamps to affordable quantity", prop.ForAll(
		func(cash float64, price float64, extra int) bool {
			affordable := int(math.Floor(cash / price))
			qty := affordable + extra

			b := NewPaperBroker(Config{InitialCash: cash, MarginRequirement: 0.5})
			r := step(b, 0, qty, price)
			acct := b.GetAccount()

			if acct.Cash < 0 {
				return false
			}
			if r.QuantityFilled == 0 {
				return r.Status == models.OrderStatusRejected && nearlyEqual(acct.Cash, cash)
			}
			if r.QuantityFilled > affordable || r.QuantityFilled < affordable-1 {
				return false
			}
			return nearlyEqual(acct.Cash, cash-float64(r.QuantityFilled)*price)
		},
		gen.Float64Range(100, 1_000_000),
		gen.Float64Range(1, 1000),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}

// Property: selling or covering more than is held fills exactly the held
// quantity and removes the position.
func TestProperty_OverSellClamp(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("over-sized close fills the held quantity", prop.ForAll(
		func(held, extra int, short bool) bool {
			b := NewPaperBroker(Config{InitialCash: 1e9, MarginRequirement: 0.5})
			openAction, closeAction := 0, 1
			if short {
				openAction, closeAction = 2, 3
			}
			step(b, openAction, held, 50)
			r := step(b, closeAction, held+extra, 50)

			if r.QuantityFilled != held || r.Status != models.OrderStatusPartial {
				return false
			}
			_, ok := b.GetPosition("X")
			return !ok
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: SaveState then LoadState on a fresh broker reproduces cash, margin,
// positions and orders.
func TestProperty_SnapshotRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())
	dir := t.TempDir()

	properties.Property("state survives a save/load cycle", prop.ForAll(
		func(actions []int, qtys []int, prices []float64) bool {
			b := NewPaperBroker(Config{InitialCash: 50_000, MarginRequirement: 0.5})
			for i := range min(len(actions), len(qtys), len(prices)) {
				step(b, actions[i], qtys[i], prices[i])
			}

			path := filepath.Join(dir, "roundtrip.json")
			if err := b.SaveState(path); err != nil {
				return false
			}
			fresh := NewPaperBroker(Config{InitialCash: 1})
			if ok, _ := fresh.LoadState(path); !ok {
				return false
			}

			want, got := b.Snapshot(), fresh.Snapshot()
			if want.Cash != got.Cash || want.MarginUsed != got.MarginUsed ||
				want.InitialCash != got.InitialCash || want.MarginRequirement != got.MarginRequirement {
				return false
			}
			if len(want.Positions) != len(got.Positions) || len(want.Orders) != len(got.Orders) {
				return false
			}
			for k, p := range want.Positions {
				g := got.Positions[k]
				if g.Quantity != p.Quantity || g.Side != p.Side || g.AverageCost != p.AverageCost || g.RealizedPnL != p.RealizedPnL {
					return false
				}
			}
			for k, r := range want.Orders {
				g, ok := got.Orders[k]
				if !ok || g.Status != r.Status || g.QuantityFilled != r.QuantityFilled || !g.SubmittedAt.Equal(r.SubmittedAt) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(15, gen.IntRange(0, 3)),
		gen.SliceOfN(15, gen.IntRange(1, 100)),
		gen.SliceOfN(15, gen.Float64Range(1, 500)),
	))

	properties.TestingRun(t)
}
