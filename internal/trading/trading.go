// Package trading turns trading actions and signals into broker orders and
// replays historical prices through a simulated broker.
package trading

import (
	"fmt"
	"strings"

	"papertrader/internal/models"
)

// Action is a high level trading intent.
type Action string

const (
	ActionBuy   Action = "buy"   // open or add to a long position
	ActionSell  Action = "sell"  // reduce a long position
	ActionShort Action = "short" // open or add to a short position
	ActionCover Action = "cover" // reduce a short position
	ActionHold  Action = "hold"
)

// Actions lists every action.
var Actions = []Action{ActionBuy, ActionSell, ActionShort, ActionCover, ActionHold}

// ParseAction parses s case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q (expected buy, sell, short, cover or hold)", s)
}

// Sides returns the order side and position side for a. ok is false for hold.
func (a Action) Sides() (side models.OrderSide, position models.PositionSide, ok bool) {
	switch a {
	case ActionBuy:
		return models.OrderSideBuy, models.PositionSideLong, true
	case ActionSell:
		return models.OrderSideSell, models.PositionSideLong, true
	case ActionShort:
		return models.OrderSideSell, models.PositionSideShort, true
	case ActionCover:
		return models.OrderSideBuy, models.PositionSideShort, true
	default:
		return "", "", false
	}
}

// ActionFor is the inverse of Sides.
func ActionFor(side models.OrderSide, position models.PositionSide) Action {
	switch {
	case side == models.OrderSideBuy && position == models.PositionSideShort:
		return ActionCover
	case side == models.OrderSideSell && position == models.PositionSideShort:
		return ActionShort
	case side == models.OrderSideSell:
		return ActionSell
	default:
		return ActionBuy
	}
}

// Signal is a request to act on a ticker, usually from an external source.
type Signal struct {
	Ticker     string
	Action     Action
	Quantity   int
	Confidence float64 // 0-100
	Reason     string
	Source     string
	LimitPrice *float64
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %d %s (confidence %.0f%%)", strings.ToUpper(string(s.Action)), s.Quantity, s.Ticker, s.Confidence)
}
