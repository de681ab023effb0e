package broker

import (
	"fmt"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

// fill dispatches order to the ledger primitive for its side and book and
// returns the quantity actually filled.
func (p *PaperBroker) fill(order models.Order, price float64) (int, error) {
	if order.PositionSide == models.PositionSideLong {
		if order.Side == models.OrderSideBuy {
			return p.openLong(order.Ticker, order.Quantity, price)
		}
		return p.closeLong(order.Ticker, order.Quantity, price), nil
	}
	if order.Side == models.OrderSideSell {
		return p.openShort(order.Ticker, order.Quantity, price)
	}
	return p.coverShort(order.Ticker, order.Quantity, price), nil
}

// position returns the position in ticker, creating an empty one on side.
// An existing position on the other side is a conflict.
func (p *PaperBroker) position(ticker string, side models.PositionSide) (*models.Position, error) {
	pos, ok := p.positions[ticker]
	if !ok {
		pos = &models.Position{Ticker: ticker, Side: side}
		return pos, nil
	}
	if pos.Side != side {
		return nil, fmt.Errorf("%w: %s is held %s", errors.ErrPositionSideConflict, ticker, pos.Side)
	}
	return pos, nil
}

// addToPosition stores pos with qty more units at price, updating the weighted average cost.
func (p *PaperBroker) addToPosition(pos *models.Position, qty int, price float64) {
	total := pos.Quantity + qty
	pos.AverageCost = (pos.AverageCost*float64(pos.Quantity) + price*float64(qty)) / float64(total)
	pos.Quantity = total
	p.positions[pos.Ticker] = pos
}

// openLong buys qty units, clamping to what cash affords.
func (p *PaperBroker) openLong(ticker string, qty int, price float64) (int, error) {
	pos, err := p.position(ticker, models.PositionSideLong)
	if err != nil {
		return 0, err
	}

	cost := float64(qty) * price
	if cost > p.cash {
		affordable := 0
		if price > 0 {
			affordable = int(p.cash / price)
		}
		for affordable > 0 && float64(affordable)*price > p.cash {
			affordable--
		}
		if affordable == 0 {
			return 0, errors.NewFundingError(errors.ErrInsufficientFunds, ticker, cost, p.cash)
		}
		qty = affordable
		cost = float64(qty) * price
	}

	p.addToPosition(pos, qty, price)
	p.cash -= cost
	return qty, nil
}

// closeLong sells up to qty units of a long position. No long position fills zero.
func (p *PaperBroker) closeLong(ticker string, qty int, price float64) int {
	pos, ok := p.positions[ticker]
	if !ok || pos.Side != models.PositionSideLong || pos.Quantity == 0 {
		return 0
	}
	qty = min(qty, pos.Quantity)

	pos.RealizedPnL += (price - pos.AverageCost) * float64(qty)
	pos.Quantity -= qty
	p.cash += float64(qty) * price

	if pos.Quantity == 0 {
		delete(p.positions, ticker)
	}
	return qty
}

// openShort sells qty units short, reserving margin and clamping to what cash covers.
func (p *PaperBroker) openShort(ticker string, qty int, price float64) (int, error) {
	pos, err := p.position(ticker, models.PositionSideShort)
	if err != nil {
		return 0, err
	}

	margin := float64(qty) * price * p.marginRequirement
	if margin > p.cash {
		affordable := 0
		if price > 0 && p.marginRequirement > 0 {
			affordable = int(p.cash / (price * p.marginRequirement))
		}
		for affordable > 0 && float64(affordable)*price*p.marginRequirement > p.cash {
			affordable--
		}
		if affordable == 0 {
			return 0, errors.NewFundingError(errors.ErrInsufficientMargin, ticker, margin, p.cash)
		}
		qty = affordable
		margin = float64(qty) * price * p.marginRequirement
	}

	proceeds := float64(qty) * price
	p.addToPosition(pos, qty, price)
	p.marginUsed += margin
	p.cash += proceeds - margin
	return qty, nil
}

// coverShort buys back up to qty units of a short position. Margin is released
// at the cover price, not the price it was reserved at.
func (p *PaperBroker) coverShort(ticker string, qty int, price float64) int {
	pos, ok := p.positions[ticker]
	if !ok || pos.Side != models.PositionSideShort || pos.Quantity == 0 {
		return 0
	}
	qty = min(qty, pos.Quantity)

	pos.RealizedPnL += (pos.AverageCost - price) * float64(qty)
	release := float64(qty) * price * p.marginRequirement
	pos.Quantity -= qty
	p.marginUsed -= release
	p.cash += release - float64(qty)*price

	if pos.Quantity == 0 {
		delete(p.positions, ticker)
	}
	return qty
}
