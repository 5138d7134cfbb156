package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Opposite returns the side that reduces a position opened with s.
func (s Side) Opposite() Side {
	if s == SideSell {
		return SideBuy
	}
	return SideSell
}

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(v string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(v))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", v)
	}
}

// Transaction is one immutable fill.
type Transaction struct {
	ID        string          `json:"id"`
	Side      Side            `json:"side"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Signed returns the quantity with BUY positive and SELL negative.
func (t Transaction) Signed() int64 {
	return t.Side.Sign() * t.Quantity
}

// Value returns quantity * price.
func (t Transaction) Value() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// Trade is a position in one symbol on one chart slot.
// NetQuantity is positive for long, negative for short and zero once flat.
// TotalCost carries the same sign as NetQuantity.
type Trade struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	ChartID      string          `json:"chart_id"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	NetQuantity  int64           `json:"net_quantity"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     time.Time       `json:"closed_at,omitempty"`
	Transactions []Transaction   `json:"transactions"`
}

// IsOpen reports whether the trade still carries quantity.
func (t *Trade) IsOpen() bool { return t.NetQuantity != 0 }

// Direction returns +1 long, -1 short, 0 flat.
func (t *Trade) Direction() int64 {
	switch {
	case t.NetQuantity > 0:
		return 1
	case t.NetQuantity < 0:
		return -1
	default:
		return 0
	}
}

// UnrealizedPnL marks the open quantity at price. Flat trades return zero.
func (t *Trade) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if t.NetQuantity == 0 {
		return decimal.Zero
	}
	abs := t.NetQuantity
	if abs < 0 {
		abs = -abs
	}
	return price.Sub(t.EntryPrice).Mul(decimal.NewFromInt(abs)).Mul(decimal.NewFromInt(t.Direction()))
}

// Clone returns a deep copy safe to mutate.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	c := *t
	c.Transactions = append([]Transaction(nil), t.Transactions...)
	return &c
}

// LedgerState is the persisted paper-trading state of one symbol on one chart slot.
type LedgerState struct {
	Symbol    string          `json:"symbol"`
	ChartID   string          `json:"chart_id"`
	Cash      decimal.Decimal `json:"cash"`
	Open      *Trade          `json:"open,omitempty"`
	Closed    []Trade         `json:"closed"`
	ResetAt   time.Time       `json:"reset_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Trades returns closed trades followed by the open one, if any.
func (s *LedgerState) Trades() []Trade {
	out := make([]Trade, 0, len(s.Closed)+1)
	out = append(out, s.Closed...)
	if s.Open != nil {
		out = append(out, *s.Open)
	}
	return out
}

// Clone returns a deep copy safe to mutate.
func (s *LedgerState) Clone() *LedgerState {
	c := *s
	c.Open = s.Open.Clone()
	c.Closed = make([]Trade, len(s.Closed))
	for i := range s.Closed {
		c.Closed[i] = *s.Closed[i].Clone()
	}
	return &c
}

// Snapshot is the ledger view marked at a given price.
type Snapshot struct {
	Symbol       string          `json:"symbol"`
	ChartID      string          `json:"chart_id"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Cash         decimal.Decimal `json:"cash"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	Unrealized   decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL     decimal.Decimal `json:"total_pnl"`
	AccountValue decimal.Decimal `json:"account_value"`
	Open         *Trade          `json:"open,omitempty"`
	Closed       []Trade         `json:"closed"`
}

// Fill reports the outcome of one accepted order.
type Fill struct {
	Trade         Trade           `json:"trade"`
	Transaction   Transaction     `json:"transaction"`
	RealizedDelta decimal.Decimal `json:"realized_delta"`
	CashAfter     decimal.Decimal `json:"cash_after"`
	Flipped       bool            `json:"flipped"`
	Closed        bool            `json:"closed"`
}
