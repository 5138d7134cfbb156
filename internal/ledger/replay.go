package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"MarketReplay/internal/model"
)

// replayTolerance absorbs the rounding of repeated average-cost divisions.
var replayTolerance = decimal.New(1, -6)

// Reckoning is cash and PnL rebuilt from a raw transaction log.
type Reckoning struct {
	Cash       decimal.Decimal
	Realized   decimal.Decimal
	Unrealized decimal.Decimal
}

// Replay rebuilds cash and PnL from txs, oldest first, starting from initial cash.
// It keeps only a net quantity and an average entry, none of the trade bookkeeping Apply does,
// so it is an independent check on a persisted state. The open remainder is marked at price.
func Replay(initial decimal.Decimal, txs []model.Transaction, price decimal.Decimal) Reckoning {
	r := Reckoning{Cash: initial, Realized: decimal.Zero, Unrealized: decimal.Zero}
	var net int64
	entry := decimal.Zero
	for _, tx := range txs {
		q := tx.Signed()
		r.Cash = r.Cash.Sub(tx.Value().Mul(decimal.NewFromInt(tx.Side.Sign())))
		if net == 0 || (net > 0) == (q > 0) {
			cost := entry.Mul(decimal.NewFromInt(abs(net))).Add(tx.Value())
			net += q
			entry = cost.Div(decimal.NewFromInt(abs(net)))
			continue
		}
		closing := min(abs(q), abs(net))
		realized := tx.Price.Sub(entry).Mul(decimal.NewFromInt(closing * direction(net)))
		r.Realized = r.Realized.Add(realized)
		r.Cash = r.Cash.Add(realized)
		prev := net
		net += q
		if net != 0 && (net > 0) != (prev > 0) {
			entry = tx.Price
		}
	}
	if net != 0 {
		r.Unrealized = price.Sub(entry).Mul(decimal.NewFromInt(abs(net) * direction(net)))
	}
	return r
}

// Transactions returns every fill of st, closed trades and the open one, in time order.
func Transactions(st *model.LedgerState) []model.Transaction {
	var txs []model.Transaction
	for _, t := range st.Trades() {
		txs = append(txs, t.Transactions...)
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Timestamp.Before(txs[j].Timestamp) })
	return txs
}

// Audit replays st's transaction log from initial and reports a cash balance that disagrees with it.
func Audit(st *model.LedgerState, initial decimal.Decimal) error {
	r := Replay(initial, Transactions(st), decimal.Zero)
	if r.Cash.Sub(st.Cash).Abs().GreaterThan(replayTolerance) {
		return fmt.Errorf("%w: %s/%s holds %s, log says %s",
			ErrLedgerMismatch, st.Symbol, st.ChartID, st.Cash.StringFixed(2), r.Cash.StringFixed(2))
	}
	return nil
}

func direction(net int64) int64 {
	if net < 0 {
		return -1
	}
	return 1
}
