package ledger

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"MarketReplay/internal/model"
	"MarketReplay/internal/storage"
)

// DefaultInitialCash is the funding every slot starts with and returns to on reset.
var DefaultInitialCash = decimal.NewFromInt(10000)

// Options configures a Manager. Zero values take the defaults.
type Options struct {
	InitialCash   decimal.Decimal
	ResetInterval time.Duration
	Now           func() time.Time
	// OnReset is called, under the manager lock, after a slot's reset stamp moves forward.
	OnReset func(chartID string, at time.Time)
}

// Manager keeps the paper-trading ledgers of every (symbol, chart slot) with concurrency safety.
// Each mutation is checked against the slot's reset schedule and persisted before it becomes visible.
type Manager struct {
	mu     sync.Mutex
	repo   storage.Repository
	opts   Options
	states map[string]*model.LedgerState
	resets map[string]time.Time
}

// NewManager creates a Manager persisting through repo.
func NewManager(repo storage.Repository, opts Options) *Manager {
	if opts.InitialCash.Sign() <= 0 {
		opts.InitialCash = DefaultInitialCash
	}
	if opts.ResetInterval <= 0 {
		opts.ResetInterval = DefaultResetInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		repo:   repo,
		opts:   opts,
		states: make(map[string]*model.LedgerState),
		resets: make(map[string]time.Time),
	}
}

// InitialCash returns the funding amount.
func (m *Manager) InitialCash() decimal.Decimal { return m.opts.InitialCash }

// Submit applies a BUY or SELL of quantity at price to the symbol's position on chartID.
// A rejected order leaves cash, trades and history untouched.
func (m *Manager) Submit(ctx context.Context, symbol, chartID string, side model.Side, quantity int64, price decimal.Decimal) (*model.Fill, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	if side != model.SideBuy && side != model.SideSell {
		return nil, fmt.Errorf("unknown side %q", side)
	}
	symbol = normalize(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.current(ctx, symbol, chartID)
	if err != nil {
		return nil, err
	}
	return m.commit(ctx, current, side, quantity, price)
}

// Close flattens the open trade tradeID at price with an opposite order of its full size.
func (m *Manager) Close(ctx context.Context, symbol, chartID, tradeID string, price decimal.Decimal) (*model.Fill, error) {
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	symbol = normalize(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.current(ctx, symbol, chartID)
	if err != nil {
		return nil, err
	}
	open := current.Open
	if open == nil || (tradeID != "" && open.ID != tradeID) {
		return nil, fmt.Errorf("%w: %s on %s/%s", ErrTradeNotFound, tradeID, symbol, chartID)
	}
	side := model.SideSell
	qty := open.NetQuantity
	if qty < 0 {
		side, qty = model.SideBuy, -qty
	}
	return m.commit(ctx, current, side, qty, price)
}

// Snapshot marks the symbol's ledger at price. It never writes: a reset that is due
// shows as the funded initial state and is persisted by the next order.
func (m *Manager) Snapshot(ctx context.Context, symbol, chartID string, price decimal.Decimal) (model.Snapshot, error) {
	symbol = normalize(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.view(ctx, symbol, chartID)
	if err != nil {
		return model.Snapshot{}, err
	}
	return Mark(st, price), nil
}

// State returns a copy of the symbol's ledger as Snapshot would see it.
func (m *Manager) State(ctx context.Context, symbol, chartID string) (*model.LedgerState, error) {
	symbol = normalize(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.view(ctx, symbol, chartID)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Symbols lists the symbols with a persisted ledger on chartID, sorted.
func (m *Manager) Symbols(ctx context.Context, chartID string) ([]string, error) {
	keys, err := m.repo.Keys(ctx, storage.LedgerPrefix)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	suffix := ":" + chartID
	symbols := make([]string, 0, len(keys))
	for _, k := range keys {
		sym, ok := strings.CutSuffix(strings.TrimPrefix(k, storage.LedgerPrefix), suffix)
		if ok && sym != "" && !strings.Contains(sym, ":") {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// LastReset returns the slot's reset stamp, zero if the slot was never used.
func (m *Manager) LastReset(ctx context.Context, chartID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadStamp(ctx, chartID)
}

// Mark computes the derived PnL view of st at price.
func Mark(st *model.LedgerState, price decimal.Decimal) model.Snapshot {
	snap := model.Snapshot{
		Symbol:       st.Symbol,
		ChartID:      st.ChartID,
		CurrentPrice: price,
		Cash:         st.Cash,
		RealizedPnL:  decimal.Zero,
		Unrealized:   decimal.Zero,
		Open:         st.Open.Clone(),
		Closed:       append([]model.Trade{}, st.Closed...),
	}
	for _, t := range st.Closed {
		snap.RealizedPnL = snap.RealizedPnL.Add(t.RealizedPnL)
	}
	if st.Open != nil {
		snap.RealizedPnL = snap.RealizedPnL.Add(st.Open.RealizedPnL)
		snap.Unrealized = st.Open.UnrealizedPnL(price)
	}
	snap.TotalPnL = snap.RealizedPnL.Add(snap.Unrealized)
	snap.AccountValue = snap.Cash.Add(snap.TotalPnL)
	return snap
}

// commit applies the order to a copy of current, persists it, and only then swaps it in.
func (m *Manager) commit(ctx context.Context, current *model.LedgerState, side model.Side, quantity int64, price decimal.Decimal) (*model.Fill, error) {
	tx := model.Transaction{
		ID:        uuid.NewString(),
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Timestamp: m.opts.Now(),
	}
	if side == model.SideBuy && tx.Value().GreaterThan(current.Cash) {
		return nil, &InsufficientFundsError{Required: tx.Value(), Available: current.Cash}
	}

	next := current.Clone()
	fill := Apply(next, tx)
	next.UpdatedAt = tx.Timestamp

	key := storage.LedgerKey(next.Symbol, next.ChartID)
	if err := m.repo.Save(ctx, key, next); err != nil {
		return nil, fmt.Errorf("persist ledger: %w", err)
	}
	m.states[key] = next
	return &fill, nil
}

// Apply books tx against st in place and returns the fill.
//
// Same-direction fills (or the first fill from flat) extend the position and re-average the entry.
// Opposite fills realize (price - entry) * closed * direction; any quantity beyond flat opens the
// other direction at price on the same trade. Cash moves by the signed trade value plus the realized delta.
func Apply(st *model.LedgerState, tx model.Transaction) model.Fill {
	sign := tx.Side.Sign()
	value := tx.Value()
	signedValue := value.Mul(decimal.NewFromInt(sign))
	realized := decimal.Zero
	fill := model.Fill{Transaction: tx}

	t := st.Open
	switch {
	case t == nil:
		t = &model.Trade{
			ID:          uuid.NewString(),
			Symbol:      st.Symbol,
			ChartID:     st.ChartID,
			EntryPrice:  tx.Price,
			NetQuantity: tx.Signed(),
			TotalCost:   signedValue,
			RealizedPnL: decimal.Zero,
			OpenedAt:    tx.Timestamp,
		}
		st.Open = t
	case t.Direction() == sign:
		t.NetQuantity += tx.Signed()
		t.TotalCost = t.TotalCost.Add(signedValue)
		t.EntryPrice = t.TotalCost.Abs().Div(decimal.NewFromInt(abs(t.NetQuantity)))
	default:
		held := abs(t.NetQuantity)
		closing := min(tx.Quantity, held)
		realized = tx.Price.Sub(t.EntryPrice).Mul(decimal.NewFromInt(closing)).Mul(decimal.NewFromInt(t.Direction()))
		t.RealizedPnL = t.RealizedPnL.Add(realized)

		if remainder := tx.Quantity - closing; remainder > 0 {
			t.NetQuantity = sign * remainder
			t.EntryPrice = tx.Price
			t.TotalCost = tx.Price.Mul(decimal.NewFromInt(t.NetQuantity))
			fill.Flipped = true
		} else {
			t.NetQuantity += tx.Signed()
			t.TotalCost = t.EntryPrice.Mul(decimal.NewFromInt(t.NetQuantity))
		}
	}
	t.Transactions = append(t.Transactions, tx)

	st.Cash = st.Cash.Sub(signedValue).Add(realized)

	fill.RealizedDelta = realized
	fill.CashAfter = st.Cash
	fill.Trade = *t.Clone()
	if t.NetQuantity == 0 {
		t.ClosedAt = tx.Timestamp
		fill.Trade.ClosedAt = tx.Timestamp
		fill.Closed = true
		st.Closed = append(st.Closed, *t)
		st.Open = nil
	}
	return fill
}

// current returns the live state for a mutation, stamping a new reset first when one is due.
func (m *Manager) current(ctx context.Context, symbol, chartID string) (*model.LedgerState, error) {
	now := m.opts.Now()
	last, err := m.loadStamp(ctx, chartID)
	if err != nil {
		return nil, err
	}
	if ShouldReset(last, now, m.opts.ResetInterval) {
		if err := m.repo.Save(ctx, storage.ResetKey(chartID), now); err != nil {
			return nil, fmt.Errorf("persist reset stamp: %w", err)
		}
		m.resets[chartID] = now
		if !last.IsZero() {
			log.Printf("[INFO] ledger reset for chart %s (last reset %s)", chartID, last.Format(time.RFC3339))
			if m.opts.OnReset != nil {
				m.opts.OnReset(chartID, now)
			}
		}
		last = now
	}
	return m.stateSince(ctx, symbol, chartID, last)
}

// view is current without side effects.
func (m *Manager) view(ctx context.Context, symbol, chartID string) (*model.LedgerState, error) {
	now := m.opts.Now()
	last, err := m.loadStamp(ctx, chartID)
	if err != nil {
		return nil, err
	}
	if ShouldReset(last, now, m.opts.ResetInterval) {
		return m.fresh(symbol, chartID, now), nil
	}
	return m.stateSince(ctx, symbol, chartID, last)
}

// stateSince loads the symbol's state, treating anything recorded before stamp as wiped.
func (m *Manager) stateSince(ctx context.Context, symbol, chartID string, stamp time.Time) (*model.LedgerState, error) {
	key := storage.LedgerKey(symbol, chartID)
	st, ok := m.states[key]
	if !ok {
		var loaded model.LedgerState
		found, err := m.repo.Load(ctx, key, &loaded)
		if err != nil {
			return nil, fmt.Errorf("load ledger: %w", err)
		}
		if found {
			if err := Audit(&loaded, m.opts.InitialCash); err != nil {
				log.Printf("[WARN] %v", err)
			}
			st = &loaded
			m.states[key] = st
		}
	}
	if st == nil || st.ResetAt.Before(stamp) {
		return m.fresh(symbol, chartID, stamp), nil
	}
	return st, nil
}

func (m *Manager) loadStamp(ctx context.Context, chartID string) (time.Time, error) {
	if t, ok := m.resets[chartID]; ok {
		return t, nil
	}
	var t time.Time
	if _, err := m.repo.Load(ctx, storage.ResetKey(chartID), &t); err != nil {
		return time.Time{}, fmt.Errorf("load reset stamp: %w", err)
	}
	if !t.IsZero() {
		m.resets[chartID] = t
	}
	return t, nil
}

func (m *Manager) fresh(symbol, chartID string, stamp time.Time) *model.LedgerState {
	return &model.LedgerState{
		Symbol:  symbol,
		ChartID: chartID,
		Cash:    m.opts.InitialCash,
		Closed:  []model.Trade{},
		ResetAt: stamp,
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
