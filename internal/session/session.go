package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"MarketReplay/internal/annotation"
	"MarketReplay/internal/calculator"
	"MarketReplay/internal/collector"
	"MarketReplay/internal/ledger"
	"MarketReplay/internal/model"
	"MarketReplay/internal/playback"
	"MarketReplay/internal/recorder"
	"MarketReplay/internal/storage"
)

// Chart slot identifiers.
const (
	ChartPrimary   = "primary"
	ChartSecondary = "secondary"
)

var (
	// ErrStaleLoad is returned by a load that a newer request for the same slot superseded.
	ErrStaleLoad = errors.New("load superseded by a newer request")
	// ErrUnknownChart names a chart slot the session does not have.
	ErrUnknownChart = errors.New("unknown chart")
	// ErrNoData rejects an order on a slot with no bars to price it.
	ErrNoData = errors.New("no market data loaded")
)

// Loader produces the series for one slot.
type Loader interface {
	Load(ctx context.Context, symbol string, day time.Time, tf model.Timeframe) (*collector.Result, error)
}

// SlotConfig is what a chart slot shows.
type SlotConfig struct {
	Symbol    string
	Timeframe model.Timeframe
}

// Options configures a Session.
type Options struct {
	Day                     time.Time
	Primary                 SlotConfig
	Secondary               SlotConfig
	PersistAcrossTimeframes bool
	Recorder                recorder.Recorder
}

// SlotView is one chart slot at the current cursor.
type SlotView struct {
	ChartID    string              `json:"chartId"`
	Symbol     string              `json:"symbol"`
	Timeframe  model.Timeframe     `json:"timeframe"`
	Source     string              `json:"source"`
	Warning    string              `json:"warning,omitempty"`
	Index      int                 `json:"index"`
	Length     int                 `json:"length"`
	Current    *model.Bar          `json:"current,omitempty"`
	Previous   *model.Bar          `json:"previous,omitempty"`
	PriceDelta float64             `json:"priceDelta"`
	Visible    []model.Bar         `json:"-"`
	Stats      model.SeriesStats   `json:"stats"`
	Ledger     *model.Snapshot     `json:"ledger,omitempty"`
	Lines      []model.DrawingLine `json:"lines"`
}

// Update is the whole session after a change.
type Update struct {
	Day    string          `json:"day"`
	Cursor playback.Cursor `json:"cursor"`
	Slots  []SlotView      `json:"slots"`
}

type slot struct {
	id       string
	symbol   string
	tf       model.Timeframe
	bars     []model.Bar
	source   string
	warning  error
	seq      uint64
	drawings *annotation.Store
}

// Session is one replay desk: two chart slots sharing a playback cursor, each with
// its own ledger and drawings.
type Session struct {
	// loadMu orders series commits with the engine reloads they trigger.
	loadMu sync.Mutex
	mu     sync.Mutex

	loader    Loader
	engine    *playback.Engine
	ledger    *ledger.Manager
	rec       recorder.Recorder
	day       time.Time
	slots     []*slot
	listeners []func(Update)
}

// New creates a session. Call Init to load the configured slots.
func New(loader Loader, engine *playback.Engine, lm *ledger.Manager, repo storage.Repository, opts Options) *Session {
	if opts.Recorder == nil {
		opts.Recorder = recorder.NewNoopRecorder()
	}
	if opts.Day.IsZero() {
		opts.Day = time.Now()
	}
	s := &Session{
		loader: loader,
		engine: engine,
		ledger: lm,
		rec:    opts.Recorder,
		day:    opts.Day,
	}
	for _, c := range []struct {
		id  string
		cfg SlotConfig
	}{{ChartPrimary, opts.Primary}, {ChartSecondary, opts.Secondary}} {
		s.slots = append(s.slots, &slot{
			id:       c.id,
			symbol:   strings.ToUpper(c.cfg.Symbol),
			tf:       c.cfg.Timeframe,
			drawings: annotation.NewStore(repo, c.id, opts.PersistAcrossTimeframes),
		})
	}
	engine.Subscribe(s.onFrame)
	return s
}

// Init loads every slot.
func (s *Session) Init(ctx context.Context) error {
	for _, id := range s.ChartIDs() {
		if err := s.LoadSlot(ctx, id, "", ""); err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}
	}
	return nil
}

// ChartIDs lists the slots in display order.
func (s *Session) ChartIDs() []string {
	return []string{ChartPrimary, ChartSecondary}
}

// Engine exposes the shared playback engine.
func (s *Session) Engine() *playback.Engine { return s.engine }

// Subscribe registers fn for every update.
func (s *Session) Subscribe(fn func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// LoadSlot replaces chartID's series. Empty symbol or tf keep the slot's current value.
// Only the newest request per slot is applied; an older one that finishes later returns ErrStaleLoad.
func (s *Session) LoadSlot(ctx context.Context, chartID, symbol string, tf model.Timeframe) error {
	s.mu.Lock()
	sl, err := s.slotLocked(chartID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if symbol == "" {
		symbol = sl.symbol
	}
	if tf == "" {
		tf = sl.tf
	}
	sl.seq++
	seq, day := sl.seq, s.day
	s.mu.Unlock()

	res, err := s.loader.Load(ctx, symbol, day, tf)
	if err != nil {
		return err
	}
	if res.Warning != nil {
		log.Printf("[WARN] %s %s: %v", chartID, res.Symbol, res.Warning)
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.Lock()
	if sl.seq != seq {
		s.mu.Unlock()
		return fmt.Errorf("%s %s %s: %w", chartID, res.Symbol, tf, ErrStaleLoad)
	}
	if err := sl.drawings.Scope(ctx, res.Symbol, tf); err != nil {
		s.mu.Unlock()
		return err
	}
	sl.symbol, sl.tf = res.Symbol, tf
	sl.bars, sl.source, sl.warning = res.Bars, res.Source, res.Warning
	series := s.longestLocked()
	s.mu.Unlock()

	s.engine.Load(series)
	log.Printf("[INFO] %s loaded %s %s %s: %d bars (%s)", chartID, res.Symbol, day.Format("2006-01-02"), tf, len(res.Bars), res.Source)
	return nil
}

// SetSymbol switches a slot to symbol.
func (s *Session) SetSymbol(ctx context.Context, chartID, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := collector.LookupStock(symbol); !ok {
		log.Printf("[WARN] %s is not in the catalog; synthetic fallback will be empty", symbol)
	}
	return s.LoadSlot(ctx, chartID, symbol, "")
}

// SetTimeframe switches a slot to tf.
func (s *Session) SetTimeframe(ctx context.Context, chartID string, tf model.Timeframe) error {
	if tf.Minutes() == 0 {
		return fmt.Errorf("unknown timeframe %q", tf)
	}
	return s.LoadSlot(ctx, chartID, "", tf)
}

// SetDate reloads every slot for day.
func (s *Session) SetDate(ctx context.Context, day time.Time) error {
	s.mu.Lock()
	s.day = day
	s.mu.Unlock()
	return s.Init(ctx)
}

// Day returns the replayed calendar day.
func (s *Session) Day() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.day
}

// Buy opens or extends a long (or reduces a short) on chartID at the current bar's close.
func (s *Session) Buy(ctx context.Context, chartID string, qty int64) (*model.Fill, error) {
	return s.order(ctx, chartID, model.SideBuy, qty)
}

// Sell opens or extends a short (or reduces a long) on chartID at the current bar's close.
func (s *Session) Sell(ctx context.Context, chartID string, qty int64) (*model.Fill, error) {
	return s.order(ctx, chartID, model.SideSell, qty)
}

func (s *Session) order(ctx context.Context, chartID string, side model.Side, qty int64) (*model.Fill, error) {
	symbol, price, err := s.quote(chartID)
	if err != nil {
		return nil, err
	}
	fill, err := s.ledger.Submit(ctx, symbol, chartID, side, qty, price)
	if err != nil {
		return nil, err
	}
	s.journal(symbol, chartID, fill)
	return fill, nil
}

// ClosePosition flattens chartID's open trade at the current bar's close.
func (s *Session) ClosePosition(ctx context.Context, chartID string) (*model.Fill, error) {
	symbol, price, err := s.quote(chartID)
	if err != nil {
		return nil, err
	}
	st, err := s.ledger.State(ctx, symbol, chartID)
	if err != nil {
		return nil, err
	}
	if st.Open == nil {
		return nil, fmt.Errorf("%w: no open position on %s", ledger.ErrTradeNotFound, chartID)
	}
	fill, err := s.ledger.Close(ctx, symbol, chartID, st.Open.ID, price)
	if err != nil {
		return nil, err
	}
	s.journal(symbol, chartID, fill)
	return fill, nil
}

// Ledger marks chartID's ledger at the current bar's close.
func (s *Session) Ledger(ctx context.Context, chartID string) (model.Snapshot, error) {
	symbol, price, err := s.quote(chartID)
	if errors.Is(err, ErrNoData) {
		price = decimal.Zero
	} else if err != nil {
		return model.Snapshot{}, err
	}
	return s.ledger.Snapshot(ctx, symbol, chartID, price)
}

// AddLine stores a drawing on chartID.
func (s *Session) AddLine(ctx context.Context, chartID string, line model.DrawingLine) (model.DrawingLine, error) {
	store, err := s.drawings(chartID)
	if err != nil {
		return model.DrawingLine{}, err
	}
	added, err := store.Add(ctx, line)
	if err == nil {
		s.publish()
	}
	return added, err
}

// RemoveLine deletes one drawing from chartID.
func (s *Session) RemoveLine(ctx context.Context, chartID, id string) error {
	return s.editLines(chartID, func(a *annotation.Store) error { return a.Remove(ctx, id) })
}

// ClearLines removes every drawing of chartID's symbol.
func (s *Session) ClearLines(ctx context.Context, chartID string) error {
	return s.editLines(chartID, func(a *annotation.Store) error { return a.Clear(ctx) })
}

// ClearLinesForTimeframe removes chartID's drawings tagged with tf.
func (s *Session) ClearLinesForTimeframe(ctx context.Context, chartID string, tf model.Timeframe) error {
	return s.editLines(chartID, func(a *annotation.Store) error { return a.ClearForTimeframe(ctx, tf) })
}

// SetPersistAcrossTimeframes toggles whether chartID shows lines drawn on its other timeframes.
func (s *Session) SetPersistAcrossTimeframes(chartID string, on bool) error {
	store, err := s.drawings(chartID)
	if err != nil {
		return err
	}
	store.SetPersistAcrossTimeframes(on)
	s.publish()
	return nil
}

// Symbols lists the symbols with a stored ledger on chartID.
func (s *Session) Symbols(ctx context.Context, chartID string) ([]string, error) {
	s.mu.Lock()
	_, err := s.slotLocked(chartID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.ledger.Symbols(ctx, chartID)
}

// Ticks synthesizes one-second prints inside chartID's bar under the shared cursor.
// A given bar always yields the same ticks.
func (s *Session) Ticks(chartID string) ([]collector.Tick, error) {
	idx := s.engine.Cursor().Index
	s.mu.Lock()
	sl, err := s.slotLocked(chartID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if len(sl.bars) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s %s: %w", chartID, sl.symbol, ErrNoData)
	}
	bar, tf := sl.bars[clampIndex(idx, len(sl.bars))], sl.tf
	s.mu.Unlock()
	return collector.SynthesizeTicks(bar, tf, rand.New(rand.NewSource(bar.Timestamp))), nil
}

// TickPrice is the synthetic print in force at ts (epoch ms) inside chartID's current bar.
func (s *Session) TickPrice(chartID string, ts int64) (float64, error) {
	ticks, err := s.Ticks(chartID)
	if err != nil {
		return 0, err
	}
	return collector.PriceAt(ticks, ts), nil
}

func (s *Session) editLines(chartID string, fn func(*annotation.Store) error) error {
	store, err := s.drawings(chartID)
	if err != nil {
		return err
	}
	if err := fn(store); err != nil {
		return err
	}
	s.publish()
	return nil
}

// Status builds the current update without waiting for a tick.
func (s *Session) Status(ctx context.Context) Update {
	return s.build(ctx, s.engine.Cursor())
}

// RecordSnapshots journals a ledger mark of every slot that has data.
func (s *Session) RecordSnapshots(ctx context.Context) error {
	var errs []error
	for _, v := range s.Status(ctx).Slots {
		if v.Ledger == nil || v.Current == nil {
			continue
		}
		if err := s.rec.RecordSnapshot(&recorder.SnapshotEvent{Snapshot: v.Ledger, BarTime: v.Current.Timestamp}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.ChartID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) journal(symbol, chartID string, fill *model.Fill) {
	if err := s.rec.RecordFill(&recorder.FillEvent{Symbol: symbol, ChartID: chartID, Fill: fill}); err != nil {
		log.Printf("[ERROR] record fill: %v", err)
	}
	s.publish()
}

// quote returns chartID's symbol and the close of its bar under the shared cursor.
func (s *Session) quote(chartID string) (string, decimal.Decimal, error) {
	idx := s.engine.Cursor().Index
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.slotLocked(chartID)
	if err != nil {
		return "", decimal.Zero, err
	}
	if len(sl.bars) == 0 {
		return sl.symbol, decimal.Zero, fmt.Errorf("%s %s: %w", chartID, sl.symbol, ErrNoData)
	}
	bar := sl.bars[clampIndex(idx, len(sl.bars))]
	return sl.symbol, decimal.NewFromFloat(bar.Close), nil
}

func (s *Session) drawings(chartID string) (*annotation.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.slotLocked(chartID)
	if err != nil {
		return nil, err
	}
	return sl.drawings, nil
}

func (s *Session) onFrame(f playback.Frame) {
	u := s.build(context.Background(), f.Cursor)
	s.notify(u)
}

func (s *Session) publish() {
	s.notify(s.Status(context.Background()))
}

func (s *Session) notify(u Update) {
	s.mu.Lock()
	listeners := make([]func(Update), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
}

// build renders every slot at cursor and marks its ledger at the visible close.
func (s *Session) build(ctx context.Context, cursor playback.Cursor) Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := Update{Day: s.day.Format("2006-01-02"), Cursor: cursor, Slots: make([]SlotView, 0, len(s.slots))}
	for _, sl := range s.slots {
		v := SlotView{
			ChartID:   sl.id,
			Symbol:    sl.symbol,
			Timeframe: sl.tf,
			Source:    sl.source,
			Length:    len(sl.bars),
			Lines:     sl.drawings.Lines(),
		}
		if sl.warning != nil {
			v.Warning = sl.warning.Error()
		}
		price := decimal.Zero
		if n := len(sl.bars); n > 0 {
			v.Index = clampIndex(cursor.Index, n)
			cur := sl.bars[v.Index]
			v.Current = &cur
			if v.Index > 0 {
				prev := sl.bars[v.Index-1]
				v.Previous = &prev
				v.PriceDelta = cur.Close - prev.Close
			}
			v.Visible = sl.bars[:v.Index+1]
			v.Stats = calculator.Summarize(v.Visible)
			price = decimal.NewFromFloat(cur.Close)
		}
		if sl.symbol != "" {
			snap, err := s.ledger.Snapshot(ctx, sl.symbol, sl.id, price)
			if err != nil {
				log.Printf("[WARN] mark %s %s: %v", sl.id, sl.symbol, err)
			} else {
				v.Ledger = &snap
			}
		}
		u.Slots = append(u.Slots, v)
	}
	return u
}

func (s *Session) slotLocked(chartID string) (*slot, error) {
	for _, sl := range s.slots {
		if sl.id == chartID {
			return sl, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownChart, chartID)
}

// longestLocked returns the series the shared cursor runs over.
func (s *Session) longestLocked() []model.Bar {
	var longest []model.Bar
	for _, sl := range s.slots {
		if len(sl.bars) > len(longest) {
			longest = sl.bars
		}
	}
	return longest
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
