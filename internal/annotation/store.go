package annotation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"MarketReplay/internal/model"
	"MarketReplay/internal/storage"
)

// ErrUnknownKind rejects a line from a tool the chart does not have.
var ErrUnknownKind = errors.New("unknown drawing kind")

// Store holds the drawing lines of one chart slot for its active symbol.
// Lines of every timeframe are kept; Lines filters to the active one unless
// cross-timeframe persistence is on.
type Store struct {
	mu            sync.Mutex
	repo          storage.Repository
	chartID       string
	persistAcross bool
	now           func() time.Time

	symbol    string
	timeframe model.Timeframe
	lines     []model.DrawingLine
}

// NewStore creates an unscoped store for chartID. Call Scope before use.
func NewStore(repo storage.Repository, chartID string, persistAcrossTimeframes bool) *Store {
	return &Store{repo: repo, chartID: chartID, persistAcross: persistAcrossTimeframes, now: time.Now}
}

// Scope switches to symbol and timeframe. A symbol change reloads from persistence;
// a timeframe change only changes what Lines returns.
func (s *Store) Scope(ctx context.Context, symbol string, tf model.Timeframe) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.Lock()
	defer s.mu.Unlock()

	if symbol != s.symbol {
		var loaded []model.DrawingLine
		if _, err := s.repo.Load(ctx, storage.DrawingsKey(symbol, s.chartID), &loaded); err != nil {
			return fmt.Errorf("load drawings: %w", err)
		}
		s.lines = loaded
		s.symbol = symbol
	}
	s.timeframe = tf
	return nil
}

// SetPersistAcrossTimeframes toggles whether lines drawn on other timeframes are shown.
func (s *Store) SetPersistAcrossTimeframes(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistAcross = on
}

// Lines returns the lines visible in the active scope, oldest first.
func (s *Store) Lines() []model.DrawingLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DrawingLine, 0, len(s.lines))
	for _, l := range s.lines {
		if s.persistAcross || l.Timeframe == s.timeframe {
			out = append(out, l)
		}
	}
	return out
}

// Add appends line to the active scope and returns it with its identity assigned.
func (s *Store) Add(ctx context.Context, line model.DrawingLine) (model.DrawingLine, error) {
	if line.Kind == "" {
		line.Kind = model.LineTrend
	}
	if line.Kind != model.LineTrend && line.Kind != model.LineHorizontal {
		return model.DrawingLine{}, fmt.Errorf("%w: %q", ErrUnknownKind, line.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line.ID = uuid.NewString()
	line.Symbol = s.symbol
	line.ChartID = s.chartID
	if line.Timeframe == "" {
		line.Timeframe = s.timeframe
	}
	line.CreatedAt = s.now()

	next := append(append([]model.DrawingLine(nil), s.lines...), line)
	if err := s.persist(ctx, next); err != nil {
		return model.DrawingLine{}, err
	}
	s.lines = next
	return line, nil
}

// Remove deletes the line with id. Unknown ids are ignored.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keep(ctx, func(l model.DrawingLine) bool { return l.ID != id })
}

// Clear removes every line of the active symbol on this chart and purges the persisted copy.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Delete(ctx, storage.DrawingsKey(s.symbol, s.chartID)); err != nil {
		return fmt.Errorf("purge drawings: %w", err)
	}
	s.lines = nil
	return nil
}

// ClearForTimeframe removes only the lines tagged with tf.
func (s *Store) ClearForTimeframe(ctx context.Context, tf model.Timeframe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keep(ctx, func(l model.DrawingLine) bool { return l.Timeframe != tf })
}

func (s *Store) keep(ctx context.Context, pred func(model.DrawingLine) bool) error {
	next := make([]model.DrawingLine, 0, len(s.lines))
	for _, l := range s.lines {
		if pred(l) {
			next = append(next, l)
		}
	}
	if len(next) == len(s.lines) {
		return nil
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.lines = next
	return nil
}

func (s *Store) persist(ctx context.Context, lines []model.DrawingLine) error {
	key := storage.DrawingsKey(s.symbol, s.chartID)
	if len(lines) == 0 {
		if err := s.repo.Delete(ctx, key); err != nil {
			return fmt.Errorf("purge drawings: %w", err)
		}
		return nil
	}
	if err := s.repo.Save(ctx, key, lines); err != nil {
		return fmt.Errorf("persist drawings: %w", err)
	}
	return nil
}
