package annotation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketReplay/internal/model"
	"MarketReplay/internal/storage"
)

var ctx = context.Background()

func horizontal(y float64) model.DrawingLine {
	return model.DrawingLine{Kind: model.LineHorizontal, StartX: 1, StartY: y, EndX: 9, EndY: y, Color: "#f59e0b"}
}

func newStore(t *testing.T, across bool) (*Store, *storage.Store) {
	t.Helper()
	repo := storage.NewStore(storage.NewMemoryBackend())
	s := NewStore(repo, "primary", across)
	require.NoError(t, s.Scope(ctx, "aapl", model.Timeframe1m))
	return s, repo
}

func TestAdd_AssignsIdentityAndScope(t *testing.T) {
	s, repo := newStore(t, false)
	a, err := s.Add(ctx, horizontal(101))
	require.NoError(t, err)
	b, err := s.Add(ctx, model.DrawingLine{StartX: 0, StartY: 100, EndX: 5, EndY: 104})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "AAPL", a.Symbol)
	assert.Equal(t, "primary", a.ChartID)
	assert.Equal(t, model.Timeframe1m, a.Timeframe)
	assert.Equal(t, model.LineTrend, b.Kind)
	assert.Len(t, s.Lines(), 2)

	var persisted []model.DrawingLine
	ok, err := repo.Load(ctx, storage.DrawingsKey("AAPL", "primary"), &persisted)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, persisted, 2)
}

func TestAdd_RejectsUnknownKind(t *testing.T) {
	s, _ := newStore(t, false)
	_, err := s.Add(ctx, model.DrawingLine{Kind: "fib"})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Empty(t, s.Lines())
}

func TestRemove(t *testing.T) {
	s, _ := newStore(t, false)
	a, _ := s.Add(ctx, horizontal(1))
	b, _ := s.Add(ctx, horizontal(2))

	require.NoError(t, s.Remove(ctx, a.ID))
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, b.ID, lines[0].ID)

	require.NoError(t, s.Remove(ctx, "missing"), "absent id is a no-op")
	assert.Len(t, s.Lines(), 1)
}

func TestClearPurgesPersistence(t *testing.T) {
	s, repo := newStore(t, true)
	_, _ = s.Add(ctx, horizontal(1))
	require.NoError(t, s.Scope(ctx, "AAPL", model.Timeframe5m))
	_, _ = s.Add(ctx, horizontal(2))

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.Lines())
	var persisted []model.DrawingLine
	ok, err := repo.Load(ctx, storage.DrawingsKey("AAPL", "primary"), &persisted)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearForTimeframe(t *testing.T) {
	s, _ := newStore(t, true)
	_, _ = s.Add(ctx, horizontal(1))
	require.NoError(t, s.Scope(ctx, "AAPL", model.Timeframe5m))
	five, _ := s.Add(ctx, horizontal(2))

	require.NoError(t, s.ClearForTimeframe(ctx, model.Timeframe1m))
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, five.ID, lines[0].ID)
}

func TestTimeframeFilter(t *testing.T) {
	s, _ := newStore(t, false)
	_, _ = s.Add(ctx, horizontal(1))
	require.NoError(t, s.Scope(ctx, "AAPL", model.Timeframe2m))
	assert.Empty(t, s.Lines(), "other timeframe hidden")

	_, _ = s.Add(ctx, horizontal(2))
	assert.Len(t, s.Lines(), 1)

	s.SetPersistAcrossTimeframes(true)
	assert.Len(t, s.Lines(), 2)
}

func TestScopeReloadsPerSymbol(t *testing.T) {
	repo := storage.NewStore(storage.NewMemoryBackend())
	s := NewStore(repo, "primary", true)
	require.NoError(t, s.Scope(ctx, "AAPL", model.Timeframe1m))
	_, _ = s.Add(ctx, horizontal(1))

	require.NoError(t, s.Scope(ctx, "TSLA", model.Timeframe1m))
	assert.Empty(t, s.Lines())
	_, _ = s.Add(ctx, horizontal(2))

	require.NoError(t, s.Scope(ctx, "AAPL", model.Timeframe1m))
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 1.0, lines[0].StartY)

	other := NewStore(repo, "secondary", true)
	require.NoError(t, other.Scope(ctx, "AAPL", model.Timeframe1m))
	assert.Empty(t, other.Lines(), "slots do not share drawings")
}
