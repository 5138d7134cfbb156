package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketReplay/internal/model"
)

func TestHandleCommand_Orders(t *testing.T) {
	f := newFixture(t)

	reply := f.s.HandleCommand("/buy 5")
	assert.Contains(t, reply, "BUY 5 AAPL")
	assert.Contains(t, reply, "@ 100.00")

	reply = f.s.HandleCommand("/sell s 2")
	assert.Contains(t, reply, "SELL 2 TSLA")

	reply = f.s.HandleCommand("/ledger")
	assert.Contains(t, reply, "primary AAPL")
	assert.Contains(t, reply, "Open: LONG 5 @ 100.00")

	reply = f.s.HandleCommand("/close@ReplayBot p")
	assert.Contains(t, reply, "Position closed")

	assert.Contains(t, f.s.HandleCommand("/close"), "❌")
	assert.Contains(t, f.s.HandleCommand("/buy many"), "bad quantity")
	assert.Contains(t, f.s.HandleCommand("/buy 100000"), "insufficient funds")
}

func TestHandleCommand_Navigation(t *testing.T) {
	f := newFixture(t)
	e := f.s.Engine()

	f.s.HandleCommand("/seek 4")
	assert.Equal(t, 3, e.Cursor().Index, "seek is 1-based")

	f.s.HandleCommand("/end")
	assert.Equal(t, 9, e.Cursor().Index)
	f.s.HandleCommand("/start")
	assert.Equal(t, 0, e.Cursor().Index)

	assert.Equal(t, "Speed 2x", f.s.HandleCommand("/speed 2x"))
	assert.Equal(t, "Speed 4x", f.s.HandleCommand("/faster"))
	assert.Contains(t, f.s.HandleCommand("/speed 0"), "❌")
	assert.Equal(t, 4.0, e.Cursor().Speed)

	f.s.HandleCommand("/play")
	assert.True(t, e.Cursor().Playing())
	f.s.HandleCommand("/pause")
	assert.False(t, e.Cursor().Playing())

	assert.Contains(t, f.s.HandleCommand("/seek x"), "bad index")
}

func TestHandleCommand_Slots(t *testing.T) {
	f := newFixture(t)

	f.s.HandleCommand("/tf secondary 5m")
	v := slotView(f.s.Status(ctx), ChartSecondary)
	assert.Equal(t, model.Timeframe5m, v.Timeframe)
	assert.Equal(t, 2, v.Length)

	f.s.HandleCommand("/symbol googl")
	assert.Equal(t, "GOOGL", slotView(f.s.Status(ctx), ChartPrimary).Symbol)

	assert.Contains(t, f.s.HandleCommand("/tf 3m"), "❌")
	assert.Contains(t, f.s.HandleCommand("/date 2024/03/06"), "bad date")
	assert.Contains(t, f.s.HandleCommand("/clear s"), "secondary")
}

func TestHandleCommand_Help(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.s.HandleCommand("/bogus"), "Commands:")
	assert.Contains(t, f.s.HandleCommand(""), "Commands:")
	assert.Contains(t, f.s.HandleCommand("/status"), "AAPL")
}

func TestHandleCommand_PersistAndLedgers(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "No ledgers on primary", f.s.HandleCommand("/ledgers"))
	f.s.HandleCommand("/buy 1")
	assert.Equal(t, "Ledgers on primary: AAPL", f.s.HandleCommand("/ledgers p"))

	f.s.HandleCommand("/tf 5m")
	_, err := f.s.AddLine(ctx, ChartPrimary, model.DrawingLine{Kind: model.LineHorizontal, StartY: 100, EndY: 100})
	require.NoError(t, err)
	f.s.HandleCommand("/tf 1m")
	assert.Empty(t, slotView(f.s.Status(ctx), ChartPrimary).Lines)

	assert.Contains(t, f.s.HandleCommand("/persist ON"), "every timeframe")
	assert.Len(t, slotView(f.s.Status(ctx), ChartPrimary).Lines, 1)
	assert.Contains(t, f.s.HandleCommand("/persist p off"), "own timeframe")
	assert.Empty(t, slotView(f.s.Status(ctx), ChartPrimary).Lines)
	assert.Contains(t, f.s.HandleCommand("/persist maybe"), "Usage")
}
