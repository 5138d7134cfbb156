package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketReplay/internal/calculator"
	"MarketReplay/internal/collector"
	"MarketReplay/internal/ledger"
	"MarketReplay/internal/model"
	"MarketReplay/internal/playback"
	"MarketReplay/internal/session"
	"MarketReplay/internal/storage"
)

type stubLoader map[string][]model.Bar

func (l stubLoader) Load(_ context.Context, symbol string, _ time.Time, tf model.Timeframe) (*collector.Result, error) {
	return &collector.Result{Symbol: symbol, Timeframe: tf, Bars: calculator.Aggregate(l[symbol], tf.Minutes()), Source: "stub"}, nil
}

func closes(start float64, n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := start + float64(i)
		bars[i] = model.Bar{Timestamp: int64(i) * 60_000, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return bars
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *session.Session) {
	t.Helper()
	engine := playback.NewEngine(playback.NewManualScheduler(), time.Second)
	repo := storage.NewStore(storage.NewMemoryBackend())
	sess := session.New(stubLoader{"AAPL": closes(100, 10), "TSLA": closes(200, 10)}, engine,
		ledger.NewManager(repo, ledger.Options{}), repo, session.Options{
			Day:       time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			Primary:   session.SlotConfig{Symbol: "AAPL", Timeframe: model.Timeframe1m},
			Secondary: session.SlotConfig{Symbol: "TSLA", Timeframe: model.Timeframe1m},
		})
	require.NoError(t, sess.Init(context.Background()))
	srv := New(":0", sess)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts, sess
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	// status, frame, and one visible message per slot
	for i := 0; i < 4; i++ {
		_, _, err := conn.ReadMessage()
		require.NoError(t, err)
	}
	return conn
}

// next reads until a message of type typ satisfying match arrives.
func next(t *testing.T, conn *websocket.Conn, typ string, match func([]byte) bool) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == typ && (match == nil || match(data)) {
			return data
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, action, chart string, value any) {
	t.Helper()
	msg := map[string]any{"type": "control", "action": action}
	if chart != "" {
		msg["chart"] = chart
	}
	if value != nil {
		msg["value"] = value
	}
	require.NoError(t, conn.WriteJSON(msg))
}

func TestConnect_Greeting(t *testing.T) {
	srv, ts, _ := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var status statusMsg
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "Connected", status.Text)

	var frame frameMsg
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "frame", frame.Type)
	assert.Equal(t, 10, frame.Cursor.Length)
	require.Len(t, frame.Slots, 2)
	assert.Equal(t, "AAPL", frame.Slots[0].Symbol)

	var vis visibleMsg
	require.NoError(t, conn.ReadJSON(&vis))
	assert.Equal(t, session.ChartPrimary, vis.ChartID)
	assert.Len(t, vis.Bars, 1)
	assert.Equal(t, 1, srv.Clients())
}

func TestControl_SeekBroadcasts(t *testing.T) {
	_, ts, _ := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)

	send(t, a, "seek", "", 3)
	data := next(t, b, "frame", func(d []byte) bool {
		var f frameMsg
		return json.Unmarshal(d, &f) == nil && f.Cursor.Index == 3
	})
	var f frameMsg
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, 3, f.Slots[1].Index)
	assert.False(t, f.Cursor.Playing())
}

func TestControl_BuyRepliesFill(t *testing.T) {
	_, ts, sess := newTestServer(t)
	sess.Engine().Seek(3)
	conn := dial(t, ts)

	send(t, conn, "buy", "secondary", 5)
	var msg fillMsg
	require.NoError(t, json.Unmarshal(next(t, conn, "fill", nil), &msg))
	assert.Equal(t, session.ChartSecondary, msg.ChartID)
	assert.Equal(t, "TSLA", msg.Fill.Trade.Symbol)
	assert.Equal(t, int64(5), msg.Fill.Transaction.Quantity)
	assert.Equal(t, "203", msg.Fill.Transaction.Price.String())

	send(t, conn, "ledger", "secondary", nil)
	var lm ledgerMsg
	require.NoError(t, json.Unmarshal(next(t, conn, "ledger", nil), &lm))
	require.NotNil(t, lm.Snapshot.Open)
	assert.Equal(t, int64(5), lm.Snapshot.Open.NetQuantity)
}

func TestControl_Errors(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	cases := []struct {
		action string
		value  any
		want   string
	}{
		{"buy", 0, "quantity"},
		{"buy", nil, "missing value"},
		{"speed", -1, "speed"},
		{"timeframe", "3m", "unknown timeframe"},
		{"warp", nil, "unknown action"},
	}
	for _, tc := range cases {
		send(t, conn, tc.action, "", tc.value)
		var st statusMsg
		require.NoError(t, json.Unmarshal(next(t, conn, "status", nil), &st))
		assert.Equal(t, "error", st.Level, tc.action)
		assert.Contains(t, st.Text, tc.want, tc.action)
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var st statusMsg
	require.NoError(t, json.Unmarshal(next(t, conn, "status", nil), &st))
	assert.Equal(t, "error", st.Level)
}

func TestControl_TimeframeReloadsSlot(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, "timeframe", "secondary", "5m")
	data := next(t, conn, "visible", func(d []byte) bool {
		var v visibleMsg
		return json.Unmarshal(d, &v) == nil && v.ChartID == session.ChartSecondary
	})
	var v visibleMsg
	require.NoError(t, json.Unmarshal(data, &v))
	require.Len(t, v.Bars, 1)
	assert.Equal(t, 204.0, v.Bars[0].Close)
}

func TestControl_DrawingsAndCommand(t *testing.T) {
	_, ts, sess := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, "add_line", "", map[string]any{"type": "horizontal", "startY": 101, "endY": 101})
	var lm lineMsg
	require.NoError(t, json.Unmarshal(next(t, conn, "line", nil), &lm))
	assert.NotEmpty(t, lm.Line.ID)
	assert.Equal(t, "AAPL", lm.Line.Symbol)
	assert.Len(t, sess.Status(context.Background()).Slots[0].Lines, 1)

	send(t, conn, "command", "", "/status")
	var reply replyMsg
	require.NoError(t, json.Unmarshal(next(t, conn, "reply", nil), &reply))
	assert.Contains(t, reply.Text, "AAPL")
}

func TestStatusEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var u session.Update
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&u))
	assert.Equal(t, "2024-03-05", u.Day)
	assert.Len(t, u.Slots, 2)

	post, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestControl_TicksInsideCurrentBar(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, "ticks", "", 5_000)
	var msg ticksMsg
	require.NoError(t, json.Unmarshal(next(t, conn, "ticks", nil), &msg))
	assert.Equal(t, session.ChartPrimary, msg.ChartID)
	require.Len(t, msg.Ticks, 60, "one print per second of a 1m bar")
	assert.Equal(t, 100.0, msg.Ticks[0].Price)
	assert.Equal(t, 100.0, msg.Ticks[59].Price)
	require.NotNil(t, msg.Price)
	assert.Equal(t, msg.Ticks[5].Price, *msg.Price)
	for _, tk := range msg.Ticks {
		assert.GreaterOrEqual(t, tk.Price, 99.0)
		assert.LessOrEqual(t, tk.Price, 101.0)
	}
}

func TestControl_LedgersAndPersistAcross(t *testing.T) {
	_, ts, sess := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, "buy", "", 1)
	next(t, conn, "fill", nil)
	send(t, conn, "ledgers", "", nil)
	var lm ledgersMsg
	require.NoError(t, json.Unmarshal(next(t, conn, "ledgers", nil), &lm))
	assert.Equal(t, []string{"AAPL"}, lm.Symbols)

	bg := context.Background()
	_, err := sess.AddLine(bg, session.ChartPrimary, model.DrawingLine{Kind: model.LineHorizontal, StartY: 101, EndY: 101})
	require.NoError(t, err)
	require.NoError(t, sess.SetTimeframe(bg, session.ChartPrimary, model.Timeframe5m))
	require.Empty(t, sess.Status(bg).Slots[0].Lines)

	send(t, conn, "persist_across", "", true)
	next(t, conn, "frame", func(d []byte) bool {
		var f frameMsg
		return json.Unmarshal(d, &f) == nil && len(f.Slots) > 0 && len(f.Slots[0].Lines) == 1
	})
}
