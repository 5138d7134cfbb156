// Package server exposes a replay session to browser clients over WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"MarketReplay/internal/model"
	"MarketReplay/internal/session"
)

const (
	loadTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server streams session updates to every connected client and applies their control messages.
type Server struct {
	addr string
	sess *session.Session
	hub  *hub
}

// New creates a server for sess and subscribes it to session updates.
func New(addr string, sess *session.Session) *Server {
	s := &Server{addr: addr, sess: sess, hub: newHub()}
	sess.Subscribe(func(u session.Update) {
		s.hub.broadcast(frameMsg{Type: "frame", Update: u})
	})
	return s
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int { return s.hub.count() }

// Handler returns the HTTP routes: /ws for the stream, /api/status for a one-off update.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.serveWS(s.greet, s.onMessage))
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "GET only", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.sess.Status(r.Context()))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] Server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// greet sends a new client the current update and both slots' visible bars.
func (s *Server) greet(cl *client) {
	cl.send(info("Connected"))
	u := s.sess.Status(context.Background())
	cl.send(frameMsg{Type: "frame", Update: u})
	for _, v := range u.Slots {
		cl.send(visibleMsg{Type: "visible", ChartID: v.ChartID, Bars: v.Visible})
	}
}

func (s *Server) onMessage(cl *client, data []byte) {
	var ctrl controlMsg
	if err := json.Unmarshal(data, &ctrl); err != nil || ctrl.Type != "control" {
		cl.send(fail(errors.New("expected a control message")))
		return
	}
	if ctrl.Chart == "" {
		ctrl.Chart = session.ChartPrimary
	}
	if err := s.control(cl, ctrl); err != nil {
		cl.send(fail(err))
	}
}

// control applies one client action. Replies go to the sender; state changes reach
// everyone through the session subscription.
func (s *Server) control(cl *client, ctrl controlMsg) error {
	ctx := context.Background()
	e := s.sess.Engine()
	action := strings.ToLower(ctrl.Action)

	switch action {
	case "mute":
		cl.muted.Store(true)
		cl.send(info("Frames muted (this tab)"))
	case "unmute":
		cl.muted.Store(false)
		cl.send(success("Frames resumed (this tab)"))
	case "play":
		e.Play()
	case "pause":
		e.Pause()
	case "toggle":
		e.Toggle()
	case "start":
		e.Start()
	case "end":
		e.End()
	case "faster":
		e.Faster()
	case "slower":
		e.Slower()
	case "seek":
		var idx int
		if err := decodeValue(ctrl, &idx); err != nil {
			return err
		}
		e.Seek(idx)
	case "speed":
		var v float64
		if err := decodeValue(ctrl, &v); err != nil {
			return err
		}
		return e.SetSpeed(v)
	case "symbol":
		var sym string
		if err := decodeValue(ctrl, &sym); err != nil {
			return err
		}
		s.load(cl, ctrl.Chart, func(ctx context.Context) error { return s.sess.SetSymbol(ctx, ctrl.Chart, sym) })
	case "timeframe":
		tf, err := decodeTimeframe(ctrl)
		if err != nil {
			return err
		}
		s.load(cl, ctrl.Chart, func(ctx context.Context) error { return s.sess.SetTimeframe(ctx, ctrl.Chart, tf) })
	case "date":
		var raw string
		if err := decodeValue(ctrl, &raw); err != nil {
			return err
		}
		day, err := time.ParseInLocation("2006-01-02", raw, s.sess.Day().Location())
		if err != nil {
			return fmt.Errorf("bad date %q", raw)
		}
		s.load(cl, "", func(ctx context.Context) error { return s.sess.SetDate(ctx, day) })
	case "buy", "sell":
		var qty int64
		if err := decodeValue(ctrl, &qty); err != nil {
			return err
		}
		order := s.sess.Buy
		if action == "sell" {
			order = s.sess.Sell
		}
		fill, err := order(ctx, ctrl.Chart, qty)
		if err != nil {
			return err
		}
		cl.send(fillMsg{Type: "fill", ChartID: ctrl.Chart, Fill: fill})
	case "close":
		fill, err := s.sess.ClosePosition(ctx, ctrl.Chart)
		if err != nil {
			return err
		}
		cl.send(fillMsg{Type: "fill", ChartID: ctrl.Chart, Fill: fill})
	case "ledger":
		snap, err := s.sess.Ledger(ctx, ctrl.Chart)
		if err != nil {
			return err
		}
		cl.send(ledgerMsg{Type: "ledger", Snapshot: &snap})
	case "add_line":
		var line model.DrawingLine
		if err := decodeValue(ctrl, &line); err != nil {
			return err
		}
		added, err := s.sess.AddLine(ctx, ctrl.Chart, line)
		if err != nil {
			return err
		}
		cl.send(lineMsg{Type: "line", Line: added})
	case "remove_line":
		var id string
		if err := decodeValue(ctrl, &id); err != nil {
			return err
		}
		return s.sess.RemoveLine(ctx, ctrl.Chart, id)
	case "clear_lines":
		return s.sess.ClearLines(ctx, ctrl.Chart)
	case "clear_timeframe":
		tf, err := decodeTimeframe(ctrl)
		if err != nil {
			return err
		}
		return s.sess.ClearLinesForTimeframe(ctx, ctrl.Chart, tf)
	case "persist_across":
		var on bool
		if err := decodeValue(ctrl, &on); err != nil {
			return err
		}
		return s.sess.SetPersistAcrossTimeframes(ctrl.Chart, on)
	case "ticks":
		ticks, err := s.sess.Ticks(ctrl.Chart)
		if err != nil {
			return err
		}
		msg := ticksMsg{Type: "ticks", ChartID: ctrl.Chart, Ticks: ticks}
		if len(ctrl.Value) > 0 {
			var ts int64
			if err := decodeValue(ctrl, &ts); err != nil {
				return err
			}
			price, err := s.sess.TickPrice(ctrl.Chart, ts)
			if err != nil {
				return err
			}
			msg.Price = &price
		}
		cl.send(msg)
	case "ledgers":
		symbols, err := s.sess.Symbols(ctx, ctrl.Chart)
		if err != nil {
			return err
		}
		cl.send(ledgersMsg{Type: "ledgers", ChartID: ctrl.Chart, Symbols: symbols})
	case "visible":
		for _, v := range s.sess.Status(ctx).Slots {
			if v.ChartID == ctrl.Chart {
				cl.send(visibleMsg{Type: "visible", ChartID: v.ChartID, Bars: v.Visible})
				return nil
			}
		}
		return fmt.Errorf("%w: %q", session.ErrUnknownChart, ctrl.Chart)
	case "command":
		var text string
		if err := decodeValue(ctrl, &text); err != nil {
			return err
		}
		cl.send(replyMsg{Type: "reply", Text: s.sess.HandleCommand(text)})
	default:
		return fmt.Errorf("unknown action %q", ctrl.Action)
	}
	return nil
}

// load runs a series reload off the reader loop so a slow fetch never stalls the socket.
// A load superseded by a newer one ends quietly.
func (s *Server) load(cl *client, chartID string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		err := fn(ctx)
		switch {
		case errors.Is(err, session.ErrStaleLoad):
			return
		case err != nil:
			log.Printf("[WARN] load %s: %v", chartID, err)
			cl.send(fail(err))
			return
		}
		u := s.sess.Status(ctx)
		for _, v := range u.Slots {
			if chartID == "" || v.ChartID == chartID {
				s.hub.broadcast(visibleMsg{Type: "visible", ChartID: v.ChartID, Bars: v.Visible})
			}
		}
	}()
}

func decodeValue(ctrl controlMsg, dest any) error {
	if len(ctrl.Value) == 0 {
		return fmt.Errorf("%s: missing value", ctrl.Action)
	}
	if err := json.Unmarshal(ctrl.Value, dest); err != nil {
		return fmt.Errorf("%s: bad value: %w", ctrl.Action, err)
	}
	return nil
}

func decodeTimeframe(ctrl controlMsg) (model.Timeframe, error) {
	var raw string
	if err := decodeValue(ctrl, &raw); err != nil {
		return "", err
	}
	return model.ParseTimeframe(raw)
}
