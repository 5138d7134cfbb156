package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"MarketReplay/internal/model"
	"MarketReplay/internal/notifier"
)

const commandTimeout = 30 * time.Second

// HandleCommand processes a text command and returns a reply.
func (s *Session) HandleCommand(command string) string {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}
	name := strings.ToLower(fields[0])
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i] // "/play@ReplayBot"
	}
	args := fields[1:]
	e := s.engine

	switch name {
	case "/play":
		e.Play()
		return s.statusText(ctx)
	case "/pause":
		e.Pause()
		return s.statusText(ctx)
	case "/toggle":
		e.Toggle()
		return s.statusText(ctx)
	case "/start":
		e.Start()
		return s.statusText(ctx)
	case "/end":
		e.End()
		return s.statusText(ctx)
	case "/faster":
		return fmt.Sprintf("Speed %gx", e.Faster())
	case "/slower":
		return fmt.Sprintf("Speed %gx", e.Slower())
	case "/seek":
		if len(args) != 1 {
			return "Usage: /seek N"
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Sprintf("❌ bad index %q", args[0])
		}
		e.Seek(n - 1)
		return s.statusText(ctx)
	case "/speed":
		if len(args) != 1 {
			return "Usage: /speed X"
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "x"), 64)
		if err != nil {
			return fmt.Sprintf("❌ bad speed %q", args[0])
		}
		if err := e.SetSpeed(v); err != nil {
			return "❌ " + err.Error()
		}
		return fmt.Sprintf("Speed %gx", v)
	case "/symbol":
		chart, rest := chartArg(args)
		if len(rest) != 1 {
			return "Usage: /symbol [chart] SYM"
		}
		if err := s.SetSymbol(ctx, chart, rest[0]); err != nil {
			return "❌ " + err.Error()
		}
		return s.statusText(ctx)
	case "/tf":
		chart, rest := chartArg(args)
		if len(rest) != 1 {
			return "Usage: /tf [chart] 1m|2m|5m|30m"
		}
		tf, err := model.ParseTimeframe(rest[0])
		if err != nil {
			return "❌ " + err.Error()
		}
		if err := s.SetTimeframe(ctx, chart, tf); err != nil {
			return "❌ " + err.Error()
		}
		return s.statusText(ctx)
	case "/date":
		if len(args) != 1 {
			return "Usage: /date YYYY-MM-DD"
		}
		day, err := time.ParseInLocation("2006-01-02", args[0], s.Day().Location())
		if err != nil {
			return fmt.Sprintf("❌ bad date %q", args[0])
		}
		if err := s.SetDate(ctx, day); err != nil {
			return "❌ " + err.Error()
		}
		return s.statusText(ctx)
	case "/buy", "/sell":
		chart, rest := chartArg(args)
		if len(rest) != 1 {
			return fmt.Sprintf("Usage: %s [chart] QTY", name)
		}
		qty, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Sprintf("❌ bad quantity %q", rest[0])
		}
		order := s.Buy
		if name == "/sell" {
			order = s.Sell
		}
		fill, err := order(ctx, chart, qty)
		if err != nil {
			return "❌ " + err.Error()
		}
		return notifier.FormatFill(fill)
	case "/close":
		chart, _ := chartArg(args)
		fill, err := s.ClosePosition(ctx, chart)
		if err != nil {
			return "❌ " + err.Error()
		}
		return notifier.FormatFill(fill)
	case "/ledger":
		chart, _ := chartArg(args)
		snap, err := s.Ledger(ctx, chart)
		if err != nil {
			return "❌ " + err.Error()
		}
		return notifier.FormatSnapshot(&snap)
	case "/clear":
		chart, _ := chartArg(args)
		if err := s.ClearLines(ctx, chart); err != nil {
			return "❌ " + err.Error()
		}
		return fmt.Sprintf("Drawings cleared on %s", chart)
	case "/persist":
		chart, rest := chartArg(args)
		if len(rest) != 1 {
			return "Usage: /persist [chart] on|off"
		}
		var on bool
		switch strings.ToLower(rest[0]) {
		case "on":
			on = true
		case "off":
		default:
			return "Usage: /persist [chart] on|off"
		}
		if err := s.SetPersistAcrossTimeframes(chart, on); err != nil {
			return "❌ " + err.Error()
		}
		if on {
			return fmt.Sprintf("Drawings on %s shown on every timeframe", chart)
		}
		return fmt.Sprintf("Drawings on %s shown on their own timeframe only", chart)
	case "/ledgers":
		chart, _ := chartArg(args)
		symbols, err := s.Symbols(ctx, chart)
		if err != nil {
			return "❌ " + err.Error()
		}
		if len(symbols) == 0 {
			return fmt.Sprintf("No ledgers on %s", chart)
		}
		return fmt.Sprintf("Ledgers on %s: %s", chart, strings.Join(symbols, ", "))
	case "/status":
		return s.statusText(ctx)
	default:
		return notifier.FormatHelp()
	}
}

func (s *Session) statusText(ctx context.Context) string {
	u := s.Status(ctx)
	lines := make([]notifier.SlotLine, 0, len(u.Slots))
	for _, v := range u.Slots {
		lines = append(lines, notifier.SlotLine{
			ChartID:   v.ChartID,
			Symbol:    v.Symbol,
			Timeframe: v.Timeframe,
			Index:     v.Index,
			Length:    v.Length,
			Bar:       v.Current,
			Source:    v.Source,
			Warning:   v.Warning,
		})
	}
	return notifier.FormatStatus(s.Day(), u.Cursor.Playing(), u.Cursor.Speed, lines)
}

// chartArg peels an optional leading chart name off args; the default is the primary slot.
func chartArg(args []string) (string, []string) {
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case ChartPrimary, "p":
			return ChartPrimary, args[1:]
		case ChartSecondary, "s":
			return ChartSecondary, args[1:]
		}
	}
	return ChartPrimary, args
}
