package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"MarketReplay/internal/model"
)

// SlotLine summarizes one chart slot for FormatStatus.
type SlotLine struct {
	ChartID   string
	Symbol    string
	Timeframe model.Timeframe
	Index     int
	Length    int
	Bar       *model.Bar
	Source    string
	Warning   string
}

// FormatStatus formats the replay position of every slot.
func FormatStatus(day time.Time, playing bool, speed float64, slots []SlotLine) string {
	var b strings.Builder
	state := "⏸ paused"
	if playing {
		state = "▶️ playing"
	}
	b.WriteString(fmt.Sprintf("🕹 <b>Replay</b> | %s | %s %gx\n\n", day.Format("2006-01-02"), state, speed))
	for _, s := range slots {
		b.WriteString(fmt.Sprintf("<b>%s</b> %s %s", s.ChartID, s.Symbol, s.Timeframe))
		if s.Length == 0 || s.Bar == nil {
			b.WriteString(": no data\n")
			continue
		}
		b.WriteString(fmt.Sprintf(" [%d/%d] %s close %.2f (%s)\n", s.Index+1, s.Length, s.Bar.Time, s.Bar.Close, s.Source))
		if s.Warning != "" {
			b.WriteString(fmt.Sprintf("   ⚠️ %s\n", s.Warning))
		}
	}
	return b.String()
}

// FormatSnapshot formats a ledger snapshot for display.
func FormatSnapshot(s *model.Snapshot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Ledger</b> | %s %s @ %s\n\n", s.ChartID, s.Symbol, money(s.CurrentPrice)))
	b.WriteString(fmt.Sprintf("Cash: $%s\n", money(s.Cash)))
	b.WriteString(fmt.Sprintf("Realized: %s\n", signed(s.RealizedPnL)))
	b.WriteString(fmt.Sprintf("Unrealized: %s\n", signed(s.Unrealized)))
	b.WriteString(fmt.Sprintf("Total PnL: %s\n", signed(s.TotalPnL)))
	b.WriteString(fmt.Sprintf("Account value: $%s\n", money(s.AccountValue)))
	if t := s.Open; t != nil {
		dir := "LONG"
		if t.NetQuantity < 0 {
			dir = "SHORT"
		}
		b.WriteString(fmt.Sprintf("\nOpen: %s %d @ %s (%d fills)\n", dir, abs(t.NetQuantity), money(t.EntryPrice), len(t.Transactions)))
	} else {
		b.WriteString("\nNo open position\n")
	}
	if n := len(s.Closed); n > 0 {
		b.WriteString(fmt.Sprintf("Closed trades: %d\n", n))
	}
	return b.String()
}

// FormatFill formats an accepted order.
func FormatFill(f *model.Fill) string {
	var b strings.Builder
	icon := "🟢"
	if f.Transaction.Side == model.SideSell {
		icon = "🔴"
	}
	b.WriteString(fmt.Sprintf("%s <b>%s %d %s</b> @ %s\n", icon, f.Transaction.Side, f.Transaction.Quantity, f.Trade.Symbol, money(f.Transaction.Price)))
	switch {
	case f.Closed:
		b.WriteString("Position closed\n")
	case f.Flipped:
		b.WriteString(fmt.Sprintf("Flipped to %d @ %s\n", f.Trade.NetQuantity, money(f.Trade.EntryPrice)))
	default:
		b.WriteString(fmt.Sprintf("Net %d @ %s\n", f.Trade.NetQuantity, money(f.Trade.EntryPrice)))
	}
	if !f.RealizedDelta.IsZero() {
		b.WriteString(fmt.Sprintf("Realized: %s\n", signed(f.RealizedDelta)))
	}
	b.WriteString(fmt.Sprintf("Cash: $%s\n", money(f.CashAfter)))
	return b.String()
}

// FormatReset formats a scheduled ledger wipe.
func FormatReset(chartID string, at time.Time, cash decimal.Decimal) string {
	return fmt.Sprintf("🔄 <b>Ledger reset</b> | %s\n\nAll trades cleared at %s\nCash restored to $%s",
		chartID, at.Format("2006-01-02 15:04"), money(cash))
}

// FormatHelp lists the accepted commands.
func FormatHelp() string {
	return "Commands:\n" +
		"• /play /pause /start /end\n" +
		"• /seek N, /speed X, /faster, /slower\n" +
		"• /symbol [chart] SYM, /tf [chart] 1m|2m|5m|30m, /date YYYY-MM-DD\n" +
		"• /buy [chart] QTY, /sell [chart] QTY, /close [chart]\n" +
		"• /ledger [chart], /ledgers [chart], /clear [chart], /persist [chart] on|off\n" +
		"• /status"
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func signed(d decimal.Decimal) string {
	if d.Sign() >= 0 {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
