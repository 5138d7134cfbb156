package collector

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"MarketReplay/internal/model"
)

// Window is a daily trading session [Open, Close) expressed as clock times.
type Window struct {
	OpenHour, OpenMinute   int
	CloseHour, CloseMinute int
}

// RegularSession is the 09:30–16:00 cash session.
var RegularSession = Window{OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0}

// Minutes returns the session length.
func (w Window) Minutes() int {
	return (w.CloseHour*60 + w.CloseMinute) - (w.OpenHour*60 + w.OpenMinute)
}

// Bounds returns the session open and close on day's calendar date in loc.
func (w Window) Bounds(day time.Time, loc *time.Location) (openAt, closeAt time.Time) {
	y, m, d := day.In(loc).Date()
	openAt = time.Date(y, m, d, w.OpenHour, w.OpenMinute, 0, 0, loc)
	closeAt = time.Date(y, m, d, w.CloseHour, w.CloseMinute, 0, 0, loc)
	return openAt, closeAt
}

// Generator produces synthetic one-minute bars for catalog symbols.
// Volume and volatility are heavier near the session open and close.
type Generator struct {
	Location *time.Location
	Window   Window

	mu   sync.Mutex
	rand *rand.Rand
}

// NewGenerator creates a generator; the same seed reproduces the same series.
func NewGenerator(loc *time.Location, seed int64) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{
		Location: loc,
		Window:   RegularSession,
		rand:     rand.New(rand.NewSource(seed)),
	}
}

// Generate returns dayCount trading days of one-minute bars starting on start's date.
// Weekends are skipped. Unknown symbols yield an empty series.
func (g *Generator) Generate(symbol string, start time.Time, dayCount int) []model.Bar {
	stock, ok := LookupStock(symbol)
	if !ok || dayCount <= 0 || g.Window.Minutes() <= 0 {
		return []model.Bar{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// historical base sits at 70–90% of the reference price
	price := stock.Price * (0.7 + g.rand.Float64()*0.2)
	bars := make([]model.Bar, 0, dayCount*g.Window.Minutes())

	day := DateIn(start, g.Location)
	for produced := 0; produced < dayCount; day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		produced++
		openAt, closeAt := g.Window.Bounds(day, g.Location)
		total := g.Window.Minutes()
		for ts, minute := openAt, 0; ts.Before(closeAt); ts, minute = ts.Add(time.Minute), minute+1 {
			b := g.nextBar(price, ts, minute, total)
			bars = append(bars, b)
			price = b.Close
		}
	}
	return bars
}

// sessionShape is 0 at mid-session and 1 at the open and close.
func sessionShape(minute, total int) float64 {
	half := float64(total) / 2
	d := math.Abs(float64(minute)-half) / half
	return d * d
}

func (g *Generator) nextBar(price float64, ts time.Time, minute, total int) model.Bar {
	shape := sessionShape(minute, total)
	volatility := (0.002 + g.rand.Float64()*0.003) * (0.6 + 0.8*shape)
	trendBias := math.Sin(float64(ts.UnixMilli())/20000000) * 0.001

	open := price
	high, low, last := open, open, open
	for i := 0; i < 4; i++ {
		last = last * (1 + (g.rand.Float64()-0.5)*2*volatility + trendBias)
		high = math.Max(high, last)
		low = math.Min(low, last)
	}

	moveBoost := 1 + math.Abs((last-open)/open)*10
	baseVolume := 10000 + g.rand.Float64()*50000
	volume := int64(baseVolume * (0.3 + 0.7*shape) * moveBoost)

	return model.Bar{
		Time:      ts.Format("15:04"),
		Timestamp: ts.UnixMilli(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     last,
		Volume:    volume,
	}
}
