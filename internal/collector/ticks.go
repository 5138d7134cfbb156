package collector

import (
	"math"
	"math/rand"
	"sort"

	"MarketReplay/internal/model"
)

// Tick is a synthetic intra-candle trade print.
type Tick struct {
	Timestamp int64   `json:"timestamp"` // epoch ms
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

// SynthesizeTicks fills a bar of width tf with one tick per second.
// The first tick prints the open, the last the close, and every price stays inside [low, high].
func SynthesizeTicks(b model.Bar, tf model.Timeframe, r *rand.Rand) []Tick {
	minutes := tf.Minutes()
	if minutes <= 0 {
		minutes = 1
	}
	total := 60 * minutes
	span := b.High - b.Low
	perTick := float64(b.Volume) / float64(total)

	ticks := make([]Tick, total)
	for i := range ticks {
		progress := float64(i) / float64(total-1)
		var price float64
		switch i {
		case 0:
			price = b.Open
		case total - 1:
			price = b.Close
		default:
			base := b.Open + (b.Close-b.Open)*progress
			wobble := math.Sin(progress*math.Pi*4) * span * 0.3 * r.Float64()
			price = math.Max(b.Low, math.Min(b.High, base+wobble))
		}
		ticks[i] = Tick{
			Timestamp: b.Timestamp + int64(i)*1000,
			Price:     price,
			Volume:    perTick * (0.5 + r.Float64()),
		}
	}
	return ticks
}

// PriceAt returns the last tick price at or before ts, or the first tick's price if ts precedes them all.
func PriceAt(ticks []Tick, ts int64) float64 {
	if len(ticks) == 0 {
		return 0
	}
	i := sort.Search(len(ticks), func(i int) bool { return ticks[i].Timestamp > ts })
	if i == 0 {
		return ticks[0].Price
	}
	return ticks[i-1].Price
}
