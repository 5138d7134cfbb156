package calculator

import "MarketReplay/internal/model"

// Aggregate folds consecutive bars into buckets of bucketSize bars.
// bucketSize <= 1 returns the input unchanged. The last bucket may be short.
// Each output bar takes the first bar's open, time and timestamp, the last bar's close,
// the extreme high and low, and the summed volume.
func Aggregate(bars []model.Bar, bucketSize int) []model.Bar {
	if bucketSize <= 1 {
		return bars
	}
	if len(bars) == 0 {
		return []model.Bar{}
	}
	out := make([]model.Bar, 0, (len(bars)+bucketSize-1)/bucketSize)
	for i := 0; i < len(bars); i += bucketSize {
		end := i + bucketSize
		if end > len(bars) {
			end = len(bars)
		}
		chunk := bars[i:end]
		agg := chunk[0]
		for _, b := range chunk[1:] {
			if b.High > agg.High {
				agg.High = b.High
			}
			if b.Low < agg.Low {
				agg.Low = b.Low
			}
			agg.Volume += b.Volume
		}
		agg.Close = chunk[len(chunk)-1].Close
		out = append(out, agg)
	}
	return out
}

// BucketSize returns how many source bars of width from make one bar of width to.
// Returns 1 when to is not coarser than from.
func BucketSize(from, to model.Timeframe) int {
	f, t := from.Minutes(), to.Minutes()
	if f <= 0 || t <= f {
		return 1
	}
	return t / f
}
