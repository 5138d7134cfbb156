package calculator

import "MarketReplay/internal/model"

// Summarize computes the statistics panel for the visible prefix of a replay.
// An empty prefix yields the zero value.
func Summarize(visible []model.Bar) model.SeriesStats {
	var st model.SeriesStats
	if len(visible) == 0 {
		return st
	}
	first, last := visible[0], visible[len(visible)-1]
	st.Bars = len(visible)
	st.Open = first.Open
	st.Last = last.Close
	st.Change = last.Close - first.Open
	if first.Open != 0 {
		st.ChangePct = st.Change / first.Open * 100
	}
	st.High, st.Low, _ = CalculateRange(visible)
	st.RangePosition, _ = CalculateRangePosition(st.Last, st.High, st.Low)
	for _, b := range visible {
		st.Volume += b.Volume
	}
	if vwap, err := CalculateVWAP(visible); err == nil {
		st.VWAP = vwap
	}
	if sma, err := CalculateSMA(extractCloses(visible), 20); err == nil {
		st.SMA20 = sma
	}
	// Too few bars for RSI early in a replay; show neutral.
	st.RSI14 = 50
	if rsi, err := CalculateRSI(visible, 14); err == nil {
		st.RSI14 = rsi
	}
	return st
}
