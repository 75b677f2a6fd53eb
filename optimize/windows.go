package optimize

import "gridquant/backtest"

const secondsPerYear = 365 * 24 * 60 * 60

// SplitYearWindows 把K线序列按自然年长度切成至多 years 个窗口
// 窗口从首根K线时间起算，每 365 天一段，数据不足时提前结束。
func SplitYearWindows(bars []backtest.Bar, years int) [][]backtest.Bar {
	if len(bars) == 0 {
		return nil
	}
	var windows [][]backtest.Bar
	idx := 0
	n := len(bars)
	startTS := bars[0].Ts
	for i := 0; i < years; i++ {
		endTS := startTS + secondsPerYear
		j := idx
		for j < n && bars[j].Ts < endTS {
			j++
		}
		if j <= idx {
			break
		}
		windows = append(windows, bars[idx:j])
		idx = j
		startTS = endTS
	}
	return windows
}
