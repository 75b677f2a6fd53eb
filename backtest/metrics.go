package backtest

import (
	"math"
)

// M5 K线下每天的采样点数（24h * 12）
const samplesPerDay = 288.0

// Metrics 回测指标
type Metrics struct {
	// 收益指标
	TotalReturn      float64 `json:"total_return"`      // 总收益率 (%)
	AnnualizedReturn float64 `json:"annualized_return"` // 年化收益率 (%)

	// 风险指标
	MaxDrawdown float64 `json:"max_drawdown"` // 最大回撤 (%)
	Volatility  float64 `json:"volatility"`   // 年化波动率 (%)

	// 风险调整收益
	SharpeRatio  float64 `json:"sharpe_ratio"`  // 夏普比率
	SortinoRatio float64 `json:"sortino_ratio"` // 索提诺比率
	CalmarRatio  float64 `json:"calmar_ratio"`  // 卡玛比率

	// 交易指标
	TotalTrades  int     `json:"total_trades"`  // 平仓笔数
	WinRate      float64 `json:"win_rate"`      // 胜率 (%)
	ProfitFactor float64 `json:"profit_factor"` // 利润因子
	AvgWin       float64 `json:"avg_win"`       // 平均盈利
	AvgLoss      float64 `json:"avg_loss"`      // 平均亏损
	LargestWin   float64 `json:"largest_win"`   // 最大单笔盈利
	LargestLoss  float64 `json:"largest_loss"`  // 最大单笔亏损

	// 连续性指标
	MaxConsecutiveWins   int `json:"max_consecutive_wins"`   // 最大连续盈利次数
	MaxConsecutiveLosses int `json:"max_consecutive_losses"` // 最大连续亏损次数
}

// CalculateMetrics 从权益曲线和平仓盈亏序列计算所有指标
func CalculateMetrics(equity []float64, times []int64, closedPnLs []float64, initialCapital float64) Metrics {
	if len(equity) == 0 {
		return Metrics{}
	}

	returns := calculateReturns(equity)

	return Metrics{
		TotalReturn:      calculateTotalReturn(equity, initialCapital),
		AnnualizedReturn: calculateAnnualizedReturn(equity, times, initialCapital),

		MaxDrawdown: calculateMaxDrawdown(equity),
		Volatility:  calculateVolatility(returns),

		SharpeRatio:  calculateSharpeRatio(returns),
		SortinoRatio: calculateSortinoRatio(returns),
		CalmarRatio:  calculateCalmarRatio(equity, times, initialCapital),

		TotalTrades:  len(closedPnLs),
		WinRate:      calculateWinRate(closedPnLs),
		ProfitFactor: calculateProfitFactor(closedPnLs),
		AvgWin:       calculateAvgWin(closedPnLs),
		AvgLoss:      calculateAvgLoss(closedPnLs),
		LargestWin:   calculateLargestWin(closedPnLs),
		LargestLoss:  calculateLargestLoss(closedPnLs),

		MaxConsecutiveWins:   calculateMaxConsecutiveWins(closedPnLs),
		MaxConsecutiveLosses: calculateMaxConsecutiveLosses(closedPnLs),
	}
}

// calculateReturns 计算逐K线收益率序列
func calculateReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return []float64{}
	}
	returns := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] > 0 {
			returns[i-1] = (equity[i] - equity[i-1]) / equity[i-1]
		}
	}
	return returns
}

// calculateTotalReturn 计算总收益率
func calculateTotalReturn(equity []float64, initialCapital float64) float64 {
	if len(equity) == 0 || initialCapital == 0 {
		return 0
	}
	return (equity[len(equity)-1] - initialCapital) / initialCapital * 100
}

// calculateAnnualizedReturn 计算年化收益率 (%)
func calculateAnnualizedReturn(equity []float64, times []int64, initialCapital float64) float64 {
	if len(times) < 2 || initialCapital == 0 {
		return 0
	}
	days := float64(times[len(times)-1]-times[0]) / 86400
	if days == 0 {
		return 0
	}
	totalReturn := calculateTotalReturn(equity, initialCapital)
	return (math.Pow(1+totalReturn/100, 365/days) - 1) * 100
}

// calculateMaxDrawdown 计算最大回撤 (%)
func calculateMaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	maxDrawdown := 0.0
	peak := equity[0]
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			drawdown := (peak - e) / peak * 100
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}
	return maxDrawdown
}

// calculateVolatility 计算年化波动率
func calculateVolatility(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * math.Sqrt(samplesPerDay*252) * 100
}

// calculateSharpeRatio 计算夏普比率
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}

	// 无风险利率假设年化2%，折算到单根K线
	riskFreeRate := 0.02 / (samplesPerDay * 252)
	return (mean - riskFreeRate) / stdDev * math.Sqrt(samplesPerDay*252)
}

// calculateSortinoRatio 计算索提诺比率（只考虑下行波动）
func calculateSortinoRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	downVariance := 0.0
	downCount := 0
	for _, r := range returns {
		if r < 0 {
			downVariance += r * r
			downCount++
		}
	}
	if downCount == 0 {
		return 0
	}
	downStdDev := math.Sqrt(downVariance / float64(downCount))
	if downStdDev == 0 {
		return 0
	}

	riskFreeRate := 0.02 / (samplesPerDay * 252)
	return (mean - riskFreeRate) / downStdDev * math.Sqrt(samplesPerDay*252)
}

// calculateCalmarRatio 计算卡玛比率（年化收益率 / 最大回撤）
func calculateCalmarRatio(equity []float64, times []int64, initialCapital float64) float64 {
	annualizedReturn := calculateAnnualizedReturn(equity, times, initialCapital)
	maxDrawdown := calculateMaxDrawdown(equity)
	if maxDrawdown == 0 {
		return 0
	}
	return annualizedReturn / maxDrawdown
}

// calculateWinRate 计算胜率
func calculateWinRate(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	winCount := 0
	for _, p := range pnls {
		if p > 0 {
			winCount++
		}
	}
	return float64(winCount) / float64(len(pnls)) * 100
}

// calculateProfitFactor 计算利润因子（总盈利 / 总亏损）
func calculateProfitFactor(pnls []float64) float64 {
	totalProfit := 0.0
	totalLoss := 0.0
	for _, p := range pnls {
		if p > 0 {
			totalProfit += p
		} else {
			totalLoss += math.Abs(p)
		}
	}
	if totalLoss == 0 {
		return 0
	}
	return totalProfit / totalLoss
}

// calculateAvgWin 计算平均盈利
func calculateAvgWin(pnls []float64) float64 {
	totalWin := 0.0
	winCount := 0
	for _, p := range pnls {
		if p > 0 {
			totalWin += p
			winCount++
		}
	}
	if winCount == 0 {
		return 0
	}
	return totalWin / float64(winCount)
}

// calculateAvgLoss 计算平均亏损
func calculateAvgLoss(pnls []float64) float64 {
	totalLoss := 0.0
	lossCount := 0
	for _, p := range pnls {
		if p <= 0 {
			totalLoss += p
			lossCount++
		}
	}
	if lossCount == 0 {
		return 0
	}
	return totalLoss / float64(lossCount)
}

// calculateLargestWin 计算最大单笔盈利
func calculateLargestWin(pnls []float64) float64 {
	largest := 0.0
	for _, p := range pnls {
		if p > largest {
			largest = p
		}
	}
	return largest
}

// calculateLargestLoss 计算最大单笔亏损（绝对值）
func calculateLargestLoss(pnls []float64) float64 {
	largest := 0.0
	for _, p := range pnls {
		if p < 0 && math.Abs(p) > largest {
			largest = math.Abs(p)
		}
	}
	return largest
}

// calculateMaxConsecutiveWins 计算最大连续盈利次数
func calculateMaxConsecutiveWins(pnls []float64) int {
	maxWins, current := 0, 0
	for _, p := range pnls {
		if p > 0 {
			current++
			if current > maxWins {
				maxWins = current
			}
		} else {
			current = 0
		}
	}
	return maxWins
}

// calculateMaxConsecutiveLosses 计算最大连续亏损次数
func calculateMaxConsecutiveLosses(pnls []float64) int {
	maxLosses, current := 0, 0
	for _, p := range pnls {
		if p <= 0 {
			current++
			if current > maxLosses {
				maxLosses = current
			}
		} else {
			current = 0
		}
	}
	return maxLosses
}
