package engine

import (
	"sort"
	"time"

	"gridquant/logger"
	"gridquant/metrics"
)

// topProfitSum 统计指定方向订单按盈亏排序后前 topN 笔的合计
// signMode=1 取非负盈利本值，signMode=2 取亏损绝对值。orderType<0 表示不限方向。
func (e *Engine) topProfitSum(orderType OrderType, signMode, topN int) float64 {
	var vals []float64
	for _, o := range e.orders() {
		if orderType >= 0 && o.Type != orderType {
			continue
		}
		if signMode == 1 && o.Profit >= 0 {
			vals = append(vals, o.Profit)
		} else if signMode == 2 && o.Profit < 0 {
			vals = append(vals, -o.Profit)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
	sum := 0.0
	for i, v := range vals {
		if i >= topN {
			break
		}
		sum += v
	}
	return sum
}

// closeByRank 按盈亏排名平仓
// mode=1 从最赚的开始平（只平非负单），mode=2 从最亏的开始平（只平亏损单）。
// 不符合符号的排名目标只扣计数不平仓；平仓失败立即返回。
func (e *Engine) closeByRank(orderType OrderType, count, mode int) {
	for count > 0 {
		var pool []Order
		for _, o := range e.orders() {
			if o.Type == orderType {
				pool = append(pool, o)
			}
		}
		if len(pool) == 0 {
			return
		}
		sort.Slice(pool, func(i, j int) bool {
			if mode == 1 {
				return pool[i].Profit > pool[j].Profit
			}
			return pool[i].Profit < pool[j].Profit
		})
		target := pool[0]
		switch {
		case mode == 1 && target.Profit >= 0:
			if !e.broker.CloseOrder(target.Ticket) {
				return
			}
			count--
		case mode == 1 && target.Profit < 0:
			count--
		case mode == 2 && target.Profit < 0:
			if !e.broker.CloseOrder(target.Ticket) {
				return
			}
			count--
		case mode == 2 && target.Profit >= 0:
			count--
		default:
			return
		}
	}
}

// liquidate 清仓指定方向（SideBoth 全部）
// 最多重试 10 轮，每轮失败后等待 1 秒再试。
func (e *Engine) liquidate(side Side) bool {
	for round := 0; round < 10; round++ {
		remain := 0
		for _, o := range e.orders() {
			var ok bool
			switch {
			case (o.Type == Buy || o.Type == BuyStop) && (side == SideBuy || side == SideBoth):
				if o.Type == Buy {
					ok = e.broker.CloseOrder(o.Ticket)
				} else {
					ok = e.broker.DeleteOrder(o.Ticket)
				}
			case (o.Type == Sell || o.Type == SellStop) && (side == SideSell || side == SideBoth):
				if o.Type == Sell {
					ok = e.broker.CloseOrder(o.Ticket)
				} else {
					ok = e.broker.DeleteOrder(o.Ticket)
				}
			default:
				continue
			}
			if !ok {
				remain++
			}
		}
		if remain == 0 {
			logger.Info("✅ 清仓完成 方向=%s", side)
			metrics.RecordLiquidation(side.String(), true)
			return true
		}
		logger.Warn("⏳ 清仓第 %d 轮仍有 %d 单未处理，稍后重试", round+1, remain)
		e.sleep(time.Second)
	}
	logger.Error("❌ 清仓失败 方向=%s，已达最大重试轮数", side)
	metrics.RecordLiquidation(side.String(), false)
	return false
}

// partialCloseImbalance 失衡对冲部分平仓
// 跟踪两侧的优势分值峰值，峰值与当前分值同为正、且该侧手数显著压过对侧时，
// 平掉最赚的一单和最亏的两单，并重置两侧峰值。
func (e *Engine) partialCloseImbalance(tc *tickCtx) {
	buyDiff := e.topProfitSum(Buy, 1, 1) - e.topProfitSum(Buy, 2, 2)
	if buyDiff > e.state.PeakBuyDiff {
		e.state.PeakBuyDiff = buyDiff
	}
	if e.state.PeakBuyDiff > 0 && buyDiff > 0 && tc.buyLots > 0 && len(tc.buys) > 3 {
		bestProfit, bestLot := bestOf(tc.buys)
		if tc.buyLots > bestLot*3+tc.sellLots {
			logger.Info("📈 多头失衡部分平仓 优势分=%.2f 最佳盈利=%.2f", buyDiff, bestProfit)
			e.closeByRank(Buy, 1, 1)
			e.closeByRank(Buy, 2, 2)
			metrics.RecordPartialClose("buy")
			e.state.PeakBuyDiff = 0
			e.state.PeakSellDiff = 0
		}
	}

	sellDiff := e.topProfitSum(Sell, 1, 1) - e.topProfitSum(Sell, 2, 2)
	if sellDiff > e.state.PeakSellDiff {
		e.state.PeakSellDiff = sellDiff
	}
	if e.state.PeakSellDiff > 0 && sellDiff > 0 && tc.sellLots > 0 && len(tc.sells) > 3 {
		bestProfit, bestLot := bestOf(tc.sells)
		if tc.sellLots > bestLot*3+tc.buyLots {
			logger.Info("📉 空头失衡部分平仓 优势分=%.2f 最佳盈利=%.2f", sellDiff, bestProfit)
			e.closeByRank(Sell, 1, 1)
			e.closeByRank(Sell, 2, 2)
			metrics.RecordPartialClose("sell")
			e.state.PeakBuyDiff = 0
			e.state.PeakSellDiff = 0
		}
	}
}

// bestOf 返回最大盈利值及持有该盈利的首个订单的手数
func bestOf(orders []Order) (profit, lots float64) {
	if len(orders) == 0 {
		return 0, 0
	}
	profit = orders[0].Profit
	for _, o := range orders[1:] {
		if o.Profit > profit {
			profit = o.Profit
		}
	}
	for _, o := range orders {
		if o.Profit == profit {
			return profit, o.Lots
		}
	}
	return profit, 0
}
