package engine

import (
	"gridquant/logger"
	"gridquant/metrics"
)

// trailPendingBuy 追踪买入突破单：价格回落足够远时把挂单拉近到目标位
// 只动最高价的那张 buystop，且目标价必须落在现有网格之外。
func (e *Engine) trailPendingBuy(tc *tickCtx, canBuy, aggressive bool) {
	if !canBuy || len(tc.buystops) == 0 {
		return
	}
	pending := tc.buystops[0]
	for _, o := range tc.buystops[1:] {
		if o.OpenPrice > pending.OpenPrice {
			pending = o
		}
	}

	dist := e.cfg.FirstStep
	if len(tc.buys) > 0 {
		if aggressive {
			dist = e.cfg.MinDistance
		} else {
			dist = e.cfg.TwoMinDistance
		}
	}
	px := e.n(tc.ask + float64(dist)*tc.pt)

	if e.n(pending.OpenPrice-float64(e.cfg.StepTrailOrders)*tc.pt) > px {
		step := e.cfg.Step
		if !aggressive {
			step = e.cfg.TwoStep
		}
		if tc.buyLow == 0.0 || px <= e.n(tc.buyLow-float64(step)*tc.pt) || px >= e.n(tc.buyHigh+float64(step)*tc.pt) {
			if e.broker.ModifyOrder(pending.Ticket, px) {
				logger.Debug("🔄 买入挂单 #%d 追踪改价至 %.5f", pending.Ticket, px)
				metrics.RecordPendingModified("buy")
			}
		}
	}
}

// trailPendingSell 追踪卖出突破单，与买侧镜像
func (e *Engine) trailPendingSell(tc *tickCtx, canSell, aggressive bool) {
	if !canSell || len(tc.sellstops) == 0 {
		return
	}
	pending := tc.sellstops[0]
	for _, o := range tc.sellstops[1:] {
		if o.OpenPrice < pending.OpenPrice {
			pending = o
		}
	}

	dist := e.cfg.FirstStep
	if len(tc.sells) > 0 {
		if aggressive {
			dist = e.cfg.MinDistance
		} else {
			dist = e.cfg.TwoMinDistance
		}
	}
	px := e.n(tc.bid - float64(dist)*tc.pt)

	if e.n(pending.OpenPrice+float64(e.cfg.StepTrailOrders)*tc.pt) < px {
		step := e.cfg.Step
		if !aggressive {
			step = e.cfg.TwoStep
		}
		if tc.sellHigh == 0.0 || px >= e.n(tc.sellHigh+float64(step)*tc.pt) || px <= e.n(tc.sellLow-float64(step)*tc.pt) {
			if e.broker.ModifyOrder(pending.Ticket, px) {
				logger.Debug("🔄 卖出挂单 #%d 追踪改价至 %.5f", pending.Ticket, px)
				metrics.RecordPendingModified("sell")
			}
		}
	}
}
