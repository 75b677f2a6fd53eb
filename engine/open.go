package engine

import (
	"math"

	"gridquant/logger"
	"gridquant/metrics"
)

// calcLot 马丁手数：第 n 层 = lot·kLot^n + n·plusLot，受 maxLot 封顶并按手数位数取整
func (e *Engine) calcLot(sideCount int) float64 {
	x := e.cfg.Lot
	if sideCount > 0 {
		x = e.cfg.Lot*math.Pow(e.cfg.KLot, float64(sideCount)) + float64(sideCount)*e.cfg.PlusLot
	}
	x = math.Min(x, e.cfg.MaxLot)
	p := math.Pow(10, float64(e.cfg.DigitsLot))
	return math.Round(x*p) / p
}

// canAfford 加仓前的保证金检查：所需手数两倍折算的保证金须小于可用保证金
func (e *Engine) canAfford(lots float64) bool {
	if !e.cfg.CheckMarginForAddOrders {
		return true
	}
	need := e.broker.MarginPerLot(e.cfg.Symbol)
	if need <= 0 {
		return true
	}
	return lots*2.0 < e.broker.FreeMargin()/need
}

// tryOpenBuy 尝试挂出买入突破单（buystop）
// 首单挂在 ask+firstStep；加仓按激进/保守距离挂出，挂价跌破网格下沿时改用整格间距。
func (e *Engine) tryOpenBuy(tc *tickCtx, canBuy, aggressive bool, lastOpenTime int64, limitWindow bool) {
	if len(tc.buystops) > 0 || tc.buyProfit <= e.cfg.MaxLoss || !canBuy {
		return
	}
	if e.openMode == OpenSleep && tc.nowTS-lastOpenTime < e.cfg.SleepSeconds {
		return
	}

	count := len(tc.buys)
	step := e.cfg.Step
	if !aggressive {
		step = e.cfg.TwoStep
	}

	var px float64
	if count == 0 {
		px = e.n(tc.ask + float64(e.cfg.FirstStep)*tc.pt)
	} else {
		base := e.cfg.MinDistance
		if !aggressive {
			base = e.cfg.TwoMinDistance
		}
		px = e.n(tc.ask + float64(base)*tc.pt)
		if tc.buyLow > 0 && px < e.n(tc.buyLow-float64(step)*tc.pt) {
			px = e.n(tc.ask + float64(step)*tc.pt)
		}
	}

	// 顺势加仓：挂价越过网格上沿且对侧手数显著占优
	trendAdd := tc.buyHigh > 0 && px >= e.n(tc.buyHigh+float64(step)*tc.pt) &&
		tc.sellLots > tc.buyLots*3 && tc.sellLots-tc.buyLots > 0.2
	// 均衡顺势：两侧手数持平时允许在整格间距之上追多
	homeoAdd := e.cfg.Homeopathy && tc.buyHigh > 0 &&
		px >= e.n(tc.buyHigh+float64(e.cfg.Step)*tc.pt) && tc.buyLots == tc.sellLots
	// 逆势加仓：挂价落在网格下沿之外
	gridAdd := tc.buyLow > 0 && px <= e.n(tc.buyLow-float64(step)*tc.pt)

	if !(count == 0 || trendAdd || gridAdd || homeoAdd) {
		return
	}

	lots := e.calcLot(count)
	if count > 0 && !e.canAfford(lots) {
		logger.Debug("⏳ 多头加仓保证金不足，跳过 lots=%.2f", lots)
		return
	}

	if count > 0 && limitWindow && e.cfg.OnTopNotBuyAdd != 0.0 && px >= e.cfg.OnTopNotBuyAdd {
		return
	}

	comment := "NN"
	if trendAdd || homeoAdd {
		comment = "SS"
	}
	if ticket, ok := e.broker.SendPending(BuyStop, lots, px, comment); ok {
		logger.Info("📈 挂买入突破单 #%d lots=%.2f px=%.5f tag=%s", ticket, lots, px, comment)
		metrics.RecordPendingPlaced("buy", comment)
	}
}

// tryOpenSell 尝试挂出卖出突破单（sellstop），与买侧镜像
func (e *Engine) tryOpenSell(tc *tickCtx, canSell, aggressive bool, lastOpenTime int64, limitWindow bool) {
	if len(tc.sellstops) > 0 || tc.sellProfit <= e.cfg.MaxLoss || !canSell {
		return
	}
	if e.openMode == OpenSleep && tc.nowTS-lastOpenTime < e.cfg.SleepSeconds {
		return
	}

	count := len(tc.sells)
	step := e.cfg.Step
	if !aggressive {
		step = e.cfg.TwoStep
	}

	var px float64
	if count == 0 {
		px = e.n(tc.bid - float64(e.cfg.FirstStep)*tc.pt)
	} else {
		base := e.cfg.MinDistance
		if !aggressive {
			base = e.cfg.TwoMinDistance
		}
		px = e.n(tc.bid - float64(base)*tc.pt)
		if tc.sellHigh > 0 && px < e.n(tc.sellHigh+float64(step)*tc.pt) {
			px = e.n(tc.bid - float64(step)*tc.pt)
		}
	}

	trendAdd := tc.sellLow > 0 && px <= e.n(tc.sellLow-float64(step)*tc.pt) &&
		tc.buyLots > tc.sellLots*3 && tc.buyLots-tc.sellLots > 0.2
	homeoAdd := e.cfg.Homeopathy && tc.sellLow > 0 &&
		px <= e.n(tc.sellLow-float64(e.cfg.Step)*tc.pt) && tc.buyLots == tc.sellLots
	gridAdd := tc.sellHigh > 0 && px >= e.n(tc.sellHigh+float64(step)*tc.pt)

	if !(count == 0 || trendAdd || gridAdd || homeoAdd) {
		return
	}

	lots := e.calcLot(count)
	if count > 0 && !e.canAfford(lots) {
		logger.Debug("⏳ 空头加仓保证金不足，跳过 lots=%.2f", lots)
		return
	}

	if count > 0 && limitWindow && e.cfg.OnUnderNotSellAdd != 0.0 && px <= e.cfg.OnUnderNotSellAdd {
		return
	}

	comment := "NN"
	if trendAdd || homeoAdd {
		comment = "SS"
	}
	if ticket, ok := e.broker.SendPending(SellStop, lots, px, comment); ok {
		logger.Info("📉 挂卖出突破单 #%d lots=%.2f px=%.5f tag=%s", ticket, lots, px, comment)
		metrics.RecordPendingPlaced("sell", comment)
	}
}
