package engine

import (
	"math"
	"strconv"
	"strings"
	"time"

	"gridquant/config"
	"gridquant/logger"
	"gridquant/metrics"
)

// Engine 网格马丁决策引擎
// 每个 tick 按固定顺序执行规则级联：准入 → 聚合平仓 → 失衡部分平仓 → 挂单开仓 → 挂单追踪。
// 引擎本身不持有行情，所有市场状态都来自 Broker 接口。
type Engine struct {
	cfg      *config.EngineConfig
	broker   Broker
	state    State
	openMode OpenMode

	// 清仓重试间隔，测试时可注入
	sleep func(time.Duration)
}

// New 创建决策引擎
func New(broker Broker, cfg *config.EngineConfig) *Engine {
	return &Engine{
		cfg:      cfg,
		broker:   broker,
		openMode: ParseOpenMode(cfg.OpenMode),
		sleep:    time.Sleep,
	}
}

// SetSleep 替换清仓重试间隔（仅测试用）
func (e *Engine) SetSleep(fn func(time.Duration)) {
	e.sleep = fn
}

// State 返回引擎状态副本
func (e *Engine) State() State {
	return e.state
}

// n 按品种报价位数四舍五入价格
func (e *Engine) n(value float64) float64 {
	p := math.Pow(10, float64(e.broker.Digits()))
	return math.Round(value*p) / p
}

// orders 过滤出本引擎管理的订单（品种+魔术号匹配）
func (e *Engine) orders() []Order {
	all := e.broker.GetOrders()
	out := make([]Order, 0, len(all))
	for _, o := range all {
		if o.Symbol == e.cfg.Symbol && o.Magic == e.cfg.Magic {
			out = append(out, o)
		}
	}
	return out
}

// timeToSeconds 解析 HH:MM 或 HH:MM:SS 为当日秒数，非法输入返回 0
func timeToSeconds(value string) int {
	parts := strings.Split(value, ":")
	var h, m, s string
	switch len(parts) {
	case 2:
		h, m, s = parts[0], parts[1], "0"
	case 3:
		h, m, s = parts[0], parts[1], parts[2]
	default:
		return 0
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	ss, err3 := strconv.Atoi(s)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	hh = clampInt(hh, 0, 23)
	mm = clampInt(mm, 0, 59)
	ss = clampInt(ss, 0, 59)
	return hh*3600 + mm*60 + ss
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// inTimeWindow 判断 UTC 当日时刻是否落在 [start, stop] 窗口内，支持跨午夜
func inTimeWindow(nowTS int64, start, stop string) bool {
	now := time.Unix(nowTS, 0).UTC()
	cur := now.Hour()*3600 + now.Minute()*60 + now.Second()
	startS := timeToSeconds(start)
	stopS := timeToSeconds(stop)
	if startS <= stopS {
		return startS <= cur && cur <= stopS
	}
	return cur >= startS || cur <= stopS
}

func countSS(orders []Order) int {
	n := 0
	for _, o := range orders {
		if o.Comment == "SS" {
			n++
		}
	}
	return n
}

// latestOpenTime 返回票号最大（最近开仓）订单的开仓时间
func latestOpenTime(orders []Order) int64 {
	var latestTicket int64 = -1
	var latestOpen int64
	for _, o := range orders {
		if o.Ticket > latestTicket {
			latestTicket = o.Ticket
			latestOpen = o.OpenTime
		}
	}
	return latestOpen
}

// tickCtx 单个 tick 的市场快照，级联内共享
type tickCtx struct {
	nowTS     int64
	bid, ask  float64
	pt        float64
	buys      []Order
	sells     []Order
	buystops  []Order
	sellstops []Order

	buyProfit   float64
	sellProfit  float64
	totalProfit float64
	buyLots     float64
	sellLots    float64

	buyHigh  float64 // 多头持仓与挂单的最高入场价
	buyLow   float64 // 仅多头持仓的最低入场价
	sellLow  float64 // 空头持仓与挂单的最低入场价
	sellHigh float64 // 仅空头持仓的最高入场价
}

func (e *Engine) snapshot(nowTS int64) tickCtx {
	bid, ask := e.broker.GetBidAsk()
	tc := tickCtx{nowTS: nowTS, bid: bid, ask: ask, pt: e.broker.Point()}

	for _, o := range e.orders() {
		switch o.Type {
		case Buy:
			tc.buys = append(tc.buys, o)
		case Sell:
			tc.sells = append(tc.sells, o)
		case BuyStop:
			tc.buystops = append(tc.buystops, o)
		case SellStop:
			tc.sellstops = append(tc.sellstops, o)
		}
	}

	for _, o := range tc.buys {
		tc.buyProfit += o.TotalProfit()
		tc.buyLots += o.Lots
		if tc.buyLow == 0 || o.OpenPrice < tc.buyLow {
			tc.buyLow = o.OpenPrice
		}
		if o.OpenPrice > tc.buyHigh {
			tc.buyHigh = o.OpenPrice
		}
	}
	for _, o := range tc.buystops {
		if o.OpenPrice > tc.buyHigh {
			tc.buyHigh = o.OpenPrice
		}
	}
	for _, o := range tc.sells {
		tc.sellProfit += o.TotalProfit()
		tc.sellLots += o.Lots
		if o.OpenPrice > tc.sellHigh {
			tc.sellHigh = o.OpenPrice
		}
		if tc.sellLow == 0 || o.OpenPrice < tc.sellLow {
			tc.sellLow = o.OpenPrice
		}
	}
	for _, o := range tc.sellstops {
		if tc.sellLow == 0 || o.OpenPrice < tc.sellLow {
			tc.sellLow = o.OpenPrice
		}
	}
	tc.totalProfit = tc.buyProfit + tc.sellProfit
	return tc
}

// OnTick 处理一个行情 tick
// nowTS 为当前时间戳（秒），currentBarTS 为当前K线的起始时间戳（bar 开单节奏用）。
func (e *Engine) OnTick(nowTS, currentBarTS int64) {
	start := time.Now()
	defer func() { metrics.ObserveTickDuration(time.Since(start)) }()

	tc := e.snapshot(nowTS)
	metrics.UpdateOpenOrders(len(tc.buys), len(tc.sells))

	buySS := countSS(tc.buys)
	sellSS := countSS(tc.sells)
	sellSSWhenNoBuySS := 0
	if buySS < 1 {
		sellSSWhenNoBuySS = sellSS
	}

	canBuy, canSell := true, true

	if !inTimeWindow(nowTS, e.cfg.EAStartTime, e.cfg.EAStopTime) {
		canBuy, canSell = false, false
	}

	if e.broker.AccountLeverage() < e.cfg.LeverageMin ||
		!e.broker.IsTradeAllowed() ||
		!e.broker.IsExpertEnabled() ||
		e.broker.IsStopped() ||
		len(tc.buys)+len(tc.sells) >= e.cfg.Totals ||
		e.broker.SpreadPoints() > e.cfg.MaxSpread {
		canBuy, canSell = false, false
	}

	if nowTS < e.state.PauseUntil {
		canBuy, canSell = false, false
	}

	// 存量管理模式下空边不开任何新单
	if e.cfg.Over && len(tc.buys) == 0 {
		canBuy = false
	}
	if e.cfg.Over && len(tc.sells) == 0 {
		canSell = false
	}

	if e.cfg.Over && tc.totalProfit >= e.cfg.CloseAll {
		logger.Info("💰 总浮盈 %.2f 达到全平阈值 %.2f，清仓离场", tc.totalProfit, e.cfg.CloseAll)
		e.liquidate(SideBoth)
		if e.cfg.NextTime > 0 {
			e.state.PauseUntil = nowTS + e.cfg.NextTime
		}
		return
	}

	if !e.cfg.Over {
		// 单边止盈：两边都未陷入深度亏损时，哪边达标平哪边
		if (sellSSWhenNoBuySS < 1 || !e.cfg.HomeopathyCloseAll) &&
			tc.buyProfit > e.cfg.MaxLossCloseAll &&
			tc.sellProfit > e.cfg.MaxLossCloseAll {
			if (e.cfg.ProfitByCount && tc.buyProfit > e.cfg.StopProfit*float64(len(tc.buys))) ||
				(!e.cfg.ProfitByCount && tc.buyProfit > e.cfg.StopProfit) {
				logger.Info("📈 多头浮盈 %.2f 达标，平多头", tc.buyProfit)
				e.liquidate(SideBuy)
				return
			}
			if (e.cfg.ProfitByCount && tc.sellProfit > e.cfg.StopProfit*float64(len(tc.sells))) ||
				(!e.cfg.ProfitByCount && tc.sellProfit > e.cfg.StopProfit) {
				logger.Info("📉 空头浮盈 %.2f 达标，平空头", tc.sellProfit)
				e.liquidate(SideSell)
				return
			}
		}

		// 顺势全平：存在顺势单且总盈利达标
		if e.cfg.HomeopathyCloseAll &&
			(buySS > 0 || sellSS > 0) &&
			tc.totalProfit >= e.cfg.CloseAll {
			logger.Info("🚀 顺势全平触发，总浮盈 %.2f", tc.totalProfit)
			e.liquidate(SideBoth)
			if e.cfg.NextTime > 0 {
				e.state.PauseUntil = nowTS + e.cfg.NextTime
			}
			return
		}

		// 对冲解套全平：一边深度亏损但总账达标
		if tc.totalProfit >= e.cfg.CloseAll &&
			(tc.buyProfit <= e.cfg.MaxLossCloseAll || tc.sellProfit <= e.cfg.MaxLossCloseAll) {
			logger.Info("💰 总浮盈 %.2f 达标（单边深亏），清仓离场", tc.totalProfit)
			e.liquidate(SideBoth)
			if e.cfg.NextTime > 0 {
				e.state.PauseUntil = nowTS + e.cfg.NextTime
			}
			return
		}
	}

	if e.cfg.StopLoss != 0.0 && tc.totalProfit <= e.cfg.StopLoss {
		logger.Warn("🛑 总浮亏 %.2f 触发止损 %.2f，清仓", tc.totalProfit, e.cfg.StopLoss)
		e.liquidate(SideBoth)
		if e.cfg.NextTime > 0 {
			e.state.PauseUntil = nowTS + e.cfg.NextTime
		}
		return
	}

	if e.cfg.CloseBuySell {
		e.partialCloseImbalance(&tc)
	}

	aggressive := e.cfg.Money == 0.0 || tc.totalProfit > e.cfg.Money

	openGate := (e.openMode == OpenBar && e.state.LastBarTime != currentBarTS) ||
		e.openMode == OpenSleep || e.openMode == OpenAlways

	if openGate {
		limitWindow := inTimeWindow(nowTS, e.cfg.LimitStartTime, e.cfg.LimitStopTime)
		e.tryOpenBuy(&tc, canBuy, aggressive, latestOpenTime(tc.buys), limitWindow)
		e.tryOpenSell(&tc, canSell, aggressive, latestOpenTime(tc.sells), limitWindow)
		e.state.LastBarTime = currentBarTS
	}

	e.trailPendingBuy(&tc, canBuy, aggressive)
	e.trailPendingSell(&tc, canSell, aggressive)
}
