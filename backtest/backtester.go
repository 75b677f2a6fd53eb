package backtest

import (
	"fmt"
	"math"
	"time"

	"gridquant/config"
	"gridquant/engine"
	"gridquant/logger"
	"gridquant/metrics"
)

// Backtester 离线回测器：逐K线驱动模拟撮合器和决策引擎
type Backtester struct {
	broker *SimBroker
	eng    *engine.Engine
	bars   []Bar

	initialBalance float64

	// 权益或可用保证金归零时提前终止（寻优用）
	StopOnBlowup bool
}

// Result 回测结果
type Result struct {
	Symbol         string    `json:"symbol"`
	StartUTC       time.Time `json:"start_utc"`
	EndUTC         time.Time `json:"end_utc"`
	Bars           int       `json:"bars"`
	InitialBalance float64   `json:"initial_balance"`
	FinalBalance   float64   `json:"final_balance"`
	FinalEquity    float64   `json:"final_equity"`
	NetProfit      float64   `json:"net_profit"`
	ClosedTrades   int       `json:"closed_trades"`
	AvgSpreadPips  float64   `json:"avg_spread_pips"`
	MinFreeMargin  float64   `json:"min_free_margin"`
	BlewUp         bool      `json:"blew_up"`
	BlowupTimeUTC  string    `json:"blowup_time_utc"`

	Metrics Metrics `json:"metrics"`

	EquityCurve  []float64     `json:"-"`
	BalanceCurve []float64     `json:"-"`
	ClosedPnLs   []float64     `json:"-"`
	Trades       []ClosedTrade `json:"-"`
}

// NewBacktester 创建回测器
func NewBacktester(bars []Bar, engCfg *config.EngineConfig, btCfg *config.BacktestConfig) *Backtester {
	broker := NewSimBroker(engCfg.Symbol, btCfg.InitialBalance, btCfg.Leverage, btCfg.Seed)
	return &Backtester{
		broker:         broker,
		eng:            engine.New(broker, engCfg),
		bars:           bars,
		initialBalance: btCfg.InitialBalance,
	}
}

// Run 执行回测
// 每根K线的处理顺序：更新盘口 → 触发挂单 → 引擎决策 → 采样权益。
// 结束后强制平掉剩余持仓、删除剩余挂单。
func (bt *Backtester) Run() (*Result, error) {
	if len(bt.bars) == 0 {
		return nil, fmt.Errorf("K线数据为空")
	}

	blewUp := false
	var blowupTS int64
	minFreeMargin := math.Inf(1)

	for _, bar := range bt.bars {
		bt.broker.OnBar(bar)
		bt.broker.TriggerPendingFromBar()
		bt.eng.OnTick(bar.Ts, bar.Ts)
		bt.broker.Snapshot()

		fm := bt.broker.FreeMargin()
		if fm < minFreeMargin {
			minFreeMargin = fm
		}

		// 爆仓近似定义: 净值<=0 或可用保证金<=0
		if bt.broker.Equity() <= 0 || fm <= 0 {
			blewUp = true
			blowupTS = bar.Ts
			if bt.StopOnBlowup {
				break
			}
		}
		metrics.UpdateAccount(bt.broker.Balance(), bt.broker.Equity())
	}

	// 期末强制离场
	for _, o := range bt.broker.GetOrders() {
		if o.Type == engine.Buy || o.Type == engine.Sell {
			bt.broker.CloseOrder(o.Ticket)
		} else {
			bt.broker.DeleteOrder(o.Ticket)
		}
	}
	bt.broker.Snapshot()

	if math.IsInf(minFreeMargin, 1) {
		minFreeMargin = bt.broker.FreeMargin()
	}

	res := &Result{
		Symbol:         bt.broker.symbol,
		StartUTC:       time.Unix(bt.bars[0].Ts, 0).UTC(),
		EndUTC:         time.Unix(bt.bars[len(bt.bars)-1].Ts, 0).UTC(),
		Bars:           len(bt.bars),
		InitialBalance: bt.initialBalance,
		FinalBalance:   bt.broker.Balance(),
		FinalEquity:    bt.broker.Equity(),
		NetProfit:      bt.broker.Balance() - bt.initialBalance,
		ClosedTrades:   len(bt.broker.ClosedPnLs),
		AvgSpreadPips:  bt.broker.AvgSpreadPips(),
		MinFreeMargin:  minFreeMargin,
		BlewUp:         blewUp,
		BlowupTimeUTC:  "-",
		EquityCurve:    bt.broker.EquityCurve,
		BalanceCurve:   bt.broker.BalanceCurve,
		ClosedPnLs:     bt.broker.ClosedPnLs,
		Trades:         bt.broker.ClosedTrades,
	}
	if blewUp {
		res.BlowupTimeUTC = time.Unix(blowupTS, 0).UTC().Format(time.RFC3339)
		logger.Warn("💥 回测爆仓于 %s", res.BlowupTimeUTC)
	}

	res.Metrics = CalculateMetrics(bt.broker.EquityCurve, bt.broker.EquityTimes, bt.broker.ClosedPnLs, bt.initialBalance)
	return res, nil
}
