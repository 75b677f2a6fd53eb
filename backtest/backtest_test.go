package backtest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gridquant/config"
	"gridquant/engine"
)

func TestLoadBarsCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	content := "timestamp,open,high,low,close\n" +
		"1700000600000,0.9001,0.9005,0.8999,0.9003\n" +
		"1700000000000,0.9000,0.9004,0.8998,0.9001\n" +
		"badrow,x,y,z,w\n" +
		"1700001200000,0.9003,0.9008,0.9001,0.9006\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入测试数据失败: %v", err)
	}

	bars, err := LoadBarsCSV(path)
	if err != nil {
		t.Fatalf("加载K线失败: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("坏行应被跳过，期望 3 根K线，得到 %d", len(bars))
	}
	if bars[0].Ts != 1700000000 || bars[2].Ts != 1700001200 {
		t.Errorf("K线应按时间正序且时间戳转为秒: %v", bars)
	}
	if bars[1].Open != 0.9001 {
		t.Errorf("字段解析不正确: %+v", bars[1])
	}
}

func TestSimBrokerSpreadModel(t *testing.T) {
	b := NewSimBroker("USDCHF", 10000, 100, 1)

	for i := 0; i < 200; i++ {
		bar := Bar{
			Ts:    int64(1700000000 + i*300),
			Open:  0.9000,
			High:  0.9000 + float64(i%5)*0.0010,
			Low:   0.9000 - float64(i%3)*0.0010,
			Close: 0.9000,
		}
		b.OnBar(bar)

		pips := b.SpreadPoints() / 10.0
		if pips < 0.25 || pips > 3.0 {
			t.Fatalf("点差应钳位在 [0.25, 3.0] pips，得到 %v", pips)
		}
		bid, ask := b.GetBidAsk()
		if ask <= bid {
			t.Fatalf("ask 应高于 bid: bid=%v ask=%v", bid, ask)
		}
	}
}

func TestSimBrokerTriggerAndClose(t *testing.T) {
	b := NewSimBroker("USDCHF", 10000, 100, 7)

	bar := Bar{Ts: 1700000000, Open: 0.9000, High: 0.9002, Low: 0.8998, Close: 0.9000}
	b.OnBar(bar)

	ticket, ok := b.SendPending(engine.BuyStop, 0.01, 0.90050, "NN")
	if !ok {
		t.Fatal("挂单应成功")
	}

	// 高点未到触发价，不成交
	b.TriggerPendingFromBar()
	if b.GetOrders()[0].Type != engine.BuyStop {
		t.Fatal("高点未及触发价时挂单不应成交")
	}

	// 高点越过触发价，按 max(开盘价, 触发价)+滑点成交
	bar2 := Bar{Ts: 1700000300, Open: 0.9003, High: 0.9010, Low: 0.9000, Close: 0.9006}
	b.OnBar(bar2)
	b.TriggerPendingFromBar()

	o := b.GetOrders()[0]
	if o.Type != engine.Buy {
		t.Fatal("触发后挂单应转为持仓")
	}
	if o.OpenPrice < 0.9003 {
		t.Errorf("成交价不应优于 max(开盘价, 触发价)，得到 %v", o.OpenPrice)
	}
	if o.OpenTime != bar2.Ts {
		t.Errorf("成交时间应为触发K线时间: %v", o.OpenTime)
	}

	// 平仓落袋
	if !b.CloseOrder(ticket) {
		t.Fatal("平仓应成功")
	}
	if len(b.ClosedPnLs) != 1 {
		t.Fatalf("应记录一笔平仓盈亏，得到 %d", len(b.ClosedPnLs))
	}
	if got := b.Balance(); math.Abs(got-(10000+b.ClosedPnLs[0])) > 1e-9 {
		t.Errorf("余额应为初始资金加落袋盈亏: %v", got)
	}
	if len(b.ClosedTrades) != 1 || b.ClosedTrades[0].Side != "buy" || b.ClosedTrades[0].Tag != "NN" {
		t.Errorf("平仓流水记录不正确: %+v", b.ClosedTrades)
	}
	if len(b.GetOrders()) != 0 {
		t.Error("平仓后不应残留订单")
	}
}

func TestSimBrokerPendingDelete(t *testing.T) {
	b := NewSimBroker("USDCHF", 10000, 100, 7)
	b.OnBar(Bar{Ts: 1700000000, Open: 0.9000, High: 0.9001, Low: 0.8999, Close: 0.9000})

	ticket, _ := b.SendPending(engine.SellStop, 0.01, 0.89500, "NN")
	// 挂单走 CloseOrder 应转为删除，不产生盈亏
	if !b.CloseOrder(ticket) {
		t.Fatal("删除挂单应成功")
	}
	if len(b.ClosedPnLs) != 0 {
		t.Error("删除挂单不应产生平仓盈亏")
	}
}

func TestSimBrokerMargin(t *testing.T) {
	b := NewSimBroker("USDCHF", 10000, 100, 7)
	if got := b.MarginPerLot("USDCHF"); got != 1000 {
		t.Errorf("1:100 杠杆下每手保证金应为 1000，得到 %v", got)
	}
	if got := b.MarginPerLot("EURUSD"); got != 0 {
		t.Errorf("其他品种保证金应为 0，得到 %v", got)
	}
}

func syntheticBars(n int, start int64) []Bar {
	bars := make([]Bar, 0, n)
	px := 0.9000
	for i := 0; i < n; i++ {
		// 缓慢正弦摆动的价格路径
		drift := 0.0030 * math.Sin(float64(i)/50.0)
		o := px + drift
		h := o + 0.0008
		l := o - 0.0008
		c := o + 0.0002
		bars = append(bars, Bar{Ts: start + int64(i)*300, Open: o, High: h, Low: l, Close: c})
	}
	return bars
}

func TestBacktesterRun(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置校验失败: %v", err)
	}
	cfg.Engine.OpenMode = "bar"
	cfg.Backtest.InitialBalance = 10000
	cfg.Backtest.Leverage = 100
	cfg.Backtest.Seed = 20260226

	bars := syntheticBars(2000, 1700000000)
	bt := NewBacktester(bars, &cfg.Engine, &cfg.Backtest)
	res, err := bt.Run()
	if err != nil {
		t.Fatalf("回测运行失败: %v", err)
	}

	if res.Bars != 2000 {
		t.Errorf("K线计数不正确: %d", res.Bars)
	}
	// 每根K线采样一次，外加期末强平后一次
	if len(res.EquityCurve) != 2001 {
		t.Errorf("权益曲线长度应为 bars+1，得到 %d", len(res.EquityCurve))
	}

	sum := 0.0
	for _, p := range res.ClosedPnLs {
		sum += p
	}
	if math.Abs(res.FinalBalance-(10000+sum)) > 1e-6 {
		t.Errorf("期末余额应等于初始资金加全部落袋盈亏: %v vs %v", res.FinalBalance, 10000+sum)
	}
	if math.Abs(res.NetProfit-sum) > 1e-6 {
		t.Errorf("净利润应等于落袋盈亏之和: %v vs %v", res.NetProfit, sum)
	}
	if res.ClosedTrades != len(res.ClosedPnLs) {
		t.Errorf("平仓笔数不一致: %d vs %d", res.ClosedTrades, len(res.ClosedPnLs))
	}
}

func TestBacktesterDeterminism(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置校验失败: %v", err)
	}
	cfg.Engine.OpenMode = "bar"

	bars := syntheticBars(1000, 1700000000)

	run := func() *Result {
		bt := NewBacktester(bars, &cfg.Engine, &cfg.Backtest)
		res, err := bt.Run()
		if err != nil {
			t.Fatalf("回测运行失败: %v", err)
		}
		return res
	}

	r1 := run()
	r2 := run()
	if r1.FinalBalance != r2.FinalBalance || r1.ClosedTrades != r2.ClosedTrades {
		t.Errorf("相同种子的两次回测结果应一致: %v/%d vs %v/%d",
			r1.FinalBalance, r1.ClosedTrades, r2.FinalBalance, r2.ClosedTrades)
	}
}

func TestCalculateMetrics(t *testing.T) {
	equity := []float64{10000, 10200, 9900, 10500, 10400}
	times := []int64{0, 86400, 172800, 259200, 345600}
	pnls := []float64{100, -50, 200, -30, 80}

	m := CalculateMetrics(equity, times, pnls, 10000)

	if math.Abs(m.TotalReturn-4.0) > 1e-9 {
		t.Errorf("总收益率应为 4%%，得到 %v", m.TotalReturn)
	}
	// 峰值 10200 回落到 9900
	wantDD := (10200.0 - 9900.0) / 10200.0 * 100
	if math.Abs(m.MaxDrawdown-wantDD) > 1e-9 {
		t.Errorf("最大回撤应为 %.4f%%，得到 %v", wantDD, m.MaxDrawdown)
	}
	if math.Abs(m.WinRate-60.0) > 1e-9 {
		t.Errorf("胜率应为 60%%，得到 %v", m.WinRate)
	}
	wantPF := (100.0 + 200.0 + 80.0) / (50.0 + 30.0)
	if math.Abs(m.ProfitFactor-wantPF) > 1e-9 {
		t.Errorf("利润因子应为 %.3f，得到 %v", wantPF, m.ProfitFactor)
	}
	if m.MaxConsecutiveWins != 1 || m.MaxConsecutiveLosses != 1 {
		t.Errorf("连续盈亏次数不正确: wins=%d losses=%d", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)
	}
	if m.LargestWin != 200 || m.LargestLoss != 50 {
		t.Errorf("最大单笔盈亏不正确: win=%v loss=%v", m.LargestWin, m.LargestLoss)
	}
}
