package optimize

import (
	"math"
	"math/rand"
	"testing"

	"gridquant/backtest"
	"gridquant/config"
)

func TestSplitYearWindows(t *testing.T) {
	// 两年半的日线级别合成数据
	var bars []backtest.Bar
	start := int64(1500000000)
	for i := 0; i < 365*2+180; i++ {
		bars = append(bars, backtest.Bar{Ts: start + int64(i)*86400, Open: 1, High: 1, Low: 1, Close: 1})
	}

	windows := SplitYearWindows(bars, 10)
	if len(windows) != 3 {
		t.Fatalf("两年半数据应切出 3 个窗口，得到 %d", len(windows))
	}
	if len(windows[0]) != 365 || len(windows[1]) != 365 || len(windows[2]) != 180 {
		t.Errorf("窗口长度不正确: %d/%d/%d", len(windows[0]), len(windows[1]), len(windows[2]))
	}
	// 窗口之间无重叠无遗漏
	if windows[1][0].Ts != windows[0][len(windows[0])-1].Ts+86400 {
		t.Error("相邻窗口应首尾相接")
	}

	if got := SplitYearWindows(nil, 10); got != nil {
		t.Error("空数据应返回 nil")
	}
}

func TestSampleParamsRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		p := SampleParams(rng)
		if p.Totals < 25 || p.Totals > 75 || p.Totals%5 != 0 {
			t.Fatalf("totals 超出采样范围: %d", p.Totals)
		}
		if p.Lot < 0.020 || p.Lot > 0.080 {
			t.Fatalf("lot 超出采样范围: %v", p.Lot)
		}
		if p.KLot < 1.08 || p.KLot > 1.40 {
			t.Fatalf("k_lot 超出采样范围: %v", p.KLot)
		}
		if p.StepTrailOrders < 4 || p.StepTrailOrders > 17 {
			t.Fatalf("step_trail_orders 超出采样范围: %d", p.StepTrailOrders)
		}
		if p.OpenMode != "bar" || p.StopLoss != 0 {
			t.Fatal("固定参数不应被采样")
		}
	}
}

func TestParamsApplyNormalizesLossSigns(t *testing.T) {
	base := config.DefaultConfig().Engine
	p := basePreserved()
	cfg := p.Apply(&base)

	// 亏损阈值以正数幅度采样，套用后必须为非正
	if cfg.MaxLoss > 0 || cfg.MaxLossCloseAll > 0 || cfg.StopLoss > 0 || cfg.Money > 0 {
		t.Errorf("亏损阈值应统一取负: max_loss=%v close_all=%v stop=%v money=%v",
			cfg.MaxLoss, cfg.MaxLossCloseAll, cfg.StopLoss, cfg.Money)
	}
	if cfg.MaxLoss != -91089.5 || cfg.MaxLossCloseAll != -49.4 {
		t.Errorf("阈值幅度应保留: %v / %v", cfg.MaxLoss, cfg.MaxLossCloseAll)
	}
	// 基础配置不应被修改
	if base.Lot != config.DefaultConfig().Engine.Lot {
		t.Error("Apply 应返回副本而非修改基础配置")
	}
}

func TestRankLexicographic(t *testing.T) {
	a := Rank{1, 5, 0, 10, 1000, 500}
	b := Rank{2, 0, -3, -50, -99999, 0}
	if !a.Less(b) {
		t.Error("层级更高的排名应占优")
	}

	c := Rank{2, 3, 0, 10, 1000, 500}
	d := Rank{2, 4, -1, -50, 0, 0}
	if !c.Less(d) {
		t.Error("层级相同时达标年数更多者占优")
	}

	e := Rank{2, 4, -1, 10, 100, 0}
	if e.Less(e) {
		t.Error("相同排名不应互相小于")
	}
}

func TestSeedCandidates(t *testing.T) {
	seeds := SeedCandidates()
	if len(seeds) != 5 {
		t.Fatalf("应有 1 个基准加 4 个变体，得到 %d", len(seeds))
	}
	base := seeds[0]
	if base.Lot != 0.027 || base.KLot != 1.085 {
		t.Errorf("基准参数不正确: %+v", base)
	}
	for i, v := range seeds[1:] {
		if v.Lot <= base.Lot {
			t.Errorf("变体 %d 手数应更激进: %v", i+1, v.Lot)
		}
		if !v.CheckMargin {
			t.Errorf("变体 %d 应开启保证金检查", i+1)
		}
	}
}

func flatBars(n int, start int64) []backtest.Bar {
	bars := make([]backtest.Bar, 0, n)
	for i := 0; i < n; i++ {
		drift := 0.0020 * math.Sin(float64(i)/40.0)
		o := 0.9000 + drift
		bars = append(bars, backtest.Bar{
			Ts: start + int64(i)*300, Open: o, High: o + 0.0006, Low: o - 0.0006, Close: o + 0.0001,
		})
	}
	return bars
}

func TestEvaluateAggregates(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置校验失败: %v", err)
	}
	cfg.Optimize.TargetYearlyReturnPct = 100
	cfg.Optimize.Years = 2

	// 两个小窗口，快速评估
	windows := [][]backtest.Bar{
		flatBars(500, 1500000000),
		flatBars(500, 1500000000 + secondsPerYear),
	}

	s := NewSearcher(&cfg.Engine, &cfg.Backtest, &cfg.Optimize, windows)
	rank, yearly, agg, err := s.Evaluate(basePreserved())
	if err != nil {
		t.Fatalf("评估失败: %v", err)
	}

	if agg.YearsRan != len(yearly) {
		t.Errorf("运行年数与明细不一致: %d vs %d", agg.YearsRan, len(yearly))
	}
	sum := 0.0
	for _, y := range yearly {
		sum += y.NetProfit
	}
	if math.Abs(agg.SumNetProfit-sum) > 1e-9 {
		t.Errorf("总净利润应为逐年之和: %v vs %v", agg.SumNetProfit, sum)
	}
	if rank[1] != float64(agg.PassTargetYears) {
		t.Errorf("排名元组的达标年数与汇总不一致")
	}
	if agg.BlowupYears == 0 && rank[2] != 0 {
		t.Errorf("无爆仓时排名元组第 3 项应为 0: %v", rank[2])
	}
}
