package optimize

import (
	"math"
	"math/rand"

	"gridquant/config"
)

// Params 一组可调引擎参数（随机搜索的采样单元）
type Params struct {
	Totals             int     `json:"totals"`
	MaxSpread          float64 `json:"max_spread"`
	CloseBuySell       bool    `json:"close_buy_sell"`
	HomeopathyCloseAll bool    `json:"homeopathy_close_all"`
	Homeopathy         bool    `json:"homeopathy"`
	Money              float64 `json:"money"`
	FirstStep          int     `json:"first_step"`
	MinDistance        int     `json:"min_distance"`
	TwoMinDistance     int     `json:"two_min_distance"`
	StepTrailOrders    int     `json:"step_trail_orders"`
	Step               int     `json:"step"`
	TwoStep            int     `json:"two_step"`
	Lot                float64 `json:"lot"`
	MaxLot             float64 `json:"max_lot"`
	PlusLot            float64 `json:"plus_lot"`
	KLot               float64 `json:"k_lot"`
	DigitsLot          int     `json:"digits_lot"`
	CloseAll           float64 `json:"close_all"`
	ProfitByCount      bool    `json:"profit_by_count"`
	StopProfit         float64 `json:"stop_profit"`
	StopLoss           float64 `json:"stop_loss"`
	MaxLoss            float64 `json:"max_loss"`
	MaxLossCloseAll    float64 `json:"max_loss_close_all"`
	OpenMode           string  `json:"open_mode"`
	SleepSeconds       int64   `json:"sleep_seconds"`
	CheckMargin        bool    `json:"check_margin_for_add_orders"`
}

// Apply 把参数套到引擎配置上，返回独立副本
// 亏损阈值输入为正数幅度，套用时统一取负，与配置层的规范化一致。
func (p Params) Apply(base *config.EngineConfig) config.EngineConfig {
	cfg := *base

	cfg.Totals = p.Totals
	cfg.MaxSpread = p.MaxSpread
	cfg.CloseBuySell = p.CloseBuySell
	cfg.HomeopathyCloseAll = p.HomeopathyCloseAll
	cfg.Homeopathy = p.Homeopathy
	cfg.Money = -math.Abs(p.Money)
	cfg.FirstStep = p.FirstStep
	cfg.MinDistance = p.MinDistance
	cfg.TwoMinDistance = p.TwoMinDistance
	cfg.StepTrailOrders = p.StepTrailOrders
	cfg.Step = p.Step
	cfg.TwoStep = p.TwoStep
	cfg.Lot = p.Lot
	cfg.MaxLot = p.MaxLot
	cfg.PlusLot = p.PlusLot
	cfg.KLot = p.KLot
	cfg.DigitsLot = p.DigitsLot
	cfg.CloseAll = p.CloseAll
	cfg.ProfitByCount = p.ProfitByCount
	cfg.StopProfit = p.StopProfit
	cfg.StopLoss = -math.Abs(p.StopLoss)
	cfg.MaxLoss = -math.Abs(p.MaxLoss)
	cfg.MaxLossCloseAll = -math.Abs(p.MaxLossCloseAll)
	cfg.OpenMode = p.OpenMode
	cfg.SleepSeconds = p.SleepSeconds
	cfg.CheckMarginForAddOrders = p.CheckMargin

	return cfg
}

// basePreserved 久经回测的稳健参数组合，作为种子候选的核心
func basePreserved() Params {
	return Params{
		Totals:             60,
		MaxSpread:          40,
		CloseBuySell:       false,
		HomeopathyCloseAll: true,
		Homeopathy:         false,
		Money:              0,
		FirstStep:          35,
		MinDistance:        155,
		TwoMinDistance:     95,
		StepTrailOrders:    15,
		Step:               160,
		TwoStep:            265,
		Lot:                0.027,
		MaxLot:             0.51,
		PlusLot:            0.003,
		KLot:               1.085,
		DigitsLot:          3,
		CloseAll:           2.74,
		ProfitByCount:      false,
		StopProfit:         4.49,
		StopLoss:           0,
		MaxLoss:            91089.5,
		MaxLossCloseAll:    49.4,
		OpenMode:           "bar",
		SleepSeconds:       30,
		CheckMargin:        false,
	}
}

// SeedCandidates 返回种子参数组：稳健基准加上若干更激进的变体
func SeedCandidates() []Params {
	base := basePreserved()
	seeds := []Params{base}

	variants := []struct {
		lot, maxLot, kLot, plusLot float64
	}{
		{0.032, 0.90, 1.10, 0.004},
		{0.038, 1.20, 1.14, 0.005},
		{0.045, 1.80, 1.18, 0.006},
		{0.052, 2.50, 1.22, 0.007},
	}
	for _, v := range variants {
		p := base
		p.Lot = v.lot
		p.MaxLot = v.maxLot
		p.KLot = v.kLot
		p.PlusLot = v.plusLot
		p.CheckMargin = true
		p.StopProfit = 4.2
		p.CloseAll = 2.4
		seeds = append(seeds, p)
	}
	return seeds
}

// SampleParams 随机采样一组参数
func SampleParams(rng *rand.Rand) Params {
	money := 0.0
	if rng.Float64() >= 0.9 {
		money = round1(uniform(rng, 20.0, 250.0))
	}
	return Params{
		Totals:             randRange(rng, 25, 76, 5),
		MaxSpread:          float64(randRange(rng, 26, 41, 2)),
		CloseBuySell:       rng.Intn(2) == 0,
		HomeopathyCloseAll: rng.Intn(2) == 0,
		Homeopathy:         rng.Intn(2) == 0,
		Money:              money,
		FirstStep:          randRange(rng, 20, 81, 5),
		MinDistance:        randRange(rng, 80, 201, 5),
		TwoMinDistance:     randRange(rng, 70, 221, 5),
		StepTrailOrders:    randRange(rng, 4, 18, 1),
		Step:               randRange(rng, 100, 281, 5),
		TwoStep:            randRange(rng, 120, 321, 5),
		Lot:                round3(uniform(rng, 0.020, 0.080)),
		MaxLot:             round2(uniform(rng, 0.8, 6.0)),
		PlusLot:            round3(uniform(rng, 0.0, 0.020)),
		KLot:               round3(uniform(rng, 1.08, 1.40)),
		DigitsLot:          3,
		CloseAll:           round2(uniform(rng, 0.8, 3.0)),
		ProfitByCount:      rng.Intn(2) == 0,
		StopProfit:         round2(uniform(rng, 2.0, 12.0)),
		StopLoss:           0,
		MaxLoss:            round1(uniform(rng, 50000.0, 250000.0)),
		MaxLossCloseAll:    round1(uniform(rng, 20.0, 300.0)),
		OpenMode:           "bar",
		SleepSeconds:       30,
		CheckMargin:        rng.Intn(3) != 2, // 2/3 概率开启保证金检查
	}
}

// randRange 等价于区间 [start, stop) 按 step 的均匀取值
func randRange(rng *rand.Rand, start, stop, step int) int {
	count := (stop - start + step - 1) / step
	return start + step*rng.Intn(count)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
