package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gridquant/backtest"
	"gridquant/config"
	"gridquant/database"
	"gridquant/logger"
)

// YearResult 单个年度窗口的回测结果
type YearResult struct {
	YearIdx        int     `json:"year_idx"`
	StartUTC       string  `json:"start_utc"`
	EndUTC         string  `json:"end_utc"`
	Bars           int     `json:"bars"`
	NetProfit      float64 `json:"net_profit"`
	FinalBalance   float64 `json:"final_balance"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	MinFreeMargin  float64 `json:"min_free_margin"`
	BlewUp         bool    `json:"blew_up"`
	BlowupTimeUTC  string  `json:"blowup_time_utc"`
	ReturnPct      float64 `json:"return_pct"`
}

// Rank 词典序排名元组
// [可行层级, 达标年数, -爆仓年数, 最差年收益率, 总净利润, 最小可用保证金]
type Rank [6]float64

// Less 严格小于（词典序）
func (r Rank) Less(other Rank) bool {
	for i := range r {
		if r[i] != other[i] {
			return r[i] < other[i]
		}
	}
	return false
}

// Aggregate 一组参数在全部年度窗口上的汇总
type Aggregate struct {
	TargetYearlyReturnPct float64 `json:"target_yearly_return_pct"`
	TargetYearlyNetProfit float64 `json:"target_yearly_net_profit"`
	SumNetProfit          float64 `json:"sum_net_profit"`
	AvgNetProfit          float64 `json:"avg_net_profit"`
	MinYearReturnPct      float64 `json:"min_year_return_pct"`
	PassTargetYears       int     `json:"pass_target_years"`
	BlowupYears           int     `json:"blowup_years"`
	YearsRan              int     `json:"years_ran"`
	FeasibleNoBlowup      bool    `json:"feasible_no_blowup"`
	FeasibleTarget        bool    `json:"feasible_target"`
	WorstYearDrawdownPct  float64 `json:"worst_year_max_drawdown_pct"`
	MinFreeMargin         float64 `json:"min_free_margin"`
}

// Searcher 随机参数搜索器
type Searcher struct {
	baseCfg    *config.EngineConfig
	btCfg      *config.BacktestConfig
	optCfg     *config.OptimizeConfig
	yearlyBars [][]backtest.Bar

	db *database.GormDatabase // 可选的试验持久化
}

// NewSearcher 创建搜索器
func NewSearcher(baseCfg *config.EngineConfig, btCfg *config.BacktestConfig,
	optCfg *config.OptimizeConfig, yearlyBars [][]backtest.Bar) *Searcher {
	return &Searcher{
		baseCfg:    baseCfg,
		btCfg:      btCfg,
		optCfg:     optCfg,
		yearlyBars: yearlyBars,
	}
}

// SetDatabase 启用试验结果持久化
func (s *Searcher) SetDatabase(db *database.GormDatabase) {
	s.db = db
}

// RunOneYear 在单个年度窗口上回测一组参数
// 每年用独立资金与独立种子（基准种子+年序号），爆仓立即终止。
func (s *Searcher) RunOneYear(yearIdx int, bars []backtest.Bar, engCfg *config.EngineConfig) (*YearResult, error) {
	btCfg := *s.btCfg
	btCfg.Seed = s.btCfg.Seed + int64(yearIdx)

	bt := backtest.NewBacktester(bars, engCfg, &btCfg)
	bt.StopOnBlowup = true
	res, err := bt.Run()
	if err != nil {
		return nil, err
	}

	y := &YearResult{
		YearIdx:        yearIdx,
		StartUTC:       time.Unix(bars[0].Ts, 0).UTC().Format(time.RFC3339),
		EndUTC:         time.Unix(bars[len(bars)-1].Ts, 0).UTC().Format(time.RFC3339),
		Bars:           len(bars),
		NetProfit:      res.NetProfit,
		FinalBalance:   res.FinalBalance,
		MaxDrawdownPct: res.Metrics.MaxDrawdown,
		MinFreeMargin:  res.MinFreeMargin,
		BlewUp:         res.BlewUp,
		BlowupTimeUTC:  res.BlowupTimeUTC,
		ReturnPct:      res.NetProfit / btCfg.InitialBalance * 100,
	}
	return y, nil
}

// Evaluate 在全部年度窗口上评估一组参数
func (s *Searcher) Evaluate(p Params) (Rank, []*YearResult, *Aggregate, error) {
	engCfg := p.Apply(s.baseCfg)
	targetNet := s.btCfg.InitialBalance * (s.optCfg.TargetYearlyReturnPct / 100.0)

	var yearly []*YearResult
	for i, bars := range s.yearlyBars {
		y, err := s.RunOneYear(i+1, bars, &engCfg)
		if err != nil {
			return Rank{}, nil, nil, err
		}
		yearly = append(yearly, y)
		if y.BlewUp {
			break
		}
	}

	agg := &Aggregate{
		TargetYearlyReturnPct: s.optCfg.TargetYearlyReturnPct,
		TargetYearlyNetProfit: targetNet,
		MinYearReturnPct:      math.Inf(1),
		MinFreeMargin:         math.Inf(1),
		YearsRan:              len(yearly),
	}
	for _, y := range yearly {
		agg.SumNetProfit += y.NetProfit
		if y.BlewUp {
			agg.BlowupYears++
		}
		if y.NetProfit >= targetNet {
			agg.PassTargetYears++
		}
		if y.ReturnPct < agg.MinYearReturnPct {
			agg.MinYearReturnPct = y.ReturnPct
		}
		if y.MinFreeMargin < agg.MinFreeMargin {
			agg.MinFreeMargin = y.MinFreeMargin
		}
		if y.MaxDrawdownPct > agg.WorstYearDrawdownPct {
			agg.WorstYearDrawdownPct = y.MaxDrawdownPct
		}
	}
	if agg.YearsRan > 0 {
		agg.AvgNetProfit = agg.SumNetProfit / float64(agg.YearsRan)
	}

	ranFull := agg.YearsRan == len(s.yearlyBars)
	agg.FeasibleNoBlowup = ranFull && agg.BlowupYears == 0
	agg.FeasibleTarget = agg.FeasibleNoBlowup && agg.PassTargetYears == len(s.yearlyBars)

	tier := 0.0
	if agg.FeasibleTarget {
		tier = 2.0
	} else if agg.FeasibleNoBlowup {
		tier = 1.0
	}
	rank := Rank{
		tier,
		float64(agg.PassTargetYears),
		-float64(agg.BlowupYears),
		agg.MinYearReturnPct,
		agg.SumNetProfit,
		agg.MinFreeMargin,
	}
	return rank, yearly, agg, nil
}

// SearchResult 搜索结果（综合最优与严格达标最优）
type SearchResult struct {
	BestRank   Rank          `json:"best_overall_rank"`
	BestParams *Params       `json:"best_overall_params"`
	BestAgg    *Aggregate    `json:"best_overall_aggregate"`
	BestYearly []*YearResult `json:"best_overall_yearly_results"`

	BestTargetRank   *Rank         `json:"best_target_rank"`
	BestTargetParams *Params       `json:"best_target_params"`
	BestTargetAgg    *Aggregate    `json:"best_target_aggregate"`
	BestTargetYearly []*YearResult `json:"best_target_yearly_results"`

	Trials int   `json:"trials"`
	Seed   int64 `json:"seed"`
}

// Search 执行随机搜索：先评估种子候选，再按配置做随机采样
func (s *Searcher) Search(ctx context.Context) (*SearchResult, error) {
	rng := rand.New(rand.NewSource(s.optCfg.Seed))

	result := &SearchResult{
		BestRank: Rank{math.Inf(-1), math.Inf(-1), math.Inf(-1), math.Inf(-1), math.Inf(-1), math.Inf(-1)},
		Trials:   s.optCfg.Trials,
		Seed:     s.optCfg.Seed,
	}

	var dbRun *database.OptimizeRun
	if s.db != nil {
		dbRun = &database.OptimizeRun{
			Symbol:    s.baseCfg.Symbol,
			DataFile:  s.btCfg.DataFile,
			Trials:    s.optCfg.Trials,
			Years:     len(s.yearlyBars),
			Seed:      s.optCfg.Seed,
			TargetPct: s.optCfg.TargetYearlyReturnPct,
			StartedAt: time.Now().UTC(),
		}
		if err := s.db.CreateRun(ctx, dbRun); err != nil {
			logger.Warn("⚠️ 寻优任务登记失败: %v", err)
			dbRun = nil
		}
	}

	trialIdx := 0
	tryOne := func(p Params, label string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		trialIdx++
		rank, yearly, agg, err := s.Evaluate(p)
		if err != nil {
			return err
		}

		if result.BestRank.Less(rank) {
			result.BestRank = rank
			pc := p
			result.BestParams = &pc
			result.BestAgg = agg
			result.BestYearly = yearly
		}
		if agg.FeasibleTarget && (result.BestTargetRank == nil || result.BestTargetRank.Less(rank)) {
			rc := rank
			pc := p
			result.BestTargetRank = &rc
			result.BestTargetParams = &pc
			result.BestTargetAgg = agg
			result.BestTargetYearly = yearly
		}

		logger.Info("🔎 [%s] tier=%.0f 达标=%d/%d 爆仓=%d 最差年=%.2f%% 总净利=%.2f",
			label, rank[0], agg.PassTargetYears, len(s.yearlyBars),
			agg.BlowupYears, agg.MinYearReturnPct, agg.SumNetProfit)

		if dbRun != nil {
			s.persistTrial(ctx, dbRun.ID, trialIdx, p, rank, yearly, agg)
		}
		return nil
	}

	for i, p := range SeedCandidates() {
		if err := tryOne(p, fmt.Sprintf("seed-%d", i+1)); err != nil {
			return nil, err
		}
	}
	for i := 1; i <= s.optCfg.Trials; i++ {
		if err := tryOne(SampleParams(rng), fmt.Sprintf("%d/%d", i, s.optCfg.Trials)); err != nil {
			return nil, err
		}
	}

	if dbRun != nil {
		rankJSON, _ := json.Marshal(result.BestRank)
		dbRun.FinishedAt = time.Now().UTC()
		dbRun.BestRank = string(rankJSON)
		if err := s.db.FinishRun(ctx, dbRun); err != nil {
			logger.Warn("⚠️ 寻优任务回填失败: %v", err)
		}
	}
	return result, nil
}

func (s *Searcher) persistTrial(ctx context.Context, runID uint, idx int, p Params,
	rank Rank, yearly []*YearResult, agg *Aggregate) {
	paramsJSON, _ := json.Marshal(p)
	yearsJSON, _ := json.Marshal(yearly)
	trial := &database.OptimizeTrial{
		RunID:         runID,
		Index:         idx,
		ParamsJSON:    string(paramsJSON),
		YearsJSON:     string(yearsJSON),
		FeasibleTier:  int(rank[0]),
		PassYears:     agg.PassTargetYears,
		BlowupYears:   agg.BlowupYears,
		MinYearReturn: agg.MinYearReturnPct,
		SumNet:        agg.SumNetProfit,
		MinFreeMargin: agg.MinFreeMargin,
	}
	if err := s.db.SaveTrial(ctx, trial); err != nil {
		logger.Warn("⚠️ 试验结果持久化失败: %v", err)
	}
}
