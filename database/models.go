package database

import "time"

// OptimizeRun 一次参数寻优任务
type OptimizeRun struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Symbol      string    `gorm:"index" json:"symbol"`
	DataFile    string    `json:"data_file"`
	Trials      int       `json:"trials"`
	Years       int       `json:"years"`
	Seed        int64     `json:"seed"`
	TargetPct   float64   `json:"target_pct"`
	BestTrialID uint      `json:"best_trial_id"`
	BestRank    string    `json:"best_rank"` // 排名元组的 JSON 文本
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// OptimizeTrial 单次参数试验及其逐年评估结果
type OptimizeTrial struct {
	ID    uint `gorm:"primarykey" json:"id"`
	RunID uint `gorm:"index" json:"run_id"`
	Index int  `gorm:"column:trial_index" json:"index"`

	ParamsJSON string `json:"params_json"` // 引擎参数快照
	YearsJSON  string `json:"years_json"`  // 逐年结果明细

	FeasibleTier  int     `gorm:"index" json:"feasible_tier"` // 2=全部达标 1=无爆仓 0=有爆仓
	PassYears     int     `json:"pass_years"`
	BlowupYears   int     `json:"blowup_years"`
	MinYearReturn float64 `gorm:"column:min_year_return" json:"min_year_return"`
	SumNet        float64 `gorm:"column:sum_net" json:"sum_net"`
	MinFreeMargin float64 `json:"min_free_margin"`

	CreatedAt time.Time `json:"created_at"`
}
