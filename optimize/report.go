package optimize

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gridquant/logger"
)

// reportPayload 寻优结果 JSON 结构
type reportPayload struct {
	Objective          string  `json:"objective"`
	TargetYearlyReturn float64 `json:"target_yearly_return_pct"`
	BlowupDefinition   string  `json:"blowup_definition"`
	GeneratedAtUTC     string  `json:"generated_at_utc"`
	DataFile           string  `json:"data_file"`
	Trials             int     `json:"trials"`
	Seed               int64   `json:"seed"`

	BestOverallRank   Rank          `json:"best_overall_rank"`
	BestOverallParams *Params       `json:"best_overall_params"`
	BestOverallAgg    *Aggregate    `json:"best_overall_aggregate"`
	BestOverallYearly []*YearResult `json:"best_overall_yearly_results"`

	BestTargetRank   *Rank         `json:"best_target_rank"`
	BestTargetParams *Params       `json:"best_target_params"`
	BestTargetAgg    *Aggregate    `json:"best_target_aggregate"`
	BestTargetYearly []*YearResult `json:"best_target_yearly_results"`
}

// SaveReport 把搜索结果写成 JSON 报告
func SaveReport(res *SearchResult, dataFile string, targetPct float64, path string) error {
	payload := reportPayload{
		Objective:          fmt.Sprintf("target >=%.0f%% yearly return, while minimizing blow-up risk", targetPct),
		TargetYearlyReturn: targetPct,
		BlowupDefinition:   "equity <= 0 OR free_margin <= 0",
		GeneratedAtUTC:     time.Now().UTC().Format(time.RFC3339),
		DataFile:           dataFile,
		Trials:             res.Trials,
		Seed:               res.Seed,

		BestOverallRank:   res.BestRank,
		BestOverallParams: res.BestParams,
		BestOverallAgg:    res.BestAgg,
		BestOverallYearly: res.BestYearly,

		BestTargetRank:   res.BestTargetRank,
		BestTargetParams: res.BestTargetParams,
		BestTargetAgg:    res.BestTargetAgg,
		BestTargetYearly: res.BestTargetYearly,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化寻优结果失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入寻优结果失败: %w", err)
	}
	logger.Info("💾 寻优结果已保存: %s", path)
	return nil
}
