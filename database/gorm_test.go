package database

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestGormDatabase(t *testing.T) {
	dbPath := "./test_gridquant_optimize.db"
	defer os.Remove(dbPath)

	db, err := NewGormDatabase(&DBConfig{DSN: dbPath, LogLevel: "silent"})
	if err != nil {
		t.Fatalf("创建数据库失败: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	// 1. 登记寻优任务
	run := &OptimizeRun{
		Symbol:    "USDCHF",
		DataFile:  "usdchf_m1.csv",
		Trials:    3,
		Years:     2,
		Seed:      42,
		TargetPct: 100,
		StartedAt: time.Now().UTC(),
	}
	if err := db.CreateRun(ctx, run); err != nil {
		t.Fatalf("登记寻优任务失败: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("寻优任务应分配自增 ID")
	}

	// 2. 保存三个试验：全达标 > 无爆仓 > 有爆仓
	trials := []*OptimizeTrial{
		{RunID: run.ID, Index: 1, FeasibleTier: 0, PassYears: 0, BlowupYears: 1,
			MinYearReturn: -100, SumNet: -10000, ParamsJSON: `{"lot":0.05}`},
		{RunID: run.ID, Index: 2, FeasibleTier: 2, PassYears: 2, BlowupYears: 0,
			MinYearReturn: 120, SumNet: 24000, ParamsJSON: `{"lot":0.01}`},
		{RunID: run.ID, Index: 3, FeasibleTier: 1, PassYears: 1, BlowupYears: 0,
			MinYearReturn: 30, SumNet: 8000, ParamsJSON: `{"lot":0.02}`},
	}
	for _, tr := range trials {
		if err := db.SaveTrial(ctx, tr); err != nil {
			t.Fatalf("保存试验失败: %v", err)
		}
	}

	// 3. 排名查询应按可行层级降序
	top, err := db.TopTrials(ctx, run.ID, 2)
	if err != nil {
		t.Fatalf("查询试验排名失败: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("应返回前 2 个试验，得到 %d", len(top))
	}
	if top[0].Index != 2 || top[1].Index != 3 {
		t.Errorf("排名顺序不正确: 得到 %d, %d", top[0].Index, top[1].Index)
	}

	// 4. 回填结束状态并查询
	run.FinishedAt = time.Now().UTC()
	run.BestTrialID = top[0].ID
	run.BestRank = `[2,2,0,120,24000,5000]`
	if err := db.FinishRun(ctx, run); err != nil {
		t.Fatalf("回填寻优结束状态失败: %v", err)
	}

	got, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("查询寻优记录失败: %v", err)
	}
	if got.BestTrialID != top[0].ID || got.BestRank == "" {
		t.Errorf("寻优记录回填不正确: %+v", got)
	}
}
