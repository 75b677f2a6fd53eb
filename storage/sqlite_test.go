package storage

import (
	"os"
	"testing"
	"time"
)

func TestSQLiteStorage(t *testing.T) {
	dbPath := "./test_gridquant.db"
	defer os.Remove(dbPath)
	defer os.Remove(dbPath + "-shm")
	defer os.Remove(dbPath + "-wal")

	st, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	defer st.Close()

	// 1. 登记回测并回填结果
	run := &BacktestRun{
		Symbol:         "USDCHF",
		DataFile:       "usdchf_m1.csv",
		Bars:           1440,
		InitialBalance: 10000,
		ParamsJSON:     `{"lot":0.01,"k_lot":1.3}`,
	}
	runID, err := st.CreateRun(run)
	if err != nil {
		t.Fatalf("登记回测失败: %v", err)
	}
	run.ID = runID
	run.FinalBalance = 10500
	run.FinalEquity = 10480
	run.NetProfit = 480
	run.MaxDrawdownPct = 12.5
	run.TradeCount = 2
	if err := st.FinishRun(run); err != nil {
		t.Fatalf("回填回测结果失败: %v", err)
	}

	got, err := st.GetRun(runID)
	if err != nil {
		t.Fatalf("查询回测记录失败: %v", err)
	}
	if got.NetProfit != 480 || got.Blowup {
		t.Errorf("回测概要不正确: net=%v blowup=%v", got.NetProfit, got.Blowup)
	}

	// 2. 批量保存并查询平仓流水
	trades := []*BacktestTrade{
		{Ticket: 1, Symbol: "USDCHF", Side: "buy", Tag: "NN", Lots: 0.01,
			OpenPrice: 0.90010, ClosePrice: 0.90510, OpenTime: 100, CloseTime: 200, Profit: 5.5},
		{Ticket: 2, Symbol: "USDCHF", Side: "sell", Tag: "SS", Lots: 0.02,
			OpenPrice: 0.90400, ClosePrice: 0.90600, OpenTime: 150, CloseTime: 300, Profit: -4.4},
	}
	if err := st.SaveTrades(runID, trades); err != nil {
		t.Fatalf("保存交易流水失败: %v", err)
	}

	list, err := st.QueryTrades(runID, 10, 0)
	if err != nil {
		t.Fatalf("查询交易流水失败: %v", err)
	}
	if len(list) != 2 || list[0].Ticket != 1 || list[1].Ticket != 2 {
		t.Errorf("交易流水应按平仓时间正序返回，得到 %v", list)
	}

	// 3. 按方向聚合盈亏
	summary, err := st.GetPnLBySide(runID)
	if err != nil {
		t.Fatalf("查询盈亏汇总失败: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("应有买卖两个方向的汇总，得到 %d", len(summary))
	}
	for _, sm := range summary {
		switch sm.Side {
		case "buy":
			if sm.TotalPnL != 5.5 || sm.WinCount != 1 {
				t.Errorf("买方向汇总不正确: %+v", sm)
			}
		case "sell":
			if sm.TotalPnL != -4.4 || sm.WinCount != 0 {
				t.Errorf("卖方向汇总不正确: %+v", sm)
			}
		}
	}
}

func TestLogStorage(t *testing.T) {
	dbPath := "./test_gridquant_logs.db"
	defer os.Remove(dbPath)
	defer os.Remove(dbPath + "-shm")
	defer os.Remove(dbPath + "-wal")

	ls, err := NewLogStorage(dbPath, 100, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("创建日志存储失败: %v", err)
	}

	ls.WriteLog("INFO", "回测开始")
	ls.WriteLog("ERROR", "清仓失败 方向=both")

	// Close 会把缓冲刷盘
	if err := ls.Close(); err != nil {
		t.Fatalf("关闭日志存储失败: %v", err)
	}

	ls2, err := NewLogStorage(dbPath, 100, time.Second)
	if err != nil {
		t.Fatalf("重新打开日志存储失败: %v", err)
	}
	defer ls2.Close()

	records, err := ls2.QueryLogs(LogQueryParams{Level: "ERROR", Limit: 10})
	if err != nil {
		t.Fatalf("查询日志失败: %v", err)
	}
	if len(records) != 1 || records[0].Message != "清仓失败 方向=both" {
		t.Errorf("按级别过滤查询结果不正确: %v", records)
	}
}
