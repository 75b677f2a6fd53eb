package storage

import "time"

// BacktestRun 一次回测的概要记录
type BacktestRun struct {
	ID             int64     `json:"id"`
	Symbol         string    `json:"symbol"`
	DataFile       string    `json:"data_file"`
	Bars           int       `json:"bars"`
	InitialBalance float64   `json:"initial_balance"`
	FinalBalance   float64   `json:"final_balance"`
	FinalEquity    float64   `json:"final_equity"`
	NetProfit      float64   `json:"net_profit"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	TradeCount     int       `json:"trade_count"`
	Blowup         bool      `json:"blowup"`
	ParamsJSON     string    `json:"params_json"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// BacktestTrade 回测中平仓落袋的一笔交易
type BacktestTrade struct {
	ID         int64   `json:"id"`
	RunID      int64   `json:"run_id"`
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Tag        string  `json:"tag"`
	Lots       float64 `json:"lots"`
	OpenPrice  float64 `json:"open_price"`
	ClosePrice float64 `json:"close_price"`
	OpenTime   int64   `json:"open_time"`
	CloseTime  int64   `json:"close_time"`
	Profit     float64 `json:"profit"`
}

// PnLSummary 按方向聚合的盈亏汇总
type PnLSummary struct {
	Side       string  `json:"side"`
	TradeCount int     `json:"trade_count"`
	TotalLots  float64 `json:"total_lots"`
	TotalPnL   float64 `json:"total_pnl"`
	WinCount   int     `json:"win_count"`
}
