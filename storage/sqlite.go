package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"gridquant/utils"
)

// SQLiteStorage SQLite 存储实现
type SQLiteStorage struct {
	db     *sql.DB
	closed bool
}

// NewSQLiteStorage 创建 SQLite 存储
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	// 使用 WAL 模式提高并发性能
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite 并发限制
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建表失败: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// createTables 创建表
func createTables(db *sql.DB) error {
	runsSQL := `
	CREATE TABLE IF NOT EXISTS backtest_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT,
		data_file TEXT,
		bars INTEGER,
		initial_balance DECIMAL(20,8),
		final_balance DECIMAL(20,8),
		final_equity DECIMAL(20,8),
		net_profit DECIMAL(20,8),
		max_drawdown_pct DECIMAL(10,4),
		trade_count INTEGER,
		blowup INTEGER DEFAULT 0,
		params_json TEXT,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs(symbol);`

	tradesSQL := `
	CREATE TABLE IF NOT EXISTS backtest_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id BIGINT,
		ticket BIGINT,
		symbol TEXT,
		side TEXT,
		tag TEXT,
		lots DECIMAL(20,8),
		open_price DECIMAL(20,8),
		close_price DECIMAL(20,8),
		open_time BIGINT,
		close_time BIGINT,
		profit DECIMAL(20,8)
	);
	CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades(run_id);
	CREATE INDEX IF NOT EXISTS idx_backtest_trades_close_time ON backtest_trades(close_time);`

	for _, stmt := range []string{runsSQL, tradesSQL} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun 登记一次回测，返回 run_id
func (s *SQLiteStorage) CreateRun(run *BacktestRun) (int64, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = utils.NowUTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO backtest_runs (symbol, data_file, bars, initial_balance, params_json, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.Symbol, run.DataFile, run.Bars, run.InitialBalance, run.ParamsJSON, run.StartedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("登记回测失败: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun 回填回测结果
func (s *SQLiteStorage) FinishRun(run *BacktestRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = utils.NowUTC()
	}
	blowup := 0
	if run.Blowup {
		blowup = 1
	}
	_, err := s.db.Exec(`
		UPDATE backtest_runs
		SET final_balance = ?, final_equity = ?, net_profit = ?, max_drawdown_pct = ?,
		    trade_count = ?, blowup = ?, bars = ?, finished_at = ?
		WHERE id = ?`,
		run.FinalBalance, run.FinalEquity, run.NetProfit, run.MaxDrawdownPct,
		run.TradeCount, blowup, run.Bars, run.FinishedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("回填回测结果失败: %w", err)
	}
	return nil
}

// SaveTrades 批量保存平仓流水（单事务）
func (s *SQLiteStorage) SaveTrades(runID int64, trades []*BacktestTrade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO backtest_trades (run_id, ticket, symbol, side, tag, lots,
		    open_price, close_price, open_time, close_time, profit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()

	for _, tr := range trades {
		if _, err := stmt.Exec(runID, tr.Ticket, tr.Symbol, tr.Side, tr.Tag, tr.Lots,
			tr.OpenPrice, tr.ClosePrice, tr.OpenTime, tr.CloseTime, tr.Profit); err != nil {
			tx.Rollback()
			return fmt.Errorf("写入交易流水失败: %w", err)
		}
	}
	return tx.Commit()
}

// QueryTrades 按回测查询平仓流水（按平仓时间正序）
func (s *SQLiteStorage) QueryTrades(runID int64, limit, offset int) ([]*BacktestTrade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, run_id, ticket, symbol, side, tag, lots,
		       open_price, close_price, open_time, close_time, profit
		FROM backtest_trades WHERE run_id = ?
		ORDER BY close_time ASC, id ASC LIMIT ? OFFSET ?`,
		runID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("查询交易流水失败: %w", err)
	}
	defer rows.Close()

	var out []*BacktestTrade
	for rows.Next() {
		tr := &BacktestTrade{}
		if err := rows.Scan(&tr.ID, &tr.RunID, &tr.Ticket, &tr.Symbol, &tr.Side, &tr.Tag,
			&tr.Lots, &tr.OpenPrice, &tr.ClosePrice, &tr.OpenTime, &tr.CloseTime, &tr.Profit); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// GetPnLBySide 按方向聚合某次回测的盈亏
func (s *SQLiteStorage) GetPnLBySide(runID int64) ([]*PnLSummary, error) {
	rows, err := s.db.Query(`
		SELECT side, COUNT(*), COALESCE(SUM(lots), 0), COALESCE(SUM(profit), 0),
		       COALESCE(SUM(CASE WHEN profit >= 0 THEN 1 ELSE 0 END), 0)
		FROM backtest_trades WHERE run_id = ?
		GROUP BY side ORDER BY side`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("查询盈亏汇总失败: %w", err)
	}
	defer rows.Close()

	var out []*PnLSummary
	for rows.Next() {
		sm := &PnLSummary{}
		if err := rows.Scan(&sm.Side, &sm.TradeCount, &sm.TotalLots, &sm.TotalPnL, &sm.WinCount); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// GetRun 查询单次回测概要
func (s *SQLiteStorage) GetRun(runID int64) (*BacktestRun, error) {
	run := &BacktestRun{}
	var blowup int
	err := s.db.QueryRow(`
		SELECT id, symbol, data_file, bars, initial_balance, COALESCE(final_balance, 0),
		       COALESCE(final_equity, 0), COALESCE(net_profit, 0), COALESCE(max_drawdown_pct, 0),
		       COALESCE(trade_count, 0), blowup, params_json, started_at, COALESCE(finished_at, started_at)
		FROM backtest_runs WHERE id = ?`, runID,
	).Scan(&run.ID, &run.Symbol, &run.DataFile, &run.Bars, &run.InitialBalance, &run.FinalBalance,
		&run.FinalEquity, &run.NetProfit, &run.MaxDrawdownPct, &run.TradeCount, &blowup,
		&run.ParamsJSON, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("查询回测记录失败: %w", err)
	}
	run.Blowup = blowup != 0
	return run, nil
}

// Close 关闭存储
func (s *SQLiteStorage) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
