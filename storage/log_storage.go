package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"gridquant/utils"
)

// LogStorage 日志存储（异步批量写入）
type LogStorage struct {
	db     *sql.DB
	mu     sync.RWMutex
	logCh  chan *logEntry
	closed bool
	done   chan struct{}

	flushInterval time.Duration
}

// logEntry 日志条目
type logEntry struct {
	level     string
	message   string
	timestamp time.Time
}

// LogQueryParams 日志查询参数
type LogQueryParams struct {
	StartTime time.Time
	EndTime   time.Time
	Level     string
	Keyword   string
	Limit     int
	Offset    int
}

// LogRecord 日志记录
type LogRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// NewLogStorage 创建日志存储
func NewLogStorage(path string, bufferSize int, flushInterval time.Duration) (*LogStorage, error) {
	// 使用 WAL 模式提高并发性能
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("打开日志数据库失败: %w", err)
	}

	// SQLite 并发限制
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	ls := &LogStorage{
		db:            db,
		logCh:         make(chan *logEntry, bufferSize),
		done:          make(chan struct{}),
		flushInterval: flushInterval,
	}

	if err := ls.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建日志表失败: %w", err)
	}

	// 启动异步写入协程
	go ls.processLogs()

	return ls, nil
}

// createTable 创建日志表
func (ls *LogStorage) createTable() error {
	stmt := `
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
	`

	_, err := ls.db.Exec(stmt)
	return err
}

// WriteLog 写入日志（异步，不阻塞）
func (ls *LogStorage) WriteLog(level, message string) {
	ls.mu.RLock()
	closed := ls.closed
	ls.mu.RUnlock()
	if closed {
		return
	}

	entry := &logEntry{
		level:     level,
		message:   message,
		timestamp: utils.NowUTC(),
	}

	select {
	case ls.logCh <- entry:
	default:
		// 缓冲满了丢弃，不能阻塞调用方
	}
}

// processLogs 批量落库（独立 goroutine）
func (ls *LogStorage) processLogs() {
	buffer := make([]*logEntry, 0, 100)
	ticker := time.NewTicker(ls.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		ls.flushBatch(buffer)
		buffer = buffer[:0]
	}

	for {
		select {
		case entry, ok := <-ls.logCh:
			if !ok {
				flush()
				close(ls.done)
				return
			}
			buffer = append(buffer, entry)
			if len(buffer) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// flushBatch 单事务写入一批日志
func (ls *LogStorage) flushBatch(batch []*logEntry) {
	tx, err := ls.db.Begin()
	if err != nil {
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO logs (timestamp, level, message) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.timestamp, e.level, e.message); err != nil {
			tx.Rollback()
			return
		}
	}
	tx.Commit()
}

// QueryLogs 查询历史日志
func (ls *LogStorage) QueryLogs(params LogQueryParams) ([]*LogRecord, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if !params.StartTime.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, params.StartTime)
	}
	if !params.EndTime.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, params.EndTime)
	}
	if params.Level != "" {
		conditions = append(conditions, "level = ?")
		args = append(args, params.Level)
	}
	if params.Keyword != "" {
		conditions = append(conditions, "message LIKE ?")
		args = append(args, "%"+params.Keyword+"%")
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, params.Offset)

	query := fmt.Sprintf(`
		SELECT id, timestamp, level, message FROM logs
		WHERE %s ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		strings.Join(conditions, " AND "))

	rows, err := ls.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询日志失败: %w", err)
	}
	defer rows.Close()

	var out []*LogRecord
	for rows.Next() {
		r := &LogRecord{}
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Level, &r.Message); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close 关闭日志存储，确保缓冲落盘
func (ls *LogStorage) Close() error {
	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return nil
	}
	ls.closed = true
	ls.mu.Unlock()

	close(ls.logCh)
	select {
	case <-ls.done:
	case <-time.After(3 * time.Second):
	}
	return ls.db.Close()
}
