package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDatabase 参数寻优结果持久化（GORM + SQLite）
type GormDatabase struct {
	db *gorm.DB
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN             string        // 数据源名称
	MaxOpenConns    int           // 最大打开连接数
	MaxIdleConns    int           // 最大空闲连接数
	ConnMaxLifetime time.Duration // 连接最大生命周期
	LogLevel        string        // 日志级别: silent, error, warn, info
}

// NewGormDatabase 创建 GORM 数据库实例
func NewGormDatabase(config *DBConfig) (*GormDatabase, error) {
	logLevel := logger.Silent
	switch config.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(config.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(
		&OptimizeRun{},
		&OptimizeTrial{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &GormDatabase{db: db}, nil
}

// CreateRun 登记一次寻优
func (g *GormDatabase) CreateRun(ctx context.Context, run *OptimizeRun) error {
	return g.db.WithContext(ctx).Create(run).Error
}

// FinishRun 回填寻优结束状态
func (g *GormDatabase) FinishRun(ctx context.Context, run *OptimizeRun) error {
	return g.db.WithContext(ctx).Model(&OptimizeRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"finished_at":   run.FinishedAt,
			"best_trial_id": run.BestTrialID,
			"best_rank":     run.BestRank,
		}).Error
}

// SaveTrial 保存单次试验结果
func (g *GormDatabase) SaveTrial(ctx context.Context, trial *OptimizeTrial) error {
	return g.db.WithContext(ctx).Create(trial).Error
}

// TopTrials 按综合排名取某次寻优的前 N 个试验
func (g *GormDatabase) TopTrials(ctx context.Context, runID uint, limit int) ([]*OptimizeTrial, error) {
	if limit <= 0 {
		limit = 10
	}
	var trials []*OptimizeTrial
	err := g.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("feasible_tier DESC, pass_years DESC, blowup_years ASC, min_year_return DESC, sum_net DESC").
		Limit(limit).
		Find(&trials).Error
	return trials, err
}

// GetRun 查询寻优记录
func (g *GormDatabase) GetRun(ctx context.Context, runID uint) (*OptimizeRun, error) {
	var run OptimizeRun
	if err := g.db.WithContext(ctx).First(&run, runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// Close 关闭数据库
func (g *GormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
