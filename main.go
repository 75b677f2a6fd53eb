package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gridquant/backtest"
	"gridquant/config"
	"gridquant/database"
	"gridquant/logger"
	"gridquant/metrics"
	"gridquant/optimize"
	"gridquant/storage"
	"gridquant/utils"
)

// Version 版本号
var Version = "1.2.0"

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	mode := flag.String("mode", "backtest", "运行模式: backtest / optimize")
	showVersion := flag.Bool("version", false, "打印版本号并退出")
	flag.Parse()

	if *showVersion {
		fmt.Printf("GridQuant Decision Engine\n")
		fmt.Printf("Version: %s\n", Version)
		os.Exit(0)
	}

	// 配置文件不存在时生成默认配置，方便首次使用
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Fatalf("❌ 生成默认配置失败: %v", err)
		}
		logger.Info("✅ 已生成默认配置文件: %s，请填写 backtest.data_file 后重新运行", *configPath)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("❌ 加载配置失败: %v", err)
	}

	if err := utils.SetLocation(cfg.System.Timezone); err != nil {
		logger.Warn("⚠️ 加载时区 %s 失败: %v，将使用 UTC", cfg.System.Timezone, err)
		utils.SetLocation("UTC")
	}
	logger.SetLocation(utils.GlobalLocation)
	logger.SetLevel(logger.ParseLogLevel(cfg.System.LogLevel))

	logger.Info("🚀 GridQuant 网格马丁决策引擎启动...")
	logger.Info("📦 版本号: %s", Version)
	logger.Info("📊 运行模式: %s, 品种: %s", *mode, cfg.Engine.Symbol)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn("🛑 收到信号 %v，正在退出...", sig)
		cancel()
	}()

	// 日志落库（与回测流水共用数据目录）
	var logStorage *storage.LogStorage
	if cfg.Storage.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			logger.Warn("⚠️ 创建数据目录失败: %v", err)
		}
		logDBPath := filepath.Join(filepath.Dir(cfg.Storage.Path), "logs.db")
		logStorage, err = storage.NewLogStorage(logDBPath, cfg.Storage.BufferSize,
			time.Duration(cfg.Storage.FlushInterval)*time.Second)
		if err != nil {
			logger.Warn("⚠️ 初始化日志存储失败: %v，将继续运行但不落库日志", err)
			logStorage = nil
		} else {
			logger.InitLogStorage(func(level, message string) {
				logStorage.WriteLog(level, message)
			})
			logger.Info("✅ 日志存储已初始化: %s", logDBPath)
		}
	}
	defer func() {
		if logStorage != nil {
			logStorage.Close()
		}
		logger.Close()
	}()

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port)
	}

	// 配置热更新：运行期间仅日志级别跟随变化
	watcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		logger.SetLevel(logger.ParseLogLevel(newCfg.System.LogLevel))
	})
	if err != nil {
		logger.Warn("⚠️ 启动配置监听失败: %v", err)
	} else {
		go watcher.Start(ctx)
		defer watcher.Stop()
	}

	switch *mode {
	case "backtest":
		err = runBacktest(cfg)
	case "optimize":
		err = runOptimize(ctx, cfg)
	default:
		logger.Fatalf("❌ 未知运行模式: %s（可选 backtest / optimize）", *mode)
	}
	if err != nil {
		logger.Fatalf("💥 运行失败: %v", err)
	}
	logger.Info("✅ 运行完成")
}

// runBacktest 单次回测：加载K线 → 逐K线撮合 → 打印报告并持久化
func runBacktest(cfg *config.Config) error {
	if cfg.Backtest.DataFile == "" {
		return fmt.Errorf("backtest.data_file 未配置")
	}
	bars, err := backtest.LoadBarsCSV(cfg.Backtest.DataFile)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	bt := backtest.NewBacktester(bars, &cfg.Engine, &cfg.Backtest)
	res, err := bt.Run()
	if err != nil {
		return err
	}

	fmt.Print(backtest.FormatReport(res))

	if cfg.Backtest.OutFile != "" {
		if err := backtest.SaveResultJSON(res, cfg.Backtest.OutFile); err != nil {
			logger.Warn("⚠️ 保存回测结果失败: %v", err)
		}
	}

	if cfg.Storage.Enabled {
		if err := persistBacktest(cfg, res, startedAt); err != nil {
			logger.Warn("⚠️ 回测流水落库失败: %v", err)
		}
	}
	return nil
}

// persistBacktest 把回测概要与平仓流水写入 SQLite
func persistBacktest(cfg *config.Config, res *backtest.Result, startedAt time.Time) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	paramsJSON, err := json.Marshal(cfg.Engine)
	if err != nil {
		return fmt.Errorf("序列化引擎参数失败: %w", err)
	}

	run := &storage.BacktestRun{
		Symbol:         res.Symbol,
		DataFile:       cfg.Backtest.DataFile,
		Bars:           res.Bars,
		InitialBalance: res.InitialBalance,
		ParamsJSON:     string(paramsJSON),
		StartedAt:      startedAt,
	}
	runID, err := store.CreateRun(run)
	if err != nil {
		return err
	}

	trades := make([]*storage.BacktestTrade, 0, len(res.Trades))
	for _, t := range res.Trades {
		trades = append(trades, &storage.BacktestTrade{
			RunID:      runID,
			Ticket:     t.Ticket,
			Symbol:     res.Symbol,
			Side:       t.Side,
			Tag:        t.Tag,
			Lots:       t.Lots,
			OpenPrice:  t.OpenPrice,
			ClosePrice: t.ClosePrice,
			OpenTime:   t.OpenTime,
			CloseTime:  t.CloseTime,
			Profit:     t.Profit,
		})
	}
	if err := store.SaveTrades(runID, trades); err != nil {
		return err
	}

	run.ID = runID
	run.FinalBalance = res.FinalBalance
	run.FinalEquity = res.FinalEquity
	run.NetProfit = res.NetProfit
	run.MaxDrawdownPct = res.Metrics.MaxDrawdown
	run.TradeCount = res.ClosedTrades
	run.Blowup = res.BlewUp
	run.FinishedAt = time.Now()
	if err := store.FinishRun(run); err != nil {
		return err
	}

	logger.Info("💾 回测流水已落库: run_id=%d, 交易=%d 笔", runID, len(trades))
	return nil
}

// runOptimize 参数寻优：按年切分窗口 → 随机搜索 → 输出报告
func runOptimize(ctx context.Context, cfg *config.Config) error {
	if cfg.Backtest.DataFile == "" {
		return fmt.Errorf("backtest.data_file 未配置")
	}
	bars, err := backtest.LoadBarsCSV(cfg.Backtest.DataFile)
	if err != nil {
		return err
	}

	yearly := optimize.SplitYearWindows(bars, cfg.Optimize.Years)
	if len(yearly) == 0 {
		return fmt.Errorf("K线数据不足以切分年度窗口")
	}
	logger.Info("📊 年度窗口: %d 个, 试验次数: %d", len(yearly), cfg.Optimize.Trials)

	searcher := optimize.NewSearcher(&cfg.Engine, &cfg.Backtest, &cfg.Optimize, yearly)

	if cfg.Database.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			logger.Warn("⚠️ 创建数据目录失败: %v", err)
		}
		db, err := database.NewGormDatabase(&database.DBConfig{
			DSN:      cfg.Database.DSN,
			LogLevel: "warn",
		})
		if err != nil {
			logger.Warn("⚠️ 初始化寻优数据库失败: %v，试验结果将不持久化", err)
		} else {
			searcher.SetDatabase(db)
			defer db.Close()
		}
	}

	res, err := searcher.Search(ctx)
	if err != nil {
		return err
	}

	if cfg.Optimize.OutFile != "" {
		if err := optimize.SaveReport(res, cfg.Backtest.DataFile,
			cfg.Optimize.TargetYearlyReturnPct, cfg.Optimize.OutFile); err != nil {
			return err
		}
	}
	return nil
}
