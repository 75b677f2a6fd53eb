package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EngineConfig 网格马丁决策引擎参数
// 对应 MT4 时代的 extern 输入，字段名与历史参数一一对应。
type EngineConfig struct {
	Symbol      string  `yaml:"symbol"`       // 交易品种
	Magic       int     `yaml:"magic"`        // 引擎实例标识（魔术号），只管理自己魔术号的订单
	Totals      int     `yaml:"totals"`       // 买卖合计最大持仓单数
	MaxSpread   float64 `yaml:"max_spread"`   // 最大允许点差（点）
	LeverageMin int     `yaml:"leverage_min"` // 账户最低杠杆要求

	CloseBuySell       bool  `yaml:"close_buy_sell"`       // 启用失衡对冲部分平仓
	HomeopathyCloseAll bool  `yaml:"homeopathy_close_all"` // 启用顺势全平策略
	Homeopathy         bool  `yaml:"homeopathy"`           // 启用顺势加仓开单条件
	Over               bool  `yaml:"over"`                 // 只管理存量仓位模式（空边不开首单）
	NextTime           int64 `yaml:"next_time"`            // 全平后的暂停秒数（0表示不暂停）

	Money           float64 `yaml:"money"`             // 激进模式盈利阈值（正数输入会被取负）
	FirstStep       int     `yaml:"first_step"`        // 首单挂单距离（点）
	MinDistance     int     `yaml:"min_distance"`      // 激进模式加仓距离（点）
	TwoMinDistance  int     `yaml:"two_min_distance"`  // 保守模式加仓距离（点）
	StepTrailOrders int     `yaml:"step_trail_orders"` // 挂单追踪触发距离（点）
	Step            int     `yaml:"step"`              // 激进模式网格间距（点）
	TwoStep         int     `yaml:"two_step"`          // 保守模式网格间距（点）

	OpenMode     string `yaml:"open_mode"`     // 开单节奏: bar（每K线一次）/ sleep（休眠间隔）/ always
	SleepSeconds int64  `yaml:"sleep_seconds"` // sleep 模式下距上一同向成交单的最小间隔（秒）

	MaxLoss         float64 `yaml:"max_loss"`           // 单边浮亏达到此值后停止加仓（恒为非正）
	MaxLossCloseAll float64 `yaml:"max_loss_close_all"` // 单边深度亏损判定阈值（恒为非正）
	Lot             float64 `yaml:"lot"`                // 基础手数
	MaxLot          float64 `yaml:"max_lot"`            // 单笔最大手数
	PlusLot         float64 `yaml:"plus_lot"`           // 每层线性附加手数
	KLot            float64 `yaml:"k_lot"`              // 马丁倍数
	DigitsLot       int     `yaml:"digits_lot"`         // 手数小数位

	CloseAll      float64 `yaml:"close_all"`       // 总浮盈达到此值触发全平
	ProfitByCount bool    `yaml:"profit_by_count"` // 单边止盈阈值是否按单数缩放
	StopProfit    float64 `yaml:"stop_profit"`     // 单边止盈阈值
	StopLoss      float64 `yaml:"stop_loss"`       // 总浮亏止损阈值（恒为非正，0表示禁用）

	// 禁开价格区（历史参数，first 两项仅作配置兼容保留，引擎不读取）
	OnTopNotBuyFirst    float64 `yaml:"on_top_not_buy_first"`
	OnUnderNotSellFirst float64 `yaml:"on_under_not_sell_first"`
	OnTopNotBuyAdd      float64 `yaml:"on_top_not_buy_add"`    // 此价之上不再买入加仓（0表示禁用）
	OnUnderNotSellAdd   float64 `yaml:"on_under_not_sell_add"` // 此价之下不再卖出加仓（0表示禁用）

	EAStartTime    string `yaml:"ea_start_time"`    // 每日交易窗口开始 HH:MM[:SS]
	EAStopTime     string `yaml:"ea_stop_time"`     // 每日交易窗口结束（支持跨午夜）
	LimitStartTime string `yaml:"limit_start_time"` // 禁开价格区生效窗口开始
	LimitStopTime  string `yaml:"limit_stop_time"`  // 禁开价格区生效窗口结束

	CheckMarginForAddOrders bool `yaml:"check_margin_for_add_orders"` // 加仓前检查保证金
}

// BacktestConfig 回测配置
type BacktestConfig struct {
	DataFile       string  `yaml:"data_file"`       // K线CSV文件路径（timestamp,open,high,low,close）
	InitialBalance float64 `yaml:"initial_balance"` // 初始资金
	Leverage       int     `yaml:"leverage"`        // 模拟账户杠杆
	Seed           int64   `yaml:"seed"`            // 随机种子（点差/滑点噪声）
	OutFile        string  `yaml:"out_file"`        // 回测结果JSON输出路径（可选）
}

// OptimizeConfig 参数寻优配置
type OptimizeConfig struct {
	Trials                int     `yaml:"trials"`                   // 随机搜索次数
	Seed                  int64   `yaml:"seed"`                     // 随机种子
	Years                 int     `yaml:"years"`                    // 按年切分的窗口数
	TargetYearlyReturnPct float64 `yaml:"target_yearly_return_pct"` // 目标年化收益率（%）
	OutFile               string  `yaml:"out_file"`                 // 寻优结果JSON输出路径
}

// Config 系统配置
type Config struct {
	Engine EngineConfig `yaml:"engine"`

	System struct {
		LogLevel string `yaml:"log_level"`
		Timezone string `yaml:"timezone"` // 时区，如 "UTC"、"Asia/Shanghai"
	} `yaml:"system"`

	Backtest BacktestConfig `yaml:"backtest"`
	Optimize OptimizeConfig `yaml:"optimize"`

	// 回测交易流水存储（SQLite）
	Storage struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`           // 数据库文件路径
		BufferSize    int    `yaml:"buffer_size"`    // 日志缓冲区大小（默认1000）
		FlushInterval int    `yaml:"flush_interval"` // 刷新间隔（秒，默认5）
	} `yaml:"storage"`

	// 寻优结果持久化（GORM + SQLite）
	Database struct {
		Enabled bool   `yaml:"enabled"`
		DSN     string `yaml:"dsn"` // 默认 ./data/gridquant.db
	} `yaml:"database"`

	// 监控配置
	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"` // /metrics 监听端口（默认 29090）
	} `yaml:"metrics"`
}

// DefaultConfig 返回带默认值的配置（与历史 EA 的 extern 默认一致）
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Engine = EngineConfig{
		Symbol:      "USDCHF",
		Magic:       9453,
		Totals:      50,
		MaxSpread:   32,
		LeverageMin: 100,

		CloseBuySell:       true,
		HomeopathyCloseAll: true,
		Homeopathy:         false,
		Over:               false,
		NextTime:           0,

		Money:           0,
		FirstStep:       30,
		MinDistance:     60,
		TwoMinDistance:  60,
		StepTrailOrders: 5,
		Step:            100,
		TwoStep:         100,

		OpenMode:     "always",
		SleepSeconds: 30,

		MaxLoss:         -100000,
		MaxLossCloseAll: -50,
		Lot:             0.01,
		MaxLot:          10,
		PlusLot:         0,
		KLot:            1.3,
		DigitsLot:       2,

		CloseAll:      0.5,
		ProfitByCount: true,
		StopProfit:    2,
		StopLoss:      0,

		EAStartTime:    "00:00",
		EAStopTime:     "24:00",
		LimitStartTime: "00:00",
		LimitStopTime:  "24:00",
	}

	cfg.System.LogLevel = "INFO"
	cfg.System.Timezone = "UTC"

	cfg.Backtest.InitialBalance = 10000
	cfg.Backtest.Leverage = 100
	cfg.Backtest.Seed = 20260226

	cfg.Optimize.Trials = 20
	cfg.Optimize.Seed = 20260226
	cfg.Optimize.Years = 10
	cfg.Optimize.TargetYearlyReturnPct = 100
	cfg.Optimize.OutFile = "optimize_result.json"

	cfg.Storage.Path = "./data/gridquant.db"
	cfg.Storage.BufferSize = 1000
	cfg.Storage.FlushInterval = 5

	cfg.Database.DSN = "./data/gridquant.db"

	cfg.Metrics.Port = 29090

	return cfg
}

// LoadConfig 加载配置文件（默认值之上覆盖文件内容）
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数组加载配置（用于测试和热更新）
func LoadConfigFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %v", err)
	}

	return cfg, nil
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %v", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %v", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %v", err)
	}

	return nil
}

// Validate 校验配置并做构造期规范化
//
// 规范化不变式（与历史 EA 的 init() 一致）：
//  1. 四个亏损阈值字段（max_loss、max_loss_close_all、stop_loss、money）
//     恒为非正，输入为正数时取负，重复规范化幂等；
//  2. 四个时间串中的 "24:00" 规范化为 "23:59:59"。
func (c *Config) Validate() error {
	e := &c.Engine

	if e.Symbol == "" {
		return fmt.Errorf("engine.symbol 不能为空")
	}
	if e.Lot <= 0 {
		return fmt.Errorf("engine.lot 必须大于0")
	}
	if e.MaxLot < e.Lot {
		return fmt.Errorf("engine.max_lot 不能小于 engine.lot")
	}
	if e.Totals <= 0 {
		return fmt.Errorf("engine.totals 必须大于0")
	}
	if e.DigitsLot < 0 || e.DigitsLot > 8 {
		return fmt.Errorf("engine.digits_lot 必须在 0-8 之间")
	}

	switch strings.ToLower(strings.TrimSpace(e.OpenMode)) {
	case "bar":
		e.OpenMode = "bar"
	case "sleep":
		e.OpenMode = "sleep"
	case "always", "":
		e.OpenMode = "always"
	default:
		return fmt.Errorf("engine.open_mode 无效: %s（可选 bar/sleep/always）", e.OpenMode)
	}

	// 亏损类阈值恒为非正（正数输入取负，幂等）
	if e.MaxLossCloseAll > 0 {
		e.MaxLossCloseAll = -e.MaxLossCloseAll
	}
	if e.MaxLoss > 0 {
		e.MaxLoss = -e.MaxLoss
	}
	if e.StopLoss > 0 {
		e.StopLoss = -e.StopLoss
	}
	if e.Money > 0 {
		e.Money = -e.Money
	}

	e.EAStartTime = cleanTime(e.EAStartTime)
	e.EAStopTime = cleanTime(e.EAStopTime)
	e.LimitStartTime = cleanTime(e.LimitStartTime)
	e.LimitStopTime = cleanTime(e.LimitStopTime)

	if c.Backtest.InitialBalance <= 0 {
		c.Backtest.InitialBalance = 10000
	}
	if c.Backtest.Leverage <= 0 {
		c.Backtest.Leverage = 100
	}
	if c.Optimize.Trials <= 0 {
		c.Optimize.Trials = 20
	}
	if c.Optimize.Years <= 0 {
		c.Optimize.Years = 10
	}
	if c.Storage.BufferSize <= 0 {
		c.Storage.BufferSize = 1000
	}
	if c.Storage.FlushInterval <= 0 {
		c.Storage.FlushInterval = 5
	}
	if c.Metrics.Port <= 0 {
		c.Metrics.Port = 29090
	}

	return nil
}

// cleanTime 清理时间串，"24:00" 规范化为 "23:59:59"
func cleanTime(value string) string {
	s := strings.ReplaceAll(strings.TrimSpace(value), " ", "")
	if s == "24:00" {
		return "23:59:59"
	}
	return s
}
