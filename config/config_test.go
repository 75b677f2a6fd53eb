package config

import (
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置验证失败: %v", err)
	}
	if cfg.Engine.Symbol == "" {
		t.Error("默认配置应包含交易品种")
	}
	if cfg.Engine.Magic == 0 {
		t.Error("默认配置应包含魔术号")
	}
}

// TestLossFieldNormalization 亏损类阈值恒为非正，且规范化幂等
func TestLossFieldNormalization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.StopLoss = 10
	cfg.Engine.MaxLoss = 5000
	cfg.Engine.MaxLossCloseAll = 50
	cfg.Engine.Money = 100

	if err := cfg.Validate(); err != nil {
		t.Fatalf("验证失败: %v", err)
	}

	if cfg.Engine.StopLoss != -10 {
		t.Errorf("stop_loss=10 应规范化为 -10, 得到 %v", cfg.Engine.StopLoss)
	}
	if cfg.Engine.MaxLoss != -5000 {
		t.Errorf("max_loss=5000 应规范化为 -5000, 得到 %v", cfg.Engine.MaxLoss)
	}
	if cfg.Engine.MaxLossCloseAll != -50 {
		t.Errorf("max_loss_close_all=50 应规范化为 -50, 得到 %v", cfg.Engine.MaxLossCloseAll)
	}
	if cfg.Engine.Money != -100 {
		t.Errorf("money=100 应规范化为 -100, 得到 %v", cfg.Engine.Money)
	}

	// 幂等：再次验证不再变号
	if err := cfg.Validate(); err != nil {
		t.Fatalf("二次验证失败: %v", err)
	}
	if cfg.Engine.StopLoss != -10 {
		t.Errorf("二次规范化应保持 -10, 得到 %v", cfg.Engine.StopLoss)
	}
}

// TestTimeNormalization "24:00" 规范化为 "23:59:59"
func TestTimeNormalization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.EAStopTime = "24:00"
	cfg.Engine.LimitStopTime = " 24:00 "

	if err := cfg.Validate(); err != nil {
		t.Fatalf("验证失败: %v", err)
	}

	if cfg.Engine.EAStopTime != "23:59:59" {
		t.Errorf("ea_stop_time 应为 23:59:59, 得到 %s", cfg.Engine.EAStopTime)
	}
	if cfg.Engine.LimitStopTime != "23:59:59" {
		t.Errorf("limit_stop_time 应为 23:59:59, 得到 %s", cfg.Engine.LimitStopTime)
	}
}

func TestLoadConfigFromBytes(t *testing.T) {
	yamlData := []byte(`
engine:
  symbol: "EURUSD"
  magic: 777
  open_mode: "bar"
  stop_loss: 30
system:
  log_level: "DEBUG"
`)

	cfg, err := LoadConfigFromBytes(yamlData)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Engine.Symbol != "EURUSD" {
		t.Errorf("期望品种 EURUSD, 得到 %s", cfg.Engine.Symbol)
	}
	if cfg.Engine.Magic != 777 {
		t.Errorf("期望魔术号 777, 得到 %d", cfg.Engine.Magic)
	}
	if cfg.Engine.OpenMode != "bar" {
		t.Errorf("期望开单模式 bar, 得到 %s", cfg.Engine.OpenMode)
	}
	if cfg.Engine.StopLoss != -30 {
		t.Errorf("stop_loss 应规范化为 -30, 得到 %v", cfg.Engine.StopLoss)
	}

	// 未覆盖的字段保留默认值
	if cfg.Engine.Totals != 50 {
		t.Errorf("未覆盖字段应保留默认值 50, 得到 %d", cfg.Engine.Totals)
	}
	if cfg.System.LogLevel != "DEBUG" {
		t.Errorf("期望日志级别 DEBUG, 得到 %s", cfg.System.LogLevel)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Symbol = ""
	if err := cfg.Validate(); err == nil {
		t.Error("空品种应该报错")
	}

	cfg = DefaultConfig()
	cfg.Engine.Lot = 0
	if err := cfg.Validate(); err == nil {
		t.Error("手数为0应该报错")
	}

	cfg = DefaultConfig()
	cfg.Engine.OpenMode = "whatever"
	if err := cfg.Validate(); err == nil {
		t.Error("无效开单模式应该报错")
	}

	if _, err := LoadConfigFromBytes([]byte("engine: [")); err == nil {
		t.Error("非法YAML应该报错")
	}
}
