package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gridquant/logger"
)

// FormatReport 生成控制台回测报告
func FormatReport(res *Result) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "=== %s 网格马丁回测 (M5) ===\n", res.Symbol)
	fmt.Fprintf(&sb, "Period (UTC): %s -> %s\n", res.StartUTC, res.EndUTC)
	fmt.Fprintf(&sb, "Bars: %d\n", res.Bars)
	fmt.Fprintf(&sb, "Execution model: dynamic spread + size/volatility slippage\n")
	fmt.Fprintf(&sb, "Initial balance: %.2f\n", res.InitialBalance)
	fmt.Fprintf(&sb, "Final balance: %.2f\n", res.FinalBalance)
	fmt.Fprintf(&sb, "Net profit: %.2f\n", res.NetProfit)
	fmt.Fprintf(&sb, "Closed trades: %d\n", res.ClosedTrades)
	fmt.Fprintf(&sb, "Win rate: %.2f%%\n", res.Metrics.WinRate)
	fmt.Fprintf(&sb, "Avg win: %.2f\n", res.Metrics.AvgWin)
	fmt.Fprintf(&sb, "Avg loss: %.2f\n", res.Metrics.AvgLoss)
	fmt.Fprintf(&sb, "Profit factor: %.3f\n", res.Metrics.ProfitFactor)
	fmt.Fprintf(&sb, "Max drawdown: %.2f%%\n", res.Metrics.MaxDrawdown)
	fmt.Fprintf(&sb, "Sharpe ratio: %.3f\n", res.Metrics.SharpeRatio)
	fmt.Fprintf(&sb, "Average spread: %.3f pips\n", res.AvgSpreadPips)
	if res.BlewUp {
		fmt.Fprintf(&sb, "Blowup: %s\n", res.BlowupTimeUTC)
	}

	return sb.String()
}

// SaveResultJSON 把回测结果写成 JSON 文件
func SaveResultJSON(res *Result, path string) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化回测结果失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入回测结果失败: %w", err)
	}
	logger.Info("💾 回测结果已保存: %s", path)
	return nil
}
