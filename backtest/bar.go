package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"gridquant/logger"
)

// Bar 一根K线（时间戳为秒）
type Bar struct {
	Ts    int64
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// LoadBarsCSV 从 CSV 加载K线数据
// 格式: timestamp,open,high,low,close，timestamp 为毫秒。坏行跳过，结果按时间正序。
func LoadBarsCSV(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取数据文件失败: %w", err)
	}

	var bars []Bar
	skipped := 0
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == "timestamp" {
			continue // 表头
		}
		if len(rec) < 5 {
			skipped++
			continue
		}
		ts, err1 := strconv.ParseInt(rec[0], 10, 64)
		o, err2 := strconv.ParseFloat(rec[1], 64)
		h, err3 := strconv.ParseFloat(rec[2], 64)
		l, err4 := strconv.ParseFloat(rec[3], 64)
		c, err5 := strconv.ParseFloat(rec[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			skipped++
			continue
		}
		bars = append(bars, Bar{Ts: ts / 1000, Open: o, High: h, Low: l, Close: c})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Ts < bars[j].Ts })

	if skipped > 0 {
		logger.Warn("⚠️ 数据文件 %s 跳过 %d 行坏数据", path, skipped)
	}
	logger.Info("📊 已加载 %d 根K线: %s", len(bars), path)
	return bars, nil
}
