package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridquant/logger"
)

var (
	// 挂单指标
	pendingPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridquant_pending_placed_total",
			Help: "Total number of pending orders placed",
		},
		[]string{"side", "tag"},
	)

	pendingModified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridquant_pending_modified_total",
			Help: "Total number of pending order price modifications",
		},
		[]string{"side"},
	)

	// 平仓指标
	liquidationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridquant_liquidation_total",
			Help: "Total number of liquidation rounds triggered",
		},
		[]string{"scope", "result"},
	)

	partialCloseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridquant_partial_close_total",
			Help: "Total number of imbalance partial closes",
		},
		[]string{"side"},
	)

	// 账户指标
	equityGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridquant_equity",
			Help: "Current simulated account equity",
		},
	)

	balanceGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridquant_balance",
			Help: "Current simulated account balance",
		},
	)

	openOrdersGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridquant_open_orders",
			Help: "Current number of open orders",
		},
		[]string{"side"},
	)

	// tick 处理耗时
	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridquant_tick_duration_seconds",
			Help:    "Decision engine tick processing duration in seconds",
			Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1},
		},
	)
)

// RecordPendingPlaced 记录挂单
func RecordPendingPlaced(side, tag string) {
	pendingPlaced.WithLabelValues(side, tag).Inc()
}

// RecordPendingModified 记录挂单改价
func RecordPendingModified(side string) {
	pendingModified.WithLabelValues(side).Inc()
}

// RecordLiquidation 记录清仓结果
func RecordLiquidation(scope string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	liquidationTotal.WithLabelValues(scope, result).Inc()
}

// RecordPartialClose 记录失衡部分平仓
func RecordPartialClose(side string) {
	partialCloseTotal.WithLabelValues(side).Inc()
}

// UpdateAccount 更新账户指标
func UpdateAccount(balance, equity float64) {
	balanceGauge.Set(balance)
	equityGauge.Set(equity)
}

// UpdateOpenOrders 更新持仓数量指标
func UpdateOpenOrders(buys, sells int) {
	openOrdersGauge.WithLabelValues("buy").Set(float64(buys))
	openOrdersGauge.WithLabelValues("sell").Set(float64(sells))
}

// ObserveTickDuration 记录 tick 处理耗时
func ObserveTickDuration(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// StartServer 启动 /metrics HTTP 服务（非阻塞）
func StartServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	go func() {
		logger.Info("📊 Prometheus 指标服务已启动: http://localhost%s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("❌ 指标服务启动失败: %v", err)
		}
	}()
}
