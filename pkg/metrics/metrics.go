// Package metrics 提供 Prometheus helper，包含 HTTP 指标与账务业务指标
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/cryptocustody/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数（按方法、路径、状态码）
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 已批准的充值数
	DepositsApproved prometheus.Counter
	// 已执行的交易数
	TradesExecuted prometheus.Counter
	// 站内划转数
	InternalTransfers prometheus.Counter
	// 外部提现请求数
	ExternalWithdrawals prometheus.Counter
	// 已支付的推荐佣金数
	CommissionsPaid prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "custody",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		DepositsApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: serviceName,
			Name:      "deposits_approved_total",
			Help:      "Total deposits settled",
		}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: serviceName,
			Name:      "trades_executed_total",
			Help:      "Total trades executed",
		}),
		InternalTransfers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: serviceName,
			Name:      "internal_transfers_total",
			Help:      "Total internal transfers settled",
		}),
		ExternalWithdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: serviceName,
			Name:      "external_withdrawals_total",
			Help:      "Total external withdrawal requests recorded",
		}),
		CommissionsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: serviceName,
			Name:      "commissions_paid_total",
			Help:      "Total referral commissions paid",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DepositsApproved,
		m.TradesExecuted,
		m.InternalTransfers,
		m.ExternalWithdrawals,
		m.CommissionsPaid,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()
}
