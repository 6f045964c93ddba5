// Package metrics Prometheus sayaçları. Nil *Metrics ile tüm çağrılar no-op'tur.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	scaleExports      *prometheus.CounterVec
	scaleSkipped      prometheus.Counter
	bagDecrements     *prometheus.CounterVec
	lowStockSignals   prometheus.Counter
	deductionOutcomes *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scaleExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scale_exports_total",
			Help: "Terazi fiyat listesi aktarımları (result: succeeded, failed, busy).",
		}, []string{"result"}),
		scaleSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scale_export_skipped_total",
			Help: "Doğrulamadan geçemeyip aktarımda atlanan ürünler.",
		}),
		bagDecrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "open_bag_decrements_total",
			Help: "Açık çuval düşümleri (result: ok, insufficient, conflict, closed).",
		}, []string{"result"}),
		lowStockSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "open_bag_low_stock_signals_total",
			Help: "Eşik altına inen açık çuval sinyalleri.",
		}),
		deductionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "non_sales_deductions_total",
			Help: "Satış dışı düşüm talepleri (status: PENDING, APPROVED, REJECTED).",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.scaleExports,
		m.scaleSkipped,
		m.bagDecrements,
		m.lowStockSignals,
		m.deductionOutcomes,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ScaleExport(result string, skipped int) {
	if m == nil {
		return
	}
	m.scaleExports.WithLabelValues(result).Inc()
	m.scaleSkipped.Add(float64(skipped))
}

func (m *Metrics) BagDecrement(result string) {
	if m == nil {
		return
	}
	m.bagDecrements.WithLabelValues(result).Inc()
}

func (m *Metrics) LowStockSignal() {
	if m == nil {
		return
	}
	m.lowStockSignals.Inc()
}

func (m *Metrics) Deduction(status string) {
	if m == nil {
		return
	}
	m.deductionOutcomes.WithLabelValues(status).Inc()
}
