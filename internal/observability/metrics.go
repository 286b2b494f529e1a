package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	CheckoutOrders   *prometheus.CounterVec
	Reservations     *prometheus.CounterVec
	SettlementEvents *prometheus.CounterVec
	AmountMismatches prometheus.Counter
	Redemptions      *prometheus.CounterVec
	UseCaseDuration  *prometheus.HistogramVec
}

// NewMetrics registers the pipeline's collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_orders_total",
			Help: "Order creation attempts by outcome.",
		}, []string{"outcome"}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_reservations_total",
			Help: "Inventory reservations by outcome.",
		}, []string{"outcome"}),
		SettlementEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_events_total",
			Help: "Payment events handled by the settlement coordinator.",
		}, []string{"kind", "outcome"}),
		AmountMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_amount_mismatch_total",
			Help: "Settled captures whose amount differed from the order total.",
		}),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "download_redemptions_total",
			Help: "Digital download redemptions by outcome.",
		}, []string{"outcome"}),
		UseCaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usecase_duration_seconds",
			Help:    "Duration of pipeline use cases.",
			Buckets: prometheus.DefBuckets,
		}, []string{"use_case"}),
	}
	reg.MustRegister(m.CheckoutOrders, m.Reservations, m.SettlementEvents, m.AmountMismatches, m.Redemptions, m.UseCaseDuration)
	return m
}

func (m *Metrics) ObserveUseCase(useCase string, start time.Time) {
	m.UseCaseDuration.WithLabelValues(useCase).Observe(time.Since(start).Seconds())
}
