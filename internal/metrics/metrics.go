package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the stock worker.
type Metrics struct {
	registry *prometheus.Registry

	ReservationsAccepted prometheus.Counter
	ReservationsRejected *prometheus.CounterVec
	HoldsReleased        prometheus.Counter
	HoldsConfirmed       prometheus.Counter
	HoldsCancelled       prometheus.Counter
	DeadLetters          prometheus.Counter
	SweepDuration        prometheus.Histogram
	AvailableQty         *prometheus.GaugeVec
}

// New creates the metric set on its own registry, alongside the standard
// Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		ReservationsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "reservations_accepted_total",
			Help:      "Reservation requests that resulted in a hold.",
		}),
		ReservationsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "reservations_rejected_total",
			Help:      "Reservation requests rejected, by reason.",
		}, []string{"reason"}),
		HoldsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "holds_released_total",
			Help:      "Holds returned to available stock by the expiry sweeper.",
		}),
		HoldsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "holds_confirmed_total",
			Help:      "Holds converted into permanent deductions.",
		}),
		HoldsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "holds_cancelled_total",
			Help:      "Holds cancelled before expiry.",
		}),
		DeadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "dead_letters_total",
			Help:      "Messages routed to the dead-letter topic.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stock",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiry sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		AvailableQty: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stock",
			Name:      "available_quantity",
			Help:      "Current available quantity per item.",
		}, []string{"item_id"}),
	}

	registry.MustRegister(
		m.ReservationsAccepted,
		m.ReservationsRejected,
		m.HoldsReleased,
		m.HoldsConfirmed,
		m.HoldsCancelled,
		m.DeadLetters,
		m.SweepDuration,
		m.AvailableQty,
	)

	return m
}

// ObserveAvailability records the post-mutation available quantity.
func (m *Metrics) ObserveAvailability(itemID, availableQty int) {
	m.AvailableQty.WithLabelValues(strconv.Itoa(itemID)).Set(float64(availableQty))
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
