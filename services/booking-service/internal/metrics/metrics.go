// Package metrics exposes booking counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const namespace = "slotbook"

// Booking implements booking.Recorder, notify.Observer and the rate limit
// hook on its own registry.
type Booking struct {
	reg *prometheus.Registry

	bookings      *prometheus.CounterVec
	conflicts     prometheus.Counter
	cancellations prometheus.Counter
	payments      prometheus.Counter
	slotsCreated  prometheus.Counter
	slotsDeleted  prometheus.Counter
	rateLimited   *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func New() *Booking {
	m := &Booking{
		reg: prometheus.NewRegistry(),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by result (booking status on success, error code otherwise).",
		}, []string{"result"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Booking attempts that lost a slot to another booking.",
		}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_cancellations_total",
			Help:      "Bookings cancelled by token.",
		}),
		payments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_confirmed_total",
			Help:      "Paid bookings confirmed by an administrator.",
		}),
		slotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_created_total",
			Help:      "Slots inserted by single or bulk create.",
		}),
		slotsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_deleted_total",
			Help:      "Slots removed by single or bulk delete.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit policy.",
		}, []string{"policy"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Webhook notifications by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		m.bookings, m.conflicts, m.cancellations, m.payments,
		m.slotsCreated, m.slotsDeleted, m.rateLimited, m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Booking) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Booking) BookingCreated(status model.BookingStatus) {
	m.bookings.WithLabelValues(string(status)).Inc()
}

func (m *Booking) BookingRejected(code string) {
	if code == "" {
		code = "server_error"
	}
	m.bookings.WithLabelValues(code).Inc()
	switch code {
	case "slot_not_available", "duplicate_booking":
		m.conflicts.Inc()
	}
}

func (m *Booking) BookingCancelled() { m.cancellations.Inc() }
func (m *Booking) PaymentConfirmed() { m.payments.Inc() }

func (m *Booking) SlotsCreated(n int) { m.slotsCreated.Add(float64(n)) }
func (m *Booking) SlotsDeleted(n int) { m.slotsDeleted.Add(float64(n)) }

func (m *Booking) RateLimited(policy string) { m.rateLimited.WithLabelValues(policy).Inc() }

func (m *Booking) Notification(result string) { m.notifications.WithLabelValues(result).Inc() }
