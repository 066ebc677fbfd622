package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Result is echoed to API clients after a booking change.
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Observer counts delivery outcomes: "sent", "failed" or "disabled".
type Observer interface {
	Notification(result string)
}

// Dispatcher composes and sends notices after a transaction has committed.
// Delivery failures are logged and reported, never returned as errors.
type Dispatcher struct {
	n        Notifier
	composer Composer
	logger   *slog.Logger
	obs      Observer
	timeout  time.Duration
}

func NewDispatcher(n Notifier, c Composer, logger *slog.Logger, obs Observer) *Dispatcher {
	if n == nil {
		n = Noop{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{n: n, composer: c, logger: logger, obs: obs, timeout: 10 * time.Second}
}

func (d *Dispatcher) Notify(ctx context.Context, a Action, b model.BookingWithSlot) Result {
	if !d.n.Enabled() {
		d.observe("disabled")
		return Result{OK: true, Reason: "disabled"}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.n.Send(ctx, d.composer.Booking(a, b)); err != nil {
		d.observe("failed")
		d.logger.Warn("notification failed", "booking_id", b.ID, "err", err)
		return Result{OK: false, Reason: err.Error()}
	}
	d.observe("sent")
	return Result{OK: true}
}

func (d *Dispatcher) observe(result string) {
	if d.obs != nil {
		d.obs.Notification(result)
	}
}
