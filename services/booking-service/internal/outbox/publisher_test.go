package outbox_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	store := storage.NewSQLite(conn)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func appendEvents(t *testing.T, store *storage.Store, n int) {
	t.Helper()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.InTx(context.Background(), func(tx *storage.Tx) error {
		for i := 0; i < n; i++ {
			evt, err := outbox.NewBookingEvent(
				"evt-"+string(rune('a'+i)), outbox.EventBookingCreated,
				outbox.BookingPayload{BookingID: "bk-" + string(rune('a'+i)), Status: "CONFIRMED"})
			require.NoError(t, err)
			require.NoError(t, tx.AppendEvent(context.Background(), evt, at))
		}
		return nil
	}))
}

func TestPublishBatchWritesKeyedMessages(t *testing.T) {
	store := newStore(t)
	appendEvents(t, store, 3)

	w := &fakeWriter{}
	p := outbox.NewPublisher(store, w, slog.New(slog.DiscardHandler), outbox.PublisherConfig{BatchSize: 2, Topic: "events"})

	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, w.msgs, 3)
	first := w.msgs[0]
	assert.Equal(t, "events", first.Topic)
	assert.Equal(t, "bk-a", string(first.Key))
	assert.Equal(t, "evt-a", kafkax.HeaderValue(first.Headers, "event_id"))
	assert.Equal(t, outbox.EventBookingCreated, kafkax.HeaderValue(first.Headers, "event_type"))
	assert.JSONEq(t, `{"booking_id":"bk-a","slot_id":"","status":"CONFIRMED","is_paid":false,
		"start_at":"0001-01-01T00:00:00Z","end_at":"0001-01-01T00:00:00Z","occurred_at":"0001-01-01T00:00:00Z"}`,
		string(first.Value))
}

func TestPublishBatchKeepsEventsOnWriteFailure(t *testing.T) {
	store := newStore(t)
	appendEvents(t, store, 1)

	w := &fakeWriter{err: errors.New("broker down")}
	p := outbox.NewPublisher(store, w, slog.New(slog.DiscardHandler), outbox.PublisherConfig{})

	_, err := p.PublishBatch(context.Background())
	require.Error(t, err)

	w.err = nil
	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "slotbook.booking-events", w.msgs[0].Topic)
}

func TestPublishBatchCarriesStoredTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	store := newStore(t)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x01},
		SpanID:     trace.SpanID{0x0b, 0x02},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)
	evt, err := outbox.NewBookingEvent("evt-trace", outbox.EventBookingCancelled, outbox.BookingPayload{BookingID: "bk-trace"})
	require.NoError(t, err)
	require.NoError(t, store.InTx(ctx, func(tx *storage.Tx) error {
		return tx.AppendEvent(ctx, evt, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	}))

	w := &fakeWriter{}
	p := outbox.NewPublisher(store, w, slog.New(slog.DiscardHandler), outbox.PublisherConfig{})
	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	carrier := propagation.MapCarrier{"traceparent": kafkax.HeaderValue(w.msgs[0].Headers, "traceparent")}
	got := trace.SpanContextFromContext(otel.GetTextMapPropagator().Extract(context.Background(), carrier))
	assert.Equal(t, sc.TraceID(), got.TraceID())
	assert.Equal(t, sc.SpanID(), got.SpanID())
}
