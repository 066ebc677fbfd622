// Package booking implements slot allocation and the booking lifecycle on top
// of the transactional store.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

// Store runs fn inside one database transaction.
type Store interface {
	InTx(ctx context.Context, fn func(*storage.Tx) error) error
}

// Recorder receives operation counts. All methods must be safe for
// concurrent use.
type Recorder interface {
	BookingCreated(status model.BookingStatus)
	BookingRejected(code string)
	BookingCancelled()
	PaymentConfirmed()
	SlotsCreated(n int)
	SlotsDeleted(n int)
}

type nopRecorder struct{}

func (nopRecorder) BookingCreated(model.BookingStatus) {}
func (nopRecorder) BookingRejected(string)             {}
func (nopRecorder) BookingCancelled()                  {}
func (nopRecorder) PaymentConfirmed()                  {}
func (nopRecorder) SlotsCreated(int)                   {}
func (nopRecorder) SlotsDeleted(int)                   {}

type Options struct {
	// Location is the local zone for alignment, labels and default ranges.
	Location *time.Location
	// SlotStep is the alignment required by CreateSlot. Defaults to 10 minutes.
	SlotStep time.Duration
	// RecordEvents writes booking events to the outbox.
	RecordEvents bool
	Now          func() time.Time
	NewID        func() string
	Logger       *slog.Logger
	Recorder     Recorder
}

type Service struct {
	store        Store
	loc          *time.Location
	step         time.Duration
	recordEvents bool
	now          func() time.Time
	newID        func() string
	logger       *slog.Logger
	rec          Recorder
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:        store,
		loc:          opts.Location,
		step:         opts.SlotStep,
		recordEvents: opts.RecordEvents,
		now:          opts.Now,
		newID:        opts.NewID,
		logger:       opts.Logger,
		rec:          opts.Recorder,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.step <= 0 {
		s.step = 10 * time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

// clock returns the current instant in UTC truncated to whole seconds.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// storeErr wraps unexpected storage failures; domain errors pass through.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindServer, Code: "server_error", Message: "サーバーでエラーが発生しました。", Err: err}
}
