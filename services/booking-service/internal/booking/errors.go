package booking

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindServer Kind = iota
	KindInvalidInput
	KindNotFound
	KindRangeConflict
	KindDuplicateBooking
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindRangeConflict:
		return "range_conflict"
	case KindDuplicateBooking:
		return "duplicate_booking"
	case KindConflict:
		return "conflict"
	}
	return "server_error"
}

// Error is a domain failure with a stable machine-readable Code and a
// message fit for end users.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can compare against the package variables.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy carrying a more specific message.
func (e *Error) With(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

func (e *Error) wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// IsConflict reports contention errors: the caller should refresh its view
// instead of retrying the same request.
func IsConflict(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindDuplicateBooking, KindRangeConflict:
		return true
	}
	return false
}

// KindOf returns KindServer for errors that are not *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

var (
	ErrInvalidPayload   = &Error{Kind: KindInvalidInput, Code: "invalid_payload", Message: "入力内容を確認してください。"}
	ErrDiscordRequired  = &Error{Kind: KindInvalidInput, Code: "discord_required", Message: "コーチング予約には Discord ID が必要です。"}
	ErrInvalidRange     = &Error{Kind: KindInvalidInput, Code: "range_error", Message: "開始日時は終了日時より前にしてください。"}
	ErrInvalidTime      = &Error{Kind: KindInvalidInput, Code: "time_error", Message: "開始時刻は終了時刻より前にしてください。"}
	ErrMisaligned       = &Error{Kind: KindInvalidInput, Code: "step_error", Message: "開始・終了時刻は刻みに揃えてください。"}
	ErrNoSlots          = &Error{Kind: KindInvalidInput, Code: "no_slots", Message: "条件に一致する枠がありませんでした。"}
	ErrEmptyIDs         = &Error{Kind: KindInvalidInput, Code: "empty_ids", Message: "削除する枠を選択してください。"}
	ErrSlotNotFound     = &Error{Kind: KindNotFound, Code: "slot_not_found", Message: "選択した枠が見つかりませんでした。"}
	ErrBookingNotFound  = &Error{Kind: KindNotFound, Code: "booking_not_found", Message: "予約が見つかりませんでした。"}
	ErrRangeConflict    = &Error{Kind: KindRangeConflict, Code: "range_conflict", Message: "既存の枠と時間が重なっています。"}
	ErrSlotNotAvailable = &Error{Kind: KindConflict, Code: "slot_not_available", Message: "この枠は予約できません。"}
	ErrDuplicateBooking = &Error{Kind: KindDuplicateBooking, Code: "duplicate_booking", Message: "この枠はすでに予約されています。"}
	ErrBookingCancelled = &Error{Kind: KindConflict, Code: "booking_cancelled", Message: "キャンセル済みの予約は確定できません。"}
	ErrSlotHasBooking   = &Error{Kind: KindConflict, Code: "slot_has_booking", Message: "予約が入っている枠は変更できません。"}
	ErrNotPaidSlot      = &Error{Kind: KindInvalidInput, Code: "not_paid_slot", Message: "無料枠の予約は入金確認の対象外です。"}
)
