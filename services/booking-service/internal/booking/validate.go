package booking

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const (
	maxPlayerName  = 80
	maxDiscordID   = 80
	maxIdentityVID = 120
	maxNotes       = 1000
)

// BookingInput is a booking request as received from the public form.
type BookingInput struct {
	SlotID      string `json:"slotId"`
	BookingType string `json:"bookingType"`
	PlayerName  string `json:"playerName"`
	DiscordID   string `json:"discordId"`
	IdentityVID string `json:"identityVId"`
	Notes       string `json:"notes"`
}

// validBooking holds the normalized fields of an accepted BookingInput.
type validBooking struct {
	slotID      string
	bookingType model.BookingType
	playerName  string
	discordID   string
	identityVID string
	notes       string
}

// validate trims every field and checks bounds. It runs before any
// transaction is opened.
func (in BookingInput) validate() (validBooking, error) {
	v := validBooking{
		slotID:      strings.TrimSpace(in.SlotID),
		playerName:  strings.TrimSpace(in.PlayerName),
		discordID:   strings.TrimSpace(in.DiscordID),
		identityVID: strings.TrimSpace(in.IdentityVID),
		notes:       strings.TrimSpace(in.Notes),
	}

	var problems []string
	if v.slotID == "" {
		problems = append(problems, "slotId is required")
	}
	bt, ok := model.ParseBookingType(in.BookingType)
	if !ok {
		problems = append(problems, "bookingType must be COACHING or PRACTICE")
	}
	v.bookingType = bt
	problems = checkLen(problems, "playerName", v.playerName, 1, maxPlayerName)
	problems = checkLen(problems, "discordId", v.discordID, 0, maxDiscordID)
	problems = checkLen(problems, "identityVId", v.identityVID, 1, maxIdentityVID)
	problems = checkLen(problems, "notes", v.notes, 0, maxNotes)
	if len(problems) > 0 {
		return validBooking{}, ErrInvalidPayload.wrap(fieldErrors(problems))
	}

	if v.bookingType == model.BookingCoaching && v.discordID == "" {
		return validBooking{}, ErrDiscordRequired
	}
	return v, nil
}

func checkLen(problems []string, field, value string, minLen, maxLen int) []string {
	n := utf8.RuneCountInString(value)
	switch {
	case n < minLen && minLen == 1:
		return append(problems, field+" is required")
	case n < minLen:
		return append(problems, field+" is too short")
	case n > maxLen:
		return append(problems, field+" is too long")
	}
	return problems
}

// fieldErrors lists every rejected field.
type fieldErrors []string

func (f fieldErrors) Error() string { return strings.Join(f, "; ") }

// Fields returns the problems attached to an invalid_payload error.
func Fields(err error) []string {
	var f fieldErrors
	if errors.As(err, &f) {
		return f
	}
	return nil
}

// ValidToken reports whether s looks like an issued cancel token.
func ValidToken(s string) bool {
	_, err := uuid.Parse(strings.TrimSpace(s))
	return err == nil
}
