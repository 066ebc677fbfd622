package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type Action int

const (
	ActionBooked Action = iota
	ActionCancelled
	ActionPaymentConfirmed
)

func (a Action) headline() string {
	switch a {
	case ActionCancelled:
		return "🗑️ 予約がキャンセルされました"
	case ActionPaymentConfirmed:
		return "💴 入金を確認しました"
	}
	return "📅 予約が入りました"
}

// Composer renders booking notices. Times are shown in Location.
type Composer struct {
	BaseURL   string
	Location  *time.Location
	PaidPrice int
}

func (c Composer) Booking(a Action, b model.BookingWithSlot) string {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	base := strings.TrimRight(c.BaseURL, "/")

	lines := []string{
		a.headline(),
		"種類: " + b.BookingType.Label(),
		"ステータス: " + string(model.NormalizeBookingStatus(string(b.Status))),
		"名前: " + b.PlayerName,
		"Discord: " + orDash(b.DiscordID),
		"Identity V ID: " + b.IdentityVID,
		"メモ: " + orDash(b.Notes),
		"開始: " + formatTime(b.Slot.StartAt, loc),
		"終了: " + formatTime(b.Slot.EndAt, loc),
	}
	if b.Slot.IsPaidSlot {
		lines = append(lines, "支払い区分: 有料枠")
		if c.PaidPrice > 0 {
			lines = append(lines, "金額: ¥"+groupThousands(c.PaidPrice))
		}
	} else {
		lines = append(lines, "支払い区分: 無料枠")
	}
	if a != ActionCancelled {
		lines = append(lines, fmt.Sprintf("キャンセルURL: %s/cancel?token=%s", base, b.CancelToken))
	}
	lines = append(lines, fmt.Sprintf("管理画面: %s/admin?focus=%s", base, b.ID))
	return strings.Join(lines, "\n")
}

func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02 15:04 MST")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func groupThousands(n int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return "-" + groupThousands(-n)
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
