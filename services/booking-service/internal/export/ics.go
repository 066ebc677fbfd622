package export

import (
	"bufio"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	icsTime   = "20060102T150405Z"
	icsProdID = "-//slotbook//booking-service//JA"
)

type Event struct {
	UID         string
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
	URL         string
}

// Events turns active bookings into calendar events.
func Events(rows []Row, summary func(Row) string) []Event {
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		if !r.Active {
			continue
		}
		out = append(out, Event{
			UID:         r.BookingID + "@slotbook",
			Start:       r.Start,
			End:         r.End,
			Summary:     summary(r),
			Description: strings.TrimSpace(r.PlayerName + "\n" + r.Notes),
		})
	}
	return out
}

// WriteICS writes a VCALENDAR with one VEVENT per event. Times are UTC.
func WriteICS(w io.Writer, events []Event, stamp time.Time) error {
	bw := bufio.NewWriter(w)
	line := func(s string) { writeFolded(bw, s) }

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:" + icsProdID)
	line("CALSCALE:GREGORIAN")
	line("METHOD:PUBLISH")
	for _, e := range events {
		line("BEGIN:VEVENT")
		line("UID:" + escapeText(e.UID))
		line("DTSTAMP:" + stamp.UTC().Format(icsTime))
		line("DTSTART:" + e.Start.UTC().Format(icsTime))
		line("DTEND:" + e.End.UTC().Format(icsTime))
		line("SUMMARY:" + escapeText(e.Summary))
		if e.Description != "" {
			line("DESCRIPTION:" + escapeText(e.Description))
		}
		if e.URL != "" {
			line("URL:" + e.URL)
		}
		line("END:VEVENT")
	}
	line("END:VCALENDAR")
	return bw.Flush()
}

var textEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)

func escapeText(s string) string { return textEscaper.Replace(s) }

// writeFolded splits content lines longer than 75 octets without breaking
// a UTF-8 sequence; continuation lines start with a space.
func writeFolded(w *bufio.Writer, s string) {
	limit := 75
	for len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		_, _ = w.WriteString(s[:cut])
		_, _ = w.WriteString("\r\n ")
		s = s[cut:]
		limit = 74
	}
	_, _ = w.WriteString(s)
	_, _ = w.WriteString("\r\n")
}
