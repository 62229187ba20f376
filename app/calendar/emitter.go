package calendar

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"teamcal-comb/app/cfg"
)

// timezoneID is fixed: the remote site schedules everything in German
// local time and the feed's wall-clock values are re-emitted against this
// zone unchanged.
const timezoneID = "Europe/Berlin"

// vtimezoneBlock is the VTIMEZONE definition embedded in every emitted
// calendar (CET/CEST transitions).
var vtimezoneBlock = []string{
	"BEGIN:VTIMEZONE",
	"TZID:" + timezoneID,
	"BEGIN:DAYLIGHT",
	"DTSTART:20240703T223210",
	"TZNAME:CEST",
	"TZOFFSETTO:+0200",
	"TZOFFSETFROM:+0200",
	"END:DAYLIGHT",
	"BEGIN:STANDARD",
	"DTSTART:20241027T020000",
	"TZNAME:CET",
	"TZOFFSETTO:+0100",
	"TZOFFSETFROM:+0200",
	"END:STANDARD",
	"BEGIN:DAYLIGHT",
	"DTSTART:20250330T030000",
	"TZNAME:CEST",
	"TZOFFSETTO:+0200",
	"TZOFFSETFROM:+0100",
	"END:DAYLIGHT",
	"BEGIN:STANDARD",
	"DTSTART:20251026T020000",
	"TZNAME:CET",
	"TZOFFSETTO:+0100",
	"TZOFFSETFROM:+0200",
	"END:STANDARD",
	"END:VTIMEZONE",
}

// Emitter serializes annotated events back into an ICS document. Emission
// is hand-written: date-times are written with their original wall-clock
// components and a TZID parameter referencing the embedded VTIMEZONE, so
// no library-side UTC normalization can shift them.
type Emitter struct{}

func NewEmitter() *Emitter {
	return &Emitter{}
}

func (e *Emitter) Run(name string, events []Event) string {
	var buf bytes.Buffer

	e.writeLine(&buf, "BEGIN:VCALENDAR")
	e.writeLine(&buf, "VERSION:2.0")
	e.writeLine(&buf, fmt.Sprintf("PRODID:-//teamcal-comb %s//Calendar Filter//EN", cfg.Get().Version))
	e.writeLine(&buf, "CALSCALE:GREGORIAN")
	e.writeLine(&buf, "METHOD:PUBLISH")
	e.writeLine(&buf, "X-WR-CALNAME:"+escapeText(name))
	e.writeLine(&buf, "X-WR-CALDESC:"+escapeText("Calendar with attendance status indicators"))
	e.writeLine(&buf, "X-WR-TIMEZONE:"+timezoneID)

	for _, line := range vtimezoneBlock {
		e.writeLine(&buf, line)
	}

	dtstamp := time.Now().UTC().Format("20060102T150405Z")
	sequence := time.Now().Unix()

	for _, event := range events {
		e.writeEvent(&buf, event, dtstamp, sequence)
	}

	e.writeLine(&buf, "END:VCALENDAR")

	return buf.String()
}

func (e *Emitter) writeEvent(buf *bytes.Buffer, event Event, dtstamp string, sequence int64) {
	e.writeLine(buf, "BEGIN:VEVENT")
	e.writeLine(buf, "UID:"+escapeText(event.UID))
	e.writeLine(buf, "DTSTAMP:"+dtstamp)
	e.writeLine(buf, fmt.Sprintf("SEQUENCE:%d", sequence))

	// Wall-clock components only; the TZID parameter binds them to the
	// embedded VTIMEZONE.
	e.writeLine(buf, fmt.Sprintf("DTSTART;TZID=%s:%s", timezoneID, event.Start.Format("20060102T150405")))
	e.writeLine(buf, fmt.Sprintf("DTEND;TZID=%s:%s", timezoneID, event.End.Format("20060102T150405")))

	e.writeLine(buf, "SUMMARY:"+escapeText(event.Summary))

	if event.Description != "" {
		e.writeLine(buf, "DESCRIPTION:"+escapeText(event.Description))
	}
	if event.Location != "" {
		e.writeLine(buf, "LOCATION:"+escapeText(event.Location))
	}
	if event.URL != "" {
		e.writeLine(buf, "URL:"+event.URL)
	}
	if event.RawStatus != "" {
		e.writeLine(buf, "STATUS:"+event.RawStatus)
	}

	e.writeLine(buf, "END:VEVENT")
}

// writeLine writes one content line with CRLF termination, folding lines
// longer than 75 octets per RFC 5545 §3.1. Folding is done on byte
// boundaries of whole runes so multi-byte emoji are never split.
func (e *Emitter) writeLine(buf *bytes.Buffer, line string) {
	const limit = 75

	octets := 0
	for _, r := range line {
		size := len(string(r))
		if octets+size > limit {
			buf.WriteString("\r\n ")
			octets = 1 // the folding space counts against the next line
		}
		buf.WriteString(string(r))
		octets += size
	}
	buf.WriteString("\r\n")
}

// escapeText escapes a TEXT property value per RFC 5545 §3.3.11.
func escapeText(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
	)
	return r.Replace(s)
}
