package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"teamcal-comb/app/logging"
)

// FetchError indicates the calendar feed could not be retrieved or
// parsed. It is fatal for the whole request.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch calendar %s: %v", logging.RedactURL(e.URL), e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves the user's raw ICS feed and parses it into Event
// records, preserving the feed's event order.
type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

func NewFetcher(userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{},
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Run fetches feedURL with HTTP Basic credentials and parses the ICS
// payload. Absence bookkeeping entries (UIDs containing "absence") are
// not real events and are skipped.
func (f *Fetcher) Run(ctx context.Context, feedURL, username, password string) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: feedURL, Err: fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}

	events, err := parseICS(body)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}

	slog.Debug("Calendar feed fetched", "url", logging.RedactURL(feedURL), "events", len(events))

	return events, nil
}

func parseICS(body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ICS: %w", err)
	}

	events := make([]Event, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		event, err := parseVEvent(ve)
		if err != nil {
			// Skip the broken VEVENT but keep parsing the rest.
			slog.Warn("Skipping unparseable event", "error", err)
			continue
		}
		if strings.Contains(event.UID, "absence") {
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

func parseVEvent(ve *ical.VEvent) (Event, error) {
	var event Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return event, fmt.Errorf("missing UID")
	}
	event.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		event.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		event.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		event.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		event.URL = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		event.RawStatus = p.Value
	}

	// GetStartAt/GetEndAt apply the feed's VTIMEZONE/TZID information, so
	// the wall-clock components of the returned times are the feed's own.
	start, err := ve.GetStartAt()
	if err != nil {
		return event, fmt.Errorf("event %s: missing or invalid DTSTART: %w", event.UID, err)
	}
	event.Start = start

	if end, err := ve.GetEndAt(); err == nil {
		event.End = end
	} else {
		event.End = start
	}

	return event, nil
}
