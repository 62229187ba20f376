package calendar

import (
	"context"
	"log/slog"
	"time"

	"teamcal-comb/app/attendance"
	"teamcal-comb/app/logging"
)

type ClassifierInterface interface {
	Run(ctx context.Context, eventURL string) attendance.Result
}

var _ ClassifierInterface = (*attendance.Classifier)(nil)

// AttendanceCache lets the pipeline reuse recent classification results
// instead of re-scraping an event page on every calendar-app poll. A nil
// cache disables reuse.
type AttendanceCache interface {
	Lookup(userKey, eventURL string) (*attendance.Result, error)
	Store(userKey, eventURL string, result attendance.Result) error
}

// Pipeline sequences per-event classification, merges results into the
// event set, and applies nomination-based filtering. Classification is
// strictly sequential with a fixed pacing delay between consecutive
// scrapes; the remote site rate-limits aggressively and one in-flight
// request is the politeness contract, not a performance ceiling.
type Pipeline struct {
	classifier ClassifierInterface
	cache      AttendanceCache
	userKey    string
	pacing     time.Duration
}

func NewPipeline(classifier ClassifierInterface, cache AttendanceCache, userKey string, pacing time.Duration) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		cache:      cache,
		userKey:    userKey,
		pacing:     pacing,
	}
}

// Run annotates each event with its attendance result and emoji-prefixed
// summary, preserving the fetcher's event order. Events without a detail
// URL are assumed attending without any network call. Events the user is
// not nominated for are dropped unless showNotNominated is set.
func (p *Pipeline) Run(ctx context.Context, events []Event, showNotNominated bool) []Event {
	processed := make([]Event, 0, len(events))
	scraped := false

	for _, event := range events {
		var result attendance.Result

		switch {
		case event.URL == "":
			result = attendance.Attending()
		case p.lookupCached(event.URL, &result):
			// Fresh cached result; no fetch, no pacing.
		default:
			if scraped {
				p.pace(ctx)
			}
			result = p.classify(ctx, event.URL)
			scraped = true
			p.storeCached(event.URL, result)
		}

		event.Summary = result.Emoji() + " " + event.Summary
		event.Attendance = &result

		if !result.Nominated && !showNotNominated {
			continue
		}
		processed = append(processed, event)
	}

	return processed
}

// classify contains any classifier failure: a panic degrades the single
// event to no_response instead of aborting the remaining events.
func (p *Pipeline) classify(ctx context.Context, eventURL string) (result attendance.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Classification failed, degrading to no response", "url", logging.RedactURL(eventURL), "panic", r)
			result = attendance.NoResponse()
		}
	}()
	return p.classifier.Run(ctx, eventURL)
}

func (p *Pipeline) lookupCached(eventURL string, result *attendance.Result) bool {
	if p.cache == nil {
		return false
	}
	cached, err := p.cache.Lookup(p.userKey, eventURL)
	if err != nil {
		slog.Warn("Attendance cache lookup failed", "url", logging.RedactURL(eventURL), "error", err)
		return false
	}
	if cached == nil {
		return false
	}
	*result = *cached
	return true
}

func (p *Pipeline) storeCached(eventURL string, result attendance.Result) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Store(p.userKey, eventURL, result); err != nil {
		slog.Warn("Attendance cache store failed", "url", logging.RedactURL(eventURL), "error", err)
	}
}

func (p *Pipeline) pace(ctx context.Context) {
	if p.pacing <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(p.pacing):
	}
}
