package api

import (
	"teamcal-comb/app/calendar"
	"teamcal-comb/app/session"
)

type EmitterInterface interface {
	Run(name string, events []calendar.Event) string
}

var _ EmitterInterface = (*calendar.Emitter)(nil)

type Handler struct {
	provider *session.Provider
	sessions *SessionCache
	fetcher  *calendar.Fetcher
	emitter  EmitterInterface
	cache    calendar.AttendanceCache
}
