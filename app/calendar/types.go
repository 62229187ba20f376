package calendar

import (
	"time"

	"teamcal-comb/app/attendance"
)

// Event is the normalized representation of one VEVENT from the team
// calendar feed. Start/End keep the wall-clock components exactly as the
// feed delivered them; no timezone conversion happens anywhere between
// fetch and emission. The pipeline prefixes Summary with the attendance
// emoji and attaches the Result; after emission an Event is never
// mutated.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	URL         string // detail page used for attendance classification
	RawStatus   string // site-provided STATUS token (e.g. CONFIRMED)

	Start time.Time
	End   time.Time

	Attendance *attendance.Result
}
