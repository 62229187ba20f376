package attendance

// Status is the user's inferred participation state for one event.
type Status string

const (
	StatusAttending    Status = "attending"
	StatusNotAttending Status = "not_attending"
	StatusMaybe        Status = "maybe"
	StatusNoResponse   Status = "no_response"
	StatusNotNominated Status = "not_nominated"
	StatusAuthFailed   Status = "auth_failed"
)

var statusEmoji = map[Status]string{
	StatusAttending:    "👍",
	StatusNotAttending: "👎",
	StatusMaybe:        "❓",
	StatusNoResponse:   "🤷",
	StatusNotNominated: "❌",
	StatusAuthFailed:   "🔒",
}

// Result is the outcome of classifying one event page. Construct values
// through the package constructors so the Nominated/Attending/Status
// invariants hold; a Result is never modified after construction.
type Result struct {
	Nominated bool
	Attending bool
	Status    Status
}

// Emoji returns the marker for the result's status. The mapping is a
// fixed bijection; every Status has exactly one emoji.
func (r Result) Emoji() string {
	return statusEmoji[r.Status]
}

func Attending() Result {
	return Result{Nominated: true, Attending: true, Status: StatusAttending}
}

func NotAttending() Result {
	return Result{Nominated: true, Status: StatusNotAttending}
}

func Maybe() Result {
	return Result{Nominated: true, Status: StatusMaybe}
}

func NoResponse() Result {
	return Result{Nominated: true, Status: StatusNoResponse}
}

func NotNominated() Result {
	return Result{Status: StatusNotNominated}
}

func AuthFailed() Result {
	return Result{Nominated: true, Status: StatusAuthFailed}
}
