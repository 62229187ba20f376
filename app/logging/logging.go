// Package logging configures the process-wide slog logger and provides
// redaction helpers for values that may carry credentials. Calendar feed
// URLs embed the subscription token and user id, and request handling
// touches passwords and session cookies; none of those may reach the log
// output in clear text.
package logging

import (
	"log/slog"
	"os"
	"regexp"
)

func Setup(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

var (
	tokenParamRe = regexp.MustCompile(`([?&]t=)[^&]+`)
	userParamRe  = regexp.MustCompile(`([?&]u=)[^&]+`)
	identityRe   = regexp.MustCompile(`(_identity=)[^;]+`)
	sessionIDRe  = regexp.MustCompile(`(PHPSESSID=|SID=)[^;]+`)
)

// RedactURL masks the subscription token and user id query parameters so
// feed URLs can be logged without leaking calendar credentials.
func RedactURL(u string) string {
	u = tokenParamRe.ReplaceAllString(u, "${1}***")
	u = userParamRe.ReplaceAllString(u, "${1}***")
	return u
}

// RedactCookies masks session cookie values, keeping only the cookie names
// so cookie traffic stays debuggable.
func RedactCookies(cookieHeader string) string {
	cookieHeader = identityRe.ReplaceAllString(cookieHeader, "${1}***")
	return sessionIDRe.ReplaceAllString(cookieHeader, "${1}***")
}
