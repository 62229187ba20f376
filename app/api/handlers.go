package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"teamcal-comb/app/attendance"
	"teamcal-comb/app/calendar"
	"teamcal-comb/app/cfg"
	"teamcal-comb/app/session"
)

const authRealm = `Basic realm="SpielerPlus Calendar Filter"`

func NewHandler(provider *session.Provider, sessions *SessionCache,
	fetcher *calendar.Fetcher, cache calendar.AttendanceCache) *Handler {
	return &Handler{
		provider: provider,
		sessions: sessions,
		fetcher:  fetcher,
		emitter:  calendar.NewEmitter(),
		cache:    cache,
	}
}

// GetCalendar serves the filtered, emoji-annotated ICS feed for one
// subscription token. Site credentials arrive via HTTP Basic Auth; the
// subscription token and user id identify the upstream feed.
func (h *Handler) GetCalendar(c *gin.Context) {
	username, password, ok := c.Request.BasicAuth()
	if !ok || username == "" {
		c.Header("WWW-Authenticate", authRealm)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Authentication required",
			"message": "Please provide your SpielerPlus username and password",
		})
		return
	}

	token := c.Param("token")
	userParam := c.Query("u")
	teamName := c.DefaultQuery("name", "Team Calendar")
	showNotNominated := c.Query("showNotNominated") == "true"

	if userParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Missing user parameter",
			"message": "Please include the user parameter: ?u=YOUR_USER_ID",
		})
		return
	}

	appCfg := cfg.Get()
	feedURL := fmt.Sprintf("%s/events/ics?t=%s&u=%s",
		appCfg.SiteBaseUrl, url.QueryEscape(token), url.QueryEscape(userParam))

	userKey := username + ":" + token
	sess := h.sessions.Get(userKey)
	if sess == nil {
		fresh, err := h.provider.Authenticate(c.Request.Context(), username, password)
		if err != nil {
			var authErr *session.AuthError
			if errors.As(err, &authErr) {
				slog.Warn("Login rejected", "reason", authErr.Reason)
				c.Header("WWW-Authenticate", authRealm)
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "Authentication failed",
					"message": "Invalid SpielerPlus username or password",
				})
				return
			}
			slog.Error("Login failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to reach SpielerPlus"})
			return
		}
		sess = fresh
		h.sessions.Set(userKey, sess)
	}

	events, err := h.fetcher.Run(c.Request.Context(), feedURL, username, password)
	if err != nil {
		slog.Error("Calendar fetch failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to fetch calendar",
			"details": "The upstream calendar feed could not be retrieved",
		})
		return
	}

	classifier := attendance.NewClassifier(sess, attendance.DefaultRetryPolicy(),
		time.Duration(appCfg.RequestTimeout)*time.Second)
	pipeline := calendar.NewPipeline(classifier, h.cache, userKey,
		time.Duration(appCfg.PacingDelay)*time.Second)

	processed := pipeline.Run(c.Request.Context(), events, showNotNominated)

	// A page-level auth failure on every event means the cached session
	// went stale; drop it so the next poll re-authenticates.
	if allAuthFailed(processed) {
		h.sessions.Drop(userKey)
	}

	ics := h.emitter.Run(teamName, processed)

	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="filtered-calendar.ics"`)
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Header("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	c.Header("Vary", "Authorization")
	c.Header("X-Calendar-Events", fmt.Sprintf("%d", len(processed)))

	c.String(http.StatusOK, ics)
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"sessions":  h.sessions.Len(),
	})
}

func allAuthFailed(events []calendar.Event) bool {
	if len(events) == 0 {
		return false
	}
	checked := 0
	for _, event := range events {
		if event.Attendance == nil || event.URL == "" {
			continue
		}
		checked++
		if event.Attendance.Status != attendance.StatusAuthFailed {
			return false
		}
	}
	return checked > 0
}
