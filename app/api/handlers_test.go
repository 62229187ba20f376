package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"teamcal-comb/app/calendar"
	"teamcal-comb/app/cfg"
	"teamcal-comb/app/session"
)

func setupTestConfig(siteBaseURL string) {
	// Clear os.Args to prevent config parsing from failing
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	if siteBaseURL != "" {
		os.Setenv("SITE_BASE_URL", siteBaseURL)
	}
	os.Setenv("PACING_DELAY", "0")
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}

	cfg.Load()
}

func newTestEngine(provider *session.Provider) (*gin.Engine, *SessionCache) {
	sessions := NewSessionCache(30 * time.Minute)
	handler := NewHandler(provider, sessions,
		calendar.NewFetcher("test-agent", 5*time.Second), nil)
	return NewServer(handler), sessions
}

const siteLoginForm = `<html><body><form>
	<input type="hidden" name="_csrf" value="csrf-1">
	<input name="LoginForm[email]"><input name="LoginForm[password]" type="password">
</form></body></html>`

// fakeSite emulates the remote team site: form login, an ICS feed behind
// basic auth, and per-event detail pages.
func fakeSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/site/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Set-Cookie", "PHPSESSID=pre; Path=/")
			fmt.Fprint(w, siteLoginForm)
			return
		}
		r.ParseForm()
		if r.PostFormValue("LoginForm[password]") != "secret" {
			fmt.Fprint(w, siteLoginForm)
			return
		}
		w.Header().Add("Set-Cookie", "_identity=id-token; Path=/")
		w.Header().Set("Location", "/dashboard")
		w.WriteHeader(http.StatusFound)
	})

	mux.HandleFunc("/events/ics", func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		base := "http://" + r.Host
		fmt.Fprintf(w, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Test//EN\r\n"+
			"BEGIN:VEVENT\r\nUID:e1\r\nDTSTAMP:20250601T120000Z\r\nDTSTART:20250610T190000Z\r\n"+
			"SUMMARY:Training\r\nURL:%s/events/view?id=1\r\nEND:VEVENT\r\n"+
			"BEGIN:VEVENT\r\nUID:e2\r\nDTSTAMP:20250601T120000Z\r\nDTSTART:20250612T190000Z\r\n"+
			"SUMMARY:Spiel\r\nURL:%s/events/view?id=2\r\nEND:VEVENT\r\n"+
			"END:VCALENDAR\r\n", base, base)
	})

	mux.HandleFunc("/events/view", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "1":
			fmt.Fprint(w, `<html><head><title>Training</title></head><body>
				<div class="participation-button selected" title="Zugesagt">1</div></body></html>`)
		case "2":
			fmt.Fprint(w, `<html><head><title>Spiel</title></head><body>
				<div class="deactivated">Nicht nominiert</div></body></html>`)
		default:
			http.NotFound(w, r)
		}
	})

	return httptest.NewServer(mux)
}

func TestGetCalendarRequiresBasicAuth(t *testing.T) {
	setupTestConfig("")
	engine, _ := newTestEngine(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/calendar/token123?u=42", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, "Basic realm=") {
		t.Errorf("Expected WWW-Authenticate challenge, got %q", got)
	}
}

func TestGetCalendarRequiresUserParam(t *testing.T) {
	setupTestConfig("")
	engine, _ := newTestEngine(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/calendar/token123", nil)
	req.SetBasicAuth("user@example.com", "secret")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestGetCalendarRejectsBadCredentials(t *testing.T) {
	site := fakeSite(t)
	defer site.Close()
	setupTestConfig(site.URL)

	provider := session.NewProvider(site.URL, "test-agent", 5*time.Second)
	engine, _ := newTestEngine(provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/calendar/token123?u=42", nil)
	req.SetBasicAuth("user@example.com", "wrong")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for rejected login, got %d", w.Code)
	}
}

func TestGetCalendarEndToEnd(t *testing.T) {
	site := fakeSite(t)
	defer site.Close()
	setupTestConfig(site.URL)

	provider := session.NewProvider(site.URL, "test-agent", 5*time.Second)
	engine, sessions := newTestEngine(provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/calendar/token123?u=42&name=FC+Beispiel", nil)
	req.SetBasicAuth("user@example.com", "secret")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Expected text/calendar content type, got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-cache") {
		t.Errorf("Expected no-cache, got %q", cc)
	}

	body := w.Body.String()
	if !strings.Contains(body, "X-WR-CALNAME:FC Beispiel") {
		t.Errorf("Expected calendar name in output:\n%s", body)
	}
	if !strings.Contains(body, "SUMMARY:👍 Training") {
		t.Errorf("Expected attending event with emoji prefix:\n%s", body)
	}
	if strings.Contains(body, "Spiel") {
		t.Errorf("Expected not-nominated event to be filtered out:\n%s", body)
	}
	if got := w.Header().Get("X-Calendar-Events"); got != "1" {
		t.Errorf("Expected 1 emitted event, got %q", got)
	}

	if sessions.Len() != 1 {
		t.Errorf("Expected session to be cached, got %d entries", sessions.Len())
	}
}

func TestGetCalendarShowNotNominated(t *testing.T) {
	site := fakeSite(t)
	defer site.Close()
	setupTestConfig(site.URL)

	provider := session.NewProvider(site.URL, "test-agent", 5*time.Second)
	engine, _ := newTestEngine(provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/calendar/token123?u=42&showNotNominated=true", nil)
	req.SetBasicAuth("user@example.com", "secret")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "SUMMARY:❌ Spiel") {
		t.Errorf("Expected not-nominated event with ❌ prefix:\n%s", w.Body.String())
	}
}

func TestGetHealth(t *testing.T) {
	setupTestConfig("")
	engine, _ := newTestEngine(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "sessions") {
		t.Errorf("Expected session count in health payload, got %s", w.Body.String())
	}
}

func TestRootEndpoint(t *testing.T) {
	setupTestConfig("")
	engine, _ := newTestEngine(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "teamcal-comb") {
		t.Errorf("Expected service info, got %s", w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	setupTestConfig("")
	engine, _ := newTestEngine(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/calendar/token123", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected permissive CORS origin, got %q", got)
	}
}

func TestSessionCacheReuseAndDrop(t *testing.T) {
	site := fakeSite(t)
	defer site.Close()

	provider := session.NewProvider(site.URL, "test-agent", 5*time.Second)
	sess, err := provider.Authenticate(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	cache := NewSessionCache(time.Minute)
	cache.Set("user:token", sess)

	if cache.Get("user:token") == nil {
		t.Error("Expected cached session")
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", cache.Len())
	}

	cache.Drop("user:token")
	if cache.Get("user:token") != nil {
		t.Error("Expected session gone after drop")
	}
}

func TestSessionCacheExpiry(t *testing.T) {
	site := fakeSite(t)
	defer site.Close()

	provider := session.NewProvider(site.URL, "test-agent", 5*time.Second)
	sess, err := provider.Authenticate(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	cache := NewSessionCache(0)
	cache.Set("user:token", sess)

	if cache.Get("user:token") != nil {
		t.Error("Expected zero max-age to expire sessions immediately")
	}
}
