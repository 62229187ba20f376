package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const loginPath = "/site/login"

// AuthError indicates a login or session failure against the remote site.
// Handlers map it to a 401 so the calendar client re-prompts for
// credentials.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Provider authenticates users against the remote site and yields
// reusable Sessions. The login flow mirrors the site's browser flow:
// fetch the login form, lift the CSRF token out of the markup, submit the
// form, and keep whatever cookies the site issues along the way.
type Provider struct {
	siteBaseURL string
	userAgent   string
	timeout     time.Duration
	// noRedirectClient stops at the login POST's 302 so its Set-Cookie
	// headers can be captured before the site navigates away.
	noRedirectClient *http.Client
}

func NewProvider(siteBaseURL, userAgent string, timeout time.Duration) *Provider {
	return &Provider{
		siteBaseURL: strings.TrimRight(siteBaseURL, "/"),
		userAgent:   userAgent,
		timeout:     timeout,
		noRedirectClient: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Authenticate performs the form login and returns a Session carrying the
// issued cookies. It fails with *AuthError when the CSRF token cannot be
// found, the site rejects the credentials, or no session cookies are
// issued.
func (p *Provider) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	loginURL := p.siteBaseURL + loginPath
	store := NewCookieStore()

	csrfToken, err := p.fetchCSRFToken(ctx, loginURL, store)
	if err != nil {
		return nil, err
	}

	if err := p.submitLogin(ctx, loginURL, csrfToken, username, password, store); err != nil {
		return nil, err
	}

	if store.Len() == 0 {
		return nil, &AuthError{Reason: "no session cookies issued by login"}
	}

	slog.Debug("Session authenticated", "cookies", store.Len())

	return &Session{
		client:    &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse }},
		store:     store,
		userAgent: p.userAgent,
		createdAt: time.Now(),
	}, nil
}

func (p *Provider) fetchCSRFToken(ctx context.Context, loginURL string, store *CookieStore) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return "", &AuthError{Reason: "failed to build login page request", Err: err}
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.noRedirectClient.Do(req)
	if err != nil {
		return "", &AuthError{Reason: "failed to fetch login page", Err: err}
	}
	defer resp.Body.Close()

	store.Merge(resp.Header.Values("Set-Cookie"))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{Reason: "failed to read login page", Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", &AuthError{Reason: "failed to parse login page", Err: err}
	}

	csrfToken, _ := doc.Find(`input[name="_csrf"]`).Attr("value")
	if csrfToken == "" {
		return "", &AuthError{Reason: "could not find CSRF token on login page"}
	}

	return csrfToken, nil
}

func (p *Provider) submitLogin(ctx context.Context, loginURL, csrfToken, username, password string, store *CookieStore) error {
	form := url.Values{
		"LoginForm[email]":    {username},
		"LoginForm[password]": {password},
		"_csrf":               {csrfToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthError{Reason: "failed to build login request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", p.userAgent)
	if cookieHeader := store.Header(); cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}

	resp, err := p.noRedirectClient.Do(req)
	if err != nil {
		return &AuthError{Reason: "login request failed", Err: err}
	}
	defer resp.Body.Close()

	store.Merge(resp.Header.Values("Set-Cookie"))

	switch {
	case resp.StatusCode == http.StatusFound:
		// Successful login redirects away from the form.
		return nil
	case resp.StatusCode == http.StatusOK:
		// A 200 means the form was re-rendered; if the login fields are
		// still present the credentials were rejected.
		body, readErr := io.ReadAll(resp.Body)
		if readErr == nil && bytes.Contains(body, []byte("LoginForm[password]")) {
			return &AuthError{Reason: "invalid username or password"}
		}
		return nil
	default:
		return &AuthError{Reason: fmt.Sprintf("unexpected login response status %d", resp.StatusCode)}
	}
}
