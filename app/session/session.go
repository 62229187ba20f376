package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Session is an authenticated HTTP context against the remote site: a
// cookie store plus base headers. It is created by Provider.Authenticate
// and borrowed by callers per request; the cookie store is the only
// mutable part and is safe for concurrent merges.
type Session struct {
	client    *http.Client
	store     *CookieStore
	userAgent string
	createdAt time.Time
}

type GetOptions struct {
	MaxRedirects int
	Timeout      time.Duration
}

// Response is the outcome of an authenticated GET after redirect
// following. Non-2xx statuses are returned as data, not errors; only
// transport failures produce an error.
type Response struct {
	FinalURL   string
	StatusCode int
	Body       []byte
	SetCookies []string // Set-Cookie headers accumulated across all hops
}

// Get issues an authenticated GET, following up to opts.MaxRedirects
// redirect hops manually. Manual following is required because callers
// need both the final resolved URL and the Set-Cookie headers of
// intermediate hops, which http.Client's automatic handling hides.
func (s *Session) Get(ctx context.Context, rawURL string, opts GetOptions) (*Response, error) {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 5
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	current := rawURL
	var setCookies []string

	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", s.userAgent)
		if cookieHeader := s.store.Header(); cookieHeader != "" {
			req.Header.Set("Cookie", cookieHeader)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		setCookies = append(setCookies, resp.Header.Values("Set-Cookie")...)

		if location := resp.Header.Get("Location"); location != "" &&
			resp.StatusCode >= 300 && resp.StatusCode < 400 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if hop >= opts.MaxRedirects {
				return nil, fmt.Errorf("stopped after %d redirects", opts.MaxRedirects)
			}

			next, err := resolveURL(current, location)
			if err != nil {
				return nil, fmt.Errorf("invalid redirect location %q: %w", location, err)
			}
			current = next
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		return &Response{
			FinalURL:   current,
			StatusCode: resp.StatusCode,
			Body:       body,
			SetCookies: setCookies,
		}, nil
	}
}

// MergeCookies folds freshly issued Set-Cookie headers into the session's
// cookie store (replace-or-append by cookie name).
func (s *Session) MergeCookies(setCookieHeaders []string) {
	s.store.Merge(setCookieHeaders)
}

// CookieHeader returns the current Cookie request header value.
func (s *Session) CookieHeader() string {
	return s.store.Header()
}

// Age reports how long ago the session was authenticated.
func (s *Session) Age() time.Duration {
	return time.Since(s.createdAt)
}

func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
