package session

import (
	"strings"
	"sync"
)

// CookieStore keeps the session cookies as an ordered, name-unique list.
// The remote site re-issues individual cookies mid-flow (notably on the
// login-by-team interstitial), so merging must replace by cookie name
// rather than overwrite the whole set.
type CookieStore struct {
	mu      sync.Mutex
	cookies []storedCookie
}

type storedCookie struct {
	name string
	pair string // "name=value" as sent in the Cookie header
}

func NewCookieStore() *CookieStore {
	return &CookieStore{}
}

// Merge folds Set-Cookie header values into the store. Only the first
// segment (name=value) of each header is kept; attributes like Path and
// Expires are not needed for a single-host session. Last write wins per
// cookie name, order of first appearance is preserved.
func (s *CookieStore) Merge(setCookieHeaders []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, header := range setCookieHeaders {
		pair := strings.TrimSpace(strings.SplitN(header, ";", 2)[0])
		name, _, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			continue
		}

		replaced := false
		for i := range s.cookies {
			if s.cookies[i].name == name {
				s.cookies[i].pair = pair
				replaced = true
				break
			}
		}
		if !replaced {
			s.cookies = append(s.cookies, storedCookie{name: name, pair: pair})
		}
	}
}

// Header renders the store as a Cookie request header value.
func (s *CookieStore) Header() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	pairs := make([]string, 0, len(s.cookies))
	for _, c := range s.cookies {
		pairs = append(pairs, c.pair)
	}
	return strings.Join(pairs, "; ")
}

func (s *CookieStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cookies)
}
