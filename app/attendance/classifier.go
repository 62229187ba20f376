package attendance

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"teamcal-comb/app/logging"
	"teamcal-comb/app/session"
)

const (
	interstitialPath = "/site/login-by-team"
	maxRedirectHops  = 5
)

// PageSession is the slice of session.Session the classifier needs: an
// authenticated GET and the ability to push freshly issued cookies back
// into the shared cookie store.
type PageSession interface {
	Get(ctx context.Context, url string, opts session.GetOptions) (*session.Response, error)
	MergeCookies(setCookieHeaders []string)
}

var _ PageSession = (*session.Session)(nil)

// Classifier decides the user's nomination/attendance state from one
// authenticated fetch of an event's detail page. Run never fails: every
// network, redirect, or markup problem resolves to a concrete Result.
type Classifier struct {
	session PageSession
	retry   RetryPolicy
	timeout time.Duration
}

func NewClassifier(sess PageSession, retry RetryPolicy, timeout time.Duration) *Classifier {
	return &Classifier{
		session: sess,
		retry:   retry,
		timeout: timeout,
	}
}

// Run fetches the event detail page and infers the attendance state.
func (c *Classifier) Run(ctx context.Context, eventURL string) Result {
	resp, err := c.session.Get(ctx, eventURL, session.GetOptions{
		MaxRedirects: maxRedirectHops,
		Timeout:      c.timeout,
	})
	if err != nil {
		slog.Debug("Event page fetch failed", "url", logging.RedactURL(eventURL), "error", err)
		return NoResponse()
	}

	// The interstitial sets fresh session cookies as a side effect of the
	// hop; merge them before resolving its client-side redirect.
	if strings.Contains(resp.FinalURL, interstitialPath) {
		c.session.MergeCookies(resp.SetCookies)

		target := resolveInterstitialTarget(resp)
		if target == "" {
			slog.Debug("Interstitial page without resolvable redirect target", "url", logging.RedactURL(resp.FinalURL))
			return AuthFailed()
		}

		resp, err = c.session.Get(ctx, target, session.GetOptions{
			MaxRedirects: maxRedirectHops,
			Timeout:      c.timeout,
		})
		if err != nil || resp.StatusCode >= http.StatusBadRequest {
			return AuthFailed()
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return NoResponse()
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return NoResponse()
	}

	if isLoginForm(doc) {
		return AuthFailed()
	}

	// The participation widget can render client-side; a first fetch may
	// return a content shell with no title and no controls yet.
	for attempt := 0; attempt < c.retry.MaxAttempts && !isRendered(doc); attempt++ {
		c.retry.wait(ctx)

		retryResp, retryErr := c.session.Get(ctx, eventURL, session.GetOptions{
			MaxRedirects: maxRedirectHops,
			Timeout:      c.timeout,
		})
		if retryErr != nil {
			continue
		}
		retryDoc, parseErr := goquery.NewDocumentFromReader(bytes.NewReader(retryResp.Body))
		if parseErr != nil {
			continue
		}
		doc = retryDoc
	}

	return classifyDocument(doc, doc.Find("body").Text())
}

// isRendered reports whether the page carries a title or at least one
// participation control, i.e. whether client-side rendering has finished.
func isRendered(doc *goquery.Document) bool {
	if strings.TrimSpace(doc.Find("title").Text()) != "" {
		return true
	}
	return doc.Find(".participation-button").Length() > 0
}

// isLoginForm detects the site's generic login form by its field names.
func isLoginForm(doc *goquery.Document) bool {
	return doc.Find(`input[name="LoginForm[email]"]`).Length() > 0 &&
		doc.Find(`input[name="LoginForm[password]"]`).Length() > 0
}

var (
	metaRefreshRe    = regexp.MustCompile(`(?i)url\s*=\s*['"]?([^'";\s]+)`)
	scriptLocationRe = regexp.MustCompile(`(?i)(?:window\.location(?:\.href)?|document\.location|location\.href)\s*=\s*['"]([^'"]+)['"]`)
)

// resolveInterstitialTarget determines where the login-by-team page wants
// the browser to go next: a meta-refresh tag, a script-based location
// assignment, or a redirect query parameter on the interstitial URL
// itself. Relative targets are rooted at the interstitial's origin.
func resolveInterstitialTarget(resp *session.Response) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err == nil {
		if content, ok := doc.Find(`meta[http-equiv="refresh"]`).Attr("content"); ok {
			if m := metaRefreshRe.FindStringSubmatch(content); m != nil {
				return absoluteTarget(resp.FinalURL, m[1])
			}
		}

		var scriptTarget string
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := scriptLocationRe.FindStringSubmatch(s.Text()); m != nil {
				scriptTarget = m[1]
				return false
			}
			return true
		})
		if scriptTarget != "" {
			return absoluteTarget(resp.FinalURL, scriptTarget)
		}
	}

	if u, err := url.Parse(resp.FinalURL); err == nil {
		if redirect := u.Query().Get("redirect"); redirect != "" {
			return absoluteTarget(resp.FinalURL, redirect)
		}
	}

	return ""
}

func absoluteTarget(base, target string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	targetURL, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(targetURL).String()
}

var (
	declineKeywords   = []string{"abgesagt", "absage", "nicht teilnehmen", "abwesend"}
	confirmKeywords   = []string{"zugesagt", "teilnehmen"}
	uncertainKeywords = []string{"unsicher", "vielleicht"}

	declineLabels   = []string{"absage", "abgesagt", "nicht teilnehmen", "abwesend", "absent", "declined"}
	uncertainLabels = []string{"unsicher", "vielleicht", "uncertain"}
	confirmLabels   = []string{"zusage", "zugesagt", "teilnehmen", "confirmed"}

	scriptDeclineRe = regexp.MustCompile(`(?i)["']?(?:participation[-_]?status|status)["']?\s*[:=]\s*["']?(?:declined|absage|abgesagt)`)
	scriptConfirmRe = regexp.MustCompile(`(?i)["']?(?:participation[-_]?status|status)["']?\s*[:=]\s*["']?(?:confirmed|zusage|zugesagt)`)
)

// classifyDocument is the pure heuristic over a parsed page and its
// precomputed body text. Widget state is ground truth: text heuristics
// apply only when no participation controls exist at all.
func classifyDocument(doc *goquery.Document, bodyText string) Result {
	if hasNotNominatedMarker(doc, bodyText) {
		return NotNominated()
	}

	controls := doc.Find(".participation-button")
	if controls.Length() > 0 {
		return classifyControls(controls)
	}

	return classifyText(doc, bodyText)
}

// hasNotNominatedMarker looks for the literal "Nicht nominiert" text,
// either anywhere in the body or scoped under a deactivated container.
func hasNotNominatedMarker(doc *goquery.Document, bodyText string) bool {
	if strings.Contains(bodyText, "Nicht nominiert") {
		return true
	}
	return strings.Contains(doc.Find(".deactivated, .participation-deactivated").Text(), "Nicht nominiert")
}

// classifyControls reads the structured participation widget.
func classifyControls(controls *goquery.Selection) Result {
	selected := controls.Filter(".selected")

	allDisabled := true
	controls.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if _, disabledAttr := s.Attr("disabled"); disabledAttr || s.HasClass("disabled") {
			return true
		}
		allDisabled = false
		return false
	})
	if allDisabled && selected.Length() == 0 {
		return NotNominated()
	}

	if selected.Length() == 0 {
		return NoResponse()
	}

	label := strings.ToLower(selected.First().AttrOr("title", ""))
	if label == "" {
		label = strings.ToLower(strings.TrimSpace(selected.First().Text()))
	}

	// Decline labels before confirm labels: "nicht teilnehmen" contains
	// "teilnehmen".
	if containsAny(label, declineLabels) {
		return NotAttending()
	}
	if containsAny(label, uncertainLabels) {
		return Maybe()
	}
	if containsAny(label, confirmLabels) {
		return Attending()
	}
	return NoResponse()
}

// classifyText is the unstructured fallback over body text and inline
// script payloads. First match wins; absence of any participation
// evidence is treated as non-nomination rather than silence.
func classifyText(doc *goquery.Document, bodyText string) Result {
	lowerBody := strings.ToLower(bodyText)

	if containsAny(lowerBody, declineKeywords) {
		return NotAttending()
	}

	var scriptResult *Result
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(strings.ToLower(text), "participation") &&
			!strings.Contains(strings.ToLower(text), "teilnahme") {
			return true
		}
		if scriptDeclineRe.MatchString(text) {
			r := NotAttending()
			scriptResult = &r
			return false
		}
		if scriptConfirmRe.MatchString(text) {
			r := Attending()
			scriptResult = &r
			return false
		}
		return true
	})
	if scriptResult != nil {
		return *scriptResult
	}

	if containsAny(lowerBody, confirmKeywords) {
		return Attending()
	}
	if containsAny(lowerBody, uncertainKeywords) {
		return Maybe()
	}

	return NotNominated()
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
