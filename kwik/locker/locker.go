// Package locker resolves pahe.win locker pages into final kwik download links.
package locker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/pahedl/errs"
	"github.com/ytget/pahedl/internal/logger"
	"github.com/ytget/pahedl/internal/metrics"
	"github.com/ytget/pahedl/internal/scan"
	"github.com/ytget/pahedl/kwik/packer"
	"github.com/ytget/pahedl/pkg/client"
	"github.com/ytget/pahedl/types"
)

const (
	// DefaultMaxAttempts bounds the number of locker page fetches per resolution.
	DefaultMaxAttempts = 5
	// DefaultCookieName is the session cookie forwarded to the token exchange.
	DefaultCookieName = "kwik_session"

	// maxHops is how many follow-up pages one attempt may walk.
	maxHops = 1
	// drainLimit caps how much of a discarded body is read before close.
	drainLimit = 64 << 10
)

var (
	linkRe  = regexp.MustCompile(`"(https?://kwik\.[^/\s"]+/[^/\s"]+/[^"\s]*)"`)
	tokenRe = regexp.MustCompile(`name="_token"[^"]*"(\S*)">`)
	dlRe    = regexp.MustCompile(`(https?://kwik\.[^/]+/)d/`)
)

// Resolver turns locker links into final links. It holds no per-resolution
// state and is safe for concurrent use.
type Resolver struct {
	client      *client.Client
	maxAttempts int
	fallback    packer.Engine
	metrics     *metrics.Metrics
	cookieName  string
}

// New returns a Resolver using c, or a default client when c is nil.
func New(c *client.Client) *Resolver {
	if c == nil {
		c = client.New()
	}
	return &Resolver{
		client:      c,
		maxAttempts: DefaultMaxAttempts,
		cookieName:  DefaultCookieName,
	}
}

// WithMaxAttempts sets the attempt bound. Values below 1 are ignored.
func (r *Resolver) WithMaxAttempts(n int) *Resolver {
	if n >= 1 {
		r.maxAttempts = n
	}
	return r
}

// WithEngine sets the script engine tried when native decoding fails.
// nil and packer.Native disable the fallback.
func (r *Resolver) WithEngine(e packer.Engine) *Resolver {
	if _, native := e.(packer.Native); native {
		e = nil
	}
	r.fallback = e
	return r
}

// WithMetrics records attempts and outcomes on m.
func (r *Resolver) WithMetrics(m *metrics.Metrics) *Resolver {
	r.metrics = m
	return r
}

// WithCookieName changes the session cookie name.
func (r *Resolver) WithCookieName(name string) *Resolver {
	if name != "" {
		r.cookieName = name
	}
	return r
}

// MaxAttempts returns the configured attempt bound.
func (r *Resolver) MaxAttempts() int { return r.maxAttempts }

// page is one fetched document of an attempt.
type page struct {
	url     string
	body    string
	session string
}

// Resolve fetches lockerLink up to MaxAttempts times until a final link is
// obtained. Extraction and decoding failures start a new attempt with a
// fresh fetch. A non-200 locker page, a failed token exchange and context
// cancellation end the resolution at once. When every attempt is exhausted
// the error wraps errs.ErrRetryLimitExceeded and the last cause.
func (r *Resolver) Resolve(ctx context.Context, lockerLink string) (string, error) {
	log := logger.WithComponent(logger.ComponentResolver).With(logger.Fields{
		"request_id": uuid.NewString(),
		"link":       lockerLink,
	})
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			r.finish(log, start, err)
			return "", err
		}
		r.metrics.Attempt()
		log.Debug("attempt started", logger.Fields{"attempt": attempt, "max_attempts": r.maxAttempts})

		final, err := r.attempt(ctx, lockerLink, log)
		if err == nil {
			r.finish(log, start, nil)
			log.Info("resolved", logger.Fields{"attempt": attempt, "final": final})
			return final, nil
		}
		if !errs.Retryable(err) {
			r.finish(log, start, err)
			return "", err
		}
		lastErr = err
		log.Debug("attempt exhausted", logger.Fields{"attempt": attempt, "error": err.Error()})
	}

	err := fmt.Errorf("%w: %d attempts on %s: %w", errs.ErrRetryLimitExceeded, r.maxAttempts, lockerLink, lastErr)
	r.finish(log, start, err)
	return "", err
}

func (r *Resolver) finish(log *logger.ComponentLogger, start time.Time, err error) {
	outcome := outcomeOf(err)
	r.metrics.Outcome(outcome, time.Since(start))
	if err != nil {
		log.Warn("resolution failed", logger.Fields{"outcome": outcome, "error": err.Error()})
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	case errors.Is(err, errs.ErrRetryLimitExceeded):
		return metrics.OutcomeRetryLimit
	case errors.Is(err, errs.ErrUpstreamUnavailable):
		return metrics.OutcomeUpstreamUnavailable
	case errors.Is(err, errs.ErrRedirectNotFound):
		return metrics.OutcomeRedirectNotFound
	default:
		return metrics.OutcomeError
	}
}

// attempt runs the state machine once over a fresh locker page.
func (r *Resolver) attempt(ctx context.Context, lockerLink string, log *logger.ComponentLogger) (string, error) {
	p, err := r.fetch(ctx, lockerLink, "", "")
	if err != nil {
		return "", err
	}

	// only the locker page is searched for a direct link; a followed kwik
	// page goes straight to decoding
	hops := maxHops
	for {
		if link, ok := DirectLink(p.body); ok && hops == maxHops {
			r.metrics.Path(metrics.PathFast)
			log.Debug("direct link found", logger.Fields{"kwik": link})
			final, next, err := r.follow(ctx, link, p)
			if err != nil {
				return "", err
			}
			if final != "" {
				return final, nil
			}
			hops--
			r.metrics.Path(metrics.PathHop)
			p = next
			continue
		}

		r.metrics.Path(metrics.PathSlow)
		resolved, err := r.extract(p)
		if err != nil {
			return "", err
		}
		if resolved.Ready() {
			log.Debug("exchanging token", logger.Fields{"kwik": resolved.IntermediateLink})
			return r.exchange(ctx, resolved, p.url)
		}
		if resolved.IntermediateLink == "" || hops == 0 {
			return "", fmt.Errorf("%w: decoded payload on %s has no link and token", errs.ErrExtractionFailed, p.url)
		}

		hops--
		r.metrics.Path(metrics.PathHop)
		next := NormalizeLink(resolved.IntermediateLink)
		log.Debug("following decoded link", logger.Fields{"kwik": next})
		if p, err = r.fetch(ctx, next, p.url, p.session); err != nil {
			return "", err
		}
	}
}

// extract decodes the packed payload of p and pulls the link and token out
// of the plaintext.
func (r *Resolver) extract(p page) (types.ResolvedLink, error) {
	params, ok := packer.FindParameters(p.body)
	if !ok || params.EncodedPayload == "" || params.SourceAlphabet == "" {
		return types.ResolvedLink{}, fmt.Errorf("%w: no packed payload on %s", errs.ErrExtractionFailed, p.url)
	}
	decoded, err := packer.DecodeWith(params, r.engine())
	if err != nil {
		return types.ResolvedLink{}, err
	}

	resolved := types.ResolvedLink{SessionCookie: p.session}
	resolved.IntermediateLink, _ = DirectLink(decoded)
	resolved.CSRFToken, _ = Token(decoded)
	return resolved, nil
}

// engine wraps the fallback so its runs are counted.
func (r *Resolver) engine() packer.Engine {
	if r.fallback == nil || r.metrics == nil {
		return r.fallback
	}
	return observed{Engine: r.fallback, metrics: r.metrics}
}

type observed struct {
	packer.Engine
	metrics *metrics.Metrics
}

func (o observed) Decode(p types.DecodeParameters) (string, error) {
	out, err := o.Engine.Decode(p)
	o.metrics.Fallback(o.Name(), err == nil)
	return out, err
}

// fetch GETs a page of the attempt. Non-200 is errs.ErrUpstreamUnavailable.
// The session cookie of the response replaces session when present.
func (r *Resolver) fetch(ctx context.Context, link, referer, session string) (page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return page{}, fmt.Errorf("%w: %v", errs.ErrInvalidLink, err)
	}
	req.Header = client.BrowserHeaders(referer)
	if session != "" {
		req.Header.Set("Cookie", r.cookieName+"="+session)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return page{}, ctx.Err()
		}
		return page{}, fmt.Errorf("%w: %s: %v", errs.ErrUpstreamUnavailable, link, err)
	}
	if resp.StatusCode != http.StatusOK {
		discard(resp)
		return page{}, fmt.Errorf("%w: %s returned %d", errs.ErrUpstreamUnavailable, link, resp.StatusCode)
	}
	if s := client.SessionCookie(resp, r.cookieName); s != "" {
		session = s
	}
	body, err := client.ReadText(resp)
	if err != nil {
		if ctx.Err() != nil {
			return page{}, ctx.Err()
		}
		return page{}, fmt.Errorf("%w: %s: %v", errs.ErrUpstreamUnavailable, link, err)
	}
	return page{url: link, body: body, session: session}, nil
}

// follow sends the plain fast path request with redirects suppressed.
// A redirect yields the final link; a 200 yields the next page.
func (r *Resolver) follow(ctx context.Context, link string, from page) (string, page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", page{}, fmt.Errorf("%w: %v", errs.ErrRedirectNotFound, err)
	}
	req.Header = client.BrowserHeaders(from.url)
	if from.session != "" {
		req.Header.Set("Cookie", r.cookieName+"="+from.session)
	}

	resp, err := r.client.DoNoRedirect(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", page{}, ctx.Err()
		}
		return "", page{}, fmt.Errorf("%w: %s: %v", errs.ErrRedirectNotFound, link, err)
	}

	switch {
	case isRedirect(resp.StatusCode):
		discard(resp)
		loc, err := resp.Location()
		if err != nil {
			return "", page{}, fmt.Errorf("%w: %s answered %d without Location", errs.ErrRedirectNotFound, link, resp.StatusCode)
		}
		return loc.String(), page{}, nil
	case resp.StatusCode == http.StatusOK:
		session := from.session
		if s := client.SessionCookie(resp, r.cookieName); s != "" {
			session = s
		}
		body, err := client.ReadText(resp)
		if err != nil {
			if ctx.Err() != nil {
				return "", page{}, ctx.Err()
			}
			return "", page{}, fmt.Errorf("%w: %s: %v", errs.ErrUpstreamUnavailable, link, err)
		}
		return "", page{url: link, body: body, session: session}, nil
	default:
		discard(resp)
		return "", page{}, fmt.Errorf("%w: %s answered %d", errs.ErrRedirectNotFound, link, resp.StatusCode)
	}
}

// exchange posts the token and returns the Location of the 302 answer.
func (r *Resolver) exchange(ctx context.Context, link types.ResolvedLink, referer string) (string, error) {
	form := url.Values{"_token": {link.CSRFToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, link.IntermediateLink, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrRedirectNotFound, err)
	}
	req.Header = client.BrowserHeaders(referer)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", r.cookieName+"="+link.SessionCookie)

	resp, err := r.client.DoNoRedirect(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %v", errs.ErrRedirectNotFound, link.IntermediateLink, err)
	}
	discard(resp)

	if resp.StatusCode != http.StatusFound {
		return "", fmt.Errorf("%w: %s answered %d", errs.ErrRedirectNotFound, link.IntermediateLink, resp.StatusCode)
	}
	loc, err := resp.Location()
	if err != nil {
		return "", fmt.Errorf("%w: %s answered 302 without Location", errs.ErrRedirectNotFound, link.IntermediateLink)
	}
	return loc.String(), nil
}

// DirectLink returns the first quoted kwik link in text.
func DirectLink(text string) (string, bool) {
	link, _, ok := scan.New(text).Group(linkRe)
	return link, ok && link != ""
}

// Token returns the _token form value in text.
func Token(text string) (string, bool) {
	token, _, ok := scan.New(text).Group(tokenRe)
	return token, ok && token != ""
}

// NormalizeLink rewrites a kwik /d/ link to its /f/ page.
func NormalizeLink(link string) string {
	return dlRe.ReplaceAllString(link, "${1}f/")
}

func isRedirect(code int) bool {
	return code >= http.StatusMultipleChoices && code < http.StatusBadRequest
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}
