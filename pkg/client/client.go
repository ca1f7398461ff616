package client

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/ytget/pahedl/internal/logger"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3

	userAgentValue   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	acceptValue      = "application/json, text/javascript, */*; q=0.0"
	acceptLangValue  = "en-US,en;q=0.9"
	acceptEncValue   = "gzip, br"
	ddgCookieValue   = "__ddg2_="
	initialBackoff   = 200 * time.Millisecond
	maxBackoff       = 3 * time.Second
	successMinCode   = http.StatusOK                  // 200
	retryableMinCode = http.StatusInternalServerError // 500
)

// defaultTransport is a tuned HTTP transport reused across clients.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 15 * time.Second,
	ForceAttemptHTTP2:     true,
	// bodies are decompressed in ReadBody
	DisableCompression: true,
	ReadBufferSize:     16 * 1024,
	WriteBufferSize:    16 * 1024,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	ProxyURL  string
	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64
}

// Client wraps http.Client with browser headers, pacing and retry/backoff.
type Client struct {
	HTTPClient *http.Client
	Retries    int
	UserAgent  string
	Limiter    *rate.Limiter
}

// New creates a new Client with a tuned Transport, default timeout, and retries.
func New() *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: defaultTransport,
		},
		Retries:   defaultRetries,
		UserAgent: userAgentValue,
	}
}

// NewWith creates a new client with provided config. Zero values use defaults.
func NewWith(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = userAgentValue
	}

	tr := defaultTransport.Clone()
	if cfg.ProxyURL != "" {
		if proxyFunc, err := proxyFromURLString(cfg.ProxyURL); err == nil {
			tr.Proxy = proxyFunc
		} else {
			logger.WithComponent(logger.ComponentClient).Warn("ignoring invalid proxy", logger.Fields{"proxy": cfg.ProxyURL, "error": err.Error()})
		}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		Retries:   retries,
		UserAgent: ua,
		Limiter:   limiter,
	}
}

// BrowserHeaders returns the headers every page request carries. An empty
// referer is omitted.
func BrowserHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("Accept", acceptValue)
	h.Set("Accept-Language", acceptLangValue)
	h.Set("Accept-Encoding", acceptEncValue)
	h.Set("Cookie", ddgCookieValue)
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *Client) prepare(req *http.Request) {
	ua := c.UserAgent
	if ua == "" {
		ua = userAgentValue
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", ua)
	}
	for k, v := range BrowserHeaders("") {
		if req.Header.Get(k) == "" {
			req.Header[k] = v
		}
	}
}

// Do sends a single request with browser headers filled in. It waits for the
// pacing limiter but never retries, so callers that count requests see
// exactly one round trip.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.do(c.httpClient(), req)
}

// DoNoRedirect is Do with redirects suppressed: a 3xx is returned as is.
func (c *Client) DoNoRedirect(req *http.Request) (*http.Response, error) {
	return c.do(c.NoRedirect(), req)
}

func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	c.prepare(req)
	if c.Limiter != nil {
		if err := c.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	log := logger.WithComponent(logger.ComponentClient)
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		log.Debug("request failed", logger.Fields{"method": req.Method, "url": req.URL.String(), "error": err.Error()})
		return nil, err
	}
	log.Trace("request done", logger.Fields{"method": req.Method, "url": req.URL.String(), "status": resp.StatusCode, "took": time.Since(start).String()})
	return resp, nil
}

// NoRedirect returns a copy of the underlying http.Client that hands 3xx
// responses back to the caller instead of following them.
func (c *Client) NoRedirect() *http.Client {
	hc := *c.httpClient()
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &hc
}

// Get performs a GET request with a simple retry policy for transient errors
// (HTTP 5xx or network failures). header may be nil.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	var (
		resp *http.Response
		err  error
	)
	backoff := initialBackoff
	for attempt := 0; attempt < retries; attempt++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err = c.Do(req)
		if err == nil && resp.StatusCode >= successMinCode && resp.StatusCode < retryableMinCode {
			return resp, nil
		}
		if attempt == retries-1 {
			break
		}
		if resp != nil {
			_ = resp.Body.Close()
			resp = nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return resp, err
}

// ReadBody reads and closes resp.Body, decoding gzip and brotli content.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()

	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// ReadText reads the body as single-line text: line breaks are dropped and
// invalid UTF-8 sequences removed.
func ReadText(resp *http.Response) (string, error) {
	body, err := ReadBody(resp)
	if err != nil {
		return "", err
	}
	return CleanText(string(body)), nil
}

// CleanText drops CR and LF characters and invalid UTF-8 from s.
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// SessionCookie returns the value of the named cookie set by resp, or "".
func SessionCookie(resp *http.Response, name string) string {
	for _, ck := range resp.Cookies() {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// proxyFromURLString parses a proxy URL and returns a Proxy function.
func proxyFromURLString(raw string) (func(*http.Request) (*url.URL, error), error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy url %q needs scheme and host", raw)
	}
	return http.ProxyURL(u), nil
}
