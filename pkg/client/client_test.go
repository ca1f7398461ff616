package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func TestNew(t *testing.T) {
	client := New()

	if client.HTTPClient == nil {
		t.Fatal("Expected HTTPClient to be initialized")
	}
	if client.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("Expected timeout %v, got %v", defaultTimeout, client.HTTPClient.Timeout)
	}
	if client.Retries != defaultRetries {
		t.Errorf("Expected retries %d, got %d", defaultRetries, client.Retries)
	}
	if client.UserAgent != userAgentValue {
		t.Errorf("Expected user agent '%s', got '%s'", userAgentValue, client.UserAgent)
	}
	if client.Limiter != nil {
		t.Error("Expected no limiter by default")
	}
}

func TestNewWith(t *testing.T) {
	cfg := Config{
		Timeout:           10 * time.Second,
		Retries:           5,
		UserAgent:         "Custom Agent",
		ProxyURL:          "http://proxy.example.com:8080",
		RequestsPerSecond: 2,
	}

	client := NewWith(cfg)

	if client.HTTPClient.Timeout != cfg.Timeout {
		t.Errorf("Expected timeout %v, got %v", cfg.Timeout, client.HTTPClient.Timeout)
	}
	if client.Retries != cfg.Retries {
		t.Errorf("Expected retries %d, got %d", cfg.Retries, client.Retries)
	}
	if client.UserAgent != cfg.UserAgent {
		t.Errorf("Expected user agent '%s', got '%s'", cfg.UserAgent, client.UserAgent)
	}
	if client.Limiter == nil || client.Limiter.Limit() != 2 {
		t.Errorf("Expected limiter at 2 rps, got %v", client.Limiter)
	}
}

func TestNewWithZeroAndNegativeValues(t *testing.T) {
	for _, cfg := range []Config{{}, {Timeout: -time.Second, Retries: -1}} {
		client := NewWith(cfg)
		if client.HTTPClient.Timeout != defaultTimeout {
			t.Errorf("Expected timeout %v, got %v", defaultTimeout, client.HTTPClient.Timeout)
		}
		if client.Retries != defaultRetries {
			t.Errorf("Expected retries %d, got %d", defaultRetries, client.Retries)
		}
		if client.UserAgent != userAgentValue {
			t.Errorf("Expected user agent '%s', got '%s'", userAgentValue, client.UserAgent)
		}
	}
}

func TestNewWithInvalidProxy(t *testing.T) {
	client := NewWith(Config{ProxyURL: "invalid-proxy-url"})
	if client.HTTPClient == nil {
		t.Fatal("Expected HTTPClient to be initialized")
	}
}

func TestGetSendsBrowserHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != userAgentValue {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("Accept"); got != acceptValue {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("Accept-Language"); got != acceptLangValue {
			t.Errorf("Accept-Language = %q", got)
		}
		if got := r.Header.Get("Referer"); got != "https://animepahe.ru/" {
			t.Errorf("Referer = %q", got)
		}
		if got := r.Header.Get("Cookie"); got != ddgCookieValue {
			t.Errorf("Cookie = %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := New().Get(context.Background(), server.URL, BrowserHeaders("https://animepahe.ru/"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	_ = resp.Body.Close()
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &Client{HTTPClient: &http.Client{Timeout: 5 * time.Second}, Retries: 3}
	resp, err := client.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := &Client{HTTPClient: &http.Client{Timeout: 5 * time.Second}, Retries: 3}
	resp, err := client.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound || calls != 1 {
		t.Errorf("status = %d, calls = %d", resp.StatusCode, calls)
	}
}

func TestGetHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &Client{HTTPClient: &http.Client{Timeout: 5 * time.Second}, Retries: 3}
	if _, err := client.Get(ctx, server.URL, nil); err == nil {
		t.Error("expected context error")
	}
}

func TestGetWithZeroRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &Client{HTTPClient: &http.Client{Timeout: 5 * time.Second}, Retries: 0}
	resp, err := client.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	_ = resp.Body.Close()
}

func TestDoNoRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/start", nil)
	resp, err := client.DoNoRedirect(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/final" {
		t.Errorf("status = %d location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	req, _ = http.NewRequest(http.MethodGet, server.URL+"/start", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Do should follow redirects, got %d", resp.StatusCode)
	}
	if client.HTTPClient.CheckRedirect != nil {
		t.Error("NoRedirect must not mutate the shared client")
	}
}

func TestReadBodyDecodesContentEncoding(t *testing.T) {
	const text = "<html>hello</html>"

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(text))
	_ = gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte(text))
	_ = bw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{name: "identity", encoding: "", body: []byte(text)},
		{name: "gzip", encoding: "gzip", body: gz.Bytes()},
		{name: "brotli", encoding: "br", body: br.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				Header: http.Header{"Content-Encoding": []string{tt.encoding}},
				Body:   io.NopCloser(bytes.NewReader(tt.body)),
			}
			got, err := ReadBody(resp)
			if err != nil {
				t.Fatalf("ReadBody() error = %v", err)
			}
			if string(got) != text {
				t.Errorf("ReadBody() = %q", got)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	in := "line one\r\nline two\n\xff\xfeend"
	if got := CleanText(in); got != "line oneline twoend" {
		t.Errorf("CleanText() = %q", got)
	}
}

func TestSessionCookie(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Add("Set-Cookie", "other=1; Path=/")
	resp.Header.Add("Set-Cookie", "kwik_session=abc%3D%3D; Path=/; HttpOnly")

	if got := SessionCookie(resp, "kwik_session"); got != "abc%3D%3D" {
		t.Errorf("SessionCookie() = %q", got)
	}
	if got := SessionCookie(resp, "missing"); got != "" {
		t.Errorf("SessionCookie(missing) = %q", got)
	}
}

func TestLimiterPacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewWith(Config{RequestsPerSecond: 20})
	start := time.Now()
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("three paced requests took %v, expected at least ~100ms", elapsed)
	}
}

func TestProxyFromURLString(t *testing.T) {
	if _, err := proxyFromURLString("http://proxy.example.com:8080"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for _, raw := range []string{"://invalid-url", "invalid-proxy-url"} {
		if _, err := proxyFromURLString(raw); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
	if !strings.HasPrefix(userAgentValue, "Mozilla/5.0") {
		t.Error("user agent should look like a browser")
	}
}
