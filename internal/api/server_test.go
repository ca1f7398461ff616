package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ytget/pahedl"
	"github.com/ytget/pahedl/internal/metrics"
)

const (
	base     = "http://animepahe.test"
	seriesID = "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0"
)

var playLink = fmt.Sprintf("%s/play/%s/%064x", base, seriesID, 1)

func upstream(t *testing.T) *http.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Host == "animepahe.test" && r.URL.Path == "/api":
			fmt.Fprintf(w, `{"total":2,"data":[{"session":"%064x"},{"session":"%064x"}]}`, 1, 2)
		case r.Host == "animepahe.test" && strings.HasPrefix(r.URL.Path, "/anime/"):
			fmt.Fprint(w, `<h1><span style="x" title="Frieren">Frieren</span></h1><p><strong>Type:<a href="/t" title="TV">TV</a></strong></p><p><strong>Episodes:</strong> 2</p>`)
		case r.Host == "animepahe.test" && strings.HasPrefix(r.URL.Path, "/play/"):
			fmt.Fprint(w, `<a href="http://pahe.test/a720">SubsPlease · 720p (100MB)</a><a href="http://pahe.test/a1080">SubsPlease · 1080p (200MB)</a>`)
		case r.Host == "pahe.test" && r.URL.Path == "/gone":
			http.NotFound(w, r)
		case r.Host == "pahe.test":
			fmt.Fprintf(w, `"http://kwik.test/f%s"`, r.URL.Path)
		case r.Host == "kwik.test":
			w.Header().Set("Location", "http://cdn.test"+strings.TrimPrefix(r.URL.Path, "/f")+".mp4")
			w.WriteHeader(http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	addr := srv.Listener.Addr().String()
	return &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	e := pahedl.New().
		WithHTTPClient(upstream(t)).
		WithBaseURL(base).
		WithLockerPrefix("http://pahe.test/")
	m := metrics.New()
	return New(e.WithMetrics(m), m).Handler()
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Origin", "http://ui.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("bad JSON %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func q(link string) string {
	return strings.NewReplacer(":", "%3A", "/", "%2F").Replace(link)
}

func TestHealth(t *testing.T) {
	rec, body := get(t, newTestServer(t), "/health")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("CORS header missing: %v", rec.Header())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("request id header missing")
	}
}

func TestCandidates(t *testing.T) {
	rec, body := get(t, newTestServer(t), "/candidates?link="+q(playLink))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	list, _ := body["candidates"].([]any)
	if len(list) != 2 {
		t.Fatalf("candidates = %v", body["candidates"])
	}
	first := list[0].(map[string]any)
	if first["height"] != float64(720) || first["locker_link"] != "http://pahe.test/a720" {
		t.Errorf("first candidate = %v", first)
	}
}

func TestEpisode(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantDirect string
	}{
		{query: "", wantStatus: http.StatusOK, wantDirect: "http://cdn.test/a1080.mp4"},
		{query: "&quality=720", wantStatus: http.StatusOK, wantDirect: "http://cdn.test/a720.mp4"},
		{query: "&quality=-1", wantStatus: http.StatusOK, wantDirect: "http://cdn.test/a720.mp4"},
		{query: "&quality=480", wantStatus: http.StatusOK, wantDirect: "http://cdn.test/a1080.mp4"},
		{query: "&quality=-2", wantStatus: http.StatusBadRequest},
		{query: "&quality=hd", wantStatus: http.StatusBadRequest},
	}
	h := newTestServer(t)
	for _, tt := range tests {
		rec, body := get(t, h, "/episode?link="+q(playLink)+tt.query)
		if rec.Code != tt.wantStatus {
			t.Errorf("%q: status = %d, body %v", tt.query, rec.Code, body)
			continue
		}
		if tt.wantDirect != "" && body["direct_link"] != tt.wantDirect {
			t.Errorf("%q: direct_link = %v", tt.query, body["direct_link"])
		}
	}
}

func TestResolve(t *testing.T) {
	h := newTestServer(t)

	rec, body := get(t, h, "/resolve?link="+q("http://pahe.test/xyz"))
	if rec.Code != http.StatusOK || body["direct_link"] != "http://cdn.test/xyz.mp4" {
		t.Fatalf("resolve = %d %v", rec.Code, body)
	}

	rec, body = get(t, h, "/resolve?link="+q("http://pahe.test/gone"))
	if rec.Code != http.StatusBadGateway || body["code"] != "upstream_unavailable" {
		t.Errorf("gone = %d %v", rec.Code, body)
	}

	rec, body = get(t, h, "/resolve?link="+q("https://example.com/x"))
	if rec.Code != http.StatusBadRequest || body["code"] != "invalid_link" {
		t.Errorf("foreign = %d %v", rec.Code, body)
	}
}

func TestSeries(t *testing.T) {
	h := newTestServer(t)
	link := q(base + "/anime/" + seriesID)

	rec, body := get(t, h, "/series?link="+link)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %v", rec.Code, body)
	}
	if body["title"] != "Frieren" || body["type"] != "TV" || body["total"] != float64(2) {
		t.Errorf("series = %v", body)
	}
	if eps, _ := body["episodes"].([]any); len(eps) != 2 {
		t.Errorf("episodes = %v", body["episodes"])
	}

	rec, body = get(t, h, "/series?link="+link+"&episodes=1-9")
	if rec.Code != http.StatusBadRequest || body["code"] != "invalid_range" {
		t.Errorf("out of range = %d %v", rec.Code, body)
	}
}

func TestInvalidEpisodeLink(t *testing.T) {
	h := newTestServer(t)
	for _, path := range []string{"/candidates", "/episode", "/series"} {
		rec, body := get(t, h, path+"?link=nope")
		if rec.Code != http.StatusBadRequest || body["code"] != "invalid_link" {
			t.Errorf("%s: %d %v", path, rec.Code, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)
	get(t, h, "/resolve?link="+q("http://pahe.test/m1"))

	rec, _ := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `pahedl_resolutions_total{outcome="ok"} 1`) {
		t.Errorf("metrics output missing resolution counter:\n%s", rec.Body.String())
	}
}
