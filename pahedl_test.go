package pahedl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ytget/pahedl/animepahe/quality"
	"github.com/ytget/pahedl/errs"
	"github.com/ytget/pahedl/types"
)

const (
	testBase     = "http://animepahe.test"
	testSeriesID = "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0"
)

func session(n int) string { return fmt.Sprintf("%064x", n) }

// fakeSite serves the series API, play pages, locker pages and kwik for
// every host through one listener.
type fakeSite struct {
	mu   sync.Mutex
	hits map[string]int
	srv  *httptest.Server
	// episodes the release API lists without a session
	sessionless map[int]bool
}

func newFakeSite(t *testing.T, episodes int, broken map[int]bool) *fakeSite {
	t.Helper()
	f := &fakeSite{hits: map[string]int{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.Host+r.URL.Path]++
		sessionless := f.sessionless
		f.mu.Unlock()

		switch {
		case r.Host == "animepahe.test" && r.URL.Path == "/api":
			var items []string
			for n := 1; n <= episodes; n++ {
				sess := session(n)
				if sessionless[n] {
					sess = ""
				}
				items = append(items, fmt.Sprintf(`{"episode":%d,"session":%q}`, n, sess))
			}
			fmt.Fprintf(w, `{"total":%d,"data":[%s]}`, episodes, strings.Join(items, ","))
		case r.Host == "animepahe.test" && strings.HasPrefix(r.URL.Path, "/play/"):
			var n int
			fmt.Sscanf(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], "%x", &n)
			if broken[n] {
				fmt.Fprint(w, `<html><body><p>no mirrors</p></body></html>`)
				return
			}
			fmt.Fprintf(w, `<html><body><div id="pickDownload">
<a href="http://pahe.test/e%d-720" class="dropdown-item">SubsPlease &middot; 720p (105MB)</a>
<a href="http://pahe.test/e%d-1080" class="dropdown-item">SubsPlease &middot; 1080p (210MB) <span class="badge">BD</span></a>
</div></body></html>`, n, n)
		case r.Host == "pahe.test":
			fmt.Fprintf(w, `<script>var a = "http://kwik.test/f%s";</script>`, r.URL.Path)
		case r.Host == "kwik.test":
			w.Header().Set("Location", "http://cdn.test/get"+strings.TrimPrefix(r.URL.Path, "/f")+".mp4")
			w.WriteHeader(http.StatusFound)
		case r.Host == "cdn.test":
			w.Header().Set("Content-Length", "11")
			if r.Method != http.MethodHead {
				fmt.Fprint(w, "hello world")
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSite) httpClient() *http.Client {
	addr := f.srv.Listener.Addr().String()
	return &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
}

func (f *fakeSite) extractor() *Extractor {
	return New().
		WithHTTPClient(f.httpClient()).
		WithBaseURL(testBase).
		WithLockerPrefix("http://pahe.test/")
}

func TestResolveSeriesEpisodeWithoutSession(t *testing.T) {
	site := newFakeSite(t, 4, nil)
	site.mu.Lock()
	site.sessionless = map[int]bool{2: true}
	site.mu.Unlock()

	results, err := site.extractor().
		ResolveSeries(context.Background(), testBase+"/anime/"+testSeriesID, types.EpisodeRange{Start: 2, End: 3})
	if err != nil {
		t.Fatalf("ResolveSeries() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Index != 2 || results[0].OK() || !errors.Is(results[0].Err, errs.ErrNoCandidatesFound) {
		t.Errorf("episode 2 = %+v, want a failed result", results[0])
	}
	if results[1].Index != 3 || !results[1].OK() || results[1].PageLink != testBase+"/play/"+testSeriesID+"/"+session(3) {
		t.Errorf("episode 3 = %+v", results[1])
	}
}

func TestResolveSeriesContinuesPastFailures(t *testing.T) {
	site := newFakeSite(t, 4, map[int]bool{3: true})

	var progress []Progress
	results, err := site.extractor().
		WithProgress(func(p Progress) { progress = append(progress, p) }).
		ResolveSeries(context.Background(), testBase+"/anime/"+testSeriesID, types.EpisodeRange{Start: 2, End: 4})
	if err != nil {
		t.Fatalf("ResolveSeries() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}

	for i, res := range results {
		n := i + 2
		if res.Index != n {
			t.Errorf("result %d Index = %d, want %d", i, res.Index, n)
		}
		if n == 3 {
			if !errors.Is(res.Err, errs.ErrNoCandidatesFound) || res.OK() {
				t.Errorf("episode 3: want ErrNoCandidatesFound, got %+v", res)
			}
			continue
		}
		want := fmt.Sprintf("http://cdn.test/get/e%d-1080.mp4", n)
		if !res.OK() || res.DirectLink != want {
			t.Errorf("episode %d = %+v, want %s", n, res, want)
		}
		if res.Candidate.ResolutionHeight != 1080 {
			t.Errorf("episode %d picked %+v", n, res.Candidate)
		}
	}

	if len(progress) != 3 || progress[2].Done != 3 || progress[2].Total != 3 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestResolveSeriesAll(t *testing.T) {
	site := newFakeSite(t, 2, nil)
	results, err := site.extractor().WithQuality(quality.Lowest).
		ResolveSeries(context.Background(), testBase+"/anime/"+testSeriesID, types.EpisodeRange{All: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Index != 1 || results[1].Index != 2 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].DirectLink != "http://cdn.test/get/e1-720.mp4" {
		t.Errorf("lowest quality not honored: %+v", results[0])
	}
}

func TestResolveSeriesInvalidRange(t *testing.T) {
	site := newFakeSite(t, 2, nil)
	_, err := site.extractor().ResolveSeries(context.Background(), testBase+"/anime/"+testSeriesID, types.EpisodeRange{Start: 1, End: 5})
	if !errors.Is(err, errs.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestResolveEpisode(t *testing.T) {
	site := newFakeSite(t, 1, nil)
	page := fmt.Sprintf("%s/play/%s/%s", testBase, testSeriesID, session(1))

	res, err := site.extractor().WithQuality(720).ResolveEpisode(context.Background(), page)
	if err != nil {
		t.Fatalf("ResolveEpisode() error = %v", err)
	}
	if res.LockerLink != "http://pahe.test/e1-720" || res.DirectLink != "http://cdn.test/get/e1-720.mp4" {
		t.Errorf("ResolveEpisode() = %+v", res)
	}
	if res.Candidate.DisplayName != "SubsPlease · 720p (105MB)" {
		t.Errorf("DisplayName = %q", res.Candidate.DisplayName)
	}
}

func TestResolveEpisodeDirectLink(t *testing.T) {
	site := newFakeSite(t, 1, nil)
	got, err := site.extractor().ResolveEpisodeDirectLink(context.Background(), "http://pahe.test/abc")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://cdn.test/get/abc.mp4" {
		t.Errorf("got %q", got)
	}
}

func TestSelectCandidate(t *testing.T) {
	candidates := []types.EpisodeCandidate{
		{ResolutionHeight: 480, DisplayName: "A"},
		{ResolutionHeight: 720, DisplayName: "B"},
		{ResolutionHeight: 360, DisplayName: "C"},
	}
	tests := map[int]string{0: "B", -1: "C", 720: "B", 1080: "B"}
	e := New()
	for target, want := range tests {
		got, err := e.SelectCandidate(candidates, target)
		if err != nil || got.DisplayName != want {
			t.Errorf("SelectCandidate(%d) = %+v, %v; want %s", target, got, err, want)
		}
	}
	if _, err := e.SelectCandidate(nil, 0); !errors.Is(err, errs.ErrEmptyCandidateSet) {
		t.Errorf("expected ErrEmptyCandidateSet, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	site := newFakeSite(t, 1, nil)
	dir := t.TempDir()

	path, err := site.extractor().Download(context.Background(), "http://cdn.test/get/ep01.mp4", dir, "Frieren 01")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if path != filepath.Join(dir, "ep01.mp4") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello world" {
		t.Errorf("content = %q, %v", data, err)
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		link, title, want string
	}{
		{"https://eu-11.files.nextcdn.org/get/abc/AnimePahe_Frieren_-_01_1080p.mp4?token=x", "", "AnimePahe_Frieren_-_01_1080p.mp4"},
		{"https://eu-11.files.nextcdn.org/get/abc?file=Frieren_-_02.mkv", "", "Frieren_-_02.mkv"},
		{"https://eu-11.files.nextcdn.org/", "Frieren: 03", "Frieren_ 03.mp4"},
		{"::bad", "", "episode.mp4"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.link, tt.title); got != tt.want {
			t.Errorf("OutputName(%q, %q) = %q, want %q", tt.link, tt.title, got, tt.want)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := New().WithRateLimit(-5).Options()
	if o.Quality != quality.Highest || o.MaxAttempts != 5 || o.BaseURL != "https://animepahe.ru" || o.RateLimitBps != 0 {
		t.Errorf("defaults = %+v", o)
	}
}
