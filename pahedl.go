package pahedl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ytget/pahedl/animepahe/episode"
	"github.com/ytget/pahedl/animepahe/quality"
	"github.com/ytget/pahedl/animepahe/series"
	"github.com/ytget/pahedl/downloader"
	"github.com/ytget/pahedl/errs"
	"github.com/ytget/pahedl/internal/logger"
	"github.com/ytget/pahedl/internal/metrics"
	"github.com/ytget/pahedl/internal/mimeext"
	"github.com/ytget/pahedl/internal/sanitize"
	"github.com/ytget/pahedl/kwik/locker"
	"github.com/ytget/pahedl/kwik/packer"
	"github.com/ytget/pahedl/pkg/client"
	"github.com/ytget/pahedl/types"
)

// Progress reports a finished episode of a batch.
type Progress struct {
	Done   int
	Total  int
	Result types.EpisodeResult
}

// Options contains the configuration of an Extractor.
//
// Use chainable setters on Extractor to populate these options.
type Options struct {
	HTTPClient   *http.Client
	Client       *client.Client
	Quality      int
	MaxAttempts  int
	Engine       packer.Engine
	CookieName   string
	ProgressFunc func(Progress)
	BaseURL      string
	LockerPrefix string
	Metrics      *metrics.Metrics

	DownloadProgress func(downloader.Progress)
	RateLimitBps     int64
	ChunkSize        int64
}

// Extractor resolves episodes and series one episode at a time.
type Extractor struct {
	options Options
}

// New creates an Extractor that picks the highest quality and makes up to
// locker.DefaultMaxAttempts attempts per locker link.
func New() *Extractor {
	return &Extractor{options: Options{
		Quality:      quality.Highest,
		MaxAttempts:  locker.DefaultMaxAttempts,
		CookieName:   locker.DefaultCookieName,
		BaseURL:      series.DefaultBaseURL,
		LockerPrefix: episode.DefaultLockerPrefix,
	}}
}

// WithHTTPClient sets a custom HTTP client to be used for all network calls.
func (e *Extractor) WithHTTPClient(hc *http.Client) *Extractor {
	e.options.HTTPClient = hc
	return e
}

// WithClient sets a fully configured client. It takes precedence over WithHTTPClient.
func (e *Extractor) WithClient(c *client.Client) *Extractor {
	e.options.Client = c
	return e
}

// WithQuality sets the target height: quality.Highest, quality.Lowest or a height like 720.
func (e *Extractor) WithQuality(target int) *Extractor {
	e.options.Quality = target
	return e
}

// WithMaxAttempts bounds locker attempts per episode.
func (e *Extractor) WithMaxAttempts(n int) *Extractor {
	e.options.MaxAttempts = n
	return e
}

// WithEngine sets the script engine used when native decoding fails. nil disables it.
func (e *Extractor) WithEngine(engine packer.Engine) *Extractor {
	e.options.Engine = engine
	return e
}

// WithCookieName changes the locker session cookie name.
func (e *Extractor) WithCookieName(name string) *Extractor {
	e.options.CookieName = name
	return e
}

// WithProgress registers a callback invoked after every episode of a batch.
func (e *Extractor) WithProgress(f func(Progress)) *Extractor {
	e.options.ProgressFunc = f
	return e
}

// WithBaseURL points series and play page links at another origin.
func (e *Extractor) WithBaseURL(base string) *Extractor {
	e.options.BaseURL = strings.TrimRight(base, "/")
	return e
}

// WithLockerPrefix changes which play page anchors count as candidates.
func (e *Extractor) WithLockerPrefix(prefix string) *Extractor {
	e.options.LockerPrefix = prefix
	return e
}

// WithMetrics records resolution and download metrics on m.
func (e *Extractor) WithMetrics(m *metrics.Metrics) *Extractor {
	e.options.Metrics = m
	return e
}

// WithDownloadProgress registers a callback that receives download progress.
func (e *Extractor) WithDownloadProgress(f func(downloader.Progress)) *Extractor {
	e.options.DownloadProgress = f
	return e
}

// WithRateLimit sets a download rate limit in bytes per second. Zero disables limiting.
func (e *Extractor) WithRateLimit(bytesPerSecond int64) *Extractor {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	e.options.RateLimitBps = bytesPerSecond
	return e
}

// WithChunkSize sets the size of ranged download requests.
func (e *Extractor) WithChunkSize(n int64) *Extractor {
	e.options.ChunkSize = n
	return e
}

// Options returns a copy of the current options.
func (e *Extractor) Options() Options { return e.options }

func (e *Extractor) client() *client.Client {
	if e.options.Client != nil {
		return e.options.Client
	}
	c := client.New()
	if e.options.HTTPClient != nil {
		c.HTTPClient = e.options.HTTPClient
	}
	return c
}

func (e *Extractor) resolver(c *client.Client) *locker.Resolver {
	return locker.New(c).
		WithMaxAttempts(e.options.MaxAttempts).
		WithEngine(e.options.Engine).
		WithMetrics(e.options.Metrics).
		WithCookieName(e.options.CookieName)
}

func (e *Extractor) fetcher(c *client.Client) *episode.Fetcher {
	return episode.New(c).WithLockerPrefix(e.options.LockerPrefix)
}

func (e *Extractor) series(c *client.Client) *series.Client {
	return series.New(c).WithBaseURL(e.options.BaseURL)
}

// ResolveEpisodeDirectLink resolves a locker link into the final download link.
func (e *Extractor) ResolveEpisodeDirectLink(ctx context.Context, lockerPageLink string) (string, error) {
	return e.resolver(e.client()).Resolve(ctx, lockerPageLink)
}

// SelectCandidate applies the quality policy to candidates.
func (e *Extractor) SelectCandidate(candidates []types.EpisodeCandidate, target int) (types.EpisodeCandidate, error) {
	return quality.Select(candidates, target)
}

// Candidates lists the locker links of a play page.
func (e *Extractor) Candidates(ctx context.Context, episodePage string) ([]types.EpisodeCandidate, error) {
	return e.fetcher(e.client()).ListCandidates(ctx, episodePage)
}

// EpisodeInfo reads the title and number shown on a play page.
func (e *Extractor) EpisodeInfo(ctx context.Context, episodePage string) (types.EpisodeInfo, error) {
	return e.fetcher(e.client()).Info(ctx, episodePage)
}

// SeriesInfo reads the metadata of a series page.
func (e *Extractor) SeriesInfo(ctx context.Context, seriesLink string) (types.SeriesInfo, error) {
	return e.series(e.client()).Info(ctx, seriesLink)
}

// EpisodeLinks lists the play pages of rng.
func (e *Extractor) EpisodeLinks(ctx context.Context, seriesLink string, rng types.EpisodeRange) ([]string, error) {
	return e.series(e.client()).EpisodeLinks(ctx, seriesLink, rng)
}

// ResolveEpisode picks a candidate on a play page and resolves it. The
// returned result carries the error too.
func (e *Extractor) ResolveEpisode(ctx context.Context, episodePage string) (types.EpisodeResult, error) {
	c := e.client()
	res := e.resolveEpisode(ctx, e.fetcher(c), e.resolver(c), episodePage)
	e.options.Metrics.Episode(res.OK())
	return res, res.Err
}

func (e *Extractor) resolveEpisode(ctx context.Context, f *episode.Fetcher, r *locker.Resolver, episodePage string) types.EpisodeResult {
	res := types.EpisodeResult{PageLink: episodePage}
	candidate, err := f.Pick(ctx, episodePage, e.options.Quality)
	if err != nil {
		res.Err = err
		return res
	}
	res.Candidate = candidate
	res.LockerLink = candidate.LockerLink

	direct, err := r.Resolve(ctx, candidate.LockerLink)
	if err != nil {
		res.Err = err
		return res
	}
	res.DirectLink = direct
	return res
}

// ResolveSeries resolves every episode of rng in order. A failing episode
// is recorded in its result and the batch continues. The error is non-nil
// only when the episode list cannot be built or ctx is done.
func (e *Extractor) ResolveSeries(ctx context.Context, seriesLink string, rng types.EpisodeRange) ([]types.EpisodeResult, error) {
	c := e.client()
	episodes, err := e.series(c).Episodes(ctx, seriesLink, rng)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent(logger.ComponentApp)
	f, r := e.fetcher(c), e.resolver(c)

	results := make([]types.EpisodeResult, 0, len(episodes))
	for i, ep := range episodes {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		var res types.EpisodeResult
		if ep.Link == "" {
			res.Err = fmt.Errorf("%w: episode %d has no play page", errs.ErrNoCandidatesFound, ep.Number)
		} else {
			res = e.resolveEpisode(ctx, f, r, ep.Link)
		}
		res.Index = ep.Number
		e.options.Metrics.Episode(res.OK())
		if res.Err != nil {
			log.Warn("episode failed", logger.Fields{"episode": res.Index, "error": res.Err.Error()})
		} else {
			log.Debug("episode resolved", logger.Fields{"episode": res.Index, "quality": res.Candidate.DisplayName})
		}
		results = append(results, res)
		if e.options.ProgressFunc != nil {
			e.options.ProgressFunc(Progress{Done: i + 1, Total: len(episodes), Result: res})
		}
	}
	return results, nil
}

// Download saves directLink. An empty outputPath or a directory gets a
// file name derived from the link, falling back to title.
func (e *Extractor) Download(ctx context.Context, directLink, outputPath, title string) (string, error) {
	if outputPath == "" {
		outputPath = OutputName(directLink, title)
	} else if fi, err := os.Stat(outputPath); err == nil && fi.IsDir() {
		outputPath = filepath.Join(outputPath, OutputName(directLink, title))
	}

	dl := downloader.New(e.client().HTTPClient, e.options.DownloadProgress, e.options.RateLimitBps).
		WithMetrics(e.options.Metrics).
		WithChunkSize(e.options.ChunkSize)
	if err := dl.Download(ctx, directLink, outputPath); err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	return outputPath, nil
}

// OutputName derives a safe file name from a final link. The kwik CDN
// carries the uploaded file name in the "file" query parameter.
func OutputName(directLink, title string) string {
	var name string
	if u, err := url.Parse(directLink); err == nil {
		name = u.Query().Get("file")
		if name == "" {
			name = path.Base(u.Path)
		}
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" || base == "." || base == "/" {
		base = title
	}
	return sanitize.ToSafeFilename(base, mimeext.ExtFromName(name))
}
