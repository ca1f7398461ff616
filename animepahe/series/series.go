// Package series lists the episodes of an animepahe series through the release API.
package series

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/ytget/pahedl/errs"
	"github.com/ytget/pahedl/internal/logger"
	"github.com/ytget/pahedl/internal/scan"
	"github.com/ytget/pahedl/pkg/client"
	"github.com/ytget/pahedl/types"
)

// pageSize is the number of releases per API page.
const pageSize = 30

var (
	titleRe    = regexp.MustCompile(`style=[^=]+title="([^"]+)"`)
	typeRe     = regexp.MustCompile(`Type:[^>]*title="[^"]*"[^>]*>([^<]+)</a>`)
	episodesRe = regexp.MustCompile(`Episode[^>]*>\s*(\S*)</p`)
)

// Client talks to the release API and series pages.
type Client struct {
	client  *client.Client
	baseURL string
}

// New returns a Client using c, or a default client when c is nil.
func New(c *client.Client) *Client {
	if c == nil {
		c = client.New()
	}
	return &Client{client: c, baseURL: DefaultBaseURL}
}

// WithBaseURL points the client at another origin.
func (s *Client) WithBaseURL(base string) *Client {
	s.baseURL = strings.TrimRight(base, "/")
	return s
}

// BaseURL returns the origin in use.
func (s *Client) BaseURL() string { return s.baseURL }

// Episode is one release of a series. Link is empty when the release API
// lists the episode without a session.
type Episode struct {
	Number int
	Link   string
}

type releasePage struct {
	total int
	// one entry per listed release, "" for a release without a session
	sessions []string
}

func (s *Client) releasePage(ctx context.Context, seriesLink, id string, page int) (releasePage, error) {
	url := fmt.Sprintf("%s/api?m=release&id=%s&sort=episode_asc&page=%d", s.baseURL, id, page)
	body, err := s.get(ctx, url, seriesLink)
	if err != nil {
		return releasePage{}, err
	}
	if !gjson.Valid(body) {
		return releasePage{}, fmt.Errorf("%w: release page %d is not JSON", errs.ErrUpstreamUnavailable, page)
	}

	out := releasePage{total: int(gjson.Get(body, "total").Int())}
	log := logger.WithComponent(logger.ComponentSeries)
	gjson.Get(body, "data").ForEach(func(_, item gjson.Result) bool {
		session := item.Get("session").String()
		if session == "" {
			log.Warn("release without session", logger.Fields{"page": page, "episode": item.Get("episode").String()})
		}
		out.sessions = append(out.sessions, session)
		return true
	})
	return out, nil
}

// Total returns the number of episodes reported by the first release page.
func (s *Client) Total(ctx context.Context, seriesLink string) (int, error) {
	id, err := SeriesID(seriesLink)
	if err != nil {
		return 0, err
	}
	p, err := s.releasePage(ctx, seriesLink, id, 1)
	if err != nil {
		return 0, err
	}
	return p.total, nil
}

// EpisodeLinks returns play page links for rng in episode order. Episodes
// listed without a session have no link and are left out.
func (s *Client) EpisodeLinks(ctx context.Context, seriesLink string, rng types.EpisodeRange) ([]string, error) {
	episodes, err := s.Episodes(ctx, seriesLink, rng)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(episodes))
	for _, ep := range episodes {
		if ep.Link != "" {
			links = append(links, ep.Link)
		}
	}
	return links, nil
}

// Episodes returns the releases of rng in episode order, numbered by their
// position in the release listing. Only the pages covering rng are
// requested. A bounded range past the reported total fails with
// errs.ErrInvalidRange.
func (s *Client) Episodes(ctx context.Context, seriesLink string, rng types.EpisodeRange) ([]Episode, error) {
	id, err := SeriesID(seriesLink)
	if err != nil {
		return nil, err
	}
	if !rng.All && (rng.Start < 1 || rng.End < rng.Start) {
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidRange, rng)
	}

	first, err := s.releasePage(ctx, seriesLink, id, 1)
	if err != nil {
		return nil, err
	}
	total := first.total

	start, end := 1, total
	if !rng.All {
		if rng.Start > total || rng.End > total {
			return nil, fmt.Errorf("%w: %s for series with %d episodes", errs.ErrInvalidRange, rng, total)
		}
		start, end = rng.Start, rng.End
	}
	if total == 0 {
		return nil, nil
	}

	log := logger.WithComponent(logger.ComponentSeries)
	pages := PaginationRange(start, end)
	var sessions []string
	for _, page := range pages {
		if page == 1 {
			sessions = append(sessions, first.sessions...)
			continue
		}
		log.Debug("requesting page", logger.Fields{"series": id, "page": page})
		p, err := s.releasePage(ctx, seriesLink, id, page)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, p.sessions...)
	}

	// sessions[0] is episode offset+1
	offset := pageSize * (pages[0] - 1)
	episodes := make([]Episode, 0, end-start+1)
	for j, session := range sessions {
		i := offset + j
		if i < start-1 || i > end-1 {
			continue
		}
		ep := Episode{Number: i + 1}
		if session != "" {
			ep.Link = fmt.Sprintf("%s/play/%s/%s", s.baseURL, id, session)
		}
		episodes = append(episodes, ep)
	}
	log.Info("episodes collected", logger.Fields{"series": id, "range": rng.String(), "count": len(episodes)})
	return episodes, nil
}

// Info scrapes title, type and episode count from the series page.
func (s *Client) Info(ctx context.Context, seriesLink string) (types.SeriesInfo, error) {
	id, err := SeriesID(seriesLink)
	if err != nil {
		return types.SeriesInfo{}, err
	}
	body, err := s.get(ctx, seriesLink, seriesLink)
	if err != nil {
		return types.SeriesInfo{}, err
	}
	info := ParseInfo(body)
	info.ID = id
	return info, nil
}

// ParseInfo reads the metadata banner of a series page. Type and episode
// count are scanned in order with one cursor.
func ParseInfo(body string) types.SeriesInfo {
	var info types.SeriesInfo
	if title, _, ok := scan.New(body).Group(titleRe); ok {
		info.Title = html.UnescapeString(title)
	}

	c := scan.New(body)
	if kind, next, ok := c.Group(typeRe); ok {
		info.Type = strings.TrimSpace(html.UnescapeString(kind))
		c = next
	}
	if count, _, ok := c.Group(episodesRe); ok {
		if n, err := strconv.Atoi(count); err == nil {
			info.EpisodeCount = n
		}
	}
	return info
}

func (s *Client) get(ctx context.Context, url, referer string) (string, error) {
	resp, err := s.client.Get(ctx, url, client.BrowserHeaders(referer))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return "", fmt.Errorf("%w: %s returned %d", errs.ErrUpstreamUnavailable, url, resp.StatusCode)
	}
	body, err := client.ReadBody(resp)
	if err != nil {
		return "", err
	}
	return client.CleanText(string(body)), nil
}
