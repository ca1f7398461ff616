// Package episode scrapes animepahe play pages.
package episode

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ytget/pahedl/animepahe/quality"
	"github.com/ytget/pahedl/errs"
	"github.com/ytget/pahedl/internal/logger"
	"github.com/ytget/pahedl/internal/scan"
	"github.com/ytget/pahedl/pkg/client"
	"github.com/ytget/pahedl/types"
)

// DefaultLockerPrefix is the host every candidate link points at.
const DefaultLockerPrefix = "https://pahe.win/"

// infoRe matches the anime title link followed by the episode number.
var infoRe = regexp.MustCompile(`title="[^>]*>([^<]*)</a>\D*(\d*)<span`)

// Fetcher reads play pages.
type Fetcher struct {
	client       *client.Client
	lockerPrefix string
}

// New returns a Fetcher using c, or a default client when c is nil.
func New(c *client.Client) *Fetcher {
	if c == nil {
		c = client.New()
	}
	return &Fetcher{client: c, lockerPrefix: DefaultLockerPrefix}
}

// WithLockerPrefix changes which anchors count as candidates.
func (f *Fetcher) WithLockerPrefix(prefix string) *Fetcher {
	f.lockerPrefix = prefix
	return f
}

// ListCandidates returns every locker link on the play page in page order.
func (f *Fetcher) ListCandidates(ctx context.Context, episodePageLink string) ([]types.EpisodeCandidate, error) {
	body, err := f.fetch(ctx, episodePageLink)
	if err != nil {
		return nil, err
	}
	candidates, err := ParseCandidates(body, f.lockerPrefix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", episodePageLink, err)
	}
	logger.WithComponent(logger.ComponentScraper).Debug("candidates listed", logger.Fields{"link": episodePageLink, "count": len(candidates)})
	return candidates, nil
}

// Pick lists the candidates of a play page and selects one for target.
func (f *Fetcher) Pick(ctx context.Context, episodePageLink string, target int) (types.EpisodeCandidate, error) {
	candidates, err := f.ListCandidates(ctx, episodePageLink)
	if err != nil {
		return types.EpisodeCandidate{}, err
	}
	return quality.Select(candidates, target)
}

// Info reads the anime title and episode number shown on a play page.
func (f *Fetcher) Info(ctx context.Context, episodePageLink string) (types.EpisodeInfo, error) {
	body, err := f.fetch(ctx, episodePageLink)
	if err != nil {
		return types.EpisodeInfo{}, err
	}
	return ParseInfo(body), nil
}

func (f *Fetcher) fetch(ctx context.Context, link string) (string, error) {
	resp, err := f.client.Get(ctx, link, client.BrowserHeaders(link))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", link, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return "", fmt.Errorf("%w: %s returned %d", errs.ErrUpstreamUnavailable, link, resp.StatusCode)
	}
	return client.ReadText(resp)
}

// ParseCandidates extracts anchors whose href starts with lockerPrefix and
// whose text carries a size annotation. The label is the anchor text cut
// after that annotation, e.g. "SubsPlease · 720p (105MB)".
func ParseCandidates(body, lockerPrefix string) ([]types.EpisodeCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse play page: %w", err)
	}

	var out []types.EpisodeCandidate
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if !strings.HasPrefix(href, lockerPrefix) || len(href) == len(lockerPrefix) {
			return
		}
		label, ok := label(s.Text())
		if !ok {
			return
		}
		out = append(out, types.EpisodeCandidate{
			LockerLink:       href,
			DisplayName:      label,
			ResolutionHeight: quality.ParseHeight(label),
		})
	})

	if len(out) == 0 {
		return nil, errs.ErrNoCandidatesFound
	}
	return out, nil
}

func label(text string) (string, bool) {
	text = strings.Join(strings.Fields(text), " ")
	i := strings.IndexByte(text, ')')
	if i < 0 {
		return "", false
	}
	return text[:i+1], true
}

// ParseInfo extracts the title and episode number from a play page body.
// Missing values are left empty.
func ParseInfo(body string) types.EpisodeInfo {
	groups, _, ok := scan.New(body).Find(infoRe)
	if !ok {
		return types.EpisodeInfo{}
	}
	return types.EpisodeInfo{
		Title:  strings.TrimSpace(html.UnescapeString(groups[1])),
		Number: groups[2],
	}
}
