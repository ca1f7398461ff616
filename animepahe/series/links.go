package series

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ytget/pahedl/errs"
	"github.com/ytget/pahedl/types"
)

// DefaultBaseURL is the public animepahe origin.
const DefaultBaseURL = "https://animepahe.ru"

var (
	seriesIDRe  = regexp.MustCompile(`anime/([a-f0-9-]{36})`)
	seriesPath  = regexp.MustCompile(`^/anime/[a-f0-9\-]{36}$`)
	episodePath = regexp.MustCompile(`^/play/[a-f0-9\-]{36}/[a-f0-9]{64}$`)
	rangeRe     = regexp.MustCompile(`^(\d+)-(\d+)$`)
)

// SeriesID extracts the 36 character series id from a link.
func SeriesID(link string) (string, error) {
	m := seriesIDRe.FindStringSubmatch(link)
	if len(m) < 2 {
		return "", fmt.Errorf("%w: no series id in %q", errs.ErrInvalidLink, link)
	}
	return m[1], nil
}

// IsSeriesLink reports whether link is an animepahe series page.
func IsSeriesLink(link string) bool {
	return IsSeriesLinkOn(DefaultBaseURL, link)
}

// IsEpisodeLink reports whether link is an animepahe play page.
func IsEpisodeLink(link string) bool {
	return IsEpisodeLinkOn(DefaultBaseURL, link)
}

// IsSeriesLinkOn is IsSeriesLink for another origin.
func IsSeriesLinkOn(base, link string) bool {
	rest, ok := pathOn(base, link)
	return ok && seriesPath.MatchString(rest)
}

// IsEpisodeLinkOn is IsEpisodeLink for another origin.
func IsEpisodeLinkOn(base, link string) bool {
	rest, ok := pathOn(base, link)
	return ok && episodePath.MatchString(rest)
}

// pathOn returns what follows the origin base in link.
func pathOn(base, link string) (string, bool) {
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(link, base) {
		return "", false
	}
	return link[len(base):], true
}

// ParseRange accepts "all" or "N-M" with N > 0 and M > N.
func ParseRange(s string) (types.EpisodeRange, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return types.EpisodeRange{All: true}, nil
	}
	m := rangeRe.FindStringSubmatch(s)
	if m == nil {
		return types.EpisodeRange{}, fmt.Errorf("%w: %q is not \"all\" or N-M", errs.ErrInvalidRange, s)
	}
	start, err1 := strconv.Atoi(m[1])
	end, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return types.EpisodeRange{}, fmt.Errorf("%w: %q", errs.ErrInvalidRange, s)
	}
	if start <= 0 || end <= start {
		return types.EpisodeRange{}, fmt.Errorf("%w: need 0 < start < end, got %d-%d", errs.ErrInvalidRange, start, end)
	}
	return types.EpisodeRange{Start: start, End: end}, nil
}

// PageOf returns the 1-based release page holding episode n.
func PageOf(n int) int {
	if p := (n + pageSize - 1) / pageSize; p > 1 {
		return p
	}
	return 1
}

// PaginationRange lists the pages covering episodes start..end.
func PaginationRange(start, end int) []int {
	first, last := PageOf(start), PageOf(end)
	pages := make([]int, 0, last-first+1)
	for p := first; p <= last; p++ {
		pages = append(pages, p)
	}
	return pages
}
