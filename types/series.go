package types

import "fmt"

// SeriesInfo describes an anime series page.
type SeriesInfo struct {
	ID           string
	Title        string
	Type         string
	EpisodeCount int
}

// EpisodeInfo describes a single play page.
type EpisodeInfo struct {
	Title  string
	Number string
}

// EpisodeRange selects episodes of a series. Start and End are 1-based and inclusive.
type EpisodeRange struct {
	Start int
	End   int
	All   bool
}

// String renders the range the way it is accepted on the command line.
func (r EpisodeRange) String() string {
	if r.All {
		return "all"
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Len returns the number of episodes covered by a bounded range.
func (r EpisodeRange) Len() int {
	if r.All || r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// EpisodeResult is the outcome of resolving one episode in a batch.
type EpisodeResult struct {
	Index      int
	PageLink   string
	LockerLink string
	DirectLink string
	Candidate  EpisodeCandidate
	Err        error
}

// OK reports whether the episode resolved to a direct link.
func (r EpisodeResult) OK() bool {
	return r.Err == nil && r.DirectLink != ""
}
