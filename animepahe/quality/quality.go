// Package quality picks one episode candidate by resolution.
package quality

import (
	"regexp"
	"strconv"

	"github.com/ytget/pahedl/errs"
	"github.com/ytget/pahedl/internal/logger"
	"github.com/ytget/pahedl/types"
)

// Selection policies besides an exact height.
const (
	Highest = 0
	Lowest  = -1
)

var heightRe = regexp.MustCompile(`\b(\d{3,4})p\b`)

// ParseHeight extracts the vertical resolution from a label such as
// "SubsPlease · 720p (105MB) BD". It returns 0 when no height is present.
func ParseHeight(label string) int {
	m := heightRe.FindStringSubmatch(label)
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}

// Select picks a candidate:
//
//	target == Highest  max height, first seen wins ties
//	target == Lowest   min height, first seen wins ties
//	target > 0         first exact match, else Highest
//
// Targets below Lowest are treated as Highest. Candidates are expected in
// page order, preferred audio track first, so ties favour it.
func Select(candidates []types.EpisodeCandidate, target int) (types.EpisodeCandidate, error) {
	if len(candidates) == 0 {
		return types.EpisodeCandidate{}, errs.ErrEmptyCandidateSet
	}
	log := logger.WithComponent(logger.ComponentSelector)

	if target > 0 {
		for _, c := range candidates {
			if exactHeight(c, target) {
				log.Debug("exact match", logger.Fields{"target": target, "label": c.DisplayName})
				return c, nil
			}
		}
		log.Debug("no exact match, using highest", logger.Fields{"target": target})
		target = Highest
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if target == Lowest {
			if lower(c, best) {
				best = c
			}
			continue
		}
		if higher(c, best) {
			best = c
		}
	}
	log.Debug("selected", logger.Fields{"policy": Describe(target), "label": best.DisplayName, "height": best.ResolutionHeight})
	return best, nil
}

// Describe renders a target for display.
func Describe(target int) string {
	switch {
	case target == Lowest:
		return "Lowest Available"
	case target > 0:
		return strconv.Itoa(target) + "p"
	default:
		return "Max Available"
	}
}
