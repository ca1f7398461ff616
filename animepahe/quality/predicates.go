package quality

import "github.com/ytget/pahedl/types"

// exactHeight reports whether c has exactly the requested height.
func exactHeight(c types.EpisodeCandidate, height int) bool {
	return height > 0 && c.ResolutionHeight == height
}

// higher reports whether candidate strictly beats current. Equal heights
// keep current so the earlier entry wins.
func higher(candidate, current types.EpisodeCandidate) bool {
	return candidate.ResolutionHeight > current.ResolutionHeight
}

// lower is the mirror of higher.
func lower(candidate, current types.EpisodeCandidate) bool {
	return candidate.ResolutionHeight < current.ResolutionHeight
}
