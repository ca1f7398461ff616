package types

// EpisodeCandidate is one downloadable variant of an episode as listed on its play page.
type EpisodeCandidate struct {
	LockerLink       string
	DisplayName      string
	ResolutionHeight int // 0 when unknown
}

// DecodeParameters holds the arguments scraped from a packed script call.
// Values are per attempt and never reused.
type DecodeParameters struct {
	EncodedPayload string
	SourceAlphabet string
	SourceBase     int
	TargetBase     int
	NumericOffset  int
}

// ResolvedLink is the material needed for a single token exchange.
type ResolvedLink struct {
	IntermediateLink string
	CSRFToken        string
	SessionCookie    string
}

// Ready reports whether the token exchange can be attempted.
func (r ResolvedLink) Ready() bool {
	return r.IntermediateLink != "" && r.CSRFToken != ""
}
