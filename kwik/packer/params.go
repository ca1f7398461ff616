package packer

import (
	"regexp"
	"strconv"

	"github.com/ytget/pahedl/internal/scan"
	"github.com/ytget/pahedl/types"
)

// paramsRe matches ("<payload>", N, "<alphabet>", <offset>, <base>, N[a-zA-Z]?).
var paramsRe = regexp.MustCompile(`\(\s*"([^",]*)"\s*,\s*\d+\s*,\s*"([^",]*)"\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*\d+[a-zA-Z]?\s*\)`)

// FindParameters returns the first packed call literal in text.
func FindParameters(text string) (types.DecodeParameters, bool) {
	p, _, ok := NextParameters(scan.New(text))
	return p, ok
}

// NextParameters returns the next packed call literal after c and the cursor past it.
func NextParameters(c scan.Cursor) (types.DecodeParameters, scan.Cursor, bool) {
	for {
		groups, next, ok := c.Find(paramsRe)
		if !ok {
			return types.DecodeParameters{}, c, false
		}
		offset, err1 := strconv.Atoi(groups[3])
		base, err2 := strconv.Atoi(groups[4])
		if err1 == nil && err2 == nil {
			return types.DecodeParameters{
				EncodedPayload: groups[1],
				SourceAlphabet: groups[2],
				SourceBase:     base,
				TargetBase:     DefaultTargetBase,
				NumericOffset:  offset,
			}, next, true
		}
		c = next
	}
}
