// Package scan provides a forward-only text cursor for sequential regex scans.
package scan

import "regexp"

// Cursor is a read position inside a text. It is a value type: Find never
// mutates the receiver, it returns the advanced cursor.
type Cursor struct {
	text string
	pos  int
}

// New returns a cursor at the start of text.
func New(text string) Cursor {
	return Cursor{text: text}
}

// Pos returns the byte offset of the cursor.
func (c Cursor) Pos() int { return c.pos }

// Rest returns the unconsumed text.
func (c Cursor) Rest() string { return c.text[c.pos:] }

// Done reports whether the whole text has been consumed.
func (c Cursor) Done() bool { return c.pos >= len(c.text) }

// Find searches the unconsumed text for re. On a match it returns the
// submatches (index 0 is the whole match) and a cursor positioned just past
// the match. On a miss it returns the receiver unchanged.
func (c Cursor) Find(re *regexp.Regexp) ([]string, Cursor, bool) {
	loc := re.FindStringSubmatchIndex(c.text[c.pos:])
	if loc == nil {
		return nil, c, false
	}
	groups := make([]string, len(loc)/2)
	for i := range groups {
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			continue
		}
		groups[i] = c.text[c.pos+start : c.pos+end]
	}
	next := Cursor{text: c.text, pos: c.pos + loc[1]}
	// an empty match must still make progress
	if loc[1] == loc[0] && next.pos < len(c.text) {
		next.pos++
	}
	return groups, next, true
}

// Group is Find returning only the first capture group.
func (c Cursor) Group(re *regexp.Regexp) (string, Cursor, bool) {
	groups, next, ok := c.Find(re)
	if !ok || len(groups) < 2 {
		return "", c, false
	}
	return groups[1], next, true
}
