package packer

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ytget/pahedl/types"
)

const (
	// digitSet is the positional digit set shared by every source and target base.
	digitSet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ+/"

	minBase = 2
	maxBase = len(digitSet)

	// DefaultTargetBase is the intermediate base used by every known locker page.
	DefaultTargetBase = 10
)

// Decode turns a packed payload into plain text.
//
// The alphabet must hold the digit symbols for 0..base-1 followed by the run
// delimiter at index base, so len(alphabet) > base. A trailing delimiter ends
// the last run; any other empty run is rejected.
func Decode(payload string, base int, alphabet string, offset int, targetBase int) (string, error) {
	index, delim, err := symbolTable(alphabet, base)
	if err != nil {
		return "", err
	}
	if targetBase < minBase || targetBase > maxBase {
		return "", NewError(ErrCodeAlphabetMismatch, "target base out of range", map[string]any{"target_base": targetBase})
	}
	if payload == "" {
		return "", NewError(ErrCodePayloadEmpty, "payload is empty")
	}

	runes := []rune(payload)
	var out strings.Builder
	out.Grow(len(runes) / 2)
	numeral := make([]byte, 0, 16)

	for i := 0; i <= len(runes); i++ {
		if i < len(runes) && runes[i] != delim {
			k, ok := index[runes[i]]
			if !ok {
				return "", NewError(ErrCodeSymbolUnknown, "symbol not in alphabet", map[string]any{"symbol": string(runes[i]), "position": i})
			}
			numeral = strconv.AppendInt(numeral, int64(k), 10)
			continue
		}
		if len(numeral) == 0 {
			if i == len(runes) {
				break
			}
			return "", NewError(ErrCodePayloadEmpty, "empty run", map[string]any{"position": i})
		}
		r, err := decodeRun(numeral, base, offset, targetBase)
		if err != nil {
			return "", err
		}
		out.WriteRune(r)
		numeral = numeral[:0]
	}
	return out.String(), nil
}

// DecodeParams decodes scraped parameters. A zero TargetBase means DefaultTargetBase.
func DecodeParams(p types.DecodeParameters) (string, error) {
	target := p.TargetBase
	if target == 0 {
		target = DefaultTargetBase
	}
	return Decode(p.EncodedPayload, p.SourceBase, p.SourceAlphabet, p.NumericOffset, target)
}

// Encode is the inverse of Decode for the default target base. Bases above
// 10 are not supported because every digit must survive the decimal index
// substitution unchanged. An empty plaintext encodes to an empty payload.
func Encode(plaintext string, base int, alphabet string, offset int) (string, error) {
	_, delim, err := symbolTable(alphabet, base)
	if err != nil {
		return "", err
	}
	if base > DefaultTargetBase {
		return "", NewError(ErrCodeAlphabetMismatch, "encoding requires base <= 10", map[string]any{"base": base})
	}
	symbols := []rune(alphabet)

	var out strings.Builder
	for _, r := range plaintext {
		v := int64(r) + int64(offset)
		if v < 0 {
			return "", NewError(ErrCodeCodepointInvalid, "offset makes value negative", map[string]any{"rune": string(r)})
		}
		for _, d := range render(v, base) {
			out.WriteRune(symbols[d-'0'])
		}
		out.WriteRune(delim)
	}
	return out.String(), nil
}

func symbolTable(alphabet string, base int) (map[rune]int, rune, error) {
	if base < minBase || base > maxBase {
		return nil, 0, NewError(ErrCodeAlphabetMismatch, "base out of range", map[string]any{"base": base})
	}
	symbols := []rune(alphabet)
	if len(symbols) <= base {
		return nil, 0, NewError(ErrCodeAlphabetMismatch, "alphabet has no delimiter for base", map[string]any{"base": base, "alphabet": alphabet})
	}
	index := make(map[rune]int, len(symbols))
	for i, s := range symbols {
		if _, dup := index[s]; dup {
			return nil, 0, NewError(ErrCodeAlphabetMismatch, "duplicate symbol in alphabet", map[string]any{"symbol": string(s)})
		}
		index[s] = i
	}
	return index, symbols[base], nil
}

func decodeRun(numeral []byte, base, offset, targetBase int) (rune, error) {
	value, err := parseNumeral(numeral, base)
	if err != nil {
		return 0, err
	}
	v, err := rebase(value, targetBase)
	if err != nil {
		return 0, err
	}
	code := v - int64(offset)
	if code < 0 || code > utf8.MaxRune || !utf8.ValidRune(rune(code)) {
		return 0, NewError(ErrCodeCodepointInvalid, "value is not a character", map[string]any{"value": code})
	}
	return rune(code), nil
}

// parseNumeral reads s in base, last character least significant.
func parseNumeral(s []byte, base int) (int64, error) {
	var value int64
	for _, c := range s {
		d := strings.IndexByte(digitSet, c)
		if d < 0 || d >= base {
			return 0, NewError(ErrCodeDigitOutOfRange, "digit outside base", map[string]any{"digit": string(c), "base": base})
		}
		if value > (math.MaxInt64-int64(d))/int64(base) {
			return 0, NewError(ErrCodeNumeralOverflow, "numeral overflows int64", map[string]any{"numeral": string(s)})
		}
		value = value*int64(base) + int64(d)
	}
	return value, nil
}

// rebase renders value in targetBase and reads its leading decimal digits back as base 10.
func rebase(value int64, targetBase int) (int64, error) {
	if targetBase == 10 {
		return value, nil
	}
	s := render(value, targetBase)
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == 0 {
		return 0, NewError(ErrCodeDigitOutOfRange, "rendered numeral has no leading decimal digits", map[string]any{"rendered": s})
	}
	v, err := strconv.ParseInt(s[:n], 10, 64)
	if err != nil {
		return 0, NewError(ErrCodeNumeralOverflow, "rendered numeral overflows int64", map[string]any{"rendered": s})
	}
	return v, nil
}

func render(value int64, base int) string {
	if value == 0 {
		return digitSet[:1]
	}
	var buf [64]byte
	i := len(buf)
	for value > 0 {
		i--
		buf[i] = digitSet[value%int64(base)]
		value /= int64(base)
	}
	return string(buf[i:])
}
