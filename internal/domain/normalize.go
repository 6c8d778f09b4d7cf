package domain

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// turkishFold maps each Turkish letter to its ASCII base letter.
var turkishFold = map[rune]rune{
	'Ç': 'C', 'ç': 'c',
	'Ğ': 'G', 'ğ': 'g',
	'İ': 'I', 'ı': 'i',
	'Ö': 'O', 'ö': 'o',
	'Ş': 'S', 'ş': 's',
	'Ü': 'U', 'ü': 'u',
	'Â': 'A', 'â': 'a',
}

// combiningDotAbove is left behind when İ is lowercased or decomposed.
const combiningDotAbove = '\u0307'

// mojibakeCharsets are the single-byte code pages that UTF-8 province names
// have been observed to be mis-decoded through, in the order they are tried.
var mojibakeCharsets = []*charmap.Charmap{
	charmap.Windows1250,
	charmap.Windows1252,
}

// NameNormalizer canonicalizes province names so that boundary attributes,
// spreadsheet columns and user input compare equal.
type NameNormalizer struct {
	onFailure func(raw, segment string)
}

// NewNameNormalizer returns a normalizer that reports every substring it
// could not repair through onFailure. A nil callback discards the reports.
func NewNameNormalizer(onFailure func(raw, segment string)) *NameNormalizer {
	return &NameNormalizer{onFailure: onFailure}
}

var defaultNormalizer = NewNameNormalizer(nil)

// NormalizeName is Normalize on a normalizer without failure reporting.
func NormalizeName(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// Normalize repairs mis-decoded Turkish letters, folds them to ASCII and
// lowercases the result. Substrings that cannot be repaired pass through
// unchanged. Normalize is idempotent.
func (n *NameNormalizer) Normalize(raw string) string {
	repaired := n.repair(raw)

	var b strings.Builder
	b.Grow(len(repaired))
	for _, r := range repaired {
		if r == combiningDotAbove {
			continue
		}
		if folded, ok := turkishFold[r]; ok {
			r = folded
		}
		b.WriteRune(r)
	}
	return strings.ToLower(strings.TrimSpace(b.String()))
}

func (n *NameNormalizer) repair(raw string) []rune {
	runes := []rune(raw)
	out := make([]rune, 0, len(runes))
	var failed []rune

	flush := func() {
		if len(failed) > 0 && n.onFailure != nil {
			n.onFailure(raw, string(failed))
		}
		failed = failed[:0]
	}

	for i := 0; i < len(runes); {
		r := runes[i]
		if r < utf8.RuneSelf || r == combiningDotAbove || isTurkishLetter(r) {
			flush()
			out = append(out, r)
			i++
			continue
		}
		if decoded, size, ok := decodeMojibake(runes[i:]); ok {
			flush()
			out = append(out, decoded)
			i += size
			continue
		}
		failed = append(failed, r)
		out = append(out, r)
		i++
	}
	flush()
	return out
}

func isTurkishLetter(r rune) bool {
	_, ok := turkishFold[r]
	return ok
}

// decodeMojibake tries to read one UTF-8 sequence whose bytes were each
// decoded as a single code-page character. Only sequences that decode to a
// Turkish letter are accepted, so the output never contains a new lead
// character that a second pass could decode again.
func decodeMojibake(rs []rune) (rune, int, bool) {
	for _, cm := range mojibakeCharsets {
		lead, ok := cm.EncodeRune(rs[0])
		if !ok {
			continue
		}
		size := utf8SequenceLen(lead)
		if size == 0 || len(rs) < size {
			continue
		}
		buf := []byte{lead}
		for k := 1; k < size; k++ {
			b, ok := cm.EncodeRune(rs[k])
			if !ok || b&0xC0 != 0x80 {
				buf = nil
				break
			}
			buf = append(buf, b)
		}
		if buf == nil {
			continue
		}
		r, w := utf8.DecodeRune(buf)
		if r == utf8.RuneError || w != size || !isTurkishLetter(r) {
			continue
		}
		return r, size, true
	}
	return 0, 0, false
}

func utf8SequenceLen(lead byte) int {
	switch {
	case lead >= 0xC2 && lead <= 0xDF:
		return 2
	case lead >= 0xE0 && lead <= 0xEF:
		return 3
	case lead >= 0xF0 && lead <= 0xF4:
		return 4
	default:
		return 0
	}
}
