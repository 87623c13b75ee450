package answer

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// cjk covers CJK Symbols and Punctuation, Extension A, Unified Ideographs,
// Compatibility Ideographs and Extension B.
var cjk = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3000, Hi: 0x303f, Stride: 1},
		{Lo: 0x3400, Hi: 0x4dbf, Stride: 1},
		{Lo: 0x4e00, Hi: 0x9fff, Stride: 1},
		{Lo: 0xf900, Hi: 0xfaff, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x20000, Hi: 0x2a6df, Stride: 1},
	},
}

// ContainsCJK reports whether s has at least one CJK character.
func ContainsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(cjk, r) {
			return true
		}
	}
	return false
}

// Normalize narrows full-width ASCII (U+FF01 to U+FF5E) and the ideographic
// space, removes punctuation and collapses whitespace runs into single spaces.
// Half-width katakana and the full-width currency signs are left as they are.
func Normalize(s string) string {
	stripped := strings.Map(func(r rune) rune {
		r = narrowASCII(r)
		if isPunctuation(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(stripped), " ")
}

func narrowASCII(r rune) rune {
	if r == '\u3000' {
		return ' '
	}
	if r < 0xff01 || r > 0xff5e {
		return r
	}
	if narrow := width.LookupRune(r).Narrow(); narrow != 0 {
		return narrow
	}
	return r
}

func isPunctuation(r rune) bool {
	if unicode.IsPunct(r) {
		return true
	}
	if r < unicode.MaxASCII && unicode.IsSymbol(r) {
		return true
	}
	return unicode.In(r, cjk) && unicode.IsSymbol(r)
}

// Compare reports whether actual matches expected.
//
// Strings match after normalization, exactly when either side has CJK text and
// case-insensitively otherwise. Lists of equal length match when the sets of
// their lowercased normalized elements are equal, so order and duplicates are
// ignored. Maps match when they have the same number of keys and every
// expected key is present in actual with a matching value. Any other pairing
// requires structural equality.
func Compare(expected, actual Answer) bool {
	if expected.IsAbsent() || actual.IsAbsent() {
		return expected.IsAbsent() && actual.IsAbsent()
	}

	switch {
	case expected.kind == KindString && actual.kind == KindString:
		return compareText(expected.text, actual.text)
	case expected.kind == KindList && actual.kind == KindList:
		return compareLists(expected.items, actual.items)
	case expected.kind == KindMap && actual.kind == KindMap:
		return compareMaps(expected.fields, actual.fields)
	default:
		return Equal(expected, actual)
	}
}

func compareText(expected, actual string) bool {
	if ContainsCJK(expected) || ContainsCJK(actual) {
		return Normalize(expected) == Normalize(actual)
	}
	return strings.EqualFold(Normalize(expected), Normalize(actual))
}

func compareLists(expected, actual []Answer) bool {
	if len(expected) != len(actual) {
		return false
	}

	want := elementSet(expected)
	got := elementSet(actual)
	if len(want) != len(got) {
		return false
	}
	for key := range want {
		if _, ok := got[key]; !ok {
			return false
		}
	}
	return true
}

func elementSet(items []Answer) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[strings.ToLower(Normalize(stringForm(item)))] = struct{}{}
	}
	return set
}

func stringForm(a Answer) string {
	if a.kind == KindAbsent {
		return "null"
	}
	return Format(a)
}

func compareMaps(expected, actual map[string]Answer) bool {
	if len(expected) != len(actual) {
		return false
	}
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !Compare(want, got) {
			return false
		}
	}
	return true
}

// Equal reports structural equality: same kind and identical contents.
func Equal(a, b Answer) bool {
	if a.kind != b.kind {
		return false
	}

	switch a.kind {
	case KindAbsent:
		return true
	case KindString, KindScalar:
		return a.text == b.text
	case KindList:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for key, value := range a.fields {
			other, ok := b.fields[key]
			if !ok || !Equal(value, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
