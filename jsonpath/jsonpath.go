// Package jsonpath implements the partial JSON string escaping used
// for path and string values inside registry files: only the quote
// and backslash characters are escaped. This is deliberately narrower
// than full JSON string escaping (control characters, unicode escapes,
// etc. are left untouched) because registry files are hand-authored
// and their string fields are overwhelmingly filesystem paths, which
// don't contain newlines or control characters in practice.
//
// activitylog implements its own, wider escaping scheme for arbitrary
// log strings (which can contain newlines); the two schemes are kept
// separate rather than unified, matching the asymmetry of what they
// each need to represent.
package jsonpath

import "strings"

// Escape returns s with '"' and '\\' backslash-escaped, suitable for
// embedding between double quotes in a registry JSON value.
func Escape(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unescape reverses Escape: any byte following a backslash is taken
// literally (not just '"' and '\\'), matching the original's
// unconditional one-byte lookahead.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaping := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaping {
			b.WriteByte(c)
			escaping = false
			continue
		}
		if c == '\\' {
			escaping = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// View is a borrowed, JSON-escaped view over a path or string value
// read from a registry file: the bytes are exactly as they appeared
// between the surrounding quotes, still escaped. AsString unescapes
// them on demand; View itself never allocates.
type View struct {
	raw string
}

// NewView wraps the raw (still-escaped) contents of a JSON string
// literal, excluding the surrounding quotes.
func NewView(raw string) View {
	return View{raw: raw}
}

// Raw returns the escaped bytes as they appeared in the source.
func (v View) Raw() string {
	return v.raw
}

// AsString returns the unescaped value.
func (v View) AsString() string {
	return Unescape(v.raw)
}

// AsPath is an alias for AsString used where the value is known to be
// a filesystem path, for readability at call sites.
func (v View) AsPath() string {
	return v.AsString()
}

func (v View) String() string {
	return v.AsString()
}

// Equal reports whether v and w denote the same unescaped value.
func (v View) Equal(w View) bool {
	if v.raw == w.raw {
		return true
	}
	return v.AsString() == w.AsString()
}
