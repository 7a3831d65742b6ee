// Package sexpr holds the nested symbolic-expression values exchanged with
// document accessors and writers, and the djvused text syntax for them.
package sexpr

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Value is one of Symbol, String, Int or List.
type Value interface {
	sexpr()
}

// Symbol is a bare atom such as page, line or bookmarks.
type Symbol string

// String is a quoted string atom.
type String string

// Int is an integer atom.
type Int int

// List is an ordered list of values. A nil List and an empty List are equal.
type List []Value

func (Symbol) sexpr() {}

func (String) sexpr() {}

func (Int) sexpr() {}

func (List) sexpr() {}

func (s Symbol) String() string { return Format(s) }

func (s String) String() string { return quote(string(s)) }

func (i Int) String() string { return strconv.Itoa(int(i)) }

func (l List) String() string { return Format(l) }

// Equal reports whether a and b are structurally identical: same kinds,
// same atoms and the same element order.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case Symbol:
		y, ok := b.(Symbol)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of v. Atoms are immutable and returned as is.
func Clone(v Value) Value {
	l, ok := v.(List)
	if !ok {
		return v
	}
	if l == nil {
		return List(nil)
	}
	out := make(List, len(l))
	for i, e := range l {
		out[i] = Clone(e)
	}
	return out
}

// Format prints v in djvused syntax. A nil value prints as the empty list.
func Format(v Value) string {
	var sb strings.Builder
	write(&sb, v)
	return sb.String()
}

func write(sb *strings.Builder, v Value) {
	switch x := v.(type) {
	case nil:
		sb.WriteString("()")
	case Symbol:
		if needsBars(string(x)) {
			sb.WriteByte('|')
			sb.WriteString(string(x))
			sb.WriteByte('|')
		} else {
			sb.WriteString(string(x))
		}
	case String:
		sb.WriteString(quote(string(x)))
	case Int:
		sb.WriteString(strconv.Itoa(int(x)))
	case List:
		sb.WriteByte('(')
		for i, e := range x {
			if i > 0 {
				sb.WriteByte(' ')
			}
			write(sb, e)
		}
		sb.WriteByte(')')
	}
}

// needsBars reports whether sym would read back as something else when
// printed bare.
func needsBars(sym string) bool {
	if sym == "" || isInteger(sym) {
		return true
	}
	return strings.ContainsAny(sym, "()\"; \t\n\r\f\v")
}

// quote escapes control characters with the C escapes djvused understands and
// keeps printable UTF-8 as is.
func quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); {
		r, n := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && n == 1 {
			writeOctal(&sb, rune(s[i]))
			i++
			continue
		}
		i += n
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\a':
			sb.WriteString(`\a`)
		case '\b':
			sb.WriteString(`\b`)
		case '\t':
			sb.WriteString(`\t`)
		case '\n':
			sb.WriteString(`\n`)
		case '\v':
			sb.WriteString(`\v`)
		case '\f':
			sb.WriteString(`\f`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7f {
				writeOctal(&sb, r)
				continue
			}
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func writeOctal(sb *strings.Builder, r rune) {
	o := strconv.FormatInt(int64(r), 8)
	sb.WriteByte('\\')
	sb.WriteString(strings.Repeat("0", 3-len(o)))
	sb.WriteString(o)
}

// Describe prints v for error messages, truncating long output.
func Describe(v Value) string {
	s := Format(v)
	const max = 80
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}
