package sexpr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SyntaxError reports malformed djvused text.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sexpr: %s at offset %d", e.Msg, e.Offset)
}

// Parse reads exactly one value from s.
func Parse(s string) (Value, error) {
	vals, err := ParseAll(s)
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, &SyntaxError{Offset: len(s), Msg: fmt.Sprintf("expected one expression, found %d", len(vals))}
	}
	return vals[0], nil
}

// ParseAll reads every top-level value in s, in order.
func ParseAll(s string) ([]Value, error) {
	p := &parser{src: s}
	var out []Value
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == ';':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) value() (Value, error) {
	switch c := p.src[p.pos]; c {
	case '(':
		p.pos++
		list := List{}
		for {
			p.skipSpace()
			if p.pos >= len(p.src) {
				return nil, p.errorf("unterminated list")
			}
			if p.src[p.pos] == ')' {
				p.pos++
				return list, nil
			}
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
	case ')':
		return nil, p.errorf("unexpected )")
	case '"':
		return p.str()
	case '|':
		return p.quotedSymbol()
	default:
		return p.atom()
	}
}

func (p *parser) str() (Value, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return String(sb.String()), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return nil, p.errorf("unterminated escape")
			}
			if err := p.escape(&sb); err != nil {
				return nil, err
			}
		default:
			_, n := utf8.DecodeRuneInString(p.src[p.pos:])
			sb.WriteString(p.src[p.pos : p.pos+n])
			p.pos += n
		}
	}
	return nil, p.errorf("unterminated string")
}

var simpleEscapes = map[byte]byte{
	'a': '\a', 'b': '\b', 't': '\t', 'n': '\n', 'v': '\v', 'f': '\f', 'r': '\r', '"': '"', '\\': '\\',
}

func (p *parser) escape(sb *strings.Builder) error {
	c := p.src[p.pos]
	if r, ok := simpleEscapes[c]; ok {
		sb.WriteByte(r)
		p.pos++
		return nil
	}
	switch {
	case c == '\n':
		p.pos++
		return nil
	case c >= '0' && c <= '7':
		end := p.pos
		for end < len(p.src) && end-p.pos < 3 && p.src[end] >= '0' && p.src[end] <= '7' {
			end++
		}
		n, err := strconv.ParseUint(p.src[p.pos:end], 8, 8)
		if err != nil {
			return p.errorf("octal escape \\%s out of range", p.src[p.pos:end])
		}
		sb.WriteByte(byte(n))
		p.pos = end
		return nil
	case c == 'x':
		end := p.pos + 1
		for end < len(p.src) && end-p.pos <= 2 && isHex(p.src[end]) {
			end++
		}
		if end == p.pos+1 {
			return p.errorf("bad hex escape")
		}
		n, _ := strconv.ParseUint(p.src[p.pos+1:end], 16, 8)
		sb.WriteByte(byte(n))
		p.pos = end
		return nil
	}
	return p.errorf("unknown escape \\%c", c)
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func (p *parser) quotedSymbol() (Value, error) {
	end := strings.IndexByte(p.src[p.pos+1:], '|')
	if end < 0 {
		return nil, p.errorf("unterminated |symbol|")
	}
	sym := p.src[p.pos+1 : p.pos+1+end]
	p.pos += end + 2
	return Symbol(sym), nil
}

func (p *parser) atom() (Value, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '(' || c == ')' || c == '"' || c == ';' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v' {
			break
		}
		p.pos++
	}
	tok := p.src[start:p.pos]
	if n, err := strconv.Atoi(tok); err == nil && isInteger(tok) {
		return Int(n), nil
	}
	return Symbol(tok), nil
}

func isInteger(tok string) bool {
	if tok == "" {
		return false
	}
	if tok[0] == '+' || tok[0] == '-' {
		tok = tok[1:]
	}
	if tok == "" {
		return false
	}
	for i := 0; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return false
		}
	}
	return true
}
