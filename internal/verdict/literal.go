package verdict

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// maxDepth bounds nesting of lists and records.
const maxDepth = 32

// Kind identifies the type of a literal value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindNone
	KindList
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindNone:
		return "None"
	case KindList:
		return "list"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Value is a parsed literal. Only the field matching Kind is meaningful.
type Value struct {
	Kind   Kind
	Str    string
	Int    int64
	Float  float64
	Bool   bool
	Items  []Value
	Fields []Field
}

// Field is one key/value pair of a record, in source order.
type Field struct {
	Key   string
	Value Value
}

// Lookup returns the value stored under key.
func (v Value) Lookup(key string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// syntaxError is a grammar failure at a byte offset of the parsed text.
type syntaxError struct {
	Offset int
	Msg    string
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Msg, e.Offset)
}

// parseLiteral parses src as exactly one literal. The accepted grammar is
// lists, records with quoted string keys, quoted strings, integers, floats,
// True, False and None, separated by whitespace. Anything else, including
// text after the literal, is rejected.
func parseLiteral(src string) (Value, error) {
	p := &literalParser{src: src}
	p.skipSpace()
	if p.pos >= len(p.src) {
		return Value{}, p.errorf("empty input")
	}
	v, err := p.value(0)
	if err != nil {
		return Value{}, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return Value{}, p.errorf("unexpected trailing text %q", preview(p.src[p.pos:], 20))
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return &syntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) value(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, p.errorf("nesting deeper than %d", maxDepth)
	}
	p.skipSpace()
	if p.pos >= len(p.src) {
		return Value{}, p.errorf("unexpected end of input")
	}
	c := p.src[p.pos]
	switch {
	case c == '[':
		return p.list(depth)
	case c == '{':
		return p.record(depth)
	case c == '"' || c == '\'':
		s, err := p.str()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: s}, nil
	case c == '-' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		return p.keyword()
	default:
		return Value{}, p.errorf("unexpected character %q", rune(c))
	}
}

func (p *literalParser) list(depth int) (Value, error) {
	p.pos++ // [
	v := Value{Kind: KindList, Items: []Value{}}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Value{}, p.errorf("unterminated list")
		}
		if p.src[p.pos] == ']' {
			p.pos++
			return v, nil
		}
		item, err := p.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		v.Items = append(v.Items, item)
		if err := p.separator(']'); err != nil {
			return Value{}, err
		}
	}
}

func (p *literalParser) record(depth int) (Value, error) {
	p.pos++ // {
	v := Value{Kind: KindRecord, Fields: []Field{}}
	seen := make(map[string]bool)
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Value{}, p.errorf("unterminated record")
		}
		if p.src[p.pos] == '}' {
			p.pos++
			return v, nil
		}
		c := p.src[p.pos]
		if c != '"' && c != '\'' {
			return Value{}, p.errorf("record key must be a quoted string")
		}
		keyPos := p.pos
		key, err := p.str()
		if err != nil {
			return Value{}, err
		}
		if seen[key] {
			return Value{}, &syntaxError{Offset: keyPos, Msg: fmt.Sprintf("duplicate key %q", key)}
		}
		seen[key] = true
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return Value{}, p.errorf("expected ':' after record key")
		}
		p.pos++
		val, err := p.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		v.Fields = append(v.Fields, Field{Key: key, Value: val})
		if err := p.separator('}'); err != nil {
			return Value{}, err
		}
	}
}

// separator consumes a ',' or leaves the closing delimiter for the caller.
func (p *literalParser) separator(closing byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return p.errorf("expected ',' or %q", rune(closing))
	}
	switch p.src[p.pos] {
	case ',':
		p.pos++
		return nil
	case closing:
		return nil
	default:
		return p.errorf("expected ',' or %q", rune(closing))
	}
}

func (p *literalParser) str() (string, error) {
	quote := p.src[p.pos]
	start := p.pos
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\n' || c == '\r':
			return "", p.errorf("newline in string literal")
		case c == '\\':
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			if r == utf8.RuneError && size == 1 {
				return "", p.errorf("invalid UTF-8 in string literal")
			}
			b.WriteString(p.src[p.pos : p.pos+size])
			p.pos += size
		}
	}
	p.pos = start
	return "", p.errorf("unterminated string literal")
}

func (p *literalParser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return p.errorf("unterminated escape sequence")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '\\', '\'', '"', '/':
		b.WriteByte(c)
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'a':
		b.WriteByte('\a')
	case 'v':
		b.WriteByte('\v')
	case 'x':
		r, err := p.hexRune(2)
		if err != nil {
			return err
		}
		b.WriteRune(r)
	case 'u':
		r, err := p.hexRune(4)
		if err != nil {
			return err
		}
		if utf16.IsSurrogate(r) {
			r = p.lowSurrogate(r)
		}
		b.WriteRune(r)
	case 'U':
		r, err := p.hexRune(8)
		if err != nil {
			return err
		}
		if r < 0 || r > unicode.MaxRune {
			p.pos -= 10
			return p.errorf("unicode escape out of range")
		}
		b.WriteRune(r)
	case '0', '1', '2', '3', '4', '5', '6', '7':
		n := rune(c - '0')
		for i := 0; i < 2 && p.pos < len(p.src) && isOctal(p.src[p.pos]); i++ {
			n = n*8 + rune(p.src[p.pos]-'0')
			p.pos++
		}
		b.WriteRune(n)
	default:
		p.pos -= 2
		return p.errorf("unknown escape sequence \\%c", c)
	}
	return nil
}

// hexRune reads exactly n hex digits following an escape letter.
func (p *literalParser) hexRune(n int) (rune, error) {
	if p.pos+n > len(p.src) {
		p.pos -= 2
		return 0, p.errorf("truncated \\%c escape", p.src[p.pos+1])
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+n], 16, 32)
	if err != nil {
		p.pos -= 2
		return 0, p.errorf("invalid \\%c escape", p.src[p.pos+1])
	}
	p.pos += n
	return rune(v), nil
}

// lowSurrogate combines a high surrogate with a directly following \uXXXX
// low surrogate. Unpaired surrogates become U+FFFD.
func (p *literalParser) lowSurrogate(hi rune) rune {
	rest := p.src[p.pos:]
	if hi >= 0xDC00 || len(rest) < 6 || rest[0] != '\\' || rest[1] != 'u' {
		return unicode.ReplacementChar
	}
	lo, err := strconv.ParseUint(rest[2:6], 16, 32)
	if err != nil {
		return unicode.ReplacementChar
	}
	r := utf16.DecodeRune(hi, rune(lo))
	if r == unicode.ReplacementChar {
		return r
	}
	p.pos += 6
	return r
}

func (p *literalParser) number() (Value, error) {
	start := p.pos
	if p.src[p.pos] == '-' {
		p.pos++
	}
	digits := p.pos
	for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == digits {
		return Value{}, p.errorf("expected digit")
	}
	isFloat := false
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		isFloat = true
		p.pos++
		frac := p.pos
		for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
			p.pos++
		}
		if p.pos == frac {
			return Value{}, p.errorf("expected digit after decimal point")
		}
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		isFloat = true
		p.pos++
		if p.pos < len(p.src) && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
			p.pos++
		}
		exp := p.pos
		for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
			p.pos++
		}
		if p.pos == exp {
			return Value{}, p.errorf("expected exponent digits")
		}
	}
	if p.pos < len(p.src) && isIdentStart(p.src[p.pos]) {
		return Value{}, p.errorf("unexpected character %q after number", rune(p.src[p.pos]))
	}
	text := p.src[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, &syntaxError{Offset: start, Msg: fmt.Sprintf("invalid number %q", text)}
		}
		return Value{Kind: KindFloat, Float: f}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Value{}, &syntaxError{Offset: start, Msg: fmt.Sprintf("invalid number %q", text)}
	}
	return Value{Kind: KindInt, Int: n}, nil
}

func (p *literalParser) keyword() (Value, error) {
	start := p.pos
	for p.pos < len(p.src) && (isIdentStart(p.src[p.pos]) || isDigit(p.src[p.pos])) {
		p.pos++
	}
	switch word := p.src[start:p.pos]; word {
	case "True":
		return Value{Kind: KindBool, Bool: true}, nil
	case "False":
		return Value{Kind: KindBool, Bool: false}, nil
	case "None":
		return Value{Kind: KindNone}, nil
	default:
		return Value{}, &syntaxError{Offset: start, Msg: fmt.Sprintf("unexpected identifier %q", word)}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isOctal(c byte) bool { return c >= '0' && c <= '7' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
