// Package listlit parses list-valued annotation cells. Models emit lists
// either as JSON arrays or as Python-style literals (single-quoted strings,
// None/True/False), so both notations are accepted.
package listlit

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotList is returned when a value parses but is not a list.
var ErrNotList = eris.New("listlit: value is not a list")

// Parse decodes s as a JSON array, falling back to a Python list literal.
func Parse(s string) ([]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, eris.New("listlit: empty value")
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		list, ok := v.([]any)
		if !ok {
			return nil, ErrNotList
		}
		return list, nil
	}

	p := &parser{src: s}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, eris.Errorf("listlit: trailing input at offset %d", p.pos)
	}
	list, ok := v.(pyList)
	if !ok {
		return nil, ErrNotList
	}
	return []any(list), nil
}

// Len returns the number of elements of the list encoded in s.
func Len(s string) (int, error) {
	list, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// pyList distinguishes a bracketed list from tuples and sets, which are
// parsed but do not count as lists.
type (
	pyList  []any
	pyTuple []any
	pySet   []any
)

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) errorf(format string, args ...any) error {
	return eris.Errorf("listlit: "+format+" at offset %d", append(args, p.pos)...)
}

func (p *parser) parseValue() (any, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == '[':
		items, err := p.parseSeq('[', ']')
		return pyList(items), err
	case c == '(':
		return p.parseParen()
	case c == '{':
		return p.parseBrace()
	case c == '\'' || c == '"':
		return p.parseStrings()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	case isIdentStart(c):
		return p.parseName()
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	default:
		return nil, p.errorf("unexpected %q", c)
	}
}

// parseSeq reads comma separated values between open and close, allowing a
// trailing comma.
func (p *parser) parseSeq(open, closing byte) ([]any, error) {
	if p.peek() != open {
		return nil, p.errorf("expected %q", open)
	}
	p.pos++
	items := []any{}
	for {
		p.skipSpace()
		if p.peek() == closing {
			p.pos++
			return items, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closing:
			p.pos++
			return items, nil
		default:
			return nil, p.errorf("expected ',' or %q", closing)
		}
	}
}

// parseParen handles tuples and parenthesized expressions: "(1)" is the
// value 1, "(1,)" and "()" are tuples.
func (p *parser) parseParen() (any, error) {
	p.pos++
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return pyTuple{}, nil
	}
	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return first, nil
	}
	if p.peek() != ',' {
		return nil, p.errorf("expected ',' or ')'")
	}
	rest, err := p.parseSeq(',', ')')
	if err != nil {
		return nil, err
	}
	return append(pyTuple{first}, rest...), nil
}

// parseBrace handles dict and set displays.
func (p *parser) parseBrace() (any, error) {
	p.pos++
	dict := map[string]any{}
	var set pySet
	isSet := false
	for i := 0; ; i++ {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			break
		}
		key, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if i == 0 && p.peek() != ':' {
			isSet = true
		}
		if isSet {
			set = append(set, key)
		} else {
			if p.peek() != ':' {
				return nil, p.errorf("expected ':'")
			}
			p.pos++
			val, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			dict[toKey(key)] = val
		}
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			if isSet {
				return set, nil
			}
			return dict, nil
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
	if isSet {
		return set, nil
	}
	return dict, nil
}

// parseStrings reads one or more adjacent string literals, which Python
// concatenates.
func (p *parser) parseStrings() (any, error) {
	var b strings.Builder
	for {
		s, err := p.parseString()
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
		p.skipSpace()
		if c := p.peek(); c != '\'' && c != '"' {
			return b.String(), nil
		}
	}
}

func (p *parser) parseString() (string, error) {
	quote := p.src[p.pos]
	triple := strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3))
	if triple {
		p.pos += 3
	} else {
		p.pos++
	}
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			b.WriteString(unescape(p.src[p.pos+1]))
			p.pos += 2
		case triple && strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3)):
			p.pos += 3
			return b.String(), nil
		case !triple && c == quote:
			p.pos++
			return b.String(), nil
		case !triple && c == '\n':
			return "", p.errorf("newline in string")
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string")
}

func unescape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return "\x00"
	default:
		return string(c)
	}
}

func (p *parser) parseNumber() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '_' || c == 'e' || c == 'E' ||
			((c == '-' || c == '+') && (p.pos == start || p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E')) {
			p.pos++
			continue
		}
		break
	}
	lit := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		p.pos = start
		return nil, p.errorf("bad number %q", lit)
	}
	return f, nil
}

func (p *parser) parseName() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && (isIdentStart(p.src[p.pos]) || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
		p.pos++
	}
	name := p.src[start:p.pos]
	switch name {
	case "None":
		return nil, nil
	case "True":
		return true, nil
	case "False":
		return false, nil
	}
	// String prefixes such as r'..', u'..', b'..'.
	if c := p.peek(); (c == '\'' || c == '"') && len(name) <= 2 && strings.Trim(strings.ToLower(name), "rub") == "" {
		return p.parseStrings()
	}
	p.pos = start
	return nil, p.errorf("unknown name %q", name)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func toKey(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case nil:
		return "None"
	default:
		b, _ := json.Marshal(k)
		return string(b)
	}
}
