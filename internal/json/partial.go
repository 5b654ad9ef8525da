package json

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ParsePartial parses a possibly truncated JSON document.
//
// A complete document (optionally fenced or embedded in prose) decodes exactly
// as encoding/json would. A truncated one yields the deepest structure that can
// be recovered: complete members are kept, an unterminated string keeps the
// characters received so far, and incomplete keys and literals are dropped.
// The second result is false when nothing could be recovered.
func ParsePartial(s string) (any, bool) {
	if complete, err := extractJSON(s); err == nil {
		var v any
		if err := json.Unmarshal([]byte(complete), &v); err == nil {
			return v, true
		}
	}

	s = stripMarkdownCodeBlocks(s)
	start := valueStart(s)
	if start < 0 {
		return nil, false
	}

	p := &parser{s: s, pos: start}
	v, ok, _ := p.value()
	return v, ok
}

// ParseObject parses a possibly truncated JSON object. Anything that is not
// (yet) an object yields an empty map, never nil.
func ParseObject(s string) map[string]any {
	v, ok := ParsePartial(s)
	if !ok {
		return map[string]any{}
	}
	obj, isObject := v.(map[string]any)
	if !isObject {
		return map[string]any{}
	}
	return obj
}

// parser is a recursive-descent JSON reader that stops quietly at the end of
// input or at the first malformed byte.
type parser struct {
	s   string
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.s)
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// value parses the value at the cursor. ok reports whether anything usable was
// recovered; complete reports whether the value was fully terminated.
func (p *parser) value() (v any, ok, complete bool) {
	p.skipSpace()
	if p.eof() {
		return nil, false, false
	}
	switch c := p.s[p.pos]; {
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		str, done := p.str()
		return str, true, done
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return p.literal()
	}
}

func (p *parser) object() (any, bool, bool) {
	p.pos++
	obj := map[string]any{}
	for {
		p.skipSpace()
		if p.eof() {
			return obj, true, false
		}
		switch p.s[p.pos] {
		case '}':
			p.pos++
			return obj, true, true
		case ',':
			p.pos++
			continue
		case '"':
		default:
			return obj, true, false
		}

		key, done := p.str()
		if !done {
			return obj, true, false
		}
		p.skipSpace()
		if p.eof() || p.s[p.pos] != ':' {
			return obj, true, false
		}
		p.pos++

		v, ok, done := p.value()
		if ok {
			obj[key] = v
		}
		if !done {
			return obj, true, false
		}
	}
}

func (p *parser) array() (any, bool, bool) {
	p.pos++
	arr := []any{}
	for {
		p.skipSpace()
		if p.eof() {
			return arr, true, false
		}
		switch p.s[p.pos] {
		case ']':
			p.pos++
			return arr, true, true
		case ',':
			p.pos++
			continue
		}

		v, ok, done := p.value()
		if ok {
			arr = append(arr, v)
		}
		if !done {
			return arr, true, false
		}
	}
}

// str reads a string starting at the opening quote. An unterminated string
// returns its decoded prefix with done=false.
func (p *parser) str() (string, bool) {
	start := p.pos
	p.pos++
	for !p.eof() {
		switch p.s[p.pos] {
		case '\\':
			p.pos += 2
			continue
		case '"':
			p.pos++
			var out string
			if err := json.Unmarshal([]byte(p.s[start:p.pos]), &out); err != nil {
				return "", false
			}
			return out, true
		}
		p.pos++
	}
	p.pos = len(p.s)
	return decodePartialString(p.s[start+1:]), false
}

// decodePartialString decodes the body of an unterminated string, discarding a
// trailing escape sequence that has not fully arrived.
func decodePartialString(body string) string {
	if !evenBackslashes(body) {
		body = body[:len(body)-1]
	}
	if i := strings.LastIndex(body, `\u`); i >= 0 && len(body)-i < 6 && !evenBackslashes(body[:i+1]) {
		body = body[:i]
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+body+`"`), &out); err != nil {
		return ""
	}
	return out
}

// evenBackslashes reports whether s ends with an even run of backslashes.
func evenBackslashes(s string) bool {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n%2 == 0
}

func (p *parser) number() (any, bool, bool) {
	start := p.pos
	for !p.eof() && strings.IndexByte("+-0123456789.eE", p.s[p.pos]) >= 0 {
		p.pos++
	}
	f, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return nil, false, false
	}
	return f, true, !p.eof()
}

var literals = []struct {
	text  string
	value any
}{
	{"true", true},
	{"false", false},
	{"null", nil},
}

func (p *parser) literal() (any, bool, bool) {
	rest := p.s[p.pos:]
	for _, lit := range literals {
		if strings.HasPrefix(rest, lit.text) {
			p.pos += len(lit.text)
			return lit.value, true, true
		}
	}
	p.pos = len(p.s)
	return nil, false, false
}

// isLiteralPrefix reports whether s begins with a (possibly truncated) literal.
func isLiteralPrefix(s string) bool {
	for _, lit := range literals {
		n := len(s)
		if n > len(lit.text) {
			n = len(lit.text)
		}
		if s[:n] == lit.text[:n] {
			return true
		}
	}
	return false
}
