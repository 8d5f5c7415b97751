package namelist

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("namelist syntax error")

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokEquals
	tokComma
	tokSlash
	tokGroup
)

type token struct {
	kind tokenKind
	text string
	line int
}

// Parse reads namelist groups from r. Text outside groups is ignored.
func Parse(r io.Reader) (*Namelist, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read namelist: %w", err)
	}
	toks, err := lex(string(data))
	if err != nil {
		return nil, err
	}
	return parseTokens(toks)
}

func syntaxErr(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, line, fmt.Sprintf(format, args...))
}

func lex(src string) ([]token, error) {
	var toks []token
	line := 1
	inGroup := false
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '!':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case !inGroup && (c == '&' || c == '$'):
			j := i + 1
			for j < len(src) && isNameChar(src[j]) {
				j++
			}
			if j == i+1 {
				return nil, syntaxErr(line, "missing group name")
			}
			toks = append(toks, token{kind: tokGroup, text: src[i+1 : j], line: line})
			inGroup = true
			i = j
		case !inGroup:
			// Free text between groups.
			i++
		case c == '=':
			toks = append(toks, token{kind: tokEquals, line: line})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, line: line})
			i++
		case c == '/':
			toks = append(toks, token{kind: tokSlash, line: line})
			inGroup = false
			i++
		case c == '\'' || c == '"':
			s, n, ok := readQuoted(src[i:])
			if !ok {
				return nil, syntaxErr(line, "unterminated string")
			}
			toks = append(toks, token{kind: tokString, text: s, line: line})
			line += strings.Count(src[i:i+n], "\n")
			i += n
		default:
			j := i
			for j < len(src) && !isWordBreak(src[j]) {
				j++
			}
			word := src[i:j]
			if lw := strings.ToLower(word); lw == "&end" || lw == "$end" {
				toks = append(toks, token{kind: tokSlash, line: line})
				inGroup = false
			} else {
				toks = append(toks, token{kind: tokWord, text: word, line: line})
			}
			i = j
		}
	}
	if inGroup {
		return nil, syntaxErr(line, "unterminated group")
	}
	return toks, nil
}

func isNameChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isWordBreak(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ',', '=', '/', '!', '\'', '"':
		return true
	}
	return false
}

// readQuoted reads a quoted string starting at s[0]. A doubled quote
// character inside the string is an escaped quote.
func readQuoted(s string) (string, int, bool) {
	q := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != q {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			b.WriteByte(q)
			i++
			continue
		}
		return b.String(), i + 1, true
	}
	return "", 0, false
}

func parseTokens(toks []token) (*Namelist, error) {
	nml := New()
	var cur *group

	for i := 0; i < len(toks); {
		t := toks[i]
		switch {
		case t.kind == tokGroup:
			cur = nml.ensure(t.text)
			i++
		case cur == nil:
			return nil, syntaxErr(t.line, "value outside group")
		case t.kind == tokSlash:
			cur = nil
			i++
		case t.kind == tokComma:
			i++
		case t.kind == tokWord:
			if i+1 >= len(toks) || toks[i+1].kind != tokEquals {
				return nil, syntaxErr(t.line, "expected '=' after %q", t.text)
			}
			key := t.text
			i += 2

			var items []any
			for i < len(toks) {
				v := toks[i]
				if v.kind == tokSlash || v.kind == tokGroup {
					break
				}
				if v.kind == tokWord && i+1 < len(toks) && toks[i+1].kind == tokEquals {
					break
				}
				switch v.kind {
				case tokComma:
				case tokString:
					items = append(items, v.text)
				case tokWord:
					if n, ok := repeatPrefix(v.text); ok && i+1 < len(toks) && toks[i+1].kind == tokString {
						for range n {
							items = append(items, toks[i+1].text)
						}
						i += 2
						continue
					}
					vals, err := parseWord(v.text)
					if err != nil {
						return nil, syntaxErr(v.line, "%s: %v", key, err)
					}
					items = append(items, vals...)
				default:
					return nil, syntaxErr(v.line, "unexpected token in value of %s", key)
				}
				i++
			}

			switch len(items) {
			case 0:
				return nil, syntaxErr(t.line, "no value for %s", key)
			case 1:
				cur.set(key, items[0])
			default:
				cur.set(key, items)
			}
		default:
			return nil, syntaxErr(t.line, "unexpected token")
		}
	}
	return nml, nil
}

// repeatPrefix reports whether word is a bare "n*" repeat count.
func repeatPrefix(word string) (int, bool) {
	if !strings.HasSuffix(word, "*") {
		return 0, false
	}
	n, err := strconv.Atoi(word[:len(word)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// parseWord converts an unquoted value, expanding n*value repeats.
func parseWord(word string) ([]any, error) {
	if star := strings.IndexByte(word, '*'); star > 0 {
		n, err := strconv.Atoi(word[:star])
		if err == nil {
			if n <= 0 || star == len(word)-1 {
				return nil, fmt.Errorf("invalid repeat %q", word)
			}
			v, err := parseScalar(word[star+1:])
			if err != nil {
				return nil, err
			}
			out := make([]any, n)
			for i := range out {
				out[i] = v
			}
			return out, nil
		}
	}
	v, err := parseScalar(word)
	if err != nil {
		return nil, err
	}
	return []any{v}, nil
}

func parseScalar(word string) (any, error) {
	lw := strings.ToLower(word)
	switch {
	case lw == "t" || strings.HasPrefix(lw, ".t"):
		return true, nil
	case lw == "f" || strings.HasPrefix(lw, ".f"):
		return false, nil
	}
	if n, err := strconv.Atoi(word); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(strings.Map(expToE, word), 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("invalid value %q", word)
}

func expToE(r rune) rune {
	if r == 'd' || r == 'D' {
		return 'e'
	}
	return r
}
