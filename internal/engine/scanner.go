package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokTemplate
	tokNumber
	tokRegex
	tokPunct
)

type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
	// nl is set when a line break precedes the token.
	nl bool
	// match is the index of the matching bracket for ( [ { and their
	// closers, or -1.
	match int
}

// tripleSlash is a /// <reference .../> directive.
type tripleSlash struct {
	attr  string // "path", "types", "lib" or "no-default-lib"
	value string
	start int
	end   int
}

type scanResult struct {
	tokens     []token
	directives []tripleSlash
	diags      []scanDiag
}

type scanDiag struct {
	start, end int
	code       int
	text       string
}

// scan tokenizes TypeScript source. It is deliberately forgiving: unknown
// characters become single-character punctuation.
func scan(src string) *scanResult {
	s := &scanner{src: src, res: &scanResult{}}
	s.run()
	s.matchBrackets()
	return s.res
}

type scanner struct {
	src string
	pos int
	nl  bool
	res *scanResult
}

func (s *scanner) emit(kind tokenKind, start int) {
	s.res.tokens = append(s.res.tokens, token{
		kind:  kind,
		text:  s.src[start:s.pos],
		start: start,
		end:   s.pos,
		nl:    s.nl,
		match: -1,
	})
	s.nl = false
}

func (s *scanner) diag(start, end, code int, text string) {
	s.res.diags = append(s.res.diags, scanDiag{start: start, end: end, code: code, text: text})
}

func (s *scanner) peekAt(i int) byte {
	if s.pos+i < len(s.src) {
		return s.src[s.pos+i]
	}
	return 0
}

func (s *scanner) run() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\n':
			s.nl = true
			s.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			s.pos++
		case c == '/' && s.peekAt(1) == '/':
			s.lineComment()
		case c == '/' && s.peekAt(1) == '*':
			s.blockComment()
		case c == '"' || c == '\'':
			s.stringLiteral(c)
		case c == '`':
			s.template()
		case c >= '0' && c <= '9', c == '.' && s.peekAt(1) >= '0' && s.peekAt(1) <= '9':
			s.number()
		case c == '/' && s.regexAllowed():
			s.regex()
		case isIdentStart(s.src, s.pos):
			s.ident()
		default:
			s.punct()
		}
	}
	s.emit(tokEOF, s.pos)
}

func isIdentStart(src string, i int) bool {
	c := src[i]
	if c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	if c < utf8.RuneSelf {
		return false
	}
	r, _ := utf8.DecodeRuneInString(src[i:])
	return unicode.IsLetter(r)
}

func isIdentPart(src string, i int) (bool, int) {
	c := src[i]
	if c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
		return true, 1
	}
	if c < utf8.RuneSelf {
		return false, 0
	}
	r, size := utf8.DecodeRuneInString(src[i:])
	return unicode.IsLetter(r) || unicode.IsDigit(r), size
}

func (s *scanner) ident() {
	start := s.pos
	_, size := utf8.DecodeRuneInString(s.src[s.pos:])
	s.pos += size
	for s.pos < len(s.src) {
		ok, n := isIdentPart(s.src, s.pos)
		if !ok {
			break
		}
		s.pos += n
	}
	s.emit(tokIdent, start)
}

func (s *scanner) lineComment() {
	start := s.pos
	end := strings.IndexByte(s.src[s.pos:], '\n')
	if end < 0 {
		s.pos = len(s.src)
	} else {
		s.pos += end
	}
	text := s.src[start:s.pos]
	if strings.HasPrefix(text, "///") {
		if d, ok := parseTripleSlash(text, start); ok {
			s.res.directives = append(s.res.directives, d)
		}
	}
}

func parseTripleSlash(text string, start int) (tripleSlash, bool) {
	body := strings.TrimSpace(strings.TrimPrefix(text, "///"))
	if !strings.HasPrefix(body, "<reference") {
		return tripleSlash{}, false
	}
	for _, attr := range []string{"path", "types", "lib", "no-default-lib"} {
		key := attr + "="
		i := strings.Index(body, key)
		if i < 0 {
			continue
		}
		rest := body[i+len(key):]
		if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
			continue
		}
		quote := rest[0]
		j := strings.IndexByte(rest[1:], quote)
		if j < 0 {
			continue
		}
		return tripleSlash{attr: attr, value: rest[1 : j+1], start: start, end: start + len(text)}, true
	}
	return tripleSlash{}, false
}

func (s *scanner) blockComment() {
	end := strings.Index(s.src[s.pos+2:], "*/")
	if end < 0 {
		s.diag(s.pos, len(s.src), CodeSyntaxExpected, "'*/' expected.")
		if strings.Contains(s.src[s.pos:], "\n") {
			s.nl = true
		}
		s.pos = len(s.src)
		return
	}
	if strings.Contains(s.src[s.pos:s.pos+2+end], "\n") {
		s.nl = true
	}
	s.pos += 2 + end + 2
}

func (s *scanner) stringLiteral(quote byte) {
	start := s.pos
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.pos += 2
			continue
		case c == quote:
			s.pos++
			s.emit(tokString, start)
			return
		case c == '\n':
			s.diag(start, s.pos, CodeUnterminatedString, "Unterminated string literal.")
			s.emit(tokString, start)
			return
		}
		s.pos++
	}
	if s.pos > len(s.src) {
		s.pos = len(s.src)
	}
	s.diag(start, s.pos, CodeUnterminatedString, "Unterminated string literal.")
	s.emit(tokString, start)
}

// template consumes a template literal including nested substitutions.
func (s *scanner) template() {
	start := s.pos
	s.pos++
	depth := 0
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.pos += 2
			continue
		case c == '`' && depth == 0:
			s.pos++
			s.emit(tokTemplate, start)
			return
		case c == '$' && s.peekAt(1) == '{':
			depth++
			s.pos += 2
			continue
		case c == '}' && depth > 0:
			depth--
		case c == '\n':
			s.nl = true
		}
		s.pos++
	}
	if s.pos > len(s.src) {
		s.pos = len(s.src)
	}
	s.diag(start, s.pos, CodeUnterminatedString, "Unterminated template literal.")
	s.emit(tokTemplate, start)
}

func (s *scanner) number() {
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '.' || c == '_' {
			s.pos++
			continue
		}
		break
	}
	s.emit(tokNumber, start)
}

// regexAllowed decides whether a slash starts a regular expression from
// the previous token.
func (s *scanner) regexAllowed() bool {
	n := len(s.res.tokens)
	if n == 0 {
		return true
	}
	prev := s.res.tokens[n-1]
	switch prev.kind {
	case tokNumber, tokString, tokTemplate, tokRegex:
		return false
	case tokIdent:
		return isKeyword(prev.text) && prev.text != "this" && prev.text != "super"
	case tokPunct:
		return prev.text != ")" && prev.text != "]" && prev.text != "}"
	}
	return true
}

func (s *scanner) regex() {
	start := s.pos
	s.pos++
	inClass := false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.pos += 2
			continue
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			s.pos++
			for s.pos < len(s.src) && isFlag(s.src[s.pos]) {
				s.pos++
			}
			s.emit(tokRegex, start)
			return
		case c == '\n':
			s.pos = start + 1
			s.emit(tokPunct, start)
			return
		}
		s.pos++
	}
	s.pos = start + 1
	s.emit(tokPunct, start)
}

func isFlag(c byte) bool { return c >= 'a' && c <= 'z' }

var multiPunct = []string{"...", "=>", "?."}

func (s *scanner) punct() {
	start := s.pos
	for _, p := range multiPunct {
		if strings.HasPrefix(s.src[s.pos:], p) {
			// "?.5" is a conditional followed by a number.
			if p == "?." && s.pos+2 < len(s.src) && s.src[s.pos+2] >= '0' && s.src[s.pos+2] <= '9' {
				break
			}
			s.pos += len(p)
			s.emit(tokPunct, start)
			return
		}
	}
	_, size := utf8.DecodeRuneInString(s.src[s.pos:])
	s.pos += size
	s.emit(tokPunct, start)
}

var closers = map[string]string{"(": ")", "[": "]", "{": "}"}

// matchBrackets pairs brackets and reports unbalanced ones.
func (s *scanner) matchBrackets() {
	type open struct {
		idx int
		tok string
	}
	var stack []open
	toks := s.res.tokens
	for i := range toks {
		t := &toks[i]
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "(", "[", "{":
			stack = append(stack, open{i, t.text})
		case ")", "]", "}":
			if len(stack) == 0 || closers[stack[len(stack)-1].tok] != t.text {
				s.diag(t.start, t.end, CodeDeclarationExpected, "Declaration or statement expected.")
				continue
			}
			o := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			toks[o.idx].match = i
			t.match = o.idx
		}
	}
	for _, o := range stack {
		t := toks[o.idx]
		s.diag(t.start, t.end, CodeSyntaxExpected, "'"+closers[o.tok]+"' expected.")
	}
}

var keywords = func() map[string]bool {
	m := make(map[string]bool)
	for _, k := range strings.Fields(`break case catch class const continue debugger default delete do else
		enum export extends false finally for function if import in instanceof new null return super
		switch this throw true try typeof var void while with as implements interface let package private
		protected public static yield any boolean constructor declare get module require number set string
		symbol type from of namespace async await readonly keyof unique unknown never undefined object
		abstract is infer global bigint override satisfies accessor asserts`) {
		m[k] = true
	}
	return m
}()

func isKeyword(s string) bool { return keywords[s] }
