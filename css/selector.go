package css

import (
	"errors"
	"fmt"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/multierr"
)

// ErrMalformedSelector is wrapped by every error returned from strict selector
// parsing.
var ErrMalformedSelector = errors.New("malformed selector")

// SyntaxError describes a single problem found in selector text.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Pos, e.Msg)
}

// legacyPseudoElements can be written with a single colon (CSS2) and still
// denote pseudo-elements.
var legacyPseudoElements = map[string]bool{
	"before":       true,
	"after":        true,
	"first-line":   true,
	"first-letter": true,
}

// selectorArgPseudoClasses take a selector list as their argument.
var selectorArgPseudoClasses = map[string]bool{
	"not":     true,
	"is":      true,
	"matches": true,
	"where":   true,
	"has":     true,
}

type lexeme struct {
	tt   css.TokenType
	data string
	pos  int
}

func lex(text string) []lexeme {
	l := css.NewLexer(parse.NewInputString(text))
	var out []lexeme
	pos := 0
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			return out
		}
		out = append(out, lexeme{tt: tt, data: string(data), pos: pos})
		pos += len(data)
	}
}

func rawText(lx []lexeme) string {
	var sb strings.Builder
	for _, l := range lx {
		sb.WriteString(l.data)
	}
	return strings.TrimSpace(sb.String())
}

// splitList splits lexemes on commas which are not nested in brackets or
// parentheses.
func splitList(lx []lexeme) [][]lexeme {
	var (
		parts [][]lexeme
		depth int
		start int
	)
	for i, l := range lx {
		switch l.tt {
		case css.LeftBracketToken, css.LeftParenthesisToken, css.FunctionToken:
			depth++
		case css.RightBracketToken, css.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
		case css.CommaToken:
			if depth == 0 {
				parts = append(parts, lx[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, lx[start:])
}

// ParseSelector parses a single complex selector. The returned selector is
// never nil and holds every token that could be recognized, the error (if
// any) wraps ErrMalformedSelector and lists all problems found.
func ParseSelector(text string) (*Selector, error) {
	sel, problems := parseLexemes(lex(text), false)
	sel.Raw = strings.TrimSpace(text)
	if problems != nil {
		return sel, fmt.Errorf("%w %q: %w", ErrMalformedSelector, sel.Raw, problems)
	}
	return sel, nil
}

// ParseSelectorList parses a comma separated group of selectors. Malformed
// members are still returned with whatever tokens were recognized.
func ParseSelectorList(text string) ([]*Selector, error) {
	sels, problems := parseList(lex(text), false)
	if problems != nil {
		return sels, fmt.Errorf("%w %q: %w", ErrMalformedSelector, strings.TrimSpace(text), problems)
	}
	return sels, nil
}

func parseList(lx []lexeme, relative bool) ([]*Selector, error) {
	var (
		sels     []*Selector
		problems error
	)
	for _, part := range splitList(lx) {
		sel, err := parseLexemes(part, relative)
		problems = multierr.Append(problems, err)
		sels = append(sels, sel)
	}
	return sels, problems
}

type selectorParser struct {
	lx       []lexeme
	i        int
	tokens   []Token
	problems error

	relative bool // leading combinator allowed (:has arguments)
	expect   bool // at start or right after explicit combinator
	sawSpace bool // whitespace seen since the last simple selector
	compound int  // simple selectors in current compound
}

func parseLexemes(lx []lexeme, relative bool) (*Selector, error) {
	p := &selectorParser{lx: lx, relative: relative, expect: true}
	p.run()
	return &Selector{Raw: rawText(lx), Tokens: p.tokens}, p.problems
}

func (p *selectorParser) problem(pos int, format string, args ...any) {
	p.problems = multierr.Append(p.problems, &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func (p *selectorParser) peek(off int) (lexeme, bool) {
	if p.i+off < len(p.lx) {
		return p.lx[p.i+off], true
	}
	return lexeme{}, false
}

func (p *selectorParser) endPos() int {
	if len(p.lx) == 0 {
		return 0
	}
	last := p.lx[len(p.lx)-1]
	return last.pos + len(last.data)
}

func (p *selectorParser) run() {
	for p.i < len(p.lx) {
		l := p.lx[p.i]
		switch l.tt {
		case css.WhitespaceToken:
			p.sawSpace = true
			p.i++
		case css.CommentToken:
			p.i++
		case css.HashToken:
			p.begin()
			p.add(Token{Kind: TokenID, Name: l.data[1:], Pos: l.pos})
			p.i++
		case css.IdentToken:
			p.begin()
			p.typeSelector(Token{Kind: TokenType, Name: l.data, Pos: l.pos})
			p.i++
		case css.LeftBracketToken:
			p.begin()
			p.attribute()
		case css.ColonToken:
			p.begin()
			p.pseudo()
		case css.ColumnToken:
			p.combinator(l)
		case css.DelimToken:
			p.delim(l)
		case css.FunctionToken:
			p.problem(l.pos, "unexpected function %q", l.data)
			p.i++
			p.skipArgs()
		default:
			p.problem(l.pos, "unexpected %q", l.data)
			p.i++
		}
	}

	switch {
	case len(p.tokens) == 0 && p.problems == nil:
		p.problem(0, "empty selector")
	case p.expect && len(p.tokens) > 0:
		p.problem(p.endPos(), "selector ends with combinator")
	}
}

func (p *selectorParser) delim(l lexeme) {
	switch l.data {
	case ">", "+", "~":
		p.combinator(l)
	case ".":
		p.begin()
		next, ok := p.peek(1)
		if !ok || next.tt != css.IdentToken {
			p.problem(l.pos, "missing class name after '.'")
			p.i++
			return
		}
		p.add(Token{Kind: TokenClass, Name: next.data, Pos: l.pos})
		p.i += 2
	case "*":
		p.begin()
		p.typeSelector(Token{Kind: TokenUniversal, Name: "*", Pos: l.pos})
		p.i++
	case "|":
		p.namespace(l)
	case "#":
		p.begin()
		p.problem(l.pos, "missing id after '#'")
		p.i++
	default:
		p.problem(l.pos, "unexpected %q", l.data)
		p.i++
	}
}

// begin is called before every simple selector, it turns pending whitespace
// into a descendant combinator.
func (p *selectorParser) begin() {
	if p.sawSpace && !p.expect {
		p.tokens = append(p.tokens, Token{Kind: TokenCombinator, Name: " ", Pos: p.lx[p.i].pos - 1})
		p.compound = 0
	}
	p.sawSpace = false
	p.expect = false
}

func (p *selectorParser) add(t Token) {
	p.tokens = append(p.tokens, t)
	p.compound++
}

func (p *selectorParser) typeSelector(t Token) {
	if p.compound > 0 {
		p.problem(t.Pos, "%s selector %q must come first in compound selector", t.Kind, t.Name)
	}
	p.add(t)
}

func (p *selectorParser) combinator(l lexeme) {
	if p.expect && !(p.relative && len(p.tokens) == 0) {
		p.problem(l.pos, "unexpected combinator %q", l.data)
	}
	p.tokens = append(p.tokens, Token{Kind: TokenCombinator, Name: l.data, Pos: l.pos})
	p.expect = true
	p.sawSpace = false
	p.compound = 0
	p.i++
}

// namespace handles "ns|name", "*|name" and "|name": the prefix carries no
// weight so a preceding type or universal token is dropped.
func (p *selectorParser) namespace(l lexeme) {
	next, ok := p.peek(1)
	if !ok || !(next.tt == css.IdentToken || (next.tt == css.DelimToken && next.data == "*")) {
		p.problem(l.pos, "missing name after namespace separator")
		p.i++
		return
	}
	last := len(p.tokens) - 1
	if !p.sawSpace && p.compound == 1 && last >= 0 &&
		(p.tokens[last].Kind == TokenType || p.tokens[last].Kind == TokenUniversal) {
		p.tokens = p.tokens[:last]
		p.compound = 0
	} else {
		p.begin()
	}
	p.i++
}

func (p *selectorParser) attribute() {
	open := p.lx[p.i]
	p.i++
	start := p.i
	for p.i < len(p.lx) && p.lx[p.i].tt != css.RightBracketToken {
		p.i++
	}
	expr := rawText(p.lx[start:p.i])
	if p.i == len(p.lx) {
		p.problem(open.pos, "unterminated attribute selector")
	} else {
		p.i++
	}
	if expr == "" {
		p.problem(open.pos, "empty attribute selector")
		return
	}
	p.add(Token{Kind: TokenAttribute, Name: expr, Pos: open.pos})
}

// skipArgs consumes lexemes up to and including the parenthesis closing a
// function token already consumed, returning what was inside.
func (p *selectorParser) skipArgs() ([]lexeme, bool) {
	start := p.i
	depth := 1
	for p.i < len(p.lx) {
		switch p.lx[p.i].tt {
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			depth--
			if depth == 0 {
				args := p.lx[start:p.i]
				p.i++
				return args, true
			}
		}
		p.i++
	}
	return p.lx[start:], false
}

func (p *selectorParser) pseudo() {
	colon := p.lx[p.i]
	p.i++
	element := false
	if next, ok := p.peek(0); ok && next.tt == css.ColonToken {
		element = true
		p.i++
	}

	next, ok := p.peek(0)
	if !ok || (next.tt != css.IdentToken && next.tt != css.FunctionToken) {
		p.problem(colon.pos, "missing pseudo-class or pseudo-element name")
		return
	}
	p.i++

	if next.tt == css.IdentToken {
		name := strings.ToLower(next.data)
		kind := TokenPseudoClass
		if element || legacyPseudoElements[name] {
			kind = TokenPseudoElement
		}
		p.add(Token{Kind: kind, Name: name, Pos: colon.pos})
		return
	}

	name := strings.ToLower(strings.TrimSuffix(next.data, "("))
	args, closed := p.skipArgs()
	if !closed {
		p.problem(next.pos, "unterminated argument of %q", name)
	}
	t := Token{Kind: TokenPseudoClass, Name: name, Arg: rawText(args), Pos: colon.pos}
	if element {
		t.Kind = TokenPseudoElement
	} else if selectorArgPseudoClasses[name] {
		sels, problems := parseList(args, name == "has")
		p.problems = multierr.Append(p.problems, problems)
		t.Args = sels
	}
	p.add(t)
}
