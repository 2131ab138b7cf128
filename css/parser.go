package css

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"
	"unicode"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses CSS stylesheets into rules annotated with specificity.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// sheetBuilder keeps state of a single Parse call.
type sheetBuilder struct {
	log    *zap.Logger
	parser *css.Parser
	sheet  *Stylesheet
	order  int
}

// Parse parses CSS text into a Stylesheet.
// The optional source parameter identifies what's being parsed (for debug logging).
func (p *Parser) Parse(data []byte, source ...string) *Stylesheet {
	log := p.log
	if len(source) > 0 && source[0] != "" {
		log = log.With(zap.String("source", source[0]))
	}
	log.Debug("Parsing CSS", zap.Int("bytes", len(data)))

	b := &sheetBuilder{
		log:    log,
		parser: css.NewParser(parse.NewInput(bytes.NewReader(data)), false),
		sheet: &Stylesheet{
			Items:    make([]StylesheetItem, 0),
			Warnings: make([]string, 0),
		},
	}

	for {
		gt, _, data := b.parser.Next()

		switch gt {
		case css.ErrorGrammar:
			err := b.parser.Err()
			var perr *parse.Error
			switch {
			case b.parser.HasParseError() && errors.As(err, &perr):
				// input ended inside a rule prelude or block
				b.warn(fmt.Sprintf("dropped rule: %s at line %d column %d", perr.Message, perr.Line, perr.Column))
			case err != nil && !errors.Is(err, io.EOF):
				log.Debug("CSS parse error", zap.Error(err))
			}
			return b.sheet

		case css.BeginAtRuleGrammar:
			atRule := strings.ToLower(string(data))
			switch atRule {
			case "@media":
				mq := parseMediaQuery(b.parser.Values())
				if mq.hasFeatures() {
					b.warn("media features are not evaluated: @media " + mq.Raw)
				}
				rules := b.parseBlockRules()
				log.Debug("Parsed @media block", zap.String("query", mq.Raw), zap.Int("rules", len(rules)))
				b.sheet.Items = append(b.sheet.Items, StylesheetItem{
					MediaBlock: &MediaBlock{Query: mq, Rules: rules},
				})
			default:
				b.skipAtRuleBlock()
				log.Debug("Skipping @-rule", zap.String("rule", atRule))
			}

		case css.AtRuleGrammar:
			atRule := strings.ToLower(string(data))
			if atRule == "@import" {
				if url := extractImportURL(b.parser.Values()); url != "" {
					b.sheet.Items = append(b.sheet.Items, StylesheetItem{Import: &url})
					log.Debug("Parsed @import", zap.String("url", url))
				}
			} else {
				log.Debug("Skipping @-rule", zap.String("rule", atRule))
			}

		case css.BeginRulesetGrammar:
			for _, rule := range b.parseRuleset(data) {
				b.sheet.Items = append(b.sheet.Items, StylesheetItem{Rule: &rule})
			}
		}
	}
}

func (b *sheetBuilder) warn(msg string) {
	b.sheet.Warnings = append(b.sheet.Warnings, msg)
	b.log.Debug("CSS warning", zap.String("warning", msg))
}

// parseRuleset turns selector list and declarations of the current ruleset
// into rules. A single malformed selector invalidates the whole ruleset.
func (b *sheetBuilder) parseRuleset(data []byte) []Rule {
	text := selectorText(data, b.parser.Values())

	props := b.parseDeclarations()
	b.order++

	sels, err := ParseSelectorList(text)
	if err != nil {
		b.warn("dropped rule: " + err.Error())
		return nil
	}

	rules := make([]Rule, 0, len(sels))
	for _, sel := range sels {
		propsCopy := make(map[string]Value, len(props))
		maps.Copy(propsCopy, props)
		rules = append(rules, Rule{
			Selector:    sel,
			Specificity: sel.Specificity(),
			Properties:  propsCopy,
			Order:       b.order,
		})
	}
	return rules
}

// selectorText restores ruleset prelude text. The grammar drops whitespace
// around combinators, top-level ones get it back.
func selectorText(data []byte, values []css.Token) string {
	var sb strings.Builder
	sb.Write(data)
	depth := 0
	for _, v := range values {
		switch v.TokenType {
		case css.LeftParenthesisToken, css.LeftBracketToken, css.FunctionToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		case css.DelimToken:
			if depth == 0 && len(v.Data) == 1 && strings.IndexByte(">+~", v.Data[0]) >= 0 {
				sb.WriteByte(' ')
				sb.Write(v.Data)
				sb.WriteByte(' ')
				continue
			}
		}
		sb.Write(v.Data)
	}
	return strings.TrimSpace(sb.String())
}

// parseDeclarations parses property declarations until EndRulesetGrammar.
func (b *sheetBuilder) parseDeclarations() map[string]Value {
	props := make(map[string]Value)

	for {
		gt, _, data := b.parser.Next()

		switch gt {
		case css.ErrorGrammar, css.EndRulesetGrammar:
			return props

		case css.DeclarationGrammar:
			name := strings.ToLower(string(data))
			if values := b.parser.Values(); len(values) > 0 {
				props[name] = parsePropertyValue(values)
			}

		case css.BeginRulesetGrammar, css.BeginAtRuleGrammar:
			// nested blocks are not supported
			b.warn("nested block ignored")
			b.skipAtRuleBlock()
		}
	}
}

// parseBlockRules parses rules inside an @media block and returns them.
func (b *sheetBuilder) parseBlockRules() []Rule {
	var rules []Rule
	for {
		gt, _, data := b.parser.Next()

		switch gt {
		case css.ErrorGrammar, css.EndAtRuleGrammar:
			return rules
		case css.BeginRulesetGrammar:
			rules = append(rules, b.parseRuleset(data)...)
		case css.BeginAtRuleGrammar:
			b.warn("nested @-rule ignored: " + string(data))
			b.skipAtRuleBlock()
		}
	}
}

// skipAtRuleBlock skips tokens until the matching end of a block.
func (b *sheetBuilder) skipAtRuleBlock() {
	depth := 1
	for depth > 0 {
		gt, _, _ := b.parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		}
	}
}

// stripImportant removes trailing "! important" tokens.
func stripImportant(tokens []css.Token) ([]css.Token, bool) {
	end := len(tokens)
	skipSpace := func() {
		for end > 0 && tokens[end-1].TokenType == css.WhitespaceToken {
			end--
		}
	}
	skipSpace()
	if end == 0 || tokens[end-1].TokenType != css.IdentToken || !strings.EqualFold(string(tokens[end-1].Data), "important") {
		return tokens, false
	}
	end--
	skipSpace()
	if end == 0 || tokens[end-1].TokenType != css.DelimToken || string(tokens[end-1].Data) != "!" {
		return tokens, false
	}
	end--
	skipSpace()
	return tokens[:end], true
}

// parsePropertyValue converts CSS tokens to a Value.
func parsePropertyValue(tokens []css.Token) Value {
	tokens, important := stripImportant(tokens)
	if len(tokens) == 0 {
		return Value{Important: important}
	}

	var rawParts []string
	for _, t := range tokens {
		if t.TokenType != css.WhitespaceToken {
			rawParts = append(rawParts, string(t.Data))
		} else if len(rawParts) > 0 {
			rawParts = append(rawParts, " ")
		}
	}
	raw := strings.TrimSpace(strings.Join(rawParts, ""))

	val := Value{Raw: raw, Important: important}

	if len(tokens) == 1 || (len(tokens) == 2 && tokens[1].TokenType == css.WhitespaceToken) {
		t := tokens[0]
		switch t.TokenType {
		case css.DimensionToken:
			val.Value, val.Unit = parseDimension(string(t.Data))
		case css.PercentageToken:
			val.Value, _ = strconv.ParseFloat(strings.TrimSuffix(string(t.Data), "%"), 64)
			val.Unit = "%"
		case css.NumberToken:
			val.Value, _ = strconv.ParseFloat(string(t.Data), 64)
		case css.IdentToken:
			val.Keyword = strings.ToLower(string(t.Data))
		case css.StringToken:
			val.Keyword = unquote(string(t.Data))
		case css.HashToken:
			val.Keyword = string(t.Data)
		}
		return val
	}

	// functions and multi-value properties keep the raw text
	val.Keyword = raw
	return val
}

// parseDimension extracts numeric value and unit from dimension token.
func parseDimension(s string) (float64, string) {
	numEnd := 0
	for i, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == '-' || r == '+' {
			numEnd = i + 1
		} else {
			break
		}
	}
	if numEnd == 0 {
		return 0, ""
	}
	num, _ := strconv.ParseFloat(s[:numEnd], 64)
	return num, strings.ToLower(s[numEnd:])
}

// extractImportURL extracts the URL from @import tokens.
// Handles: @import "url"; @import url("url"); @import url(url);
func extractImportURL(tokens []css.Token) string {
	for i, t := range tokens {
		switch t.TokenType {
		case css.StringToken:
			return unquote(string(t.Data))
		case css.URLToken:
			s := strings.TrimSuffix(strings.TrimPrefix(string(t.Data), "url("), ")")
			return unquote(strings.TrimSpace(s))
		case css.FunctionToken:
			// url( "path" ) is lexed as a function when the argument is quoted
			if strings.EqualFold(string(t.Data), "url(") && i+1 < len(tokens) {
				for _, arg := range tokens[i+1:] {
					if arg.TokenType == css.StringToken {
						return unquote(string(arg.Data))
					}
				}
			}
		}
	}
	return ""
}

// ParseMediaQuery parses a media query list such as the value of a media
// attribute.
func ParseMediaQuery(text string) MediaQuery {
	l := css.NewLexer(parse.NewInputString(text))
	var tokens []css.Token
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			break
		}
		tokens = append(tokens, css.Token{TokenType: tt, Data: bytes.Clone(data)})
	}
	return parseMediaQuery(tokens)
}

// parseMediaQuery parses comma separated "[not|only] type [and (feature)]..."
// parts from CSS tokens.
func parseMediaQuery(tokens []css.Token) MediaQuery {
	mq := MediaQuery{}

	var rawParts []string
	for _, t := range tokens {
		if t.TokenType != css.WhitespaceToken {
			rawParts = append(rawParts, string(t.Data))
		} else if len(rawParts) > 0 {
			rawParts = append(rawParts, " ")
		}
	}
	mq.Raw = strings.TrimSpace(strings.Join(rawParts, ""))

	var (
		part  MediaType
		depth int
		empty = true
	)
	flush := func() {
		if !empty {
			if part.Type == "" {
				part.Type = "all"
			}
			mq.Parts = append(mq.Parts, part)
		}
		part, empty = MediaType{}, true
	}
	for _, t := range tokens {
		switch t.TokenType {
		case css.LeftParenthesisToken, css.FunctionToken:
			depth++
			part.HasFeatures, empty = true, false
		case css.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
		case css.CommaToken:
			if depth == 0 {
				flush()
			}
		case css.IdentToken:
			if depth > 0 {
				continue
			}
			empty = false
			switch ident := strings.ToLower(string(t.Data)); ident {
			case "not":
				part.Negated = true
			case "only", "and":
			default:
				if part.Type == "" {
					part.Type = ident
				}
			}
		}
	}
	flush()
	return mq
}

func (mq MediaQuery) hasFeatures() bool {
	for _, part := range mq.Parts {
		if part.HasFeatures {
			return true
		}
	}
	return false
}

// unquote removes surrounding quotes from a string.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') ||
		(s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
