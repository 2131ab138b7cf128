package css

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"
)

// TokenKind classifies a single item of a parsed selector.
type TokenKind int

const (
	TokenID            TokenKind = iota // #id
	TokenClass                          // .class
	TokenAttribute                      // [attr], [attr=value]
	TokenPseudoClass                    // :hover, :nth-child(2n), :not(...)
	TokenPseudoElement                  // ::before and legacy :before
	TokenType                           // li, div
	TokenUniversal                      // *
	TokenCombinator                     // descendant " ", ">", "+", "~", "||"
)

// String returns a short name of the token kind.
func (k TokenKind) String() string {
	switch k {
	case TokenID:
		return "id"
	case TokenClass:
		return "class"
	case TokenAttribute:
		return "attribute"
	case TokenPseudoClass:
		return "pseudo-class"
	case TokenPseudoElement:
		return "pseudo-element"
	case TokenType:
		return "type"
	case TokenUniversal:
		return "universal"
	case TokenCombinator:
		return "combinator"
	default:
		return fmt.Sprintf("TokenKind(%d)", int(k))
	}
}

// Token is one simple selector or combinator.
type Token struct {
	Kind TokenKind
	Name string // identifier without prefix, attribute expression or combinator symbol
	Arg  string // raw argument of a functional pseudo-class or pseudo-element
	// Args holds parsed selectors for pseudo-classes taking a selector list
	// (:not, :is, :matches, :where, :has).
	Args []*Selector
	Pos  int // byte offset in the selector text
}

// Selector is a parsed complex selector: compound selectors separated by
// combinators.
type Selector struct {
	Raw    string
	Tokens []Token
}

// String returns the original selector text.
func (s *Selector) String() string {
	if s == nil {
		return ""
	}
	return s.Raw
}

// Specificity is the CSS cascade specificity with the convention [A,B,C]:
// A counts ids, B classes, attributes and pseudo-classes, C types and
// pseudo-elements.
type Specificity struct {
	A, B, C int
}

// Value combines tiers into a single number as 100*A + 10*B + C. Tiers above 9
// overflow into the next one, use Compare for ordering.
func (s Specificity) Value() int {
	return 100*s.A + 10*s.B + s.C
}

// Compare returns -1, 0 or 1 comparing tiers from A to C without carrying.
func (s Specificity) Compare(other Specificity) int {
	for _, d := range [3]int{s.A - other.A, s.B - other.B, s.C - other.C} {
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
	}
	return 0
}

// Less reports whether s ranks strictly below other.
func (s Specificity) Less(other Specificity) bool {
	return s.Compare(other) < 0
}

// Add sums two specificities tier by tier.
func (s Specificity) Add(other Specificity) Specificity {
	return Specificity{A: s.A + other.A, B: s.B + other.B, C: s.C + other.C}
}

func (s Specificity) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.A, s.B, s.C)
}

// Value represents a parsed CSS property value.
type Value struct {
	Raw       string  // Original CSS value string without "!important"
	Value     float64 // Numeric value if applicable
	Unit      string  // Unit if applicable: "em", "px", "%", "pt", etc.
	Keyword   string  // Keyword if applicable: "bold", "italic", "center", etc.
	Important bool    // Declared with !important
}

// IsNumeric returns true if the value has a numeric component.
// This includes explicit zero values like "0" or "0px".
func (v Value) IsNumeric() bool {
	if v.Unit != "" {
		return true
	}
	if v.Value != 0 && v.Keyword == "" {
		return true
	}
	if v.Raw != "" && v.Keyword == "" {
		firstChar := rune(v.Raw[0])
		if unicode.IsDigit(firstChar) || firstChar == '.' || firstChar == '-' || firstChar == '+' {
			return true
		}
	}
	return false
}

// IsKeyword returns true if the value is a keyword (no numeric component).
func (v Value) IsKeyword() bool {
	return v.Keyword != "" && v.Unit == ""
}

// Rule is a single selector with its declarations. A ruleset with a selector
// list produces one Rule per selector, all sharing the same Order.
type Rule struct {
	Selector    *Selector
	Specificity Specificity
	Properties  map[string]Value
	Order       int // position of the ruleset in the stylesheet
}

// GetProperty returns the value for a property, or empty Value if not found.
func (r Rule) GetProperty(name string) (Value, bool) {
	v, ok := r.Properties[name]
	return v, ok
}

// MediaType is one comma separated part of a media query list.
type MediaType struct {
	Type        string // "all" when omitted
	Negated     bool   // "not" modifier
	HasFeatures bool   // parenthesized features present, they are not evaluated
}

// MediaQuery is a parsed @media prelude or media attribute.
type MediaQuery struct {
	Raw   string
	Parts []MediaType
}

// Evaluate reports whether the query applies to the given medium. Media
// features are assumed to hold. Medium "all" (or empty) accepts every query.
func (mq MediaQuery) Evaluate(medium string) bool {
	medium = strings.ToLower(medium)
	if len(mq.Parts) == 0 || medium == "" || medium == "all" {
		return true
	}
	for _, part := range mq.Parts {
		matches := part.Type == "all" || part.Type == medium
		if part.Negated {
			matches = !matches
		}
		if matches {
			return true
		}
	}
	return false
}

// MediaBlock represents a @media block with its query and nested rules.
type MediaBlock struct {
	Query MediaQuery
	Rules []Rule
}

// StylesheetItem is a single top-level item in a stylesheet.
// Exactly one of Rule, MediaBlock, or Import is non-nil.
type StylesheetItem struct {
	Rule       *Rule
	MediaBlock *MediaBlock
	Import     *string
}

// Stylesheet represents a parsed CSS stylesheet.
type Stylesheet struct {
	Items    []StylesheetItem // All top-level items in source order
	Warnings []string         // Dropped rules and ignored constructs
}

// Rules returns top-level rules together with rules of @media blocks matching
// medium, in source order.
func (s *Stylesheet) Rules(medium string) []Rule {
	var rules []Rule
	for _, item := range s.Items {
		switch {
		case item.Rule != nil:
			rules = append(rules, *item.Rule)
		case item.MediaBlock != nil && item.MediaBlock.Query.Evaluate(medium):
			rules = append(rules, item.MediaBlock.Rules...)
		}
	}
	return rules
}

// Imports returns all @import URLs from the stylesheet in source order.
func (s *Stylesheet) Imports() []string {
	var urls []string
	for _, item := range s.Items {
		if item.Import != nil {
			urls = append(urls, *item.Import)
		}
	}
	return urls
}

// RulesBySelector returns all top-level rules matching the given selector string.
func (s *Stylesheet) RulesBySelector(selector string) []Rule {
	var matches []Rule
	for _, item := range s.Items {
		if item.Rule != nil && item.Rule.Selector.String() == selector {
			matches = append(matches, *item.Rule)
		}
	}
	return matches
}

// WriteTo writes the stylesheet to w in source order, implementing io.WriterTo.
// Property order within a rule is sorted alphabetically for deterministic output.
func (s *Stylesheet) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i, item := range s.Items {
		var n int
		var err error

		switch {
		case item.Import != nil:
			n, err = fmt.Fprintf(w, "@import url(\"%s\");\n", cssEscapeDoubleQuoted(*item.Import))
		case item.MediaBlock != nil:
			n, err = writeMediaBlock(w, item.MediaBlock)
		case item.Rule != nil:
			n, err = writeRule(w, item.Rule, "")
		}

		total += int64(n)
		if err != nil {
			return total, err
		}

		if i < len(s.Items)-1 {
			n, err = fmt.Fprint(w, "\n")
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// String returns the CSS text of the stylesheet.
func (s *Stylesheet) String() string {
	var sb strings.Builder
	s.WriteTo(&sb) //nolint:errcheck
	return sb.String()
}

func writeRule(w io.Writer, rule *Rule, indent string) (int, error) {
	var total int
	n, err := fmt.Fprintf(w, "%s%s {\n", indent, rule.Selector)
	total += n
	if err != nil {
		return total, err
	}

	names := make([]string, 0, len(rule.Properties))
	for name := range rule.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		val := rule.Properties[name]
		suffix := ""
		if val.Important {
			suffix = " !important"
		}
		n, err = fmt.Fprintf(w, "%s  %s: %s%s;\n", indent, name, val.Raw, suffix)
		total += n
		if err != nil {
			return total, err
		}
	}
	n, err = fmt.Fprintf(w, "%s}\n", indent)
	total += n
	return total, err
}

func writeMediaBlock(w io.Writer, mb *MediaBlock) (int, error) {
	var total int
	n, err := fmt.Fprintf(w, "@media %s {\n", mb.Query.Raw)
	total += n
	if err != nil {
		return total, err
	}
	for i := range mb.Rules {
		n, err = writeRule(w, &mb.Rules[i], "  ")
		total += n
		if err != nil {
			return total, err
		}
	}
	n, err = fmt.Fprint(w, "}\n")
	total += n
	return total, err
}

// cssEscapeDoubleQuoted escapes a string for use inside CSS double quotes.
func cssEscapeDoubleQuoted(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
