package css_test

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"selspec/css"
)

// allRules collects all top-level rules from a stylesheet's Items.
// It does NOT flatten @media blocks.
func allRules(sheet *css.Stylesheet) []css.Rule {
	var rules []css.Rule
	for _, item := range sheet.Items {
		if item.Rule != nil {
			rules = append(rules, *item.Rule)
		}
	}
	return rules
}

func TestParser_ElementSelector(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`p { text-indent: 1em; }`))

	rules := allRules(sheet)
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	rule := rules[0]
	if rule.Selector.String() != "p" {
		t.Errorf("expected selector 'p', got '%s'", rule.Selector)
	}
	if rule.Specificity != (css.Specificity{C: 1}) {
		t.Errorf("expected specificity (0,0,1), got %s", rule.Specificity)
	}

	val, ok := rule.GetProperty("text-indent")
	if !ok {
		t.Fatal("expected text-indent property")
	}
	if val.Value != 1 || val.Unit != "em" {
		t.Errorf("expected 1em, got %v%s", val.Value, val.Unit)
	}
}

func TestParser_SpecificityPerRule(t *testing.T) {
	p := css.NewParser(zaptest.NewLogger(t))

	sheet := p.Parse([]byte(`
		#nav .selected > a:hover { color: red; }
		body #darkside .sith p { color: blue; }
		li.red.level { color: green; }
	`))

	want := map[string]int{
		"#nav .selected > a:hover": 121,
		"body #darkside .sith p":   112,
		"li.red.level":             21,
	}

	rules := allRules(sheet)
	if len(rules) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(rules))
	}
	for _, rule := range rules {
		w, ok := want[rule.Selector.String()]
		if !ok {
			t.Errorf("unexpected selector %q", rule.Selector)
			continue
		}
		if rule.Specificity.Value() != w {
			t.Errorf("%q: expected specificity %d, got %d", rule.Selector, w, rule.Specificity.Value())
		}
	}
}

func TestParser_GroupedSelectors(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`h2, .title, #main { font-size: 120%; }`))

	rules := allRules(sheet)
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules for grouped selector, got %d", len(rules))
	}

	expected := []struct {
		selector string
		value    int
	}{
		{"h2", 1},
		{".title", 10},
		{"#main", 100},
	}
	for i, rule := range rules {
		if rule.Selector.String() != expected[i].selector {
			t.Errorf("rule %d: expected selector '%s', got '%s'", i, expected[i].selector, rule.Selector)
		}
		if rule.Specificity.Value() != expected[i].value {
			t.Errorf("rule %d: expected specificity %d, got %d", i, expected[i].value, rule.Specificity.Value())
		}
		if rule.Order != rules[0].Order {
			t.Errorf("rule %d: grouped selectors must share source order", i)
		}
		val, _ := rule.GetProperty("font-size")
		if val.Value != 120 || val.Unit != "%" {
			t.Errorf("rule %d: expected 120%%, got %v%s", i, val.Value, val.Unit)
		}
	}
}

func TestParser_MalformedSelectorDropsRule(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`
		p { color: black; }
		a, b > { color: red; }
		em { color: green; }
	`))

	rules := allRules(sheet)
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Selector.String() != "p" || rules[1].Selector.String() != "em" {
		t.Errorf("unexpected rules %q, %q", rules[0].Selector, rules[1].Selector)
	}
	if len(sheet.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(sheet.Warnings), sheet.Warnings)
	}
	if !strings.Contains(sheet.Warnings[0], "dropped rule") {
		t.Errorf("unexpected warning %q", sheet.Warnings[0])
	}
	if rules[1].Order <= rules[0].Order {
		t.Errorf("source order must keep increasing, got %d after %d", rules[1].Order, rules[0].Order)
	}
}

func TestParser_UnterminatedPreludeWarns(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`p { color: black; } a, b[ { x: y }`))

	rules := allRules(sheet)
	if len(rules) != 1 || rules[0].Selector.String() != "p" {
		t.Fatalf("expected only p rule, got %d", len(rules))
	}
	if len(sheet.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(sheet.Warnings), sheet.Warnings)
	}
	if !strings.Contains(sheet.Warnings[0], "dropped rule") {
		t.Errorf("unexpected warning %q", sheet.Warnings[0])
	}

	if clean := p.Parse([]byte(`p { color: black }`)); len(clean.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", clean.Warnings)
	}
}

func TestParser_PseudoElements(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`
		.quote::before { content: ">>"; }
		p.note:after { content: " *"; }
	`))

	rules := allRules(sheet)
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}

	for _, rule := range rules {
		last := rule.Selector.Tokens[len(rule.Selector.Tokens)-1]
		if last.Kind != css.TokenPseudoElement {
			t.Errorf("%q: expected trailing pseudo-element, got %s", rule.Selector, last.Kind)
		}
	}

	val, ok := rules[0].GetProperty("content")
	if !ok {
		t.Fatal("expected content property")
	}
	if val.Keyword != ">>" {
		t.Errorf("expected content '>>', got '%s'", val.Keyword)
	}
	if rules[1].Specificity.Value() != 12 {
		t.Errorf("expected p.note:after specificity 12, got %d", rules[1].Specificity.Value())
	}
}

func TestParser_Important(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`p { color: red !important; margin: 0 auto; }`))

	rules := allRules(sheet)
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	color, _ := rules[0].GetProperty("color")
	if !color.Important {
		t.Error("expected color to be important")
	}
	if color.Raw != "red" {
		t.Errorf("expected raw 'red', got '%s'", color.Raw)
	}
	if color.Keyword != "red" {
		t.Errorf("expected keyword 'red', got '%s'", color.Keyword)
	}

	margin, _ := rules[0].GetProperty("margin")
	if margin.Important {
		t.Error("margin must not be important")
	}
	if margin.Raw != "0 auto" {
		t.Errorf("expected raw '0 auto', got '%s'", margin.Raw)
	}
}

func TestParser_MediaBlock(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`
		p { margin: 0; }
		@media print {
			p { margin: 1em; }
		}
		@media screen {
			p { margin: 2em; }
		}
		.test { color: red; }
	`))

	if len(sheet.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(sheet.Items))
	}
	mb := sheet.Items[1].MediaBlock
	if mb == nil {
		t.Fatal("expected second item to be a MediaBlock")
	}
	if mb.Query.Raw != "print" {
		t.Errorf("expected media query 'print', got '%s'", mb.Query.Raw)
	}
	if len(mb.Rules) != 1 {
		t.Fatalf("expected 1 rule inside @media block, got %d", len(mb.Rules))
	}

	printRules := sheet.Rules("print")
	if len(printRules) != 3 {
		t.Fatalf("expected 3 rules for print, got %d", len(printRules))
	}
	val, _ := printRules[1].GetProperty("margin")
	if val.Raw != "1em" {
		t.Errorf("expected print margin 1em, got '%s'", val.Raw)
	}

	screenRules := sheet.Rules("screen")
	if len(screenRules) != 3 {
		t.Fatalf("expected 3 rules for screen, got %d", len(screenRules))
	}
	val, _ = screenRules[1].GetProperty("margin")
	if val.Raw != "2em" {
		t.Errorf("expected screen margin 2em, got '%s'", val.Raw)
	}

	// rules of media blocks keep the sheet-wide source order
	for i := 1; i < len(printRules); i++ {
		if printRules[i].Order <= printRules[i-1].Order {
			t.Errorf("rule %d: order %d is not after %d", i, printRules[i].Order, printRules[i-1].Order)
		}
	}
}

func TestParser_MediaFeaturesWarn(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`@media print and (min-width: 10cm) { p { margin: 0; } }`))

	if len(sheet.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(sheet.Warnings))
	}
	if got := len(sheet.Rules("print")); got != 1 {
		t.Errorf("features are assumed to match, expected 1 rule, got %d", got)
	}
}

func TestParser_Import(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`
		@import "base.css";
		@import url(print.css);
		p { margin: 0; }
	`))

	imports := sheet.Imports()
	if len(imports) != 2 {
		t.Fatalf("expected 2 imports, got %d", len(imports))
	}
	if imports[0] != "base.css" || imports[1] != "print.css" {
		t.Errorf("unexpected imports %v", imports)
	}
}

func TestParser_SkipsOtherAtRules(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`
		@font-face { font-family: "X"; src: url(x.ttf); }
		@page { margin: 1cm; }
		p { margin: 0; }
	`))

	rules := allRules(sheet)
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if rules[0].Order != 1 {
		t.Errorf("expected first ruleset to get order 1, got %d", rules[0].Order)
	}
}

func TestParser_Comments(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	sheet := p.Parse([]byte(`
		/* heading */
		h1 { font-weight: bold; }
		/* body */
		p { text-indent: 1em; }
	`))

	if len(allRules(sheet)) != 2 {
		t.Errorf("expected 2 rules, got %d", len(allRules(sheet)))
	}
}

func TestParser_NilLogger(t *testing.T) {
	p := css.NewParser(nil)
	sheet := p.Parse([]byte(`p { margin: 0; }`), "inline")
	if len(allRules(sheet)) != 1 {
		t.Errorf("expected 1 rule, got %d", len(allRules(sheet)))
	}
}

func TestParseMediaQuery(t *testing.T) {
	tests := []struct {
		query  string
		medium string
		want   bool
	}{
		{"", "print", true},
		{"all", "print", true},
		{"print", "print", true},
		{"screen", "print", false},
		{"PRINT", "print", true},
		{"not print", "print", false},
		{"not screen", "print", true},
		{"only screen", "screen", true},
		{"screen, print", "print", true},
		{"(min-width: 500px)", "print", true},
		{"screen and (color)", "print", false},
		{"print", "all", true},
		{"not print", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.query+"/"+tt.medium, func(t *testing.T) {
			if got := css.ParseMediaQuery(tt.query).Evaluate(tt.medium); got != tt.want {
				t.Errorf("ParseMediaQuery(%q).Evaluate(%q) = %v, want %v", tt.query, tt.medium, got, tt.want)
			}
		})
	}
}

func TestValue_IsNumeric(t *testing.T) {
	tests := []struct {
		val  css.Value
		want bool
	}{
		{css.Value{Raw: "0"}, true},
		{css.Value{Raw: "1em", Value: 1, Unit: "em"}, true},
		{css.Value{Raw: "bold", Keyword: "bold"}, false},
		{css.Value{}, false},
	}
	for _, tt := range tests {
		if got := tt.val.IsNumeric(); got != tt.want {
			t.Errorf("IsNumeric(%q) = %v, want %v", tt.val.Raw, got, tt.want)
		}
	}
	if !(css.Value{Keyword: "bold"}).IsKeyword() {
		t.Error("expected keyword")
	}
}

func TestRulesBySelector(t *testing.T) {
	p := css.NewParser(zap.NewNop())
	sheet := p.Parse([]byte(`p { margin: 0; } .x { color: red; } p { padding: 0; }`))

	if got := len(sheet.RulesBySelector("p")); got != 2 {
		t.Errorf("expected 2 'p' rules, got %d", got)
	}
	if got := len(sheet.RulesBySelector("div")); got != 0 {
		t.Errorf("expected no 'div' rules, got %d", got)
	}
}

func TestStylesheet_String(t *testing.T) {
	p := css.NewParser(zap.NewNop())
	sheet := p.Parse([]byte(`@import "base.css"; p { color: red !important; margin: 0; } @media print { .x { color: blue; } }`))

	want := `@import url("base.css");

p {
  color: red !important;
  margin: 0;
}

@media print {
  .x {
    color: blue;
  }
}
`
	if got := sheet.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}
