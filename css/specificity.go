package css

// CalculateSpecificity returns the specificity of selector text combined as
// 100*A + 10*B + C. It never fails: fragments which cannot be recognized add
// nothing. For a selector list the most specific member is used.
func CalculateSpecificity(text string) int {
	sels, _ := ParseSelectorList(text)
	return MaxSpecificity(sels).Value()
}

// Specificity folds selector tokens into the [A,B,C] triple.
func (s *Selector) Specificity() Specificity {
	var out Specificity
	if s == nil {
		return out
	}
	for _, t := range s.Tokens {
		out = out.Add(t.Specificity())
	}
	return out
}

// Specificity returns the weight of a single token. Combinators and the
// universal selector weigh nothing.
func (t Token) Specificity() Specificity {
	switch t.Kind {
	case TokenID:
		return Specificity{A: 1}
	case TokenClass, TokenAttribute:
		return Specificity{B: 1}
	case TokenPseudoClass:
		switch t.Name {
		case "where":
			return Specificity{}
		case "not", "is", "matches", "has":
			return MaxSpecificity(t.Args)
		}
		return Specificity{B: 1}
	case TokenType, TokenPseudoElement:
		return Specificity{C: 1}
	}
	return Specificity{}
}

// MaxSpecificity returns the greatest specificity among selectors of a list,
// which is the one in effect for a grouped selector.
func MaxSpecificity(sels []*Selector) Specificity {
	var out Specificity
	for _, sel := range sels {
		if spec := sel.Specificity(); out.Less(spec) {
			out = spec
		}
	}
	return out
}
