package css

import (
	"cmp"
	"slices"
)

// Declaration is a single property assignment coming from a rule.
type Declaration struct {
	Property    string
	Value       Value
	Selector    *Selector
	Specificity Specificity
	Order       int
}

// compareCascade orders declarations by precedence: normal before important,
// then by specificity, then by source order. Greater wins.
func compareCascade(a, b Declaration) int {
	if a.Value.Important != b.Value.Important {
		if a.Value.Important {
			return 1
		}
		return -1
	}
	if c := a.Specificity.Compare(b.Specificity); c != 0 {
		return c
	}
	return cmp.Compare(a.Order, b.Order)
}

// CascadeOrder flattens rules into declarations sorted from the lowest to the
// highest precedence, so that for every property the last entry wins.
// Declarations with equal precedence keep their relative order.
func CascadeOrder(rules []Rule) []Declaration {
	var decls []Declaration
	for _, rule := range rules {
		props := make([]string, 0, len(rule.Properties))
		for name := range rule.Properties {
			props = append(props, name)
		}
		slices.Sort(props)
		for _, name := range props {
			decls = append(decls, Declaration{
				Property:    name,
				Value:       rule.Properties[name],
				Selector:    rule.Selector,
				Specificity: rule.Specificity,
				Order:       rule.Order,
			})
		}
	}
	slices.SortStableFunc(decls, compareCascade)
	return decls
}

// Winners returns the declaration in effect for every property.
func Winners(decls []Declaration) map[string]Declaration {
	out := make(map[string]Declaration)
	for _, d := range decls {
		if cur, ok := out[d.Property]; !ok || compareCascade(cur, d) <= 0 {
			out[d.Property] = d
		}
	}
	return out
}
