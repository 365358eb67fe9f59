package supabase

import (
	"fmt"
	"strings"

	"github.com/supabase-community/postgrest-go"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
)

// applyPredicate adds a validated predicate to a PostgREST query. Top-level AND
// members become separate query parameters; OR groups become an or=(...) tree.
func applyPredicate(f *postgrest.FilterBuilder, p storage.Predicate) (*postgrest.FilterBuilder, error) {
	if err := storage.ValidatePredicate(p); err != nil {
		return nil, err
	}
	return apply(f, p), nil
}

func apply(f *postgrest.FilterBuilder, p storage.Predicate) *postgrest.FilterBuilder {
	switch v := p.(type) {
	case storage.Group:
		if v.Combinator == storage.CombineAnd {
			for _, m := range v.Members {
				f = apply(f, m)
			}
			return f
		}
		return f.Or(renderMembers(v.Members), "")
	case storage.Clause:
		if v.Op == storage.OpNotNull {
			return f.Not(string(v.Field), "is", "null")
		}
		op, value := clauseOperator(v)
		return f.Filter(string(v.Field), op, value)
	}
	return f
}

// renderLogic renders a predicate in PostgREST logic tree syntax
func renderLogic(p storage.Predicate) string {
	switch v := p.(type) {
	case storage.Group:
		name := "and"
		if v.Combinator == storage.CombineOr {
			name = "or"
		}
		return name + "(" + renderMembers(v.Members) + ")"
	case storage.Clause:
		op, value := clauseOperator(v)
		return string(v.Field) + "." + op + "." + quoteValue(value)
	}
	return ""
}

func renderMembers(members []storage.Predicate) string {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = renderLogic(m)
	}
	return strings.Join(parts, ",")
}

// clauseOperator maps a clause to a PostgREST operator and raw value
func clauseOperator(c storage.Clause) (string, string) {
	switch c.Op {
	case storage.OpIsNull:
		return "is", "null"
	case storage.OpNotNull:
		return "not.is", "null"
	case storage.OpContainsFold:
		s, _ := c.Value.(string)
		return "ilike", "*" + likePattern(s) + "*"
	default:
		return "eq", fmt.Sprint(c.Value)
	}
}

// likePattern escapes LIKE wildcards. PostgREST turns every '*' into '%', so a
// literal '*' is approximated by a single-character wildcard.
func likePattern(s string) string {
	return strings.ReplaceAll(storage.EscapeLike(strings.ToLower(s)), "*", "_")
}

// quoteValue double-quotes values containing PostgREST reserved characters
func quoteValue(v string) string {
	if !strings.ContainsAny(v, `,.:()"\ `) {
		return v
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
}
