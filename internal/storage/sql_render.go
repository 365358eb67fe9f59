package storage

import (
	"fmt"
	"strings"
)

// Dialect describes how a SQL database spells placeholders, case-insensitive
// substring matches and booleans
type Dialect struct {
	Name        string
	Placeholder func(n int) string
	FoldLike    func(column, placeholder string) string
	Bool        func(b bool) any
}

// SQLiteDialect renders predicates for SQLite
var SQLiteDialect = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	FoldLike: func(column, ph string) string {
		return FoldFunction + "(" + column + ") LIKE " + ph + " ESCAPE '\\'"
	},
	Bool: func(b bool) any {
		if b {
			return 1
		}
		return 0
	},
}

// PostgresDialect renders predicates for PostgreSQL
var PostgresDialect = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	FoldLike: func(column, ph string) string {
		return column + " ILIKE " + ph + " ESCAPE '\\'"
	},
	Bool: func(b bool) any { return b },
}

// columns whitelists the SQL identifiers a predicate may reference
var columns = map[Field]string{
	FieldID:             "id",
	FieldMedicationName: "medication_name",
	FieldGenericName:    "generic_name",
	FieldManufacturer:   "manufacturer",
	FieldProgramName:    "program_name",
	FieldActive:         "active",
	FieldEmbedding:      "embedding",
}

// RenderSQL renders a predicate as a WHERE fragment. Values are always bound as
// parameters; firstArg is the 1-based number of the first placeholder.
func RenderSQL(p Predicate, d Dialect, firstArg int) (string, []any, error) {
	if err := ValidatePredicate(p); err != nil {
		return "", nil, err
	}
	r := &sqlRenderer{dialect: d, next: firstArg}
	sql := r.render(p)
	return sql, r.args, nil
}

type sqlRenderer struct {
	dialect Dialect
	next    int
	args    []any
}

func (r *sqlRenderer) bind(v any) string {
	ph := r.dialect.Placeholder(r.next)
	r.next++
	r.args = append(r.args, v)
	return ph
}

func (r *sqlRenderer) render(p Predicate) string {
	switch v := p.(type) {
	case Group:
		sep := " AND "
		if v.Combinator == CombineOr {
			sep = " OR "
		}
		parts := make([]string, len(v.Members))
		for i, m := range v.Members {
			parts[i] = r.render(m)
		}
		return "(" + strings.Join(parts, sep) + ")"
	case Clause:
		col := columns[v.Field]
		switch v.Op {
		case OpIsNull:
			return col + " IS NULL"
		case OpNotNull:
			return col + " IS NOT NULL"
		case OpEq:
			if b, ok := v.Value.(bool); ok {
				return col + " = " + r.bind(r.dialect.Bool(b))
			}
			return col + " = " + r.bind(v.Value)
		case OpContainsFold:
			s, _ := v.Value.(string)
			return r.dialect.FoldLike(col, r.bind("%"+EscapeLike(Fold(s))+"%"))
		}
	}
	return ""
}

// EscapeLike escapes LIKE wildcards so the value matches literally with ESCAPE '\'
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
