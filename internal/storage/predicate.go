package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// ErrInvalidPredicate is returned when a predicate cannot be evaluated or rendered
var ErrInvalidPredicate = errors.New("invalid predicate")

// Field names a filterable program column
type Field string

const (
	FieldID             Field = "id"
	FieldMedicationName Field = "medication_name"
	FieldGenericName    Field = "generic_name"
	FieldManufacturer   Field = "manufacturer"
	FieldProgramName    Field = "program_name"
	FieldActive         Field = "active"
	FieldEmbedding      Field = "embedding"
)

// LexicalFields are the columns matched by lexical search
var LexicalFields = []Field{FieldMedicationName, FieldGenericName, FieldManufacturer, FieldProgramName}

// Op is a clause operator
type Op int

const (
	OpEq Op = iota + 1
	OpContainsFold
	OpIsNull
	OpNotNull
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpContainsFold:
		return "contains_fold"
	case OpIsNull:
		return "is_null"
	case OpNotNull:
		return "not_null"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Combinator joins the members of a Group
type Combinator int

const (
	CombineAnd Combinator = iota + 1
	CombineOr
)

// Predicate is a filter over programs: either a Clause or a Group.
// Predicates are built with Eq, ContainsFold, IsNull, NotNull, And and Or and are
// rendered by each store into its own query language with bound parameters.
type Predicate interface {
	predicate()
}

// Clause is a single comparison against one field
type Clause struct {
	Field Field
	Op    Op
	Value any // string for text fields, bool for FieldActive, unused for null checks
}

// Group combines predicates with AND or OR
type Group struct {
	Combinator Combinator
	Members    []Predicate
}

func (Clause) predicate() {}
func (Group) predicate()  {}

// Eq matches a field equal to value
func Eq(field Field, value any) Clause {
	return Clause{Field: field, Op: OpEq, Value: value}
}

// ContainsFold matches a text field containing substr, case-insensitively
func ContainsFold(field Field, substr string) Clause {
	return Clause{Field: field, Op: OpContainsFold, Value: substr}
}

// IsNull matches an absent field
func IsNull(field Field) Clause {
	return Clause{Field: field, Op: OpIsNull}
}

// NotNull matches a present field
func NotNull(field Field) Clause {
	return Clause{Field: field, Op: OpNotNull}
}

// And matches when every member matches
func And(members ...Predicate) Group {
	return Group{Combinator: CombineAnd, Members: members}
}

// Or matches when any member matches
func Or(members ...Predicate) Group {
	return Group{Combinator: CombineOr, Members: members}
}

// ActiveOnly restricts a predicate to active programs
func ActiveOnly(where Predicate) Predicate {
	if where == nil {
		return Eq(FieldActive, true)
	}
	return And(Eq(FieldActive, true), where)
}

// LexicalMatch builds the OR of case-insensitive substring matches of term across LexicalFields
func LexicalMatch(term string) Predicate {
	members := make([]Predicate, 0, len(LexicalFields))
	for _, f := range LexicalFields {
		members = append(members, ContainsFold(f, term))
	}
	return Or(members...)
}

// ValidatePredicate checks fields, operators and value types of a predicate tree
func ValidatePredicate(p Predicate) error {
	switch v := p.(type) {
	case Clause:
		return v.validate()
	case Group:
		if v.Combinator != CombineAnd && v.Combinator != CombineOr {
			return fmt.Errorf("%w: unknown combinator %d", ErrInvalidPredicate, v.Combinator)
		}
		if len(v.Members) == 0 {
			return fmt.Errorf("%w: empty group", ErrInvalidPredicate)
		}
		for _, m := range v.Members {
			if err := ValidatePredicate(m); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return fmt.Errorf("%w: nil predicate", ErrInvalidPredicate)
	default:
		return fmt.Errorf("%w: unsupported predicate %T", ErrInvalidPredicate, p)
	}
}

func (c Clause) validate() error {
	switch c.Field {
	case FieldID, FieldMedicationName, FieldGenericName, FieldManufacturer, FieldProgramName:
		switch c.Op {
		case OpEq, OpContainsFold:
			if _, ok := c.Value.(string); !ok {
				return fmt.Errorf("%w: %s %s requires a string value", ErrInvalidPredicate, c.Field, c.Op)
			}
			return nil
		case OpIsNull, OpNotNull:
			return nil
		}
	case FieldActive:
		if c.Op == OpEq {
			if _, ok := c.Value.(bool); !ok {
				return fmt.Errorf("%w: %s requires a bool value", ErrInvalidPredicate, c.Field)
			}
			return nil
		}
	case FieldEmbedding:
		if c.Op == OpIsNull || c.Op == OpNotNull {
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidPredicate, c.Field)
	}
	return fmt.Errorf("%w: operator %s not supported on %s", ErrInvalidPredicate, c.Op, c.Field)
}

// Match evaluates a predicate against a program in memory.
// embedded reports whether the program currently holds an embedding.
func Match(p Predicate, prog *types.Program, embedded bool) bool {
	switch v := p.(type) {
	case Clause:
		return v.match(prog, embedded)
	case Group:
		if v.Combinator == CombineOr {
			for _, m := range v.Members {
				if Match(m, prog, embedded) {
					return true
				}
			}
			return false
		}
		for _, m := range v.Members {
			if !Match(m, prog, embedded) {
				return false
			}
		}
		return len(v.Members) > 0
	default:
		return false
	}
}

func (c Clause) match(prog *types.Program, embedded bool) bool {
	if c.Field == FieldActive {
		want, _ := c.Value.(bool)
		return c.Op == OpEq && prog.Active == want
	}
	if c.Field == FieldEmbedding {
		return (c.Op == OpNotNull) == embedded
	}

	value, present := textField(prog, c.Field)
	switch c.Op {
	case OpIsNull:
		return !present
	case OpNotNull:
		return present
	case OpEq:
		s, _ := c.Value.(string)
		return present && value == s
	case OpContainsFold:
		s, _ := c.Value.(string)
		return present && strings.Contains(Fold(value), Fold(s))
	default:
		return false
	}
}

func textField(prog *types.Program, f Field) (string, bool) {
	switch f {
	case FieldID:
		return prog.ID, true
	case FieldMedicationName:
		return prog.MedicationName, true
	case FieldGenericName:
		return types.Deref(prog.GenericName), prog.GenericName != nil
	case FieldManufacturer:
		return prog.Manufacturer, true
	case FieldProgramName:
		return prog.ProgramName, true
	default:
		return "", false
	}
}
