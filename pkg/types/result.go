package types

// SearchMethod identifies which retrieval path produced a result set
type SearchMethod string

const (
	// MethodNone is used when the query was rejected before any retrieval
	MethodNone     SearchMethod = "none"
	MethodSemantic SearchMethod = "semantic"
	MethodLexical  SearchMethod = "lexical"
)

// ScoredProgram is a program matched by similarity search
type ScoredProgram struct {
	Program    *Program
	Similarity float64 // Cosine similarity in [-1, 1], normally [0, 1] for normalized text embeddings
}

// Programs extracts the programs from a scored result set, preserving order
func Programs(scored []ScoredProgram) []*Program {
	programs := make([]*Program, 0, len(scored))
	for _, s := range scored {
		programs = append(programs, s.Program)
	}
	return programs
}
