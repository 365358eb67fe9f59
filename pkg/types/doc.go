// Package types provides shared type definitions for the discount program search service.
//
// This package defines the domain types used across the storage, search and backfill
// components: programs, scored search hits and the error taxonomy.
//
// # Programs
//
// Program represents a manufacturer discount offering tied to a medication. Optional
// descriptive fields are pointers so that "absent" is distinguishable from "empty":
//
//	p := &types.Program{
//	    ID:             "6b0f...",
//	    MedicationName: "Mounjaro",
//	    GenericName:    types.String("tirzepatide"),
//	    Manufacturer:   "Eli Lilly",
//	    ProgramName:    "Mounjaro Savings Card",
//	    Active:         true,
//	}
//
// # Embedding Text
//
// EmbeddingText joins the searchable fields of a program in a fixed order:
//
//	text := types.EmbeddingText(p)
//	// "Mounjaro tirzepatide Eli Lilly Mounjaro Savings Card"
//
// An empty result means the program cannot be embedded and must be skipped.
//
// # Search Results
//
// ScoredProgram pairs a program with its cosine similarity to a query. Result sets
// carry a SearchMethod tag naming the retrieval path that produced them.
package types
