// Package search answers free-text program queries.
//
// Router is the entry point. It tries Semantic first (embed the query, then
// rank active programs by cosine similarity above a threshold) and falls back
// to Lexical (case-insensitive substring match over medication, generic,
// manufacturer and program names) when the provider fails or times out, the
// store cannot run similarity search, or nothing clears the threshold.
//
// A semantic answer is returned as is; results from the two paths are never
// merged. A store failure on the lexical path is the only error callers see,
// reported as types.ErrSearchUnavailable.
package search
