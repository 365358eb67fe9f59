package storage

import "strings"

// FoldFunction is the SQL scalar function registered on every SQLite
// connection. SQLite's LOWER and LIKE only fold ASCII, so lexical matching
// and ordering go through fold to agree with Match and the Postgres ILIKE path.
const FoldFunction = "fold"

// Fold lowercases s with Unicode case mapping
func Fold(s string) string {
	return strings.ToLower(s)
}
