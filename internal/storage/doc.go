// Package storage provides the record store for discount programs.
//
// The Store interface is the only way search and backfill touch persisted data.
// Implementations live here (SQLite) and in the postgres, supabase and qdrant
// subpackages, and all of them honor the same contract:
//   - Read paths return active programs only
//   - Embedding vectors never leave the store; reads return types.Program
//   - Connectivity and query failures wrap types.ErrStoreUnavailable
//   - Similarity failures wrap types.ErrSimilarityUnavailable
//
// # Predicates
//
// Lexical filters are built as typed predicate trees and rendered by each store
// with bound parameters, never by string concatenation of user input:
//
//	where := storage.Or(
//	    storage.ContainsFold(storage.FieldMedicationName, "mounjaro"),
//	    storage.ContainsFold(storage.FieldGenericName, "mounjaro"),
//	)
//	programs, err := store.SearchLexical(ctx, where, 10)
//
// LexicalMatch builds the standard four-field OR used by lexical search.
//
// # SQLite
//
//	store, err := storage.NewSQLiteStorage("pharma.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Schema migrations are versioned with semver and applied on open. The default
// build uses modernc.org/sqlite and ranks similarity in Go; building with
// -tags sqlite_vec switches to mattn/go-sqlite3 and SQL-side vec_distance_cosine.
//
// Embeddings are stored as little-endian float32 blobs.
package storage
