//go:build sqlite_vec && !purego
// +build sqlite_vec,!purego

package storage

// Compiled with CGO and the sqlite_vec tag. Similarity search runs in SQL through
// the sqlite-vec extension, which must be loadable by the mattn driver.
//
//   CGO_ENABLED=1 go build -tags "sqlite_vec" ./...

import (
	"database/sql"

	"github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use. It wraps mattn's driver so every
	// connection gets the fold function.
	DriverName = "sqlite3_fold"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(FoldFunction, Fold, true)
		},
	})
}
