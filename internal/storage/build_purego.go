//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Compiled by default and with the purego tag. Uses the pure Go SQLite driver and
// ranks similarity in Go; no C compiler required.
//
//   CGO_ENABLED=0 go build ./...

import (
	"database/sql/driver"

	"modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(FoldFunction, 1, foldScalar)
}

func foldScalar(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return Fold(v), nil
	case []byte:
		return Fold(string(v)), nil
	default:
		return v, nil
	}
}
