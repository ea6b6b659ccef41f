//go:build !cgo

package sqlitedriver

import (
	"database/sql"
	"errors"

	"modernc.org/sqlite"
)

func init() {
	sql.Register(DriverName, &sqlite.Driver{})
}

// EncryptionSupported reports whether the registered driver links SQLCipher.
const EncryptionSupported = false

// ResultCode extracts the primary SQLite result code from a driver error.
func ResultCode(err error) (int, bool) {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) && sqlErr != nil {
		return sqlErr.Code() & 0xff, true
	}
	return 0, false
}

// IsEncrypted reports whether the file at path lacks a plaintext SQLite header.
func IsEncrypted(path string) (bool, error) {
	return hasForeignHeader(path)
}
