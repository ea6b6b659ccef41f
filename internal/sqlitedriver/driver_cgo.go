//go:build cgo

package sqlitedriver

import (
	"errors"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

// EncryptionSupported reports whether the registered driver links SQLCipher.
const EncryptionSupported = true

// ResultCode extracts the primary SQLite result code from a driver error.
func ResultCode(err error) (int, bool) {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return int(sqlErr.Code), true
	}
	var sqlErrPtr *sqlite3.Error
	if errors.As(err, &sqlErrPtr) && sqlErrPtr != nil {
		return int(sqlErrPtr.Code), true
	}
	return 0, false
}

// IsEncrypted reports whether the file at path lacks a plaintext SQLite header.
func IsEncrypted(path string) (bool, error) {
	return sqlite3.IsEncrypted(path)
}
