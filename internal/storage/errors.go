package storage

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/cipherpoc/cipherpoc/internal/sqlitedriver"
)

var (
	ErrStorageUnavailable    = errors.New("storage: database file unavailable")
	ErrAuthenticationFailed  = errors.New("storage: key does not decrypt database")
	ErrConstraintViolation   = errors.New("storage: constraint violation")
	ErrQuery                 = errors.New("storage: query failed")
	ErrNotFound              = errors.New("storage: not found")
	ErrSchemaTooNew          = errors.New("storage: schema version newer than code")
	ErrEncryptionUnsupported = errors.New("storage: sqlite driver built without sqlcipher")
)

// Primary SQLite result codes.
const (
	sqlitePerm       = 3
	sqliteBusy       = 5
	sqliteLocked     = 6
	sqliteReadOnly   = 8
	sqliteIOErr      = 10
	sqliteCorrupt    = 11
	sqliteFull       = 13
	sqliteCantOpen   = 14
	sqliteConstraint = 19
	sqliteNotADB     = 26
)

var sentinels = []error{
	ErrStorageUnavailable,
	ErrAuthenticationFailed,
	ErrConstraintViolation,
	ErrQuery,
	ErrNotFound,
	ErrSchemaTooNew,
	ErrEncryptionUnsupported,
}

// classify wraps err with the sentinel matching its SQLite result code while
// keeping the driver error reachable through errors.As.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	code, ok := sqlitedriver.ResultCode(err)
	if !ok {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	switch code {
	case sqliteNotADB:
		return fmt.Errorf("%s: %w: %w", op, ErrAuthenticationFailed, err)
	case sqlitePerm, sqliteBusy, sqliteLocked, sqliteReadOnly, sqliteIOErr, sqliteCorrupt, sqliteFull, sqliteCantOpen:
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	case sqliteConstraint:
		return fmt.Errorf("%s: %w: %w", op, ErrConstraintViolation, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrQuery, err)
	}
}
