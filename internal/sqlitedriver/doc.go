// Package sqlitedriver registers the database/sql driver used by the store
// under the name "sqlite3".
//
// With cgo enabled the driver is go-sqlcipher, which links SQLCipher and
// honours the _pragma_key DSN parameter. Without cgo the pure-Go
// modernc.org/sqlite driver is registered instead; it can read and write
// plain SQLite files but cannot apply a key, so EncryptionSupported is false.
//
// Import the package for its side effects and for the error helpers:
//
//	import "github.com/cipherpoc/cipherpoc/internal/sqlitedriver"
package sqlitedriver

// DriverName is the database/sql name both builds register.
const DriverName = "sqlite3"
