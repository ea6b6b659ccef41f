// Package storage opens SQLCipher-encrypted SQLite files, applies embedded
// schema migrations, and exposes the entries repository.
package storage
