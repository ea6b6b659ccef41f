package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/cipherpoc/cipherpoc/internal/crypto"
	"github.com/cipherpoc/cipherpoc/internal/sqlitedriver"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestRunMigrationsAppliesAllSequentially(t *testing.T) {
	t.Parallel()

	db := openRawTestDB(t)
	defer closeNoErr(t, db)

	err := RunMigrations(context.Background(), db, DefaultMigrations())
	require.NoError(t, err)

	require.Equal(t, CurrentSchemaVersion(), mustSchemaVersion(t, db))
	for _, table := range []string{"db_meta", "schema_migrations", "entries"} {
		require.Truef(t, objectExists(t, db, "table", table), "expected table %s to exist", table)
	}
	require.True(t, objectExists(t, db, "index", "entries_query_idx"))
}

func TestRunMigrationsIsAtomic(t *testing.T) {
	t.Parallel()

	db := openRawTestDB(t)
	defer closeNoErr(t, db)

	migrations := []Migration{
		{
			Version:     1,
			Description: "create a",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `CREATE TABLE test_a (id TEXT PRIMARY KEY)`)
				return err
			},
		},
		{
			Version:     2,
			Description: "create b then fail",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, `CREATE TABLE test_b (id TEXT PRIMARY KEY)`); err != nil {
					return err
				}
				return errors.New("boom")
			},
		},
	}

	err := RunMigrations(context.Background(), db, migrations)
	require.Error(t, err)
	require.Equal(t, 1, mustSchemaVersion(t, db))
	require.True(t, objectExists(t, db, "table", "test_a"))
	require.False(t, objectExists(t, db, "table", "test_b"))
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	t.Parallel()

	db := openRawTestDB(t)
	defer closeNoErr(t, db)

	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db, DefaultMigrations()))
	require.NoError(t, RunMigrations(ctx, db, DefaultMigrations()))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE name = 'entries'`).Scan(&count))
	require.Equal(t, 1, count)
	require.Equal(t, CurrentSchemaVersion(), mustSchemaVersion(t, db))
}

func TestRunMigrationsRefusesNewerSchemaVersion(t *testing.T) {
	t.Parallel()

	db := openRawTestDB(t)
	defer closeNoErr(t, db)

	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db, DefaultMigrations()))
	_, err := db.Exec(`UPDATE db_meta SET value = ? WHERE key = 'schema_version'`, CurrentSchemaVersion()+1)
	require.NoError(t, err)

	err = RunMigrations(ctx, db, DefaultMigrations())
	require.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestOpenRequiresPathAndKey(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Options{Key: newTestKey(t, 0x00)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty path")

	_, err = Open(context.Background(), Options{Path: rawDBPath(t)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "key is nil")
}

func TestOpenWithoutSQLCipherRefusesKeyedDatabase(t *testing.T) {
	t.Parallel()
	if sqlitedriver.EncryptionSupported {
		t.Skip("sqlcipher is linked")
	}

	_, err := Open(context.Background(), Options{Path: rawDBPath(t), Key: newTestKey(t, 0x00)})
	require.ErrorIs(t, err, ErrEncryptionUnsupported)
}

func TestOpenRejectsUnknownJournalMode(t *testing.T) {
	t.Parallel()
	requireEncryption(t)

	_, err := Open(context.Background(), Options{Path: rawDBPath(t), Key: newTestKey(t, 0x00), JournalMode: "sideways"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported journal mode")
}

func TestOpenCreatesEncryptedFile(t *testing.T) {
	t.Parallel()
	requireEncryption(t)

	path := rawDBPath(t)
	store := openTestStore(t, path, newTestKey(t, 0x00))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.Close())

	encrypted, err := sqlitedriver.IsEncrypted(path)
	require.NoError(t, err)
	require.True(t, encrypted)

	plain, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer closeNoErr(t, plain)
	var count int
	err = plain.QueryRow(`SELECT count(*) FROM sqlite_master`).Scan(&count)
	require.Error(t, err)
}

func TestOpenRejectsPathWithDSNSeparators(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"data?v1", "data#v1"} {
		dir := t.TempDir()
		path := filepath.Join(dir, name, "entries.db")

		store, err := Open(context.Background(), Options{Path: path, Key: newTestKey(t, 0x00)})
		if store != nil {
			t.Cleanup(func() { _ = store.Close() })
		}
		require.ErrorIs(t, err, ErrStorageUnavailable)
		require.Nil(t, store)

		leftovers, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Empty(t, leftovers, "open must not create %q", name)
	}
}

func TestOpenWritesExactlyTheRequestedPath(t *testing.T) {
	t.Parallel()
	requireEncryption(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "nested dir", "entries v1.db")
	ctx := context.Background()

	store := openTestStore(t, path, newTestKey(t, 0x00))
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Entries.Insert(ctx, &Entry{Hash: []byte{5, 6, 7, 8}, DHTLoc: 3}))
	require.Equal(t, path, store.Path())
	require.NoError(t, store.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	encrypted, err := sqlitedriver.IsEncrypted(path)
	require.NoError(t, err)
	require.True(t, encrypted)

	top, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, "nested dir", top[0].Name())
}

func TestOpenWrongKeyFailsWithoutMutation(t *testing.T) {
	t.Parallel()
	requireEncryption(t)

	ctx := context.Background()
	path := rawDBPath(t)
	store := openTestStore(t, path, newTestKey(t, 0x00))
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Entries.Insert(ctx, &Entry{Hash: []byte{1, 2, 3, 4}, DHTLoc: 7}))
	require.NoError(t, store.Close())

	wrong, err := Open(ctx, Options{Path: path, Key: newTestKey(t, 0x42)})
	if wrong != nil {
		t.Cleanup(func() { _ = wrong.Close() })
	}
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.Nil(t, wrong)

	reopened := openTestStore(t, path, newTestKey(t, 0x00))
	require.NoError(t, reopened.EnsureSchema(ctx))
	list, err := reopened.Entries.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestOpenNonDatabaseFileFails(t *testing.T) {
	t.Parallel()
	requireEncryption(t)

	path := rawDBPath(t)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("definitely not a database\n"), 512), 0o600))

	store, err := Open(context.Background(), Options{Path: path, Key: newTestKey(t, 0x00)})
	if store != nil {
		t.Cleanup(func() { _ = store.Close() })
	}
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrStorageUnavailable), "unexpected error: %v", err)
}

func TestOpenUncreatablePathFailsWithStorageUnavailable(t *testing.T) {
	t.Parallel()
	requireEncryption(t)

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := Open(context.Background(), Options{Path: filepath.Join(blocker, "entries.db"), Key: newTestKey(t, 0x00)})
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestEnsureSchemaIdempotentAcrossReopen(t *testing.T) {
	t.Parallel()
	requireEncryption(t)

	ctx := context.Background()
	path := rawDBPath(t)
	for i := 0; i < 3; i++ {
		store := openTestStore(t, path, newTestKey(t, 0x00))
		require.NoError(t, store.EnsureSchema(ctx))
		require.NoError(t, store.Close())
	}

	store := openTestStore(t, path, newTestKey(t, 0x00))
	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'entries'`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestEntryInsertListRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	entry := &Entry{Hash: []byte{0x1a, 0x6f, 0x07, 0x1f}, DHTLoc: 4294967295, CreatedAt: created}
	require.NoError(t, store.Entries.Insert(ctx, entry))

	list, err := store.Entries.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, entry.Hash, list[0].Hash)
	require.Equal(t, uint32(4294967295), list[0].DHTLoc)
	require.True(t, created.Equal(list[0].CreatedAt))
}

func TestEntryInsertPopulatesCreatedAt(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	entry := &Entry{Hash: []byte{9, 9, 9, 9}}
	before := time.Now().UTC()
	require.NoError(t, store.Entries.Insert(context.Background(), entry))
	require.False(t, entry.CreatedAt.Before(before))
}

func TestEntryInsertRequiresHash(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.Entries.Insert(context.Background(), &Entry{DHTLoc: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "hash is required")
}

func TestEntryInsertDuplicateHashIsConstraintViolation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Entries.Insert(ctx, &Entry{Hash: []byte{1, 1, 1, 1}, DHTLoc: 1}))
	err := store.Entries.Insert(ctx, &Entry{Hash: []byte{1, 1, 1, 1}, DHTLoc: 2})
	require.ErrorIs(t, err, ErrConstraintViolation)

	list, err := store.Entries.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, uint32(1), list[0].DHTLoc)
}

func TestEntryQueryFiltersByRange(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []*Entry{
		{Hash: []byte{0, 0, 0, 1}, DHTLoc: 10, CreatedAt: base},
		{Hash: []byte{0, 0, 0, 2}, DHTLoc: 20, CreatedAt: base.Add(time.Hour)},
		{Hash: []byte{0, 0, 0, 3}, DHTLoc: 30, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, entry := range entries {
		require.NoError(t, store.Entries.Insert(ctx, entry))
	}

	from, to := uint32(15), uint32(30)
	got, err := store.Entries.Query(ctx, EntryFilter{DHTLocFrom: &from, DHTLocTo: &to})
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{20, 30}, dhtLocs(got))

	since, until := base.Add(30*time.Minute), base.Add(time.Hour)
	got, err = store.Entries.Query(ctx, EntryFilter{Since: &since, Until: &until})
	require.NoError(t, err)
	require.Equal(t, []uint32{20}, dhtLocs(got))

	got, err = store.Entries.Query(ctx, EntryFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestStatsReportsSchemaAndCounts(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Entries.Insert(ctx, &Entry{Hash: []byte{5, 5, 5, 5}, DHTLoc: 5}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, stats.CipherVersion)
	require.Equal(t, int64(DefaultCipherPageSize), stats.PageSize)
	require.Positive(t, stats.PageCount)
	require.Equal(t, "WAL", stats.JournalMode)
	require.Equal(t, CurrentSchemaVersion(), stats.SchemaVersion)

	rows := map[string]int64{}
	for _, table := range stats.Tables {
		rows[table.Name] = table.Rows
	}
	require.Equal(t, int64(1), rows["entries"])

	var sawIndex bool
	for _, object := range stats.Schema {
		if object.Type == "index" && object.Name == "entries_query_idx" {
			sawIndex = true
			require.True(t, strings.Contains(object.SQL, "dht_loc"))
		}
	}
	require.True(t, sawIndex)
}

func TestDBFilePermissions0600OnUnix(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	requireEncryption(t)

	path := rawDBPath(t)
	store := openTestStore(t, path, newTestKey(t, 0x00))
	require.NoError(t, store.EnsureSchema(context.Background()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	require.Error(t, store.EnsureSchema(context.Background()))
}

func TestNewRandomEntryReadsFromSource(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 5, 5, 5, 5, 0, time.FixedZone("X", 3600))
	entry, err := NewRandomEntry(bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00, 0x01, 0x00}), now)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, entry.Hash)
	require.Equal(t, uint32(256), entry.DHTLoc)
	require.Equal(t, time.UTC, entry.CreatedAt.Location())

	_, err = NewRandomEntry(bytes.NewReader([]byte{1, 2}), now)
	require.Error(t, err)
}

func TestTimestampLayoutSortsChronologically(t *testing.T) {
	t.Parallel()

	whole := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)
	fractional := whole.Add(500 * time.Millisecond)
	require.Less(t, fmtTime(whole), fmtTime(fractional))

	parsed, err := parseTime(fmtTime(fractional))
	require.NoError(t, err)
	require.True(t, fractional.Equal(parsed))
}

func requireEncryption(t *testing.T) {
	t.Helper()
	if !sqlitedriver.EncryptionSupported {
		t.Skip("sqlcipher driver not linked (built without cgo)")
	}
}

func newTestKey(t *testing.T, fill byte) *crypto.Key {
	t.Helper()
	key, err := crypto.NewKey(bytes.Repeat([]byte{fill}, crypto.KeySize))
	require.NoError(t, err)
	t.Cleanup(key.Destroy)
	return key
}

func openTestStore(t *testing.T, path string, key *crypto.Key) *Store {
	t.Helper()
	store, err := Open(context.Background(), Options{Path: path, Key: key})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	requireEncryption(t)
	store := openTestStore(t, rawDBPath(t), newTestKey(t, 0x00))
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func openRawTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", rawDBPath(t))
	require.NoError(t, err)
	return db
}

func rawDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "entries.db")
}

func mustSchemaVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var version int
	err := db.QueryRow(`SELECT value FROM db_meta WHERE key = 'schema_version'`).Scan(&version)
	require.NoError(t, err)
	return version
}

func objectExists(t *testing.T, db *sql.DB, kind, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE type=? AND name=?`, kind, name).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func closeNoErr(t *testing.T, db *sql.DB) {
	t.Helper()
	require.NoError(t, db.Close())
}

func dhtLocs(entries []Entry) []uint32 {
	out := make([]uint32, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.DHTLoc)
	}
	return out
}
