package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cipherpoc/cipherpoc/internal/crypto"
	"github.com/cipherpoc/cipherpoc/internal/sqlitedriver"
)

const (
	DefaultCipherPageSize = 4096
	DefaultJournalMode    = "WAL"
	DefaultBusyTimeout    = 5 * time.Second

	pragmaForeignKeysOn = `PRAGMA foreign_keys=ON`
	verifyKeyQuery      = `SELECT count(*) FROM sqlite_master`
)

var journalModes = map[string]struct{}{
	"DELETE":   {},
	"TRUNCATE": {},
	"PERSIST":  {},
	"MEMORY":   {},
	"WAL":      {},
	"OFF":      {},
}

type Options struct {
	Path           string
	Key            *crypto.Key
	CipherPageSize int
	JournalMode    string
	BusyTimeout    time.Duration
	Logger         *slog.Logger
}

type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	Entries EntryRepository
}

// Open connects to the database at opts.Path, creating it when absent, and
// proves the key decrypts it before returning. No schema is touched; call
// EnsureSchema for that.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("open storage: empty path")
	}
	// The driver splits its DSN on the first '?', so such a path would
	// silently open a different file.
	if strings.ContainsAny(opts.Path, "?#") {
		return nil, fmt.Errorf("open storage: path %q contains '?' or '#': %w", opts.Path, ErrStorageUnavailable)
	}
	if !opts.Key.Alive() {
		return nil, fmt.Errorf("open storage: key is nil or destroyed")
	}
	if !sqlitedriver.EncryptionSupported {
		return nil, fmt.Errorf("open storage: %w", ErrEncryptionUnsupported)
	}
	opts = withDefaults(opts)
	if _, ok := journalModes[opts.JournalMode]; !ok {
		return nil, fmt.Errorf("open storage: unsupported journal mode %q", opts.JournalMode)
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("open storage: create parent dir: %w: %w", ErrStorageUnavailable, err)
	}

	db, err := sql.Open(sqlitedriver.DriverName, buildDSN(opts))
	if err != nil {
		return nil, classify("open storage", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := verifyKey(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := configureSQLite(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureDBPermissions(opts.Path); err != nil {
		_ = db.Close()
		return nil, err
	}

	opts.Logger.Debug("storage opened", "path", opts.Path, "journal_mode", opts.JournalMode, "cipher_page_size", opts.CipherPageSize)

	store := &Store{
		db:     db,
		path:   opts.Path,
		logger: opts.Logger,
	}
	store.Entries = &entryRepository{db: db}
	return store, nil
}

// EnsureSchema applies pending migrations. Safe to call on every run.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("ensure schema: store is closed")
	}
	return RunMigrations(ctx, s.db, DefaultMigrations())
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return classify("close storage", err)
	}
	s.logger.Debug("storage closed", "path", s.path)
	return nil
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func withDefaults(opts Options) Options {
	if opts.CipherPageSize <= 0 {
		opts.CipherPageSize = DefaultCipherPageSize
	}
	opts.JournalMode = strings.ToUpper(strings.TrimSpace(opts.JournalMode))
	if opts.JournalMode == "" {
		opts.JournalMode = DefaultJournalMode
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return opts
}

// buildDSN carries the key in the DSN so the driver issues PRAGMA key on
// every new connection before any other statement.
func buildDSN(opts Options) string {
	params := url.Values{}
	params.Set("_pragma_key", opts.Key.RawLiteral())
	params.Set("_pragma_cipher_page_size", strconv.Itoa(opts.CipherPageSize))
	return opts.Path + "?" + params.Encode()
}

func verifyKey(ctx context.Context, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, verifyKeyQuery).Scan(&count); err != nil {
		return classify("open storage: verify key", err)
	}
	return nil
}

func configureSQLite(ctx context.Context, db *sql.DB, opts Options) error {
	pragmas := []string{
		`PRAGMA journal_mode=` + opts.JournalMode,
		pragmaForeignKeysOn,
		`PRAGMA busy_timeout=` + strconv.FormatInt(opts.BusyTimeout.Milliseconds(), 10),
	}
	for _, stmt := range pragmas {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return classify(fmt.Sprintf("configure sqlite %q", stmt), err)
		}
	}
	return nil
}

func ensureDBPermissions(path string) error {
	for _, candidate := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Chmod(candidate, 0o600); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("set permissions on %s: %w: %w", filepath.Base(candidate), ErrStorageUnavailable, err)
			}
		}
	}
	return nil
}
