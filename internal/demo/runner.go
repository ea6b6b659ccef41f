// Package demo runs the encrypted-storage round trip: open the keyed
// database, ensure its schema, insert one entry, read every entry back,
// report them and close.
package demo

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cipherpoc/cipherpoc/internal/storage"
)

// Database is the slice of the store the runner drives.
type Database interface {
	EnsureSchema(ctx context.Context) error
	InsertEntry(ctx context.Context, entry *storage.Entry) error
	ListEntries(ctx context.Context) ([]storage.Entry, error)
	Close() error
}

type Opener func(ctx context.Context, opts storage.Options) (Database, error)

type EntryFactory func(now time.Time) (storage.Entry, error)

type Runner struct {
	Open     Opener
	NewEntry EntryFactory
	Now      func() time.Time
	NewRunID func() string
	Logger   *slog.Logger
	Out      io.Writer
	Format   Format
}

type Result struct {
	RunID    string
	Inserted storage.Entry
	Entries  []storage.Entry
}

func NewRunner(out io.Writer, logger *slog.Logger) *Runner {
	return &Runner{Out: out, Logger: logger}
}

// Run performs the round trip once. The database is closed on every path
// after a successful open; a close failure is reported only when nothing
// earlier failed.
func (r *Runner) Run(ctx context.Context, opts storage.Options) (result Result, err error) {
	r.applyDefaults()
	result.RunID = r.NewRunID()
	logger := r.Logger.With("run_id", result.RunID, "path", opts.Path)
	if opts.Logger == nil {
		opts.Logger = logger
	}

	logger.Debug("opening database")
	db, err := r.Open(ctx, opts)
	if err != nil {
		return result, err
	}
	defer func() {
		closeErr := db.Close()
		if closeErr == nil {
			logger.Debug("database closed")
			return
		}
		logger.Warn("close database failed", "error", closeErr)
		if err == nil {
			err = fmt.Errorf("close database: %w", closeErr)
		}
	}()

	if err := db.EnsureSchema(ctx); err != nil {
		return result, err
	}

	entry, err := r.NewEntry(r.Now())
	if err != nil {
		return result, fmt.Errorf("generate entry: %w", err)
	}
	if err := db.InsertEntry(ctx, &entry); err != nil {
		return result, err
	}
	result.Inserted = entry
	logger.Info("entry inserted", "hash", fmt.Sprintf("%x", entry.Hash), "dht_loc", entry.DHTLoc)

	entries, err := db.ListEntries(ctx)
	if err != nil {
		return result, err
	}
	result.Entries = entries
	logger.Info("entries read", "count", len(entries))

	if err := WriteReport(r.Out, entries, r.Format); err != nil {
		return result, fmt.Errorf("write report: %w", err)
	}
	return result, nil
}

func (r *Runner) applyDefaults() {
	if r.Open == nil {
		r.Open = OpenStore
	}
	if r.Now == nil {
		r.Now = func() time.Time { return time.Now().UTC() }
	}
	if r.NewEntry == nil {
		r.NewEntry = func(now time.Time) (storage.Entry, error) {
			return storage.NewRandomEntry(rand.Reader, now)
		}
	}
	if r.NewRunID == nil {
		r.NewRunID = func() string { return uuid.NewString() }
	}
	if r.Logger == nil {
		r.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.Out == nil {
		r.Out = io.Discard
	}
}

type storeDatabase struct {
	store *storage.Store
}

// OpenStore opens the encrypted store and adapts it to Database.
func OpenStore(ctx context.Context, opts storage.Options) (Database, error) {
	store, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &storeDatabase{store: store}, nil
}

func (d *storeDatabase) EnsureSchema(ctx context.Context) error {
	return d.store.EnsureSchema(ctx)
}

func (d *storeDatabase) InsertEntry(ctx context.Context, entry *storage.Entry) error {
	return d.store.Entries.Insert(ctx, entry)
}

func (d *storeDatabase) ListEntries(ctx context.Context) ([]storage.Entry, error) {
	return d.store.Entries.List(ctx)
}

func (d *storeDatabase) Close() error {
	return d.store.Close()
}
