package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type entryRepository struct {
	db *sql.DB
}

func (r *entryRepository) Insert(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("insert entry: entry is nil")
	}
	if len(entry.Hash) == 0 {
		return fmt.Errorf("insert entry: hash is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = nowUTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("insert entry: begin", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries(hash, dht_loc, created_at)
		VALUES(?, ?, ?)
	`, entry.Hash, int64(entry.DHTLoc), fmtTime(entry.CreatedAt))
	if err != nil {
		_ = tx.Rollback()
		return classify("insert entry", err)
	}
	if err := tx.Commit(); err != nil {
		return classify("insert entry: commit", err)
	}
	return nil
}

// List returns every entry in storage order; no ORDER BY is applied.
func (r *entryRepository) List(ctx context.Context) ([]Entry, error) {
	return r.query(ctx, "list entries", `SELECT hash, dht_loc, created_at FROM entries`)
}

func (r *entryRepository) Query(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	query := `
		SELECT hash, dht_loc, created_at
		FROM entries
		WHERE 1=1
	`
	args := make([]any, 0, 4)
	if filter.DHTLocFrom != nil {
		query += ` AND dht_loc >= ? `
		args = append(args, int64(*filter.DHTLocFrom))
	}
	if filter.DHTLocTo != nil {
		query += ` AND dht_loc <= ? `
		args = append(args, int64(*filter.DHTLocTo))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ? `
		args = append(args, fmtTime(*filter.Since))
	}
	if filter.Until != nil {
		query += ` AND created_at <= ? `
		args = append(args, fmtTime(*filter.Until))
	}
	return r.query(ctx, "query entries", query, args...)
}

// query reads inside a transaction that is always rolled back, so a
// multi-statement read would see one snapshot.
func (r *entryRepository) query(ctx context.Context, op, query string, args ...any) ([]Entry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(op+": begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			entry   Entry
			dhtLoc  int64
			created string
		)
		if err := rows.Scan(&entry.Hash, &dhtLoc, &created); err != nil {
			return nil, classify(op+": scan row", err)
		}
		if dhtLoc < 0 || dhtLoc > int64(^uint32(0)) {
			return nil, fmt.Errorf("%s: %w: dht_loc %d out of range", op, ErrQuery, dhtLoc)
		}
		entry.DHTLoc = uint32(dhtLoc)
		entry.CreatedAt, err = parseTime(created)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrQuery, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op+": iterate", err)
	}
	return entries, nil
}
