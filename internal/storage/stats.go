package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Stats gathers the schema and page statistics shown by the inspect command.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, fmt.Errorf("stats: store is closed")
	}

	var stats Stats
	var err error

	// Plain SQLite answers PRAGMA cipher_version with no rows.
	if err := s.db.QueryRowContext(ctx, `PRAGMA cipher_version`).Scan(&stats.CipherVersion); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, classify("stats: cipher version", err)
	}
	if stats.PageSize, err = s.pragmaInt(ctx, "page_size"); err != nil {
		return Stats{}, err
	}
	if stats.PageCount, err = s.pragmaInt(ctx, "page_count"); err != nil {
		return Stats{}, err
	}
	if stats.FreelistCount, err = s.pragmaInt(ctx, "freelist_count"); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&stats.JournalMode); err != nil {
		return Stats{}, classify("stats: journal mode", err)
	}
	stats.JournalMode = strings.ToUpper(stats.JournalMode)

	stats.Schema, err = s.schemaObjects(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats.Tables = []TableStats{}
	for _, object := range stats.Schema {
		if object.Type != "table" {
			continue
		}
		if object.Name == "db_meta" {
			if stats.SchemaVersion, err = readSchemaVersion(ctx, s.db); err != nil {
				return Stats{}, err
			}
		}
		var rows int64
		if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+quoteIdent(object.Name)).Scan(&rows); err != nil {
			return Stats{}, classify("stats: count "+object.Name, err)
		}
		stats.Tables = append(stats.Tables, TableStats{Name: object.Name, Rows: rows})
	}
	return stats, nil
}

func (s *Store) pragmaInt(ctx context.Context, name string) (int64, error) {
	var value int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA `+name).Scan(&value); err != nil {
		return 0, classify("stats: "+name, err)
	}
	return value, nil
}

func (s *Store) schemaObjects(ctx context.Context) ([]SchemaObject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, name, COALESCE(sql, '')
		FROM sqlite_master
		WHERE name NOT LIKE 'sqlite_%'
		ORDER BY type DESC, name ASC
	`)
	if err != nil {
		return nil, classify("stats: schema", err)
	}
	defer rows.Close()

	objects := []SchemaObject{}
	for rows.Next() {
		var object SchemaObject
		if err := rows.Scan(&object.Type, &object.Name, &object.SQL); err != nil {
			return nil, classify("stats: schema: scan row", err)
		}
		objects = append(objects, object)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("stats: schema: iterate", err)
	}
	return objects, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
