package storage

import (
	"context"
	"time"
)

type Entry struct {
	Hash      []byte
	DHTLoc    uint32
	CreatedAt time.Time
}

// EntryFilter bounds a ranged query. Nil fields are unbounded; bounds are
// inclusive.
type EntryFilter struct {
	DHTLocFrom *uint32
	DHTLocTo   *uint32
	Since      *time.Time
	Until      *time.Time
}

type EntryRepository interface {
	Insert(ctx context.Context, entry *Entry) error
	List(ctx context.Context) ([]Entry, error)
	Query(ctx context.Context, filter EntryFilter) ([]Entry, error)
}

type SchemaObject struct {
	Type string `json:"type"`
	Name string `json:"name"`
	SQL  string `json:"sql,omitempty"`
}

type TableStats struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

type Stats struct {
	CipherVersion string         `json:"cipher_version,omitempty"`
	PageSize      int64          `json:"page_size"`
	PageCount     int64          `json:"page_count"`
	FreelistCount int64          `json:"freelist_count"`
	JournalMode   string         `json:"journal_mode"`
	SchemaVersion int            `json:"schema_version"`
	Schema        []SchemaObject `json:"schema"`
	Tables        []TableStats   `json:"tables"`
}
