package demo

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cipherpoc/cipherpoc/internal/storage"
)

type Format int

const (
	FormatText Format = iota
	FormatJSON
)

type EntryView struct {
	Hash      string `json:"hash"`
	DHTLoc    uint32 `json:"dht_loc"`
	CreatedAt string `json:"created_at"`
}

func NewEntryView(entry storage.Entry) EntryView {
	return EntryView{
		Hash:      hex.EncodeToString(entry.Hash),
		DHTLoc:    entry.DHTLoc,
		CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// WriteReport prints one line per entry, or a JSON array in FormatJSON.
func WriteReport(w io.Writer, entries []storage.Entry, format Format) error {
	views := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, NewEntryView(entry))
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case FormatText:
		for _, view := range views {
			if _, err := fmt.Fprintf(w, "hash=%s dht_loc=%d created_at=%s\n", view.Hash, view.DHTLoc, view.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported report format %d", format)
	}
}
