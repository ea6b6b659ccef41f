package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

const entryHashLen = 4

// timeLayout is fixed width so lexical order of stored timestamps matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func nowUTC() time.Time {
	return time.Now().UTC()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
		}
	}
	return t.UTC(), nil
}

// NewRandomEntry draws a 4-byte hash and a dht location from r.
func NewRandomEntry(r io.Reader, now time.Time) (Entry, error) {
	buf := make([]byte, entryHashLen+4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Entry{}, fmt.Errorf("generate entry: %w", err)
	}
	return Entry{
		Hash:      buf[:entryHashLen],
		DHTLoc:    binary.BigEndian.Uint32(buf[entryHashLen:]),
		CreatedAt: now.UTC(),
	}, nil
}
