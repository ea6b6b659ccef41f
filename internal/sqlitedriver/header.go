package sqlitedriver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

var plaintextHeader = []byte("SQLite format 3\x00")

func hasForeignHeader(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("read database header: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(plaintextHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, fmt.Errorf("read database header: %w", err)
	}
	return !bytes.Equal(header, plaintextHeader), nil
}
