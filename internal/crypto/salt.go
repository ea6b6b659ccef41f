package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func GenerateSalt(length int) ([]byte, error) {
	if length < 16 {
		return nil, fmt.Errorf("generate salt: length must be >= 16, got %d", length)
	}
	salt := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// LoadOrCreateSalt reads the passphrase salt stored beside a database,
// creating it with 0600 permissions on first use.
func LoadOrCreateSalt(path string, length int) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("load salt: path is required")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) < length {
			return nil, fmt.Errorf("load salt %q: want %d bytes, got %d", path, length, len(data))
		}
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load salt: %w", err)
	}

	salt, err := GenerateSalt(length)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("write salt: create dir: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}
