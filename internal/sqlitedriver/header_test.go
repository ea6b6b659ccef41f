package sqlitedriver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasForeignHeaderPlaintextFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plain.db")
	payload := append([]byte("SQLite format 3\x00"), make([]byte, 84)...)
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	encrypted, err := hasForeignHeader(path)
	require.NoError(t, err)
	require.False(t, encrypted)
}

func TestHasForeignHeaderRandomBytes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cipher.db")
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	encrypted, err := hasForeignHeader(path)
	require.NoError(t, err)
	require.True(t, encrypted)
}

func TestHasForeignHeaderShortFileIsNotEncrypted(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	encrypted, err := hasForeignHeader(path)
	require.NoError(t, err)
	require.False(t, encrypted)
}

func TestHasForeignHeaderMissingFile(t *testing.T) {
	t.Parallel()

	_, err := hasForeignHeader(filepath.Join(t.TempDir(), "missing.db"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
