package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// KeySize is the length of a raw SQLCipher key.
const KeySize = 32

var ErrInvalidKey = errors.New("invalid database key")

// Key holds raw database key material in locked, guarded memory.
type Key struct {
	buf *memguard.LockedBuffer
}

// NewKey copies raw into guarded memory and wipes raw.
func NewKey(raw []byte) (*Key, error) {
	if len(raw) != KeySize {
		memguard.WipeBytes(raw)
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(raw))
	}
	buf := memguard.NewBufferFromBytes(raw)
	buf.Freeze()
	return &Key{buf: buf}, nil
}

func ParseHexKey(raw string) (*Key, error) {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "x'")
	value = strings.TrimSuffix(value, "'")
	if len(value) != hex.EncodedLen(KeySize) {
		return nil, fmt.Errorf("%w: hex key must be %d characters", ErrInvalidKey, hex.EncodedLen(KeySize))
	}
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: decode hex: %v", ErrInvalidKey, err)
	}
	return NewKey(decoded)
}

// ReadKeyFile loads a key stored either as 32 raw bytes or as 64 hex
// characters with optional surrounding whitespace.
func ReadKeyFile(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	defer memguard.WipeBytes(data)

	if len(data) == KeySize {
		return NewKey(append([]byte(nil), data...))
	}
	trimmed := bytes.TrimSpace(data)
	return ParseHexKey(string(trimmed))
}

func (k *Key) Bytes() []byte {
	if k == nil || k.buf == nil || !k.buf.IsAlive() {
		return nil
	}
	return k.buf.Bytes()
}

// Hex returns the key as upper-case hex, the form SQLCipher echoes back.
func (k *Key) Hex() string {
	return strings.ToUpper(hex.EncodeToString(k.Bytes()))
}

// RawLiteral returns the key in SQLCipher raw-key syntax, x'<64 hex>', which
// bypasses the engine's passphrase KDF.
func (k *Key) RawLiteral() string {
	return "x'" + k.Hex() + "'"
}

func (k *Key) Alive() bool {
	return k != nil && k.buf != nil && k.buf.IsAlive()
}

func (k *Key) Destroy() {
	if k == nil || k.buf == nil {
		return
	}
	k.buf.Destroy()
}

// LogValue keeps key material out of structured logs.
func (k *Key) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}
