package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cipherpoc/cipherpoc/internal/config"
	"github.com/cipherpoc/cipherpoc/internal/crypto"
	applog "github.com/cipherpoc/cipherpoc/internal/log"
	"github.com/cipherpoc/cipherpoc/internal/storage"
)

var (
	loadConfigFn       = config.Load
	passphraseParamsFn = crypto.DefaultArgon2Params
)

// session holds what every database command needs: resolved config, the
// process logger and the database key.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	logClose io.Closer
	key      *crypto.Key
}

func newSession(cmd *cobra.Command, deps commandDeps) (*session, error) {
	loadOpts := config.LoadOptions{}
	if deps.globals != nil {
		loadOpts.ConfigPath = strings.TrimSpace(deps.globals.ConfigPath)
		if dbPath := strings.TrimSpace(deps.globals.DBPath); dbPath != "" {
			loadOpts.Flags.DatabasePath = &dbPath
		}
		if key := strings.TrimSpace(deps.globals.Key); key != "" {
			loadOpts.Flags.Key = &key
		}
		if level := strings.TrimSpace(deps.globals.LogLevel); level != "" {
			loadOpts.Flags.LogLevel = &level
		}
	}

	cfg, err := loadConfigFn(loadOpts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, logClose, err := applog.New(deps.errOut, applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	passphraseStdin := deps.globals != nil && deps.globals.PassphraseStdin
	key, err := resolveKey(cmd.InOrStdin(), cfg, passphraseStdin)
	if err != nil {
		_ = logClose.Close()
		return nil, err
	}
	logger.Debug("session ready", "path", cfg.Database.Path, "key", key)

	return &session{cfg: cfg, logger: logger, logClose: logClose, key: key}, nil
}

func (s *session) storageOptions() storage.Options {
	return storage.Options{
		Path:           s.cfg.Database.Path,
		Key:            s.key,
		CipherPageSize: s.cfg.Database.CipherPageSize,
		JournalMode:    s.cfg.Database.JournalMode,
		BusyTimeout:    s.cfg.Database.BusyTimeout,
		Logger:         s.logger,
	}
}

func (s *session) Close() {
	s.key.Destroy()
	_ = s.logClose.Close()
}

// resolveKey picks the database key: a stdin passphrase wins over a key
// file, which wins over the configured hex key.
func resolveKey(in io.Reader, cfg config.Config, passphraseStdin bool) (*crypto.Key, error) {
	switch {
	case passphraseStdin:
		passphrase, err := readPassphraseFromStdin(in)
		if err != nil {
			return nil, err
		}
		params := passphraseParamsFn()
		salt, err := crypto.LoadOrCreateSalt(cfg.Database.SaltFile, params.SaltLen)
		if err != nil {
			return nil, fmt.Errorf("passphrase salt: %w: %w", storage.ErrStorageUnavailable, err)
		}
		return crypto.DeriveKeyFromPassphrase(passphrase, salt, params)
	case cfg.Database.KeyFile != "":
		key, err := crypto.ReadKeyFile(cfg.Database.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("key file: %w", err)
		}
		return key, nil
	default:
		key, err := crypto.ParseHexKey(cfg.Database.Key)
		if err != nil {
			return nil, fmt.Errorf("database key: %w", err)
		}
		return key, nil
	}
}

func readPassphraseFromStdin(r io.Reader) ([]byte, error) {
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read passphrase from stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, usageErrorf("--passphrase-stdin requires a non-empty value on stdin")
	}
	return []byte(line), nil
}

// requireExistingDatabase keeps read-only commands from creating an empty
// database file as a side effect of opening it.
func requireExistingDatabase(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("database %s: %w", path, storage.ErrNotFound)
		}
		return fmt.Errorf("database %s: %w: %w", path, storage.ErrStorageUnavailable, err)
	}
	return nil
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
