// Package inspect builds the in-process schema and statistics report for an
// encrypted database file.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cipherpoc/cipherpoc/internal/sqlitedriver"
	"github.com/cipherpoc/cipherpoc/internal/storage"
)

type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type Report struct {
	GeneratedAt string         `json:"generated_at"`
	GOOS        string         `json:"goos"`
	GOARCH      string         `json:"goarch"`
	Version     map[string]any `json:"version,omitempty"`
	Path        string         `json:"path"`
	SizeBytes   int64          `json:"size_bytes"`
	Encrypted   bool           `json:"encrypted"`
	Stats       storage.Stats  `json:"stats"`
	Checks      []Check        `json:"checks,omitempty"`
}

type StatsSource interface {
	Stats(ctx context.Context) (storage.Stats, error)
}

func NewReport(now time.Time) Report {
	return Report{
		GeneratedAt: now.UTC().Format(time.RFC3339Nano),
		GOOS:        runtime.GOOS,
		GOARCH:      runtime.GOARCH,
	}
}

// Collect fills a report for the database at path from an already opened
// store.
func Collect(ctx context.Context, src StatsSource, path string, now time.Time) (Report, error) {
	report := NewReport(now)
	report.Path = path

	info, err := os.Stat(path)
	if err != nil {
		return Report{}, fmt.Errorf("inspect database: %w: %w", storage.ErrStorageUnavailable, err)
	}
	report.SizeBytes = info.Size()

	encrypted, err := sqlitedriver.IsEncrypted(path)
	if err != nil {
		return Report{}, fmt.Errorf("inspect database: read header: %w: %w", storage.ErrStorageUnavailable, err)
	}
	report.Encrypted = encrypted

	stats, err := src.Stats(ctx)
	if err != nil {
		return Report{}, err
	}
	report.Stats = stats

	report.Checks = runChecks(report, info.Mode().Perm())
	return report, nil
}

func runChecks(report Report, perm fs.FileMode) []Check {
	checks := make([]Check, 0, 3)

	encrypted := Check{Name: "encrypted", OK: report.Encrypted, Message: "database header is not plaintext SQLite"}
	if !report.Encrypted {
		encrypted.Message = "database header is plaintext SQLite"
	}
	checks = append(checks, encrypted)

	want := storage.CurrentSchemaVersion()
	schema := Check{
		Name:    "schema_version",
		OK:      report.Stats.SchemaVersion == want,
		Message: fmt.Sprintf("schema version %d, expected %d", report.Stats.SchemaVersion, want),
	}
	checks = append(checks, schema)

	mode := Check{
		Name:    "file_mode",
		OK:      perm&0o077 == 0,
		Message: fmt.Sprintf("file mode %04o", perm),
	}
	checks = append(checks, mode)

	return checks
}

func WriteReport(outputPath string, report Report) error {
	if outputPath == "" {
		return fmt.Errorf("write inspect report: output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o700); err != nil {
		return fmt.Errorf("write inspect report: create output directory: %w", err)
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("write inspect report: marshal json: %w", err)
	}
	if err := os.WriteFile(outputPath, payload, 0o600); err != nil {
		return fmt.Errorf("write inspect report: %w", err)
	}
	return nil
}

// RenderText prints the report for a terminal.
func RenderText(w io.Writer, report Report) error {
	p := &printer{w: w}
	p.field("generated_at", report.GeneratedAt)
	p.field("platform", report.GOOS+"/"+report.GOARCH)
	p.field("path", report.Path)
	p.field("size_bytes", report.SizeBytes)
	p.field("encrypted", report.Encrypted)
	p.field("cipher_version", report.Stats.CipherVersion)
	p.field("page_size", report.Stats.PageSize)
	p.field("page_count", report.Stats.PageCount)
	p.field("freelist_count", report.Stats.FreelistCount)
	p.field("journal_mode", report.Stats.JournalMode)
	p.field("schema_version", report.Stats.SchemaVersion)

	p.printf("\ntables\n")
	for _, table := range report.Stats.Tables {
		p.printf("  %-20s %d\n", table.Name, table.Rows)
	}

	p.printf("\nschema\n")
	for _, obj := range report.Stats.Schema {
		p.printf("  %s %s\n", obj.Type, obj.Name)
		if obj.SQL != "" {
			p.printf("    %s\n", obj.SQL)
		}
	}

	if len(report.Checks) > 0 {
		p.printf("\nchecks\n")
		for _, check := range report.Checks {
			status := "ok"
			if !check.OK {
				status = "FAIL"
			}
			p.printf("  %-4s %s: %s\n", status, check.Name, check.Message)
		}
	}
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) field(name string, value any) {
	p.printf("%-16s%v\n", name, value)
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
