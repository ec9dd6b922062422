// Package backup snapshots and restores the TunnelWatch session journal
// database together with its configuration file.
package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HerbHall/tunnelwatch/internal/version"

	_ "modernc.org/sqlite"
)

// Archive entry names.
const (
	DatabaseEntry = "tunnelwatch.db"
	ConfigEntry   = "tunnelwatch.yaml"
	ManifestEntry = "manifest.json"
)

// Manifest describes an archive produced by Backup.
type Manifest struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Config    bool      `json:"config"`
}

// Backup writes a gzip tarball with a consistent copy of the database at
// dbPath and, when configPath is set, the configuration file. The database
// is copied with VACUUM INTO so a running server can stay up.
func Backup(ctx context.Context, dbPath, configPath, archivePath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database file not found: %s", dbPath)
	}

	tmpDir, err := os.MkdirTemp("", "tunnelwatch-backup-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, DatabaseEntry)
	if err := vacuumInto(ctx, dbPath, snapshot); err != nil {
		return err
	}

	manifest := Manifest{
		Version:   version.Short(),
		CreatedAt: time.Now().UTC(),
		Config:    configPath != "",
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	err = writeArchive(tw, snapshot, configPath, manifest)
	err = errors.Join(err, tw.Close(), gw.Close(), out.Close())
	if err != nil {
		_ = os.Remove(archivePath)
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

func vacuumInto(ctx context.Context, src, dst string) error {
	db, err := sql.Open("sqlite", src)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO '"+strings.ReplaceAll(dst, "'", "''")+"'"); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	return nil
}

func writeArchive(tw *tar.Writer, dbSnapshot, configPath string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := writeEntry(tw, ManifestEntry, 0o644, int64(len(data)), bytes.NewReader(data)); err != nil {
		return err
	}
	if err := copyFile(tw, DatabaseEntry, dbSnapshot); err != nil {
		return err
	}
	if configPath != "" {
		if err := copyFile(tw, ConfigEntry, configPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(tw *tar.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return writeEntry(tw, name, 0o600, info.Size(), f)
}

func writeEntry(tw *tar.Writer, name string, mode, size int64, r io.Reader) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     mode,
		Size:     size,
		ModTime:  time.Now(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := io.Copy(tw, r); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
