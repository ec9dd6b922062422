package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// maxEntrySize caps a single extracted file.
const maxEntrySize = 4 << 30

// Restore unpacks an archive produced by Backup into targetDir and returns
// its manifest. Existing files are kept unless force is set.
func Restore(ctx context.Context, archivePath, targetDir string, force bool) (Manifest, error) {
	var m Manifest

	f, err := os.Open(archivePath)
	if err != nil {
		return m, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return m, fmt.Errorf("decompress archive: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		return m, fmt.Errorf("create target directory: %w", err)
	}

	tr := tar.NewReader(gr)
	var sawDB bool
	for {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return m, fmt.Errorf("read archive: %w", err)
		}

		switch hdr.Name {
		case ManifestEntry:
			if err := json.NewDecoder(io.LimitReader(tr, 1<<16)).Decode(&m); err != nil {
				return m, fmt.Errorf("decode manifest: %w", err)
			}
			continue
		case DatabaseEntry:
			sawDB = true
		case ConfigEntry:
		default:
			return m, fmt.Errorf("unexpected archive entry %q", hdr.Name)
		}
		if hdr.Typeflag != tar.TypeReg {
			return m, fmt.Errorf("archive entry %q is not a regular file", hdr.Name)
		}

		dest := filepath.Join(targetDir, hdr.Name)
		if !force {
			if _, err := os.Stat(dest); err == nil {
				return m, fmt.Errorf("file already exists (use -force to overwrite): %s", dest)
			}
		}
		if err := extract(tr, dest); err != nil {
			return m, fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
	}

	if !sawDB {
		return m, fmt.Errorf("invalid backup: archive has no %s", DatabaseEntry)
	}
	return m, nil
}

func extract(r io.Reader, dest string) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(r, maxEntrySize+1))
	if err == nil && n > maxEntrySize {
		err = errors.New("entry exceeds size limit")
	}
	return errors.Join(err, out.Close())
}
