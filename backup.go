package plotline

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Backup writes a tar.gz of the content directory, which includes the
// filed notes, the drafts, and the ledger database. The graph itself is
// reproducible from those files by reprocessing.
func (e *Engine) Backup(outPath string) error {
	if outPath == "" {
		outPath = fmt.Sprintf("plotline_backup_%s.tar.gz", time.Now().Format("20060102_150405"))
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating backup file: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	root := e.cfg.ContentDir
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("archiving %s: %w", root, err)
	}

	slog.Info("plotline: backup written", "path", outPath)
	return nil
}

// Export will dump the graph and the document catalog as JSON for use
// outside the pipeline. Not implemented yet; Backup covers the durable
// copy in the meantime.
func (e *Engine) Export(ctx context.Context, outPath string) error {
	return ErrNotImplemented
}
