// Package archive bundles run evidence and publishes it as a GitHub release.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Zip writes files into a flat zip archive at dst. Entries are named by the
// file's base name; a later file with the same base name is skipped.
func Zip(dst string, files []string) (err error) {
	if len(files) == 0 {
		return fmt.Errorf("nothing to archive")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	zw := zip.NewWriter(out)
	seen := make(map[string]bool, len(files))
	for _, path := range files {
		name := filepath.Base(path)
		if seen[name] {
			continue
		}
		seen[name] = true
		if err := addFile(zw, path, name); err != nil {
			zw.Close()
			return fmt.Errorf("failed to add %s: %w", path, err)
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
