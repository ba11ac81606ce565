// Package archive keeps timestamped copies of the learned dictionary
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Backup copies the existing files into a new timestamped directory below
// archiveDir and returns its path. Missing files are skipped; it fails when
// none of the files exists.
func Backup(archiveDir string, files []string, now time.Time) (string, error) {
	var existing []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return "", fmt.Errorf("nothing to archive: none of the store files exists")
	}

	// Create archive directory if it doesn't exist
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	archivePath := filepath.Join(archiveDir, "dictionary-"+now.Format("20060102-150405"))
	if _, err := os.Stat(archivePath); err == nil {
		// Add microseconds to make it unique
		archivePath = filepath.Join(archiveDir, "dictionary-"+now.Format("20060102-150405.000000"))
	}
	if err := os.Mkdir(archivePath, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	for _, f := range existing {
		if err := copyFile(f, filepath.Join(archivePath, filepath.Base(f))); err != nil {
			return "", err
		}
	}
	return archivePath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
