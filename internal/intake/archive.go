package intake

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrArchiveTooLarge means the archive's decompressed contents exceed
// the allowed size; nothing extracted is left on disk.
var ErrArchiveTooLarge = errors.New("archive contents exceed size limit")

// ExpandArchive unpacks a zip upload into destDir and returns one
// IncomingFile per regular entry. Directory entries and entries with
// path traversal in their names produce no file. An empty archive
// yields an empty slice, not an error; the caller decides whether the
// batch as a whole is empty.
//
// maxBytes caps the cumulative decompressed size so a small compressed
// upload cannot fill the disk; zero or negative means no cap.
func ExpandArchive(zipPath, destDir string, maxBytes int64) ([]IncomingFile, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		// Non-local entry names are tolerated: every entry is flattened
		// to its base name below, so traversal cannot escape destDir.
		if reader == nil || !errors.Is(err, zip.ErrInsecurePath) {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	var files []IncomingFile
	discard := func() {
		for _, f := range files {
			os.Remove(f.StoragePath)
		}
	}

	remaining := maxBytes
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}

		name := filepath.Base(entry.Name)
		if name == "." || name == ".." || strings.HasPrefix(name, "__MACOSX") {
			continue
		}

		if maxBytes > 0 && remaining <= 0 {
			discard()
			return nil, fmt.Errorf("%w: decompressed size exceeds %d bytes", ErrArchiveTooLarge, maxBytes)
		}

		destPath := filepath.Join(destDir, uuid.New().String()+strings.ToLower(filepath.Ext(name)))
		size, err := extractEntry(entry, destPath, remaining)
		if err != nil {
			os.Remove(destPath)
			discard()
			if errors.Is(err, ErrArchiveTooLarge) {
				return nil, fmt.Errorf("%w: decompressed size exceeds %d bytes", ErrArchiveTooLarge, maxBytes)
			}
			return nil, fmt.Errorf("failed to extract %s: %w", entry.Name, err)
		}
		if maxBytes > 0 {
			remaining -= size
		}

		files = append(files, IncomingFile{
			OriginalName: name,
			StoragePath:  destPath,
			SizeBytes:    size,
		})
	}

	return files, nil
}

// extractEntry writes one entry to destPath, refusing to decompress
// more than limit bytes. Non-positive limit means unbounded.
func extractEntry(entry *zip.File, destPath string, limit int64) (int64, error) {
	src, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	if limit <= 0 {
		return io.Copy(dst, src)
	}

	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		return n, err
	}
	if n > limit {
		return n, ErrArchiveTooLarge
	}
	return n, nil
}
