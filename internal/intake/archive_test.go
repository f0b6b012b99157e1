package intake

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, entries map[string][]byte, dirs []string) string {
	t.Helper()

	zipPath := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, dir := range dirs {
		if _, err := w.Create(dir + "/"); err != nil {
			t.Fatalf("create dir entry: %v", err)
		}
	}
	for name, content := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		if _, err := entry.Write(content); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return zipPath
}

func TestExpandArchiveSkipsDirectoryEntries(t *testing.T) {
	zipPath := writeZip(t, map[string][]byte{"a.csv": []byte("name,email\n")}, []string{"docs"})

	files, err := ExpandArchive(zipPath, t.TempDir(), 0)
	if err != nil {
		t.Fatalf("ExpandArchive returned error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected exactly 1 expanded file, got %d", len(files))
	}
	if files[0].OriginalName != "a.csv" {
		t.Errorf("expected original name a.csv, got %q", files[0].OriginalName)
	}

	content, err := os.ReadFile(files[0].StoragePath)
	if err != nil {
		t.Fatalf("read expanded file: %v", err)
	}
	if string(content) != "name,email\n" {
		t.Errorf("unexpected content %q", content)
	}
	if files[0].SizeBytes != int64(len(content)) {
		t.Errorf("size mismatch: got %d want %d", files[0].SizeBytes, len(content))
	}
}

func TestExpandArchiveEmptyZip(t *testing.T) {
	zipPath := writeZip(t, nil, nil)

	files, err := ExpandArchive(zipPath, t.TempDir(), 0)
	if err != nil {
		t.Fatalf("ExpandArchive returned error: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files from empty archive, got %d", len(files))
	}
}

func TestExpandArchiveFlattensNestedPaths(t *testing.T) {
	zipPath := writeZip(t, map[string][]byte{
		"nested/dir/report.pdf": []byte("%PDF-1.4"),
		"../evil.sh":            []byte("#!/bin/sh"),
	}, nil)

	destDir := t.TempDir()
	files, err := ExpandArchive(zipPath, destDir, 0)
	if err != nil {
		t.Fatalf("ExpandArchive returned error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	for _, f := range files {
		rel, err := filepath.Rel(destDir, f.StoragePath)
		if err != nil || filepath.IsAbs(rel) || rel[0] == '.' {
			t.Errorf("file %q escaped destination directory: %q", f.OriginalName, f.StoragePath)
		}
	}
}

func TestExpandArchiveCapsDecompressedSize(t *testing.T) {
	zipPath := writeZip(t, map[string][]byte{
		"a.csv": []byte("0123456789"),
		"b.csv": []byte("0123456789"),
	}, nil)

	destDir := t.TempDir()
	_, err := ExpandArchive(zipPath, destDir, 15)
	if !errors.Is(err, ErrArchiveTooLarge) {
		t.Fatalf("expected ErrArchiveTooLarge, got %v", err)
	}

	// Nothing extracted survives a rejected archive
	entries, readErr := os.ReadDir(destDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("expected destination cleaned after rejection, found %d entries", len(entries))
	}

	files, err := ExpandArchive(zipPath, t.TempDir(), 64)
	if err != nil {
		t.Fatalf("archive under the cap rejected: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files under the cap, got %d", len(files))
	}
}

func TestExpandArchiveRejectsNonZip(t *testing.T) {
	notZip := filepath.Join(t.TempDir(), "plain.zip")
	if err := os.WriteFile(notZip, []byte("this is not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExpandArchive(notZip, t.TempDir(), 0); err == nil {
		t.Fatal("expected error for non-zip input")
	}
}
