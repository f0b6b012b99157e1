// Package intake implements the file-intake-to-analysis orchestration:
// batching uploads into analysis sessions and dispatching the external
// analyzer against them.
package intake

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/piishield/backend/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrNoValidFiles means zero files survived expansion; nothing was persisted.
	ErrNoValidFiles = errors.New("no valid files in upload")

	// ErrQuotaExceeded means accepting the batch would exceed the user's storage limit.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// IncomingFile is one file already written to disk and awaiting intake
type IncomingFile struct {
	OriginalName string
	StoragePath  string
	SizeBytes    int64
}

// Service groups uploaded files into analysis sessions
type Service struct {
	db        *gorm.DB
	uploadDir string
}

func NewService(db *gorm.DB, uploadDir string) *Service {
	return &Service{db: db, uploadDir: uploadDir}
}

// SessionDir returns the input directory for a new session
func (s *Service) SessionDir() string {
	return filepath.Join(s.uploadDir, "sessions", uuid.New().String())
}

// SubmitBatch materializes a batch of incoming files as UploadedFile
// records grouped under one pending AnalysisSession, and copies every
// file into a session-scoped input directory so the analyzer receives a
// single consistent input. On any failure no records are persisted.
func (s *Service) SubmitBatch(user *models.User, files []IncomingFile) (*models.AnalysisSession, []models.UploadedFile, error) {
	if len(files) == 0 {
		return nil, nil, ErrNoValidFiles
	}

	var totalBytes int64
	for _, f := range files {
		totalBytes += f.SizeBytes
	}
	if user.StorageUsed+totalBytes > user.StorageLimit {
		return nil, nil, fmt.Errorf("%w: %d of %d bytes used, batch adds %d",
			ErrQuotaExceeded, user.StorageUsed, user.StorageLimit, totalBytes)
	}

	inputDir := s.SessionDir()
	if err := os.MkdirAll(inputDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	session := models.AnalysisSession{
		UserID:    user.ID,
		Status:    models.SessionStatusPending,
		InputDir:  inputDir,
		FileCount: len(files),
	}

	var records []models.UploadedFile
	seen := make(map[string]int, len(files))
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		for _, f := range files {
			// Duplicate names in one batch would overwrite each other in
			// the input directory and collide when results are matched
			// back by name, so repeats get a numeric suffix.
			name := f.OriginalName
			if n := seen[f.OriginalName]; n > 0 {
				ext := filepath.Ext(name)
				name = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
			}
			seen[f.OriginalName]++

			if err := copyFile(f.StoragePath, filepath.Join(inputDir, name)); err != nil {
				return fmt.Errorf("failed to stage %s: %w", name, err)
			}

			record := models.UploadedFile{
				UserID:       user.ID,
				SessionID:    &session.ID,
				OriginalName: name,
				FileType:     models.FileTypeOf(name),
				SizeBytes:    f.SizeBytes,
				StoragePath:  f.StoragePath,
				Status:       models.FileStatusQueued,
				UploadedAt:   time.Now(),
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("failed to create file record: %w", err)
			}
			records = append(records, record)
		}

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("storage_used", gorm.Expr("storage_used + ?", totalBytes)).Error; err != nil {
			return fmt.Errorf("failed to update storage usage: %w", err)
		}

		return nil
	})
	if err != nil {
		os.RemoveAll(inputDir)
		return nil, nil, err
	}

	user.StorageUsed += totalBytes
	return &session, records, nil
}

// WrapFile moves a still-queued file out of its batch into a fresh
// single-file session so it can be analyzed independently of its
// siblings. Quota is untouched; the file's bytes were already counted
// at upload.
func (s *Service) WrapFile(user *models.User, file *models.UploadedFile) (*models.AnalysisSession, error) {
	var prev models.AnalysisSession
	if file.SessionID != nil {
		s.db.First(&prev, *file.SessionID)
	}

	inputDir := s.SessionDir()
	if err := os.MkdirAll(inputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	session := models.AnalysisSession{
		UserID:    user.ID,
		Status:    models.SessionStatusPending,
		InputDir:  inputDir,
		FileCount: 1,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		if err := copyFile(file.StoragePath, filepath.Join(inputDir, file.OriginalName)); err != nil {
			return fmt.Errorf("failed to stage %s: %w", file.OriginalName, err)
		}
		if file.SessionID != nil {
			if err := tx.Model(&models.AnalysisSession{}).Where("id = ?", *file.SessionID).
				Update("file_count", gorm.Expr("file_count - 1")).Error; err != nil {
				return fmt.Errorf("failed to shrink previous session: %w", err)
			}
		}
		if err := tx.Model(&models.UploadedFile{}).Where("id = ?", file.ID).
			Update("session_id", session.ID).Error; err != nil {
			return fmt.Errorf("failed to reassign file: %w", err)
		}
		return nil
	})
	if err != nil {
		os.RemoveAll(inputDir)
		return nil, err
	}

	// The file has left its batch; a later dispatch of the old session
	// must not see its staged copy.
	if prev.InputDir != "" {
		os.Remove(filepath.Join(prev.InputDir, file.OriginalName))
	}

	file.SessionID = &session.ID
	return &session, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
