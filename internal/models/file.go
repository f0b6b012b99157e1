package models

import (
	"path/filepath"
	"strings"
	"time"
)

// FileStatus is the lifecycle status of an uploaded file
type FileStatus string

const (
	FileStatusUploading  FileStatus = "uploading"
	FileStatusQueued     FileStatus = "queued"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusError      FileStatus = "error"
)

// SupportedFileTypes are the extensions the external analyzer understands.
// Other types are accepted at upload but may be rejected downstream.
var SupportedFileTypes = map[string]bool{
	"csv":  true,
	"pdf":  true,
	"pptx": true,
	"xlsx": true,
	"jpg":  true,
	"jpeg": true,
	"png":  true,
}

// FileTypeOf returns the lowercase extension without the dot
func FileTypeOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// UploadedFile represents one user-submitted file
type UploadedFile struct {
	ID           uint       `gorm:"column:id;primaryKey" json:"id"`
	UserID       uint       `gorm:"column:user_id;index;not null" json:"user_id"`
	SessionID    *uint      `gorm:"column:session_id;index" json:"session_id"`
	OriginalName string     `gorm:"column:original_name;size:512;not null" json:"original_name"`
	FileType     string     `gorm:"column:file_type;size:20" json:"file_type"`
	SizeBytes    int64      `gorm:"column:size_bytes;not null" json:"size_bytes"`
	StoragePath  string     `gorm:"column:storage_path;size:1024;not null" json:"-"`
	Status       FileStatus `gorm:"column:status;size:20;not null;default:uploading" json:"status"`
	ErrorMessage string     `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	UploadedAt   time.Time  `gorm:"column:uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time `gorm:"column:processed_at" json:"processed_at"`
}

func (UploadedFile) TableName() string {
	return "uploaded_files"
}
