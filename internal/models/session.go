package models

import "time"

// SessionStatus is the lifecycle status of an analysis session
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// AnalysisSession groups a batch of files submitted together and analyzed
// in one external-process invocation. Once dispatch returns the status is
// terminal: completed or failed, never left processing.
type AnalysisSession struct {
	ID           uint          `gorm:"column:id;primaryKey" json:"id"`
	UserID       uint          `gorm:"column:user_id;index;not null" json:"user_id"`
	Status       SessionStatus `gorm:"column:status;size:20;not null;default:pending" json:"status"`
	InputDir     string        `gorm:"column:input_dir;size:1024;not null" json:"-"`
	FileCount    int           `gorm:"column:file_count;not null" json:"file_count"`
	ErrorMessage string        `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"column:updated_at" json:"updated_at"`
	CompletedAt  *time.Time    `gorm:"column:completed_at" json:"completed_at"`

	Files []UploadedFile `gorm:"foreignKey:SessionID" json:"files,omitempty"`
}

func (AnalysisSession) TableName() string {
	return "analysis_sessions"
}
