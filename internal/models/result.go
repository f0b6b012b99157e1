package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PIICountMap maps a PII category name (emails, phones, names, ...) to an
// occurrence count. The category set is open-ended. Stored as a JSON column.
type PIICountMap map[string]int

func (m PIICountMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	return string(data), err
}

func (m *PIICountMap) Scan(value interface{}) error {
	return scanJSON(value, m)
}

// Total returns the sum of all category counts
func (m PIICountMap) Total() int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}

// StringList is a []string stored as a JSON column
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	return string(data), err
}

func (l *StringList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// Finding is one vulnerability reported by the analyzer for a file
type Finding struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// FindingList is a []Finding stored as a JSON column
type FindingList []Finding

func (l FindingList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	return string(data), err
}

func (l *FindingList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

func scanJSON(value, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}

// AnalysisResult is the persisted outcome of the external analyzer for one
// file. Created exactly once when the analyzer reports on that file and
// never mutated afterward.
type AnalysisResult struct {
	ID           uint        `gorm:"column:id;primaryKey" json:"id"`
	SessionID    uint        `gorm:"column:session_id;index;not null" json:"session_id"`
	FileID       *uint       `gorm:"column:file_id;index" json:"file_id"`
	UserID       uint        `gorm:"column:user_id;index;not null" json:"user_id"`
	OriginalName string      `gorm:"column:original_name;size:512;not null" json:"original_name"`
	FileType     string      `gorm:"column:file_type;size:20" json:"file_type"`
	Status       string      `gorm:"column:status;size:20;not null" json:"status"`
	Summary      string      `gorm:"column:summary;type:text" json:"summary"`
	PIIDetected  PIICountMap `gorm:"column:pii_detected;type:json" json:"pii_detected"`
	KeyFindings  StringList  `gorm:"column:key_findings;type:json" json:"key_findings"`
	Findings     FindingList `gorm:"column:findings;type:json" json:"findings"`
	CleansedPath string      `gorm:"column:cleansed_path;size:1024" json:"-"`
	DurationMs   int64       `gorm:"column:duration_ms" json:"duration_ms"`
	ErrorMessage string      `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time   `gorm:"column:created_at" json:"created_at"`
}

func (AnalysisResult) TableName() string {
	return "analysis_results"
}
