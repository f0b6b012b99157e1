package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// UserRole represents the role of a user
type UserRole int

const (
	UserRoleMember UserRole = 1
	UserRoleAdmin  UserRole = 2
)

// MarshalJSON converts UserRole to string for JSON
func (ur UserRole) MarshalJSON() ([]byte, error) {
	var s string
	switch ur {
	case UserRoleMember:
		s = "member"
	case UserRoleAdmin:
		s = "admin"
	default:
		s = "unknown"
	}
	return json.Marshal(s)
}

// UnmarshalJSON converts string back to UserRole for JSON parsing
func (ur *UserRole) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as integer for backward compatibility
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		*ur = UserRole(i)
		return nil
	}
	switch s {
	case "admin":
		*ur = UserRoleAdmin
	default:
		*ur = UserRoleMember
	}
	return nil
}

// User owns uploaded files, analysis sessions and results
type User struct {
	ID        uint           `gorm:"column:id;primaryKey" json:"id"`
	Username  string         `gorm:"column:username;uniqueIndex;size:100;not null" json:"username"`
	Password  string         `gorm:"column:password;size:255;not null" json:"-"`
	Email     string         `gorm:"column:email;size:255" json:"email"`
	FullName  string         `gorm:"column:full_name;size:255" json:"full_name"`
	Role      UserRole       `gorm:"column:role;default:1" json:"role"`
	IsActive  bool           `gorm:"column:is_active;default:true" json:"is_active"`
	LastLogin *time.Time     `gorm:"column:last_login" json:"last_login"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`

	// Storage quota, enforced before accepting new uploads
	StorageUsed  int64 `gorm:"column:storage_used;default:0" json:"storage_used"`
	StorageLimit int64 `gorm:"column:storage_limit;not null" json:"storage_limit"`

	// 2FA fields
	TwoFactorEnabled bool   `gorm:"column:two_factor_enabled;default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string `gorm:"column:two_factor_secret;size:255" json:"-"`
}

func (User) TableName() string {
	return "users"
}
