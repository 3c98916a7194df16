package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

type User struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Username       string    `gorm:"uniqueIndex;size:80;not null" json:"username"`
	PasswordHash   string    `gorm:"type:text;not null" json:"-"`
	Role           string    `gorm:"size:20;default:operator" json:"role"`
	ClearanceLevel int       `gorm:"default:1" json:"clearance_level"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleOperator
	}
	if u.ClearanceLevel == 0 {
		u.ClearanceLevel = 1
	}
	return nil
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
