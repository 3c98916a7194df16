package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

type MissingPerson struct {
	ID             string       `gorm:"primaryKey;size:36" json:"id"`
	CaseID         string       `gorm:"uniqueIndex;size:20;not null" json:"case_id"`
	Name           string       `gorm:"type:text;not null" json:"name"`
	Age            *string      `gorm:"size:20" json:"age"`
	Contact        *string      `gorm:"type:text" json:"contact"`
	Priority       string       `gorm:"size:20;default:normal" json:"priority"`
	Latitude       *float64     `json:"latitude"`
	Longitude      *float64     `json:"longitude"`
	PhotoURL       *string      `gorm:"type:text" json:"photo_url"`
	Encoding       FaceEncoding `json:"-"`
	RegisteredAt   time.Time    `gorm:"autoCreateTime;index" json:"registered_at"`
	RegisteredByID *string      `gorm:"size:36" json:"registered_by_id,omitempty"`
}

func (MissingPerson) TableName() string {
	return "missing_persons"
}

func (p *MissingPerson) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Priority == "" {
		p.Priority = PriorityNormal
	}
	return nil
}

// Position returns the optional coordinates used for proximity ranking.
func (p MissingPerson) Position() (lat, lon *float64) {
	return p.Latitude, p.Longitude
}

// HasEncoding reports whether a face encoding is stored for the person.
func (p MissingPerson) HasEncoding() bool {
	return len(p.Encoding) > 0
}
