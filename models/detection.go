package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Known detection statuses. The column is an open string: operators may set
// any other value and it is stored as-is.
const (
	StatusPending   = "pending"
	StatusDismissed = "dismissed"
	StatusVerified  = "verified"
)

type Detection struct {
	ID       string  `gorm:"primaryKey;size:36" json:"id"`
	PersonID *string `gorm:"size:36;index" json:"person_id"`
	// Snapshot of the matched person at detection time, not kept in sync.
	PersonName  *string        `gorm:"type:text" json:"person_name"`
	CaseID      *string        `gorm:"size:20" json:"case_id"`
	Location    *string        `gorm:"type:text" json:"location"`
	Latitude    *float64       `json:"latitude"`
	Longitude   *float64       `json:"longitude"`
	CameraID    *string        `gorm:"size:30" json:"camera_id"`
	Timestamp   time.Time      `gorm:"index" json:"timestamp"`
	SnapshotURL *string        `gorm:"type:text" json:"snapshot_url"`
	Confidence  *float64       `json:"confidence"`
	SMSSent     bool           `gorm:"column:sms_sent;default:false" json:"sms_sent"`
	Status      string         `gorm:"size:50;default:pending;index" json:"status"`
	Person      *MissingPerson `gorm:"foreignKey:PersonID;constraint:OnDelete:SET NULL" json:"-"`
}

func (Detection) TableName() string {
	return "detections"
}

func (d *Detection) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	return nil
}

func (d Detection) Position() (lat, lon *float64) {
	return d.Latitude, d.Longitude
}
