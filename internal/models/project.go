package models

import (
	"time"

	"gorm.io/gorm"
)

// Plan status values for Project.PlanStatus.
const (
	PlanStatusAbsent  = "absent"
	PlanStatusPending = "pending"
	PlanStatusReady   = "ready"
	PlanStatusFailed  = "failed"
)

// Project is a group project created from an assignment description.
// PlanStatus doubles as the mutual-exclusion gate for plan generation:
// a conditional update to "pending" claims the work.
type Project struct {
	ID                string `gorm:"primaryKey;size:36"`
	Name              string `gorm:"not null"`
	Description       string `gorm:"type:text"`
	Timeframe         string `gorm:"size:16;not null"`
	AssignmentDetails string `gorm:"type:text"`
	GroupSize         int    `gorm:"default:1"`
	JoinCode          string `gorm:"size:8;index"`
	PlanStatus        string `gorm:"size:16;default:absent;index"`
	PlanError         string `gorm:"type:text"`
	PlanPayload       string `gorm:"type:json"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         gorm.DeletedAt `gorm:"index"`

	Members      []ProjectMember `gorm:"foreignKey:ProjectID"`
	Bundles      []TaskBundle    `gorm:"foreignKey:ProjectID"`
	Tasks        []Task          `gorm:"foreignKey:ProjectID"`
	Deliverables []Deliverable   `gorm:"foreignKey:ProjectID"`
}

// ProjectMember links a registered user to a project.
type ProjectMember struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID   string `gorm:"size:36;index;not null"`
	UserID      string `gorm:"size:64;index"`
	DisplayName string `gorm:"size:128"`
	CreatedAt   time.Time
}

// PlannedMember is a named participant who has not linked an account yet.
type PlannedMember struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID   string `gorm:"size:36;index;not null"`
	DisplayName string `gorm:"size:128"`
	CreatedAt   time.Time
}
