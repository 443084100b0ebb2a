package models

import "time"

// TaskBundle is a claimable group of tasks intended for one participant.
// Label ("Person 1".."Person N") is the stable join key across regenerations:
// a regenerated plan updates the display fields of a bundle with the same
// label but never touches ClaimedByMemberID.
type TaskBundle struct {
	ID                string `gorm:"primaryKey;size:36"`
	ProjectID         string `gorm:"size:36;index;not null"`
	Label             string `gorm:"size:32;index"`
	Title             string `gorm:"not null"`
	Summary           string `gorm:"type:text"`
	ClaimedByMemberID *uint
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Tasks []Task `gorm:"foreignKey:BundleID"`
}

// Task status values.
const (
	TaskStatusTodo  = "todo"
	TaskStatusDoing = "doing"
	TaskStatusDone  = "done"
)

// Task is a single unit of work. IsAIGenerated distinguishes planner output
// (replaced wholesale on regeneration) from user-authored tasks (never
// auto-deleted).
type Task struct {
	ID            uint    `gorm:"primaryKey;autoIncrement"`
	ProjectID     string  `gorm:"size:36;index;not null"`
	BundleID      *string `gorm:"size:36;index"`
	OwnerMemberID *uint
	Title         string `gorm:"not null"`
	Details       string `gorm:"type:text"`
	Category      string `gorm:"size:16"`
	Size          string `gorm:"size:4"`
	Status        string `gorm:"size:8;default:todo;index"`
	IsAIGenerated bool   `gorm:"index"`
	Blocked       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Deliverable is a final artifact the assignment expects. AI-generated rows
// are replaced on regeneration; user-entered ones are left alone.
type Deliverable struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID     string `gorm:"size:36;index;not null"`
	Title         string `gorm:"not null"`
	Description   string `gorm:"type:text"`
	URL           *string
	IsAIGenerated bool `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
