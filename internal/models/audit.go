package models

import "time"

// GenerationAudit records one plan generation attempt. The input snapshot
// stores the assignment length rather than the full text to bound row size.
type GenerationAudit struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID        string `gorm:"size:36;index;not null"`
	CreatedByUserID  string `gorm:"size:64"`
	TraceID          string `gorm:"size:64;index"`
	Status           string `gorm:"size:16;default:pending"`
	InputTitle       string
	InputDescription string `gorm:"type:text"`
	InputTimeframe   string `gorm:"size:16"`
	InputAssignLen   int
	InputGroupSize   int
	Model            string `gorm:"size:64"`
	PromptVersion    string `gorm:"size:32"`
	OutputPlan       string `gorm:"type:json"`
	LatencyMS        int64
	ErrorCode        string `gorm:"size:32"`
	ErrorMessage     string `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
