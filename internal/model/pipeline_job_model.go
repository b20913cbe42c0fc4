package model

import (
	"time"

	"github.com/google/uuid"
)

type PipelineJob struct {
	DocumentId     uuid.UUID  `gorm:"type:uuid;primaryKey"`
	WorkspaceId    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Stage          string     `gorm:"type:varchar(20);not null"`
	State          string     `gorm:"type:varchar(20);not null;index"`
	Attempts       int        `gorm:"not null;default:0"`
	LastError      *string    `gorm:"type:text"`
	LeaseExpiresAt *time.Time `gorm:"index"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime;index"`
}

func (PipelineJob) TableName() string {
	return "pipeline_jobs"
}
