package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Workspace struct {
	Id            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerId       uuid.UUID      `gorm:"type:uuid;not null;index"`
	Name          string         `gorm:"type:varchar(255);not null"`
	Description   string         `gorm:"type:text"`
	RagConfig     datatypes.JSON `gorm:"type:jsonb;not null"`
	Status        string         `gorm:"type:varchar(20);not null;index"`
	StatusVersion int64          `gorm:"not null;default:0"`
	StatusMessage *string        `gorm:"type:text"`
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime"`
}

func (Workspace) TableName() string {
	return "workspaces"
}
