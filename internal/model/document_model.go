package model

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	WorkspaceId   uuid.UUID `gorm:"type:uuid;not null;index"`
	Filename      string    `gorm:"type:varchar(512);not null"`
	MimeType      string    `gorm:"type:varchar(255);not null"`
	SizeBytes     int64     `gorm:"not null"`
	Status        string    `gorm:"type:varchar(20);not null;index"`
	StatusVersion int64     `gorm:"not null;default:0"`
	ErrorMessage  *string   `gorm:"type:text"`
	BlobKey       string    `gorm:"type:text;not null"`
	TextKey       string    `gorm:"type:text"`
	ChunkCount    int       `gorm:"not null;default:0"`
	VectorCount   int       `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (Document) TableName() string {
	return "documents"
}
