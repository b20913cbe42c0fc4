package mapper

import (
	"time"

	"docrag-be/internal/entity"
	"docrag-be/internal/model"
)

type DocumentMapper struct{}

func NewDocumentMapper() *DocumentMapper {
	return &DocumentMapper{}
}

func (m *DocumentMapper) ToEntity(d *model.Document) *entity.Document {
	if d == nil {
		return nil
	}

	var updatedAt *time.Time
	if !d.UpdatedAt.IsZero() {
		t := d.UpdatedAt
		updatedAt = &t
	}

	return &entity.Document{
		Id:            d.Id,
		WorkspaceId:   d.WorkspaceId,
		Filename:      d.Filename,
		MimeType:      d.MimeType,
		SizeBytes:     d.SizeBytes,
		Status:        entity.ProcessingStatus(d.Status),
		StatusVersion: d.StatusVersion,
		ErrorMessage:  d.ErrorMessage,
		BlobKey:       d.BlobKey,
		TextKey:       d.TextKey,
		ChunkCount:    d.ChunkCount,
		VectorCount:   d.VectorCount,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     updatedAt,
	}
}

func (m *DocumentMapper) ToModel(d *entity.Document) *model.Document {
	if d == nil {
		return nil
	}

	var updatedAt time.Time
	if d.UpdatedAt != nil {
		updatedAt = *d.UpdatedAt
	}

	return &model.Document{
		Id:            d.Id,
		WorkspaceId:   d.WorkspaceId,
		Filename:      d.Filename,
		MimeType:      d.MimeType,
		SizeBytes:     d.SizeBytes,
		Status:        string(d.Status),
		StatusVersion: d.StatusVersion,
		ErrorMessage:  d.ErrorMessage,
		BlobKey:       d.BlobKey,
		TextKey:       d.TextKey,
		ChunkCount:    d.ChunkCount,
		VectorCount:   d.VectorCount,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     updatedAt,
	}
}
