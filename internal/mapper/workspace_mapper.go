package mapper

import (
	"encoding/json"
	"time"

	"docrag-be/internal/entity"
	"docrag-be/internal/model"
)

type WorkspaceMapper struct{}

func NewWorkspaceMapper() *WorkspaceMapper {
	return &WorkspaceMapper{}
}

func (m *WorkspaceMapper) ToEntity(w *model.Workspace) (*entity.Workspace, error) {
	if w == nil {
		return nil, nil
	}

	var cfg entity.RagConfig
	if len(w.RagConfig) > 0 {
		if err := json.Unmarshal(w.RagConfig, &cfg); err != nil {
			return nil, err
		}
	}

	var updatedAt *time.Time
	if !w.UpdatedAt.IsZero() {
		t := w.UpdatedAt
		updatedAt = &t
	}

	return &entity.Workspace{
		Id:            w.Id,
		OwnerId:       w.OwnerId,
		Name:          w.Name,
		Description:   w.Description,
		RagConfig:     cfg,
		Status:        entity.ProvisioningStatus(w.Status),
		StatusVersion: w.StatusVersion,
		StatusMessage: w.StatusMessage,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     updatedAt,
	}, nil
}

func (m *WorkspaceMapper) ToModel(w *entity.Workspace) (*model.Workspace, error) {
	if w == nil {
		return nil, nil
	}

	raw, err := json.Marshal(w.RagConfig)
	if err != nil {
		return nil, err
	}

	var updatedAt time.Time
	if w.UpdatedAt != nil {
		updatedAt = *w.UpdatedAt
	}

	return &model.Workspace{
		Id:            w.Id,
		OwnerId:       w.OwnerId,
		Name:          w.Name,
		Description:   w.Description,
		RagConfig:     raw,
		Status:        string(w.Status),
		StatusVersion: w.StatusVersion,
		StatusMessage: w.StatusMessage,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     updatedAt,
	}, nil
}
