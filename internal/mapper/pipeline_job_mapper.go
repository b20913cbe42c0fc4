package mapper

import (
	"docrag-be/internal/entity"
	"docrag-be/internal/model"
)

type PipelineJobMapper struct{}

func NewPipelineJobMapper() *PipelineJobMapper {
	return &PipelineJobMapper{}
}

func (m *PipelineJobMapper) ToEntity(j *model.PipelineJob) *entity.PipelineJob {
	if j == nil {
		return nil
	}
	return &entity.PipelineJob{
		DocumentId:     j.DocumentId,
		WorkspaceId:    j.WorkspaceId,
		Stage:          entity.ProcessingStatus(j.Stage),
		State:          entity.JobState(j.State),
		Attempts:       j.Attempts,
		LastError:      j.LastError,
		LeaseExpiresAt: j.LeaseExpiresAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func (m *PipelineJobMapper) ToModel(j *entity.PipelineJob) *model.PipelineJob {
	if j == nil {
		return nil
	}
	return &model.PipelineJob{
		DocumentId:     j.DocumentId,
		WorkspaceId:    j.WorkspaceId,
		Stage:          string(j.Stage),
		State:          string(j.State),
		Attempts:       j.Attempts,
		LastError:      j.LastError,
		LeaseExpiresAt: j.LeaseExpiresAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}
