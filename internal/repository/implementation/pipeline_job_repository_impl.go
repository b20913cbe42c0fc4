package implementation

import (
	"context"
	"errors"
	"time"

	"docrag-be/internal/entity"
	"docrag-be/internal/mapper"
	"docrag-be/internal/model"
	"docrag-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PipelineJobRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.PipelineJobMapper
}

func NewPipelineJobRepository(db *gorm.DB) contract.PipelineJobRepository {
	return &PipelineJobRepositoryImpl{
		db:     db,
		mapper: mapper.NewPipelineJobMapper(),
	}
}

func (r *PipelineJobRepositoryImpl) Enqueue(ctx context.Context, documentId, workspaceId uuid.UUID, stage entity.ProcessingStatus) error {
	job := &model.PipelineJob{
		DocumentId:  documentId,
		WorkspaceId: workspaceId,
		Stage:       string(stage),
		State:       string(entity.JobStateQueued),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"stage":            string(stage),
			"state":            string(entity.JobStateQueued),
			"attempts":         0,
			"last_error":       nil,
			"lease_expires_at": nil,
			"updated_at":       time.Now(),
		}),
	}).Create(job).Error
}

func (r *PipelineJobRepositoryImpl) Claim(ctx context.Context, documentId uuid.UUID, stage entity.ProcessingStatus, lease time.Duration) (bool, error) {
	now := time.Now()
	until := now.Add(lease)
	res := r.db.WithContext(ctx).
		Model(&model.PipelineJob{}).
		Where("document_id = ? AND stage = ?", documentId, string(stage)).
		Where("state = ? OR (state = ? AND lease_expires_at < ?)",
			string(entity.JobStateQueued), string(entity.JobStateRunning), now).
		Updates(map[string]interface{}{
			"state":            string(entity.JobStateRunning),
			"lease_expires_at": until,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *PipelineJobRepositoryImpl) RecordAttempt(ctx context.Context, documentId uuid.UUID, stage entity.ProcessingStatus, errMessage string) error {
	return r.db.WithContext(ctx).
		Model(&model.PipelineJob{}).
		Where("document_id = ? AND stage = ?", documentId, string(stage)).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": errMessage,
		}).Error
}

func (r *PipelineJobRepositoryImpl) Finish(ctx context.Context, documentId uuid.UUID, stage entity.ProcessingStatus, state entity.JobState, errMessage *string) error {
	return r.db.WithContext(ctx).
		Model(&model.PipelineJob{}).
		Where("document_id = ? AND stage = ?", documentId, string(stage)).
		Updates(map[string]interface{}{
			"state":            string(state),
			"last_error":       errMessage,
			"lease_expires_at": nil,
		}).Error
}

func (r *PipelineJobRepositoryImpl) FindByDocument(ctx context.Context, documentId uuid.UUID) (*entity.PipelineJob, error) {
	var m model.PipelineJob
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentId).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *PipelineJobRepositoryImpl) FindStale(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*entity.PipelineJob, error) {
	var models []*model.PipelineJob
	err := r.db.WithContext(ctx).
		Where("(state = ? AND updated_at < ?) OR (state = ? AND lease_expires_at < ?)",
			string(entity.JobStateQueued), queuedBefore, string(entity.JobStateRunning), now).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	jobs := make([]*entity.PipelineJob, len(models))
	for i, m := range models {
		jobs[i] = r.mapper.ToEntity(m)
	}
	return jobs, nil
}

func (r *PipelineJobRepositoryImpl) Delete(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.PipelineJob{}, "document_id = ?", documentId).Error
}

func (r *PipelineJobRepositoryImpl) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("workspace_id = ?", workspaceId).Delete(&model.PipelineJob{}).Error
}
