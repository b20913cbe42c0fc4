package implementation

import (
	"context"
	"errors"

	"docrag-be/internal/entity"
	"docrag-be/internal/mapper"
	"docrag-be/internal/model"
	"docrag-be/internal/repository/contract"
	"docrag-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DocumentMapper
}

func NewDocumentRepository(db *gorm.DB) contract.DocumentRepository {
	return &DocumentRepositoryImpl{
		db:     db,
		mapper: mapper.NewDocumentMapper(),
	}
}

func (r *DocumentRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DocumentRepositoryImpl) findAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error) {
	var models []*model.Document
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Document, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *DocumentRepositoryImpl) Create(ctx context.Context, document *entity.Document) error {
	m := r.mapper.ToModel(document)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*document = *r.mapper.ToEntity(m)
	return nil
}

func (r *DocumentRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	var m model.Document
	query := r.applySpecifications(r.db.WithContext(ctx), specification.ByID{ID: id})
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *DocumentRepositoryImpl) FindAllByWorkspace(ctx context.Context, workspaceId uuid.UUID) ([]*entity.Document, error) {
	return r.findAll(ctx,
		specification.ByWorkspaceID{WorkspaceID: workspaceId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
}

func (r *DocumentRepositoryImpl) FindByStatuses(ctx context.Context, statuses []entity.ProcessingStatus, limit int) ([]*entity.Document, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return r.findAll(ctx,
		specification.ByStatuses{Statuses: values},
		specification.OrderBy{Field: "created_at"},
		specification.Pagination{Limit: limit},
	)
}

func (r *DocumentRepositoryImpl) TransitionStatus(ctx context.Context, id uuid.UUID, from, to entity.ProcessingStatus, message *string) (int64, bool, error) {
	var updated model.Document
	res := r.db.WithContext(ctx).
		Raw(`UPDATE documents
			SET status = ?, error_message = ?, status_version = status_version + 1, updated_at = NOW()
			WHERE id = ? AND status = ?
			RETURNING status_version`, string(to), message, id, string(from)).
		Scan(&updated)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return updated.StatusVersion, true, nil
}

func (r *DocumentRepositoryImpl) UpdateArtifacts(ctx context.Context, id uuid.UUID, artifacts entity.DocumentArtifacts) error {
	updates := map[string]interface{}{}
	if artifacts.TextKey != nil {
		updates["text_key"] = *artifacts.TextKey
	}
	if artifacts.ChunkCount != nil {
		updates["chunk_count"] = *artifacts.ChunkCount
	}
	if artifacts.VectorCount != nil {
		updates["vector_count"] = *artifacts.VectorCount
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(updates).Error
}

func (r *DocumentRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Document{}, "id = ?", id).Error
}

func (r *DocumentRepositoryImpl) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("workspace_id = ?", workspaceId).Delete(&model.Document{}).Error
}
