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

type WorkspaceRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.WorkspaceMapper
}

func NewWorkspaceRepository(db *gorm.DB) contract.WorkspaceRepository {
	return &WorkspaceRepositoryImpl{
		db:     db,
		mapper: mapper.NewWorkspaceMapper(),
	}
}

func (r *WorkspaceRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *WorkspaceRepositoryImpl) Create(ctx context.Context, workspace *entity.Workspace) error {
	m, err := r.mapper.ToModel(workspace)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	created, err := r.mapper.ToEntity(m)
	if err != nil {
		return err
	}
	*workspace = *created
	return nil
}

func (r *WorkspaceRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.Workspace, error) {
	var m model.Workspace
	query := r.applySpecifications(r.db.WithContext(ctx), specification.ByID{ID: id})
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m)
}

func (r *WorkspaceRepositoryImpl) FindAllByOwner(ctx context.Context, ownerId uuid.UUID) ([]*entity.Workspace, error) {
	var models []*model.Workspace
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByOwnerID{OwnerID: ownerId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Workspace, 0, len(models))
	for _, m := range models {
		e, err := r.mapper.ToEntity(m)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (r *WorkspaceRepositoryImpl) UpdateRagConfig(ctx context.Context, id uuid.UUID, cfg entity.RagConfig) (bool, error) {
	m, err := r.mapper.ToModel(&entity.Workspace{RagConfig: cfg})
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Model(&model.Workspace{}).
		Where("id = ? AND status = ?", id, string(entity.ProvisioningStatusProvisioning)).
		Update("rag_config", m.RagConfig)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *WorkspaceRepositoryImpl) TransitionStatus(ctx context.Context, id uuid.UUID, from []entity.ProvisioningStatus, to entity.ProvisioningStatus, message *string) (int64, bool, error) {
	fromValues := make([]string, len(from))
	for i, s := range from {
		fromValues[i] = string(s)
	}

	var updated model.Workspace
	res := r.db.WithContext(ctx).
		Raw(`UPDATE workspaces
			SET status = ?, status_message = ?, status_version = status_version + 1, updated_at = NOW()
			WHERE id = ? AND status IN ?
			RETURNING status_version`, string(to), message, id, fromValues).
		Scan(&updated)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return updated.StatusVersion, true, nil
}

func (r *WorkspaceRepositoryImpl) MarkReady(ctx context.Context, id uuid.UUID, expected entity.RagConfig, dimension int) (int64, bool, error) {
	m, err := r.mapper.ToModel(&entity.Workspace{RagConfig: expected})
	if err != nil {
		return 0, false, err
	}

	var updated model.Workspace
	res := r.db.WithContext(ctx).
		Raw(`UPDATE workspaces
			SET rag_config = jsonb_set(rag_config, '{embedding_dimension}', to_jsonb(CAST(? AS integer))),
				status = ?, status_message = NULL, status_version = status_version + 1, updated_at = NOW()
			WHERE id = ? AND status = ? AND rag_config = CAST(? AS jsonb)
			RETURNING status_version`,
			dimension, string(entity.ProvisioningStatusReady), id,
			string(entity.ProvisioningStatusProvisioning), string(m.RagConfig)).
		Scan(&updated)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return updated.StatusVersion, true, nil
}

func (r *WorkspaceRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Workspace{}, "id = ?", id).Error
}
