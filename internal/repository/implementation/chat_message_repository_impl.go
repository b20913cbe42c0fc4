package implementation

import (
	"context"

	"docrag-be/internal/entity"
	"docrag-be/internal/mapper"
	"docrag-be/internal/model"
	"docrag-be/internal/repository/contract"
	"docrag-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatMessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatMessageRepository(db *gorm.DB) contract.ChatMessageRepository {
	return &ChatMessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatMessageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatMessageRepositoryImpl) toEntities(models []*model.ChatMessage) ([]*entity.ChatMessage, error) {
	entities := make([]*entity.ChatMessage, 0, len(models))
	for _, m := range models {
		e, err := r.mapper.ChatMessageToEntity(m)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (r *ChatMessageRepositoryImpl) Create(ctx context.Context, message *entity.ChatMessage) error {
	m, err := r.mapper.ChatMessageToModel(message)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	created, err := r.mapper.ChatMessageToEntity(m)
	if err != nil {
		return err
	}
	*message = *created
	return nil
}

func (r *ChatMessageRepositoryImpl) UpdateContent(ctx context.Context, id uuid.UUID, content string, status entity.MessageStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.ChatMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"content": content, "status": string(status)}).Error
}

func (r *ChatMessageRepositoryImpl) FindBySession(ctx context.Context, sessionId uuid.UUID) ([]*entity.ChatMessage, error) {
	var models []*model.ChatMessage
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at"},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.toEntities(models)
}

func (r *ChatMessageRepositoryImpl) FindRecentBySession(ctx context.Context, sessionId uuid.UUID, limit int) ([]*entity.ChatMessage, error) {
	var models []*model.ChatMessage
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	// Newest first from the query; history is consumed oldest first.
	for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
		models[i], models[j] = models[j], models[i]
	}
	return r.toEntities(models)
}

func (r *ChatMessageRepositoryImpl) DeleteBySession(ctx context.Context, sessionId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("chat_session_id = ?", sessionId).Delete(&model.ChatMessage{}).Error
}

func (r *ChatMessageRepositoryImpl) DeleteByWorkspace(ctx context.Context, workspaceId uuid.UUID) error {
	subQuery := r.db.Table("chat_sessions").Select("id").Where("workspace_id = ?", workspaceId)
	return r.db.WithContext(ctx).Where("chat_session_id IN (?)", subQuery).Delete(&model.ChatMessage{}).Error
}
