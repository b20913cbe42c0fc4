package unitofwork

import (
	"context"

	"docrag-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	WorkspaceRepository() contract.WorkspaceRepository
	DocumentRepository() contract.DocumentRepository
	ChunkRepository() contract.ChunkRepository
	PipelineJobRepository() contract.PipelineJobRepository

	ChatSessionRepository() contract.ChatSessionRepository
	ChatMessageRepository() contract.ChatMessageRepository
}
