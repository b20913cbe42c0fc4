package memory

import (
	"context"
	"fmt"

	"docrag-be/internal/repository/contract"
	"docrag-be/internal/repository/unitofwork"
)

type repositoryFactory struct {
	store *Store
}

func NewRepositoryFactory(store *Store) unitofwork.RepositoryFactory {
	return &repositoryFactory{store: store}
}

func (f *repositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{store: f.store}
}

type unitOfWork struct {
	store  *Store
	active bool
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return fmt.Errorf("transaction already started")
	}
	u.active = true
	return nil
}

func (u *unitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("no transaction to commit")
	}
	u.active = false
	return nil
}

func (u *unitOfWork) Rollback() error {
	if !u.active {
		return fmt.Errorf("no transaction to rollback")
	}
	u.active = false
	return nil
}

func (u *unitOfWork) WorkspaceRepository() contract.WorkspaceRepository {
	return &WorkspaceRepository{store: u.store}
}

func (u *unitOfWork) DocumentRepository() contract.DocumentRepository {
	return &DocumentRepository{store: u.store}
}

func (u *unitOfWork) ChunkRepository() contract.ChunkRepository {
	return &ChunkRepository{store: u.store}
}

func (u *unitOfWork) PipelineJobRepository() contract.PipelineJobRepository {
	return &PipelineJobRepository{store: u.store}
}

func (u *unitOfWork) ChatSessionRepository() contract.ChatSessionRepository {
	return &ChatSessionRepository{store: u.store}
}

func (u *unitOfWork) ChatMessageRepository() contract.ChatMessageRepository {
	return &ChatMessageRepository{store: u.store}
}
