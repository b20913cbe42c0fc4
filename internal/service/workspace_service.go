package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docrag-be/internal/dto"
	"docrag-be/internal/entity"
	"docrag-be/internal/pkg/logger"
	"docrag-be/internal/repository/unitofwork"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/blob"
	"docrag-be/pkg/chunker"
	"docrag-be/pkg/embedding"
	"docrag-be/pkg/rag/broadcast"
	"docrag-be/pkg/rag/pipeline"
	"docrag-be/pkg/rerank"
	"docrag-be/pkg/vectorindex"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

const statusDeleted = "deleted"

type IWorkspaceService interface {
	Create(ctx context.Context, ownerId uuid.UUID, req *dto.CreateWorkspaceRequest) (*dto.WorkspaceResponse, error)
	GetAll(ctx context.Context, ownerId uuid.UUID) ([]*dto.WorkspaceResponse, error)
	Show(ctx context.Context, ownerId, id uuid.UUID) (*dto.WorkspaceResponse, error)
	Status(ctx context.Context, ownerId, id uuid.UUID) (*dto.StatusResponse, error)
	UpdateRagConfig(ctx context.Context, ownerId, id uuid.UUID, req *dto.UpdateRagConfigRequest) (*dto.WorkspaceResponse, error)
	Delete(ctx context.Context, ownerId, id uuid.UUID) error
	Search(ctx context.Context, ownerId, id uuid.UUID, query string) (*entity.RetrievalResult, error)
	// Wait blocks until background provisioning has finished.
	Wait()
}

// Algorithms are the named strategies a RagConfig may refer to.
type Algorithms struct {
	Chunkers  *chunker.Registry
	Embedders *embedding.Registry
	Rerankers *rerank.Registry
}

type Retriever interface {
	Retrieve(ctx context.Context, workspaceId uuid.UUID, query string) (*entity.RetrievalResult, error)
}

// SessionForgetter drops in-memory turn state of deleted sessions.
type SessionForgetter interface {
	Forget(sessionId uuid.UUID)
}

type workspaceService struct {
	uowFactory          unitofwork.RepositoryFactory
	algorithms          Algorithms
	notifier            *broadcast.Notifier
	gate                *pipeline.Gate
	index               vectorindex.Index
	blobs               blob.Store
	retriever           Retriever
	sessions            SessionForgetter
	defaultEmbedding    string
	provisioningTimeout time.Duration
	log                 logger.ILogger

	provisioning sync.WaitGroup
}

func NewWorkspaceService(
	uowFactory unitofwork.RepositoryFactory,
	algorithms Algorithms,
	notifier *broadcast.Notifier,
	gate *pipeline.Gate,
	index vectorindex.Index,
	blobs blob.Store,
	retriever Retriever,
	sessions SessionForgetter,
	defaultEmbedding string,
	provisioningTimeout time.Duration,
	log logger.ILogger,
) IWorkspaceService {
	if provisioningTimeout <= 0 {
		provisioningTimeout = time.Minute
	}
	return &workspaceService{
		uowFactory:          uowFactory,
		algorithms:          algorithms,
		notifier:            notifier,
		gate:                gate,
		index:               index,
		blobs:               blobs,
		retriever:           retriever,
		sessions:            sessions,
		defaultEmbedding:    defaultEmbedding,
		provisioningTimeout: provisioningTimeout,
		log:                 log,
	}
}

func (s *workspaceService) Create(ctx context.Context, ownerId uuid.UUID, req *dto.CreateWorkspaceRequest) (*dto.WorkspaceResponse, error) {
	cfg := entity.DefaultRagConfig(s.defaultEmbedding)
	if req.RagConfig != nil {
		cfg = mergeRagConfig(cfg, *req.RagConfig)
	}
	if err := s.validateRagConfig(cfg); err != nil {
		return nil, err
	}

	workspace := &entity.Workspace{
		Id:            uuid.New(),
		OwnerId:       ownerId,
		Name:          req.Name,
		Description:   req.Description,
		RagConfig:     cfg,
		Status:        entity.ProvisioningStatusProvisioning,
		StatusVersion: 1,
	}
	if err := s.uowFactory.NewUnitOfWork(ctx).WorkspaceRepository().Create(ctx, workspace); err != nil {
		return nil, err
	}
	s.notifier.Workspace(ctx, workspace.Id, string(workspace.Status), workspace.StatusVersion, nil)

	s.log.Info("Workspace", "Workspace created", map[string]interface{}{
		"workspace_id": workspace.Id,
		"retriever":    cfg.RetrieverType,
		"embedding":    cfg.EmbeddingAlgorithm,
	})

	s.provisioning.Add(1)
	go func() {
		defer s.provisioning.Done()
		s.provision(context.WithoutCancel(ctx), workspace.Id)
	}()

	return toWorkspaceResponse(workspace), nil
}

// provision resolves the embedding backend of the workspace and records its
// dimension, then opens the workspace for documents and queries. A config
// update accepted while the backend is checked makes it start over with the
// new config.
func (s *workspaceService) provision(parent context.Context, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(parent, s.provisioningTimeout)
	defer cancel()

	repo := s.uowFactory.NewUnitOfWork(ctx).WorkspaceRepository()
	for {
		workspace, err := repo.FindByID(ctx, id)
		if err != nil || workspace == nil {
			s.log.Error("Workspace", "Workspace vanished before provisioning", map[string]interface{}{"workspace_id": id})
			return
		}
		if workspace.Status != entity.ProvisioningStatusProvisioning {
			return
		}

		cfg, err := s.resolveEmbedding(ctx, workspace.RagConfig)
		if err != nil {
			if s.configChanged(ctx, id, workspace.RagConfig) && ctx.Err() == nil {
				continue
			}
			s.failProvisioning(parent, id, err)
			return
		}

		version, ok, err := repo.MarkReady(ctx, id, workspace.RagConfig, cfg.EmbeddingDimension)
		if err != nil {
			s.failProvisioning(parent, id, err)
			return
		}
		if !ok {
			if ctx.Err() != nil {
				s.failProvisioning(parent, id, ctx.Err())
				return
			}
			continue
		}

		s.notifier.Workspace(ctx, id, string(entity.ProvisioningStatusReady), version, nil)
		s.log.Info("Workspace", "Workspace ready", map[string]interface{}{
			"workspace_id": id,
			"dimension":    cfg.EmbeddingDimension,
		})
		return
	}
}

// configChanged reports whether the stored config of a provisioning workspace
// differs from the one that was checked.
func (s *workspaceService) configChanged(ctx context.Context, id uuid.UUID, checked entity.RagConfig) bool {
	workspace, err := s.uowFactory.NewUnitOfWork(ctx).WorkspaceRepository().FindByID(ctx, id)
	if err != nil || workspace == nil {
		return false
	}
	return workspace.Status == entity.ProvisioningStatusProvisioning && workspace.RagConfig != checked
}

// resolveEmbedding checks the embedding backend, retrying transient failures.
func (s *workspaceService) resolveEmbedding(ctx context.Context, cfg entity.RagConfig) (entity.RagConfig, error) {
	if cfg.RetrieverType == entity.RetrieverGraph {
		return cfg, apperror.WithMessage(apperror.ErrRetrieverNotEnabled, "graph retriever is not enabled in this deployment")
	}
	provider, err := s.algorithms.Embedders.Get(cfg.EmbeddingAlgorithm)
	if err != nil {
		return cfg, err
	}

	embedOnce := func() ([][]float32, error) {
		vectors, err := provider.Embed(ctx, []string{"workspace provisioning check"}, embedding.TaskRetrievalDocument)
		if err != nil && !apperror.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return vectors, err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	vectors, err := backoff.Retry(ctx, embedOnce, backoff.WithBackOff(b), backoff.WithMaxTries(5))
	if err != nil {
		return cfg, err
	}
	if len(vectors) != 1 || len(vectors[0]) != provider.Dimension() {
		return cfg, apperror.WithMessage(apperror.ErrDimensionMismatch,
			"%s reported dimension %d but returned a vector of another length", provider.Name(), provider.Dimension())
	}

	cfg.EmbeddingDimension = provider.Dimension()
	return cfg, nil
}

func (s *workspaceService) failProvisioning(ctx context.Context, id uuid.UUID, cause error) {
	msg := cause.Error()
	version, ok, err := s.uowFactory.NewUnitOfWork(ctx).WorkspaceRepository().TransitionStatus(ctx, id,
		[]entity.ProvisioningStatus{entity.ProvisioningStatusProvisioning}, entity.ProvisioningStatusError, &msg)
	if err != nil || !ok {
		s.log.Error("Workspace", "Failed to record provisioning failure", map[string]interface{}{
			"workspace_id": id,
			"cause":        msg,
		})
		return
	}
	s.notifier.Workspace(ctx, id, string(entity.ProvisioningStatusError), version, &msg)
	s.log.Warn("Workspace", "Provisioning failed", map[string]interface{}{
		"workspace_id": id,
		"error":        msg,
	})
}

func (s *workspaceService) Wait() {
	s.provisioning.Wait()
}

func (s *workspaceService) GetAll(ctx context.Context, ownerId uuid.UUID) ([]*dto.WorkspaceResponse, error) {
	workspaces, err := s.uowFactory.NewUnitOfWork(ctx).WorkspaceRepository().FindAllByOwner(ctx, ownerId)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.WorkspaceResponse, 0, len(workspaces))
	for _, w := range workspaces {
		res = append(res, toWorkspaceResponse(w))
	}
	return res, nil
}

func (s *workspaceService) Show(ctx context.Context, ownerId, id uuid.UUID) (*dto.WorkspaceResponse, error) {
	workspace, err := ownedWorkspace(ctx, s.uowFactory.NewUnitOfWork(ctx), ownerId, id)
	if err != nil {
		return nil, err
	}
	return toWorkspaceResponse(workspace), nil
}

func (s *workspaceService) Status(ctx context.Context, ownerId, id uuid.UUID) (*dto.StatusResponse, error) {
	workspace, err := ownedWorkspace(ctx, s.uowFactory.NewUnitOfWork(ctx), ownerId, id)
	if err != nil {
		return nil, err
	}
	return &dto.StatusResponse{
		Id:      workspace.Id,
		Status:  string(workspace.Status),
		Version: workspace.StatusVersion,
		Message: workspace.StatusMessage,
	}, nil
}

// UpdateRagConfig is accepted only while the workspace is provisioning.
func (s *workspaceService) UpdateRagConfig(ctx context.Context, ownerId, id uuid.UUID, req *dto.UpdateRagConfigRequest) (*dto.WorkspaceResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	workspace, err := ownedWorkspace(ctx, uow, ownerId, id)
	if err != nil {
		return nil, err
	}
	if !workspace.ConfigMutable() {
		return nil, apperror.WithMessage(apperror.ErrConfigImmutable,
			"rag configuration of a workspace in status %s cannot change", workspace.Status)
	}

	cfg := mergeRagConfig(workspace.RagConfig, req.RagConfig)
	cfg.EmbeddingDimension = 0
	if err := s.validateRagConfig(cfg); err != nil {
		return nil, err
	}

	ok, err := uow.WorkspaceRepository().UpdateRagConfig(ctx, id, cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.ErrConfigImmutable
	}
	workspace.RagConfig = cfg
	return toWorkspaceResponse(workspace), nil
}

// Delete stops ingestion of the workspace, waits for running stages to
// drain and removes everything the workspace owns. A workspace left in
// deleting by an interrupted call is picked up again by the next one.
func (s *workspaceService) Delete(ctx context.Context, ownerId, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := ownedWorkspace(ctx, uow, ownerId, id); err != nil {
		return err
	}

	version, ok, err := uow.WorkspaceRepository().TransitionStatus(ctx, id, []entity.ProvisioningStatus{
		entity.ProvisioningStatusProvisioning,
		entity.ProvisioningStatusReady,
		entity.ProvisioningStatusError,
		entity.ProvisioningStatusDeleting,
	}, entity.ProvisioningStatusDeleting, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ErrWorkspaceNotFound
	}
	s.notifier.Workspace(ctx, id, string(entity.ProvisioningStatusDeleting), version, nil)

	if err := s.gate.CloseWorkspace(ctx, id); err != nil {
		return fmt.Errorf("wait for ingestion to stop: %w", err)
	}

	sessions, err := uow.ChatSessionRepository().FindAllByWorkspace(ctx, id, ownerId)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		s.sessions.Forget(session.Id)
	}

	removed, err := s.index.DeleteByWorkspace(ctx, id)
	if err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteByWorkspace(ctx, id); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().DeleteByWorkspace(ctx, id); err != nil {
		return err
	}
	if err := uow.PipelineJobRepository().DeleteByWorkspace(ctx, id); err != nil {
		return err
	}
	if err := uow.ChunkRepository().DeleteByWorkspace(ctx, id); err != nil {
		return err
	}
	if err := uow.DocumentRepository().DeleteByWorkspace(ctx, id); err != nil {
		return err
	}
	if err := uow.WorkspaceRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	if err := s.blobs.DeletePrefix(ctx, blob.WorkspacePrefix(id)); err != nil {
		s.log.Warn("Workspace", "Failed to remove workspace files", map[string]interface{}{
			"workspace_id": id,
			"error":        err.Error(),
		})
	}
	s.gate.ForgetWorkspace(id)
	s.notifier.Workspace(ctx, id, statusDeleted, version+1, nil)

	s.log.Info("Workspace", "Workspace deleted", map[string]interface{}{
		"workspace_id":    id,
		"vectors_removed": removed,
	})
	return nil
}

func (s *workspaceService) Search(ctx context.Context, ownerId, id uuid.UUID, query string) (*entity.RetrievalResult, error) {
	if _, err := ownedWorkspace(ctx, s.uowFactory.NewUnitOfWork(ctx), ownerId, id); err != nil {
		return nil, err
	}
	return s.retriever.Retrieve(ctx, id, query)
}

// validateRagConfig checks the structure and that every named algorithm is registered.
func (s *workspaceService) validateRagConfig(cfg entity.RagConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.RetrieverType != entity.RetrieverVector {
		return nil
	}
	if _, err := s.algorithms.Chunkers.Get(cfg.ChunkAlgorithm); err != nil {
		return err
	}
	if _, err := s.algorithms.Embedders.Get(cfg.EmbeddingAlgorithm); err != nil {
		return err
	}
	if cfg.RerankEnabled {
		if _, err := s.algorithms.Rerankers.Get(cfg.RerankAlgorithm); err != nil {
			return err
		}
	}
	return nil
}

// ownedWorkspace hides workspaces of other owners behind ErrWorkspaceNotFound.
func ownedWorkspace(ctx context.Context, uow unitofwork.UnitOfWork, ownerId, id uuid.UUID) (*entity.Workspace, error) {
	workspace, err := uow.WorkspaceRepository().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if workspace == nil || workspace.OwnerId != ownerId {
		return nil, apperror.ErrWorkspaceNotFound
	}
	return workspace, nil
}

// mergeRagConfig overlays the non-zero fields of req onto base.
func mergeRagConfig(base entity.RagConfig, req dto.RagConfigDTO) entity.RagConfig {
	if req.RetrieverType != "" {
		base.RetrieverType = req.RetrieverType
	}
	if req.ChunkAlgorithm != "" {
		base.ChunkAlgorithm = req.ChunkAlgorithm
	}
	if req.ChunkSize != 0 {
		base.ChunkSize = req.ChunkSize
	}
	if req.ChunkOverlap != 0 {
		base.ChunkOverlap = req.ChunkOverlap
	}
	if req.EmbeddingAlgorithm != "" {
		base.EmbeddingAlgorithm = req.EmbeddingAlgorithm
	}
	if req.TopK != 0 {
		base.TopK = req.TopK
	}
	base.RerankEnabled = req.RerankEnabled
	if req.RerankAlgorithm != "" {
		base.RerankAlgorithm = req.RerankAlgorithm
	}
	if req.GraphHopCount != 0 {
		base.GraphHopCount = req.GraphHopCount
	}
	if req.GraphExtractionAlgorithm != "" {
		base.GraphExtractionAlgorithm = req.GraphExtractionAlgorithm
	}
	return base
}

func toWorkspaceResponse(w *entity.Workspace) *dto.WorkspaceResponse {
	c := w.RagConfig
	return &dto.WorkspaceResponse{
		Id:          w.Id,
		Name:        w.Name,
		Description: w.Description,
		RagConfig: dto.RagConfigDTO{
			RetrieverType:            c.RetrieverType,
			ChunkAlgorithm:           c.ChunkAlgorithm,
			ChunkSize:                c.ChunkSize,
			ChunkOverlap:             c.ChunkOverlap,
			EmbeddingAlgorithm:       c.EmbeddingAlgorithm,
			EmbeddingDimension:       c.EmbeddingDimension,
			TopK:                     c.TopK,
			RerankEnabled:            c.RerankEnabled,
			RerankAlgorithm:          c.RerankAlgorithm,
			GraphHopCount:            c.GraphHopCount,
			GraphExtractionAlgorithm: c.GraphExtractionAlgorithm,
		},
		Status:        string(w.Status),
		StatusVersion: w.StatusVersion,
		StatusMessage: w.StatusMessage,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}
