package service

import (
	"bytes"
	"context"
	"fmt"

	"docrag-be/internal/dto"
	"docrag-be/internal/entity"
	"docrag-be/internal/pkg/logger"
	"docrag-be/internal/repository/unitofwork"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/blob"
	"docrag-be/pkg/parser"
	"docrag-be/pkg/rag/broadcast"
	"docrag-be/pkg/rag/pipeline"
	"docrag-be/pkg/vectorindex"

	"github.com/google/uuid"
)

type IDocumentService interface {
	Upload(ctx context.Context, ownerId uuid.UUID, req *dto.UploadDocumentRequest) (*dto.DocumentResponse, error)
	GetAll(ctx context.Context, ownerId, workspaceId uuid.UUID) ([]*dto.DocumentResponse, error)
	Show(ctx context.Context, ownerId, id uuid.UUID) (*dto.DocumentResponse, error)
	Status(ctx context.Context, ownerId, id uuid.UUID) (*dto.StatusResponse, error)
	Reprocess(ctx context.Context, ownerId, id uuid.UUID) (*dto.DocumentResponse, error)
	Delete(ctx context.Context, ownerId, id uuid.UUID) error
}

type documentService struct {
	uowFactory     unitofwork.RepositoryFactory
	pipeline       *pipeline.Pipeline
	notifier       *broadcast.Notifier
	index          vectorindex.Index
	blobs          blob.Store
	maxUploadBytes int64
	log            logger.ILogger
}

func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	pipeline *pipeline.Pipeline,
	notifier *broadcast.Notifier,
	index vectorindex.Index,
	blobs blob.Store,
	maxUploadBytes int64,
	log logger.ILogger,
) IDocumentService {
	return &documentService{
		uowFactory:     uowFactory,
		pipeline:       pipeline,
		notifier:       notifier,
		index:          index,
		blobs:          blobs,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// Upload stores the file and hands the document to the pipeline. It returns
// as soon as the document is accepted in status pending.
func (s *documentService) Upload(ctx context.Context, ownerId uuid.UUID, req *dto.UploadDocumentRequest) (*dto.DocumentResponse, error) {
	if s.maxUploadBytes > 0 && int64(len(req.Content)) > s.maxUploadBytes {
		return nil, apperror.WithMessage(apperror.ErrFileTooLarge,
			"%s is %d bytes, the limit is %d", req.Filename, len(req.Content), s.maxUploadBytes)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	workspace, err := ownedWorkspace(ctx, uow, ownerId, req.WorkspaceId)
	if err != nil {
		return nil, err
	}
	switch workspace.Status {
	case entity.ProvisioningStatusReady:
	case entity.ProvisioningStatusDeleting:
		return nil, apperror.ErrWorkspaceDeleting
	default:
		return nil, apperror.WithMessage(apperror.ErrWorkspaceNotReady, "workspace is %s", workspace.Status)
	}

	_, mime, err := parser.Detect(req.Filename, req.Content)
	if err != nil {
		return nil, err
	}

	doc := &entity.Document{
		Id:            uuid.New(),
		WorkspaceId:   workspace.Id,
		Filename:      req.Filename,
		MimeType:      mime,
		SizeBytes:     int64(len(req.Content)),
		Status:        entity.StatusPending,
		StatusVersion: 1,
	}
	doc.BlobKey = blob.OriginalKey(workspace.Id, doc.Id)

	if err := s.blobs.Put(ctx, doc.BlobKey, bytes.NewReader(req.Content)); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := uow.DocumentRepository().Create(ctx, doc); err != nil {
		_ = s.blobs.DeletePrefix(context.WithoutCancel(ctx), blob.DocumentPrefix(workspace.Id, doc.Id))
		return nil, err
	}
	s.notifier.Document(ctx, doc.WorkspaceId, doc.Id, string(doc.Status), doc.StatusVersion, nil)

	s.log.Info("Document", "Document uploaded", map[string]interface{}{
		"document_id":  doc.Id,
		"workspace_id": doc.WorkspaceId,
		"mime":         mime,
		"size":         doc.SizeBytes,
	})

	// A failed submit leaves the document pending; the recovery sweep picks it up.
	if err := s.pipeline.Submit(context.WithoutCancel(ctx), doc.Id); err != nil {
		s.log.Warn("Document", "Submit deferred to recovery", map[string]interface{}{
			"document_id": doc.Id,
			"error":       err.Error(),
		})
	}
	return toDocumentResponse(doc), nil
}

func (s *documentService) GetAll(ctx context.Context, ownerId, workspaceId uuid.UUID) ([]*dto.DocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := ownedWorkspace(ctx, uow, ownerId, workspaceId); err != nil {
		return nil, err
	}
	docs, err := uow.DocumentRepository().FindAllByWorkspace(ctx, workspaceId)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.DocumentResponse, 0, len(docs))
	for _, d := range docs {
		res = append(res, toDocumentResponse(d))
	}
	return res, nil
}

func (s *documentService) Show(ctx context.Context, ownerId, id uuid.UUID) (*dto.DocumentResponse, error) {
	doc, err := ownedDocument(ctx, s.uowFactory.NewUnitOfWork(ctx), ownerId, id)
	if err != nil {
		return nil, err
	}
	return toDocumentResponse(doc), nil
}

func (s *documentService) Status(ctx context.Context, ownerId, id uuid.UUID) (*dto.StatusResponse, error) {
	doc, err := ownedDocument(ctx, s.uowFactory.NewUnitOfWork(ctx), ownerId, id)
	if err != nil {
		return nil, err
	}
	return &dto.StatusResponse{
		Id:      doc.Id,
		Status:  string(doc.Status),
		Version: doc.StatusVersion,
		Message: doc.ErrorMessage,
	}, nil
}

func (s *documentService) Reprocess(ctx context.Context, ownerId, id uuid.UUID) (*dto.DocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := ownedDocument(ctx, uow, ownerId, id); err != nil {
		return nil, err
	}
	if err := s.pipeline.Reprocess(ctx, id); err != nil {
		return nil, err
	}
	doc, err := uow.DocumentRepository().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperror.ErrDocumentNotFound
	}
	return toDocumentResponse(doc), nil
}

// Delete cancels ingestion of the document, waits for its running stage to
// stop, then removes its vectors, chunks and files.
func (s *documentService) Delete(ctx context.Context, ownerId, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	doc, err := ownedDocument(ctx, uow, ownerId, id)
	if err != nil {
		return err
	}

	gate := s.pipeline.Gate()
	if err := gate.CloseDocument(ctx, id); err != nil {
		return fmt.Errorf("wait for ingestion to stop: %w", err)
	}
	defer gate.ForgetDocument(id)

	// the status no longer moves once the gate is closed
	if latest, err := uow.DocumentRepository().FindByID(ctx, id); err == nil && latest != nil {
		doc = latest
	}

	removed, err := s.index.DeleteByDocument(ctx, doc.WorkspaceId, id)
	if err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.PipelineJobRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.ChunkRepository().DeleteByDocument(ctx, id); err != nil {
		return err
	}
	if err := uow.DocumentRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	if err := s.blobs.DeletePrefix(ctx, blob.DocumentPrefix(doc.WorkspaceId, id)); err != nil {
		s.log.Warn("Document", "Failed to remove document files", map[string]interface{}{
			"document_id": id,
			"error":       err.Error(),
		})
	}
	s.notifier.Document(ctx, doc.WorkspaceId, id, statusDeleted, doc.StatusVersion+1, nil)

	s.log.Info("Document", "Document deleted", map[string]interface{}{
		"document_id":     id,
		"vectors_removed": removed,
	})
	return nil
}

// ownedDocument resolves a document through the workspace that owns it.
func ownedDocument(ctx context.Context, uow unitofwork.UnitOfWork, ownerId, id uuid.UUID) (*entity.Document, error) {
	doc, err := uow.DocumentRepository().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperror.ErrDocumentNotFound
	}
	if _, err := ownedWorkspace(ctx, uow, ownerId, doc.WorkspaceId); err != nil {
		return nil, apperror.ErrDocumentNotFound
	}
	return doc, nil
}

func toDocumentResponse(d *entity.Document) *dto.DocumentResponse {
	return &dto.DocumentResponse{
		Id:           d.Id,
		WorkspaceId:  d.WorkspaceId,
		Filename:     d.Filename,
		MimeType:     d.MimeType,
		SizeBytes:    d.SizeBytes,
		Status:       string(d.Status),
		ErrorMessage: d.ErrorMessage,
		ChunkCount:   d.ChunkCount,
		VectorCount:  d.VectorCount,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
