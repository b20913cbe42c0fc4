package pipeline

import (
	"context"
	"errors"
	"sync"

	"docrag-be/pkg/apperror"

	"github.com/google/uuid"
)

// ErrDeleted is the cancellation cause given to stage work whose document
// or workspace is being removed.
var ErrDeleted = errors.New("document or workspace deleted")

type flight struct {
	workspaceId uuid.UUID
	documentId  uuid.UUID
	cancel      context.CancelCauseFunc
	done        chan struct{}
}

// Gate tracks in-flight stage work so that deletion can stop it and wait
// for it before removing rows, vectors and blobs.
type Gate struct {
	mu               sync.Mutex
	closedWorkspaces map[uuid.UUID]struct{}
	closedDocuments  map[uuid.UUID]struct{}
	flights          map[*flight]struct{}
}

func NewGate() *Gate {
	return &Gate{
		closedWorkspaces: make(map[uuid.UUID]struct{}),
		closedDocuments:  make(map[uuid.UUID]struct{}),
		flights:          make(map[*flight]struct{}),
	}
}

// Enter registers work for a document. The returned context is cancelled
// with ErrDeleted if the document or its workspace is closed; release must
// be called when the work ends.
func (g *Gate) Enter(ctx context.Context, workspaceId, documentId uuid.UUID) (context.Context, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.closedWorkspaces[workspaceId]; ok {
		return nil, nil, apperror.ErrWorkspaceDeleting
	}
	if _, ok := g.closedDocuments[documentId]; ok {
		return nil, nil, apperror.ErrDocumentBusy
	}

	wctx, cancel := context.WithCancelCause(ctx)
	f := &flight{workspaceId: workspaceId, documentId: documentId, cancel: cancel, done: make(chan struct{})}
	g.flights[f] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.flights, f)
			g.mu.Unlock()
			cancel(nil)
			close(f.done)
		})
	}
	return wctx, release, nil
}

// Closed reports whether new work for the document must be refused.
func (g *Gate) Closed(workspaceId, documentId uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.closedWorkspaces[workspaceId]; ok {
		return true
	}
	_, ok := g.closedDocuments[documentId]
	return ok
}

// CloseDocument refuses new work for the document, cancels what is running
// and waits for it to return.
func (g *Gate) CloseDocument(ctx context.Context, documentId uuid.UUID) error {
	g.mu.Lock()
	g.closedDocuments[documentId] = struct{}{}
	g.mu.Unlock()

	return g.drain(ctx, func(f *flight) bool { return f.documentId == documentId })
}

func (g *Gate) CloseWorkspace(ctx context.Context, workspaceId uuid.UUID) error {
	g.mu.Lock()
	g.closedWorkspaces[workspaceId] = struct{}{}
	g.mu.Unlock()

	return g.drain(ctx, func(f *flight) bool { return f.workspaceId == workspaceId })
}

// ForgetDocument drops the closed marker once the document is gone.
func (g *Gate) ForgetDocument(documentId uuid.UUID) {
	g.mu.Lock()
	delete(g.closedDocuments, documentId)
	g.mu.Unlock()
}

func (g *Gate) ForgetWorkspace(workspaceId uuid.UUID) {
	g.mu.Lock()
	delete(g.closedWorkspaces, workspaceId)
	g.mu.Unlock()
}

func (g *Gate) drain(ctx context.Context, match func(*flight) bool) error {
	g.mu.Lock()
	var waiting []*flight
	for f := range g.flights {
		if match(f) {
			f.cancel(ErrDeleted)
			waiting = append(waiting, f)
		}
	}
	g.mu.Unlock()

	for _, f := range waiting {
		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
