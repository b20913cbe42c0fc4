// Package chat drives chat turns through retrieval and streaming generation.
//
// One turn runs per session at a time. A turn whose retrieval finds nothing
// stops in no_context_prompt and waits for the caller to pick a continuation.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"docrag-be/internal/config"
	"docrag-be/internal/entity"
	"docrag-be/internal/pkg/logger"
	"docrag-be/internal/repository/unitofwork"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/llm"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Retriever interface {
	Retrieve(ctx context.Context, workspaceId uuid.UUID, query string) (*entity.RetrievalResult, error)
}

// Enhancer fetches supplementary context from outside the workspace.
type Enhancer interface {
	Lookup(ctx context.Context, query string) (*entity.RetrievalResult, error)
}

type Config struct {
	HistoryWindow     int
	GenerationTimeout time.Duration
	TurnRetention     time.Duration
}

func ConfigFrom(c config.ChatConfig) Config {
	return Config{
		HistoryWindow:     c.HistoryWindow,
		GenerationTimeout: c.GenerationTimeout,
		TurnRetention:     c.TurnRetention,
	}
}

var errTurnCancelled = errors.New("turn cancelled")

type Orchestrator struct {
	cfg       Config
	repos     unitofwork.RepositoryFactory
	retriever Retriever
	enhancer  Enhancer
	llm       llm.LLMProvider
	log       logger.ILogger
	tracer    trace.Tracer

	mu sync.Mutex
	// open holds the running or waiting turn of each session.
	open map[uuid.UUID]*turn
	// finished keeps resting turns for snapshot queries and idempotent cancel.
	finished *cache.Cache
}

func NewOrchestrator(cfg Config, repos unitofwork.RepositoryFactory, retriever Retriever, enhancer Enhancer, provider llm.LLMProvider, log logger.ILogger) *Orchestrator {
	if cfg.TurnRetention <= 0 {
		cfg.TurnRetention = 10 * time.Minute
	}
	return &Orchestrator{
		cfg:       cfg,
		repos:     repos,
		retriever: retriever,
		enhancer:  enhancer,
		llm:       provider,
		log:       log,
		tracer:    otel.Tracer("docrag-be/chat"),
		open:      make(map[uuid.UUID]*turn),
		finished:  cache.New(cfg.TurnRetention, cfg.TurnRetention),
	}
}

// Run is a claimed turn that has not started streaming yet. Claiming and
// streaming are split so transports can report a rejected turn before they
// commit to a response.
type Run struct {
	o    *Orchestrator
	t    *turn
	step step
}

func (r *Run) TurnId() uuid.UUID {
	return r.t.id
}

// Stream drives the turn until it rests, delivering events to sink.
func (r *Run) Stream(ctx context.Context, sink Sink) (*TurnSnapshot, error) {
	if sink == nil {
		sink = discard
	}
	return r.o.drive(ctx, r.t, sink, r.step)
}

// SendMessage appends a user message and runs a new turn until it rests.
// It fails with ErrTurnInProgress while another turn of the session runs.
func (o *Orchestrator) SendMessage(ctx context.Context, sessionId uuid.UUID, content string, sink Sink) (*TurnSnapshot, error) {
	run, err := o.Start(ctx, sessionId, content)
	if err != nil {
		return nil, err
	}
	return run.Stream(ctx, sink)
}

// Start claims a new turn for the session and persists the user message.
// The turn holds the session until its Run is streamed.
func (o *Orchestrator) Start(ctx context.Context, sessionId uuid.UUID, content string) (*Run, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ErrEmptyQuery
	}

	session, err := o.repos.NewUnitOfWork(ctx).ChatSessionRepository().FindByID(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperror.ErrSessionNotFound
	}

	t := &turn{
		id:          uuid.New(),
		sessionId:   sessionId,
		workspaceId: session.WorkspaceId,
		query:       content,
		state:       StateRetrieving,
		busy:        true,
		startedAt:   time.Now(),
	}
	t.updatedAt = t.startedAt
	if err := o.claim(t); err != nil {
		return nil, err
	}

	msg := &entity.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: sessionId,
		TurnId:        t.id,
		Role:          entity.ChatMessageRoleUser,
		Content:       content,
		Status:        entity.MessageStatusComplete,
	}
	if err := o.repos.NewUnitOfWork(ctx).ChatMessageRepository().Create(ctx, msg); err != nil {
		o.finish(t, StateFailed, err.Error())
		return nil, err
	}
	t.userMessageId = msg.Id

	o.log.Info("Chat", "Turn started", map[string]interface{}{
		"session_id": sessionId,
		"turn_id":    t.id,
	})
	return &Run{o: o, t: t, step: o.retrieveStep}, nil
}

// Continue resumes a turn waiting in no_context_prompt with the caller's choice.
func (o *Orchestrator) Continue(ctx context.Context, sessionId, turnId uuid.UUID, choice Continuation, sink Sink) (*TurnSnapshot, error) {
	run, err := o.Resume(sessionId, turnId, choice)
	if err != nil {
		return nil, err
	}
	return run.Stream(ctx, sink)
}

// Resume claims a turn waiting in no_context_prompt for the given choice.
func (o *Orchestrator) Resume(sessionId, turnId uuid.UUID, choice Continuation) (*Run, error) {
	if !choice.IsValid() {
		return nil, apperror.WithMessage(apperror.ErrInvalidChoice, "unknown continuation %q", choice)
	}

	o.mu.Lock()
	t, ok := o.open[sessionId]
	if !ok || t.id != turnId {
		o.mu.Unlock()
		if o.lookupFinished(sessionId, turnId) != nil {
			return nil, apperror.ErrTurnNotAwaitingChoice
		}
		return nil, apperror.ErrTurnNotFound
	}
	t.mu.Lock()
	if t.busy || t.state != StateNoContext {
		t.mu.Unlock()
		o.mu.Unlock()
		return nil, apperror.ErrTurnNotAwaitingChoice
	}
	t.busy = true
	t.errMessage = ""
	t.mu.Unlock()
	o.mu.Unlock()

	o.log.Info("Chat", "Continuing turn", map[string]interface{}{
		"session_id": sessionId,
		"turn_id":    turnId,
		"choice":     choice,
	})

	run := &Run{o: o, t: t}
	switch choice {
	case ContinueUploadAndRetry:
		run.step = o.retrieveStep
	case ContinueExternalLookup:
		run.step = o.lookupStep
	default:
		run.step = func(ctx context.Context, t *turn, sink Sink) error {
			return o.generate(ctx, t, nil, sink)
		}
	}
	return run, nil
}

// Cancel stops a turn. Cancelling a turn that already ended is a no-op.
func (o *Orchestrator) Cancel(sessionId, turnId uuid.UUID) error {
	o.mu.Lock()
	t, ok := o.open[sessionId]
	if ok && t.id == turnId {
		o.mu.Unlock()
		t.requestCancel()

		t.mu.Lock()
		waiting := !t.busy
		t.mu.Unlock()
		if waiting {
			o.finish(t, StateCancelled, "")
		}
		o.log.Info("Chat", "Turn cancelled", map[string]interface{}{
			"session_id": sessionId,
			"turn_id":    turnId,
		})
		return nil
	}
	o.mu.Unlock()

	if o.lookupFinished(sessionId, turnId) != nil {
		return nil
	}
	return apperror.ErrTurnNotFound
}

// Turn returns the open turn of a session, else its most recent one.
func (o *Orchestrator) Turn(sessionId uuid.UUID) (*TurnSnapshot, bool) {
	o.mu.Lock()
	t, ok := o.open[sessionId]
	o.mu.Unlock()
	if ok {
		return t.snapshot(), true
	}
	if v, ok := o.finished.Get(lastKey(sessionId)); ok {
		return v.(*TurnSnapshot), true
	}
	return nil, false
}

// Forget cancels whatever the session is doing; used when it is deleted.
func (o *Orchestrator) Forget(sessionId uuid.UUID) {
	o.mu.Lock()
	t, ok := o.open[sessionId]
	delete(o.open, sessionId)
	o.mu.Unlock()
	if ok {
		t.requestCancel()
	}
	o.finished.Delete(lastKey(sessionId))
}

// claim registers t as the open turn. A turn waiting for a choice is
// superseded by the new message; a running one is not.
func (o *Orchestrator) claim(t *turn) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if prev, ok := o.open[t.sessionId]; ok {
		prev.mu.Lock()
		busy := prev.busy
		prev.mu.Unlock()
		if busy {
			return apperror.ErrTurnInProgress
		}
		prev.requestCancel()
		prev.setState(StateCancelled)
		o.remember(prev)
	}
	o.open[t.sessionId] = t
	return nil
}

type step func(ctx context.Context, t *turn, sink Sink) error

// drive runs one step of a turn with a cancellable context and settles the
// turn afterwards.
func (o *Orchestrator) drive(parent context.Context, t *turn, sink Sink, run step) (*TurnSnapshot, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	t.mu.Lock()
	t.cancel = cancel
	cancelled := t.cancelled
	t.mu.Unlock()
	if cancelled {
		cancel()
	}

	ctx, span := o.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("session.id", t.sessionId.String()),
		attribute.String("turn.id", t.id.String()),
	))
	defer span.End()

	err := run(ctx, t, sink)

	t.mu.Lock()
	state := t.state
	t.busy = false
	t.cancel = nil
	t.mu.Unlock()

	switch {
	case t.isCancelled() || (err != nil && parent.Err() != nil):
		o.finish(t, StateCancelled, "")
		err = nil
	case err != nil:
		o.finish(t, StateFailed, err.Error())
		span.RecordError(err)
		sink(Event{
			Type:      EventError,
			TurnId:    t.id,
			Error:     err.Error(),
			Code:      apperror.CodeOf(err),
			Retryable: apperror.IsRetryable(err),
		})
	case state == StateNoContext:
		// stays open until a continuation or a new message arrives
	default:
		o.finish(t, StateCompleted, "")
	}

	snap := t.snapshot()
	sink(Event{Type: EventDone, TurnId: t.id, State: snap.State, Options: snap.Options})
	return snap, err
}

func (o *Orchestrator) retrieveStep(ctx context.Context, t *turn, sink Sink) error {
	o.transition(t, StateRetrieving, sink)

	result, err := o.retriever.Retrieve(ctx, t.workspaceId, t.query)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.retrieval = result
	t.mu.Unlock()

	if result.IsEmpty() {
		o.transition(t, StateNoContext, sink)
		return nil
	}
	return o.generate(ctx, t, result, sink)
}

func (o *Orchestrator) lookupStep(ctx context.Context, t *turn, sink Sink) error {
	if o.enhancer == nil {
		return apperror.WithMessage(apperror.ErrInvalidChoice, "external lookup is not configured")
	}
	o.transition(t, StateRetrieving, sink)

	result, err := o.enhancer.Lookup(ctx, t.query)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.retrieval = result
	t.mu.Unlock()

	if result.IsEmpty() {
		o.transition(t, StateNoContext, sink)
		return nil
	}
	return o.generate(ctx, t, result, sink)
}

// generate streams the answer into a bot message. Partial content is kept
// when the stream fails or is cancelled.
func (o *Orchestrator) generate(ctx context.Context, t *turn, result *entity.RetrievalResult, sink Sink) error {
	o.transition(t, StateGenerating, sink)

	uow := o.repos.NewUnitOfWork(ctx)
	history, err := loadHistory(ctx, uow, t.sessionId, t.userMessageId, o.cfg.HistoryWindow)
	if err != nil {
		return err
	}

	bot := &entity.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: t.sessionId,
		TurnId:        t.id,
		Role:          entity.ChatMessageRoleBot,
		Status:        entity.MessageStatusStreaming,
		Retrieval:     result,
	}
	if err := uow.ChatMessageRepository().Create(ctx, bot); err != nil {
		return err
	}
	t.mu.Lock()
	t.botMessageId = &bot.Id
	t.mu.Unlock()

	gctx := ctx
	if o.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, o.cfg.GenerationTimeout)
		defer cancel()
	}

	messages := NewContextualBuilder(t.query, history, result).Messages()
	streaming := false
	_, streamErr := o.llm.Stream(gctx, messages, func(token string) error {
		if !streaming {
			streaming = true
			o.transition(t, StateStreaming, sink)
		}
		if !t.appendToken(token) {
			return errTurnCancelled
		}
		sink(Event{Type: EventToken, TurnId: t.id, Token: token})
		return nil
	})

	status := entity.MessageStatusComplete
	switch {
	case t.isCancelled() || errors.Is(streamErr, errTurnCancelled) || (streamErr != nil && ctx.Err() != nil):
		status = entity.MessageStatusCancelled
		streamErr = nil
		t.requestCancel()
	case streamErr != nil:
		status = entity.MessageStatusFailed
		var appErr *apperror.Error
		if !errors.As(streamErr, &appErr) {
			streamErr = apperror.Wrap(apperror.ErrGenerationFailed, streamErr)
		}
	}

	content := t.snapshot().Content
	pctx := context.WithoutCancel(ctx)
	if err := o.repos.NewUnitOfWork(pctx).ChatMessageRepository().UpdateContent(pctx, bot.Id, content, status); err != nil {
		o.log.Error("Chat", "Failed to persist bot message", map[string]interface{}{
			"turn_id": t.id,
			"error":   err.Error(),
		})
		if streamErr == nil && status == entity.MessageStatusComplete {
			return err
		}
	}
	return streamErr
}

func (o *Orchestrator) transition(t *turn, s TurnState, sink Sink) {
	t.setState(s)
	o.log.Debug("Chat", "Turn state", map[string]interface{}{
		"turn_id": t.id,
		"state":   s,
	})
	ev := Event{Type: EventState, TurnId: t.id, State: s}
	if s == StateNoContext {
		ev.Options = append([]Continuation(nil), continuations...)
	}
	sink(ev)
}

// finish moves a turn into a final state and out of the open set.
func (o *Orchestrator) finish(t *turn, s TurnState, errMessage string) {
	t.mu.Lock()
	t.state = s
	t.errMessage = errMessage
	t.updatedAt = time.Now()
	t.mu.Unlock()

	o.mu.Lock()
	if cur, ok := o.open[t.sessionId]; ok && cur == t {
		delete(o.open, t.sessionId)
	}
	o.remember(t)
	o.mu.Unlock()

	if s == StateFailed {
		o.log.Warn("Chat", "Turn failed", map[string]interface{}{
			"turn_id": t.id,
			"error":   errMessage,
		})
	}
}

// remember must be called with o.mu held.
func (o *Orchestrator) remember(t *turn) {
	snap := t.snapshot()
	o.finished.SetDefault(turnKey(t.id), snap)
	o.finished.SetDefault(lastKey(t.sessionId), snap)
}

func (o *Orchestrator) lookupFinished(sessionId, turnId uuid.UUID) *TurnSnapshot {
	v, ok := o.finished.Get(turnKey(turnId))
	if !ok {
		return nil
	}
	snap := v.(*TurnSnapshot)
	if snap.SessionId != sessionId {
		return nil
	}
	return snap
}

func turnKey(id uuid.UUID) string {
	return "turn:" + id.String()
}

func lastKey(sessionId uuid.UUID) string {
	return "session:" + sessionId.String()
}
