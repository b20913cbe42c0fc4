package pipeline

import (
	"context"
	"errors"

	"docrag-be/internal/entity"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/events"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

type stageFunc func(ctx context.Context) (events.StageEvent, error)

// runWithRetry executes one stage with a per-attempt timeout. Transient
// failures and timeouts are retried with exponential backoff up to
// MaxAttempts; input and internal failures end the stage at once.
func (p *Pipeline) runWithRetry(ctx context.Context, stage entity.ProcessingStatus, documentId uuid.UUID, run stageFunc) (events.StageEvent, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BackoffInitial
	b.MaxInterval = p.cfg.BackoffMax

	attempt := 0
	op := func() (events.StageEvent, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, p.cfg.timeoutFor(stage))
		defer cancel()

		ev, err := run(actx)
		if err == nil {
			return ev, nil
		}
		if ctx.Err() != nil {
			return ev, backoff.Permanent(context.Cause(ctx))
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperror.Transient(string(stage)+" timed out", err)
		}

		p.recordAttempt(ctx, documentId, stage, err)
		if !apperror.IsRetryable(err) || attempt >= p.cfg.MaxAttempts {
			return ev, backoff.Permanent(err)
		}
		p.log.Warn("Pipeline", "Stage attempt failed, retrying", map[string]interface{}{
			"document_id": documentId,
			"stage":       stage,
			"attempt":     attempt,
			"error":       err.Error(),
		})
		return ev, err
	}

	ev, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.cfg.MaxAttempts)),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return ev, err
}

func (p *Pipeline) recordAttempt(ctx context.Context, documentId uuid.UUID, stage entity.ProcessingStatus, cause error) {
	uow := p.repos.NewUnitOfWork(ctx)
	if err := uow.PipelineJobRepository().RecordAttempt(ctx, documentId, stage, cause.Error()); err != nil {
		p.log.Error("Pipeline", "Failed to record stage attempt", map[string]interface{}{
			"document_id": documentId,
			"stage":       stage,
			"error":       err.Error(),
		})
	}
}
