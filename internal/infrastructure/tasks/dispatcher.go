package tasks

import (
	"context"
)

// InsightsHandler generates insights for one document.
type InsightsHandler interface {
	GenerateForDocument(ctx context.Context, documentID string) error
}

// LocalDispatcher runs insights generation in-process on the runner.
type LocalDispatcher struct {
	runner  *Runner
	handler InsightsHandler
}

func NewLocalDispatcher(runner *Runner, handler InsightsHandler) *LocalDispatcher {
	return &LocalDispatcher{runner: runner, handler: handler}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, documentID string) error {
	return d.runner.Go(ctx, "insights:"+documentID, func(taskCtx context.Context) error {
		return d.handler.GenerateForDocument(taskCtx, documentID)
	})
}
