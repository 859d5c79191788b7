package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// The global tracer provider defaults to no-op in tests; the observer must
// still chain contexts and close spans without panicking.
func TestOTelRunObserver_Lifecycle(t *testing.T) {
	obs := NewOTelRunObserver()

	ctx := obs.OnRunStart(context.Background(), "run-1")
	assert.NotNil(t, ctx)

	stageCtx := obs.OnStageStart(ctx, "dimension")
	obs.OnStageEnd(stageCtx, "dimension", nil)

	stageCtx = obs.OnStageStart(ctx, "cluster")
	obs.OnStageEnd(stageCtx, "cluster", errors.New("dispersion undefined"))

	obs.OnRunEnd(ctx, nil)
}
