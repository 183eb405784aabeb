package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Laellekoenig/tables/internal/domain"
	"github.com/Laellekoenig/tables/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, events <-chan ProgressEvent, timeout time.Duration) []ProgressEvent {
	t.Helper()
	var out []ProgressEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("Timed out waiting for progress events, got %d so far", len(out))
		}
	}
}

func TestWatchEmitsTerminalAndCloses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.service.CreateAndExecute(ctx, testUser, env.project.ID, nil, "step", nil)
	require.NoError(t, err)
	require.Equal(t, domain.TransformationStatusCompleted, created.Status)

	progress := NewProgressService(env.transformations, 10*time.Millisecond, logger.NewDefault())
	events := collectEvents(t, progress.Watch(ctx, created.ID, env.project.ID), 2*time.Second)

	// Already terminal: one status snapshot, then done, then close.
	require.Len(t, events, 2)
	assert.Equal(t, ProgressEventStatus, events[0].Type)
	assert.Equal(t, domain.TransformationStatusCompleted, events[0].Status)
	assert.Equal(t, "Completed", events[0].Phase)

	// The done event carries the full row so consumers can read the result
	// without a follow-up request.
	done := events[1]
	assert.Equal(t, ProgressEventDone, done.Type)
	require.NotNil(t, done.Transformation)
	assert.Equal(t, created.ID, done.Transformation.ID)
	assert.True(t, done.Transformation.HasCode())
	require.NotNil(t, done.Transformation.OutputCsv)
	assert.Equal(t, *created.OutputCsv, *done.Transformation.OutputCsv)
}

func TestWatchDoneCarriesErrorMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.executor.fn = func(inputCsv, script string) (string, error) {
		return "", errors.New("Python script failed:\nboom")
	}

	created, err := env.service.CreateAndExecute(ctx, testUser, env.project.ID, nil, "step", nil)
	require.NoError(t, err)
	require.Equal(t, domain.TransformationStatusError, created.Status)

	progress := NewProgressService(env.transformations, 10*time.Millisecond, logger.NewDefault())
	events := collectEvents(t, progress.Watch(ctx, created.ID, env.project.ID), 2*time.Second)

	require.Len(t, events, 2)
	done := events[1]
	assert.Equal(t, ProgressEventDone, done.Type)
	assert.Contains(t, done.ErrorMessage, "Python script failed")
	require.NotNil(t, done.Transformation)
	require.NotNil(t, done.Transformation.ErrorMessage)
	assert.Contains(t, *done.Transformation.ErrorMessage, "Python script failed")
}

func TestWatchDeduplicatesUnchangedPolls(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.service.Create(ctx, testUser, env.project.ID, nil, "step")
	require.NoError(t, err)

	progress := NewProgressService(env.transformations, 10*time.Millisecond, logger.NewDefault())
	watchCtx, cancel := context.WithCancel(ctx)
	events := progress.Watch(watchCtx, created.ID, env.project.ID)

	first := <-events
	assert.Equal(t, ProgressEventStatus, first.Type)
	assert.Equal(t, "Generating transformation code", first.Phase)
	assert.False(t, first.HasCode)

	// Several unchanged polls pass without further events.
	select {
	case ev := <-events:
		t.Fatalf("Unexpected event for unchanged state: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	// Persisting code flips the signature and the phase.
	require.NoError(t, env.transformations.UpdateCode(ctx, created.ID, "import pandas as pd"))

	second := <-events
	assert.Equal(t, ProgressEventStatus, second.Type)
	assert.Equal(t, "Awaiting approval", second.Phase)
	assert.True(t, second.HasCode)

	cancel()
	for range events {
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.service.Create(ctx, testUser, env.project.ID, nil, "step")
	require.NoError(t, err)

	progress := NewProgressService(env.transformations, 10*time.Millisecond, logger.NewDefault())
	watchCtx, cancel := context.WithCancel(ctx)
	events := progress.Watch(watchCtx, created.ID, env.project.ID)

	<-events
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			// Drain anything buffered before the close.
			for range events {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop after cancellation")
	}
}

func TestWatchEmitsNothingAfterCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.service.Create(ctx, testUser, env.project.ID, nil, "step")
	require.NoError(t, err)

	progress := NewProgressService(env.transformations, time.Millisecond, logger.NewDefault())

	// Repeated cancel/drain cycles: a cancelled watch must end silently,
	// never with a trailing error event from its own aborted poll.
	for i := 0; i < 50; i++ {
		watchCtx, cancel := context.WithCancel(ctx)
		events := progress.Watch(watchCtx, created.ID, env.project.ID)

		<-events
		cancel()

		for ev := range events {
			t.Fatalf("Unexpected event after cancellation: %+v", ev)
		}
	}
}

func TestWatchReportsMissingRow(t *testing.T) {
	env := newTestEnv(t)

	progress := NewProgressService(env.transformations, 10*time.Millisecond, logger.NewDefault())
	events := collectEvents(t, progress.Watch(context.Background(), "missing", env.project.ID), 2*time.Second)

	require.Len(t, events, 1)
	assert.Equal(t, ProgressEventError, events[0].Type)
	assert.NotEmpty(t, events[0].ErrorMessage)
}
