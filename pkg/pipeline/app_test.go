package pipeline_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/newsbot/pkg/pipeline"
)

func TestAppProcessAndAsk(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var seen []pipeline.State
	app := pipeline.NewApp(h.pipeline, func(s pipeline.State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	_, err := app.Process(context.Background(), []string{"http://example.com/a", "", ""})
	require.NoError(t, err)

	state := app.Snapshot()
	assert.False(t, state.Busy)
	assert.NoError(t, state.Err)
	assert.Equal(t, pipeline.StagePersisted, state.Stage)
	assert.Contains(t, state.Status, "URLs processed successfully!")
	assert.Contains(t, state.Status, "2 chunks from 1 of 1 URLs")

	_, err = app.Ask(context.Background(), "What is in paragraph one?")
	require.NoError(t, err)

	state = app.Snapshot()
	assert.Equal(t, pipeline.StageAnswered, state.Stage)
	assert.Equal(t, "It says paragraph one.", state.Answer)
	assert.Equal(t, []string{"http://example.com/a"}, state.Sources)

	// snapshots are copies
	state.Sources[0] = "changed"
	assert.Equal(t, []string{"http://example.com/a"}, app.Snapshot().Sources)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.True(t, seen[0].Busy)
	assert.False(t, seen[len(seen)-1].Busy)
}

func TestAppRecordsErrors(t *testing.T) {
	h := newHarness(t)
	app := pipeline.NewApp(h.pipeline, nil)

	_, err := app.Ask(context.Background(), "before processing?")
	assert.ErrorIs(t, err, pipeline.ErrIndexNotFound)

	state := app.Snapshot()
	assert.ErrorIs(t, state.Err, pipeline.ErrIndexNotFound)
	assert.Equal(t, pipeline.StageIdle, state.Stage)
	assert.False(t, state.Busy)
}

func TestAppRejectsConcurrentTasks(t *testing.T) {
	h := newHarness(t)
	h.fetcher.started = make(chan struct{})
	h.fetcher.release = make(chan struct{})
	app := pipeline.NewApp(h.pipeline, nil)

	done := make(chan error, 1)
	go func() {
		_, err := app.Process(context.Background(), []string{"http://example.com/a"})
		done <- err
	}()
	<-h.fetcher.started

	assert.True(t, app.Snapshot().Busy)
	_, err := app.Ask(context.Background(), "paragraph one?")
	assert.ErrorIs(t, err, pipeline.ErrBusy)
	_, err = app.Process(context.Background(), []string{"http://example.com/b"})
	assert.ErrorIs(t, err, pipeline.ErrBusy)

	close(h.fetcher.release)
	require.NoError(t, <-done)
	assert.False(t, app.Snapshot().Busy)

	_, err = app.Ask(context.Background(), "paragraph one?")
	assert.NoError(t, err)
}

func TestAppRecoversFromPanickingDependency(t *testing.T) {
	h := newHarness(t)
	h.fetcher.panics = true
	app := pipeline.NewApp(h.pipeline, nil)

	_, err := app.Process(context.Background(), []string{"http://example.com/a"})
	require.ErrorIs(t, err, pipeline.ErrPanic)
	assert.Contains(t, err.Error(), "fetcher blew up")

	state := app.Snapshot()
	assert.False(t, state.Busy)
	assert.ErrorIs(t, state.Err, pipeline.ErrPanic)
	assert.Equal(t, pipeline.StageIdle, state.Stage)

	h.fetcher.panics = false
	_, err = app.Process(context.Background(), []string{"http://example.com/a"})
	require.NoError(t, err)
	assert.False(t, app.Snapshot().Busy)
}
