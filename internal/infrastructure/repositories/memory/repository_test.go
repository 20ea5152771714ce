package memory

import (
	"context"
	"testing"
	"time"

	"livecast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStreamRepository()

	stream := &domain.Stream{
		ID:          "s1",
		Name:        "morning show",
		Broadcaster: "b1",
		Active:      true,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, repo.Create(ctx, stream))
	assert.Error(t, repo.Create(ctx, stream), "duplicate create must fail")

	got, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "morning show", got.Name)

	got.Active = false
	require.NoError(t, repo.Update(ctx, got))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, repo.Delete(ctx, "s1"))
	assert.ErrorIs(t, repo.Delete(ctx, "s1"), domain.ErrStreamNotFound)
	_, err = repo.GetByID(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestViewerRepositoryFindByStream(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryViewerRepository()

	require.NoError(t, repo.Add(ctx, &domain.Viewer{ID: "v1", StreamID: "s1"}))
	require.NoError(t, repo.Add(ctx, &domain.Viewer{ID: "v2", StreamID: "s1"}))
	require.NoError(t, repo.Add(ctx, &domain.Viewer{ID: "v3", StreamID: "s2"}))

	viewers, err := repo.FindByStream(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, viewers, 2)

	require.NoError(t, repo.Remove(ctx, "v1"))
	assert.ErrorIs(t, repo.Remove(ctx, "v1"), domain.ErrViewerNotFound)

	viewers, err = repo.FindByStream(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, viewers, 1)
}

func TestViewerRepositoryTouch(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryViewerRepository()

	joined := time.Now().Add(-time.Minute)
	require.NoError(t, repo.Add(ctx, &domain.Viewer{ID: "v1", StreamID: "s1", LastSeen: joined}))

	require.NoError(t, repo.Touch(ctx, "v1"))
	got, err := repo.GetByID(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, got.LastSeen.After(joined))

	assert.ErrorIs(t, repo.Touch(ctx, "missing"), domain.ErrViewerNotFound)
}
