package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskResultRepository_CreateIsIdempotentOnID(t *testing.T) {
	pool := newTestPool(t)
	repo := repository.NewTaskResultRepository(pool)
	ctx := context.Background()

	rec := &model.TaskRecord{ID: uuid.New(), Name: "form:close-window", Tag: model.TagManageForm, Args: json.RawMessage(`{}`)}
	created, err := repo.Create(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)

	dup := *rec
	created, err = repo.Create(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestTaskResultRepository_ListStale(t *testing.T) {
	pool := newTestPool(t)
	repo := repository.NewTaskResultRepository(pool)
	ctx := context.Background()

	rec := &model.TaskRecord{ID: uuid.New(), Name: "mail:notify", Tag: model.TagSendMail, Args: json.RawMessage(`{}`)}
	_, err := repo.Create(ctx, rec)
	require.NoError(t, err)
	claimed, err := repo.Claim(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = pool.Exec(ctx, `UPDATE task_results SET started_at = now() - interval '1 hour' WHERE id = $1`, rec.ID)
	require.NoError(t, err)

	stale, err := repo.ListStale(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, rec.ID, stale[0].ID)

	require.NoError(t, repo.Complete(ctx, rec.ID, model.TaskSuccess, nil))
	stale, err = repo.ListStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, stale)
}
