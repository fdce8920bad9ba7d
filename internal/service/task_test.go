package service

import (
	"context"
	"testing"
	"time"

	"github.com/deppfellow/academia/internal/errs"
	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskService(t *testing.T) {
	logger := zerolog.Nop()
	results := testutil.NewResultStore()
	svc := NewTaskService(results, &logger)
	ctx := context.Background()

	group := uuid.New()
	rec := &model.TaskRecord{ID: uuid.New(), Name: "mail:notify", Tag: model.TagSendMail, GroupID: &group}
	created, err := results.Create(ctx, rec)
	require.NoError(t, err)
	require.True(t, created)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, got.State)

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, errs.IsNotFound(err))

	recs, err := svc.ListByGroup(ctx, group)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = svc.ListByGroup(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestTaskService_ListStale(t *testing.T) {
	logger := zerolog.Nop()
	results := testutil.NewResultStore()
	svc := NewTaskService(results, &logger)
	ctx := context.Background()

	submit := func() uuid.UUID {
		rec := &model.TaskRecord{ID: uuid.New(), Name: "form:close-window", Tag: model.TagManageForm}
		_, err := results.Create(ctx, rec)
		require.NoError(t, err)
		return rec.ID
	}

	lost := submit()
	claimed, err := results.Claim(ctx, lost)
	require.NoError(t, err)
	require.True(t, claimed)
	results.Backdate(lost, time.Now().Add(-time.Hour))

	running := submit()
	_, err = results.Claim(ctx, running)
	require.NoError(t, err)

	finished := submit()
	_, err = results.Claim(ctx, finished)
	require.NoError(t, err)
	results.Backdate(finished, time.Now().Add(-time.Hour))
	require.NoError(t, results.Complete(ctx, finished, model.TaskSuccess, nil))

	submit() // still pending

	recs, err := svc.ListStale(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, lost, recs[0].ID)
	assert.Equal(t, model.TaskStarted, recs[0].State)

	recs, err = svc.ListStale(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
