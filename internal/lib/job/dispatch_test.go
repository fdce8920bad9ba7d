package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/deppfellow/academia/internal/lib/email"
	"github.com/deppfellow/academia/internal/lib/job"
	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/testutil"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notice struct {
	Subject string
}

var noticeLeaf = job.Leaf[notice]{
	Name: job.TaskNotifyEmail,
	Tag:  model.TagSendMail,
	Args: func(r model.Recipient, p notice) any {
		return job.NotifyEmailPayload{
			To:       r.Email,
			Subject:  p.Subject,
			Template: email.TemplateSessionChanged,
			Data:     map[string]any{"RecipientName": r.Name},
		}
	},
}

func buildNotice(context.Context) (notice, error) {
	return notice{Subject: "Session changed"}, nil
}

var three = []model.Recipient{
	{Name: "Ana", Email: "ana@example.edu"},
	{Name: "Bo", Email: "bo@example.edu"},
	{Name: "Cy", Email: "cy@example.edu"},
}

func TestDispatch_LeavesAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.mailer.FailFor["bo@example.edu"] = testutil.ErrProvider

	out, err := job.Dispatch(context.Background(), f.jobs, three, buildNotice, noticeLeaf)
	require.NoError(t, err)
	require.Len(t, out.Submitted, 3)
	assert.Empty(t, out.Failed)

	// Nothing ran yet: Dispatch does not wait.
	assert.Empty(t, f.mailer.Recipients())

	f.broker.Deliver(context.Background(), f.jobs.Handler())

	recs, err := f.results.ListByGroup(context.Background(), out.GroupID)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	states := map[string]model.TaskState{}
	for _, rec := range recs {
		var args job.NotifyEmailPayload
		require.NoError(t, json.Unmarshal(rec.Args, &args))
		states[args.To] = rec.State
	}
	assert.Equal(t, model.TaskSuccess, states["ana@example.edu"])
	assert.Equal(t, model.TaskFailure, states["bo@example.edu"])
	assert.Equal(t, model.TaskSuccess, states["cy@example.edu"])
	assert.ElementsMatch(t, []string{"ana@example.edu", "cy@example.edu"}, f.mailer.Recipients())
}

func TestDispatch_SubmitFailureDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.broker.Reject = func(*asynq.Task) error {
		calls++
		if calls == 2 {
			return errors.New("redis hiccup")
		}
		return nil
	}

	out, err := job.Dispatch(context.Background(), f.jobs, three, buildNotice, noticeLeaf)
	require.NoError(t, err)
	assert.Len(t, out.Submitted, 2)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "bo@example.edu", out.Failed[0].Recipient.Email)
}

func TestDispatch_BuildErrorSubmitsNothing(t *testing.T) {
	f := newFixture(t)
	bad := errors.New("subject has no session")

	_, err := job.Dispatch(context.Background(), f.jobs, three,
		func(context.Context) (notice, error) { return notice{}, bad }, noticeLeaf)
	assert.ErrorIs(t, err, bad)
	assert.Empty(t, f.broker.Enqueued())
}

func TestDispatch_DoesNotDeduplicate(t *testing.T) {
	f := newFixture(t)
	dup := []model.Recipient{three[0], three[0]}

	out, err := job.Dispatch(context.Background(), f.jobs, dup, buildNotice, noticeLeaf)
	require.NoError(t, err)
	assert.Len(t, out.Submitted, 2)
}
