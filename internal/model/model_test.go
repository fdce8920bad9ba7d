package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupRecipients(t *testing.T) {
	in := []Recipient{
		{Name: "Ana", Email: "ana@example.edu"},
		{Name: "Bo", Email: "bo@example.edu"},
		{Name: "Ana (admin)", Email: " ANA@example.edu "},
		{Name: "No mail"},
	}

	out := DedupRecipients(in)

	require.Len(t, out, 2)
	assert.Equal(t, "Ana", out[0].Name)
	assert.Equal(t, "Bo", out[1].Name)
}

func TestSeasonQuery_Normalize(t *testing.T) {
	q := SeasonQuery{Search: "   ", CurrentParam: "false"}
	q.Normalize()

	assert.Equal(t, 1, q.Page)
	assert.Equal(t, "number", q.Sort)
	assert.Equal(t, SortDesc, q.Order)
	assert.Empty(t, q.Search)
	require.NotNil(t, q.Current)
	assert.False(t, *q.Current)
	assert.Equal(t, 0, q.Offset())

	q.Page = 3
	assert.Equal(t, 2*SeasonPageSize, q.Offset())
}

func TestSeasonQuery_Matches(t *testing.T) {
	yes := true
	q := SeasonQuery{Current: &yes, Search: "spring"}

	assert.True(t, q.Matches(Season{Title: "Spring 2026", Current: true}))
	assert.False(t, q.Matches(Season{Title: "Spring 2025", Current: false}))
	assert.False(t, q.Matches(Season{Title: "Autumn", Current: true}))
}

func TestCreateSeasonPayload_Validate(t *testing.T) {
	assert.NoError(t, (&CreateSeasonPayload{Number: 4, Title: "A"}).Validate())
	assert.Error(t, (&CreateSeasonPayload{Title: "A"}).Validate())
	assert.Error(t, (&CreateSeasonPayload{Number: 4}).Validate())
}

func TestTaskState_Terminal(t *testing.T) {
	assert.False(t, TaskPending.Terminal())
	assert.False(t, TaskStarted.Terminal())
	assert.True(t, TaskSuccess.Terminal())
	assert.True(t, TaskFailure.Terminal())
	assert.True(t, TaskIgnored.Terminal())
}

func TestNewPaginatedResponse(t *testing.T) {
	resp := NewPaginatedResponse[Season](nil, 1, SeasonPageSize, 41)

	assert.NotNil(t, resp.Data)
	assert.Equal(t, 3, resp.TotalPages)
}
