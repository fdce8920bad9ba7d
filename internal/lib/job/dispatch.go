package job

import (
	"context"

	"github.com/deppfellow/academia/internal/model"
	"github.com/google/uuid"
)

// Leaf describes the per-recipient task of a fan-out.
type Leaf[P any] struct {
	Name string
	Tag  model.TaskTag
	// Args builds the arguments of one leaf from the shared params.
	Args func(r model.Recipient, params P) any
}

// FanOut reports what Dispatch submitted.
type FanOut struct {
	GroupID   uuid.UUID
	Submitted []*model.TaskRecord
	Failed    []FanOutFailure
}

// FanOutFailure is a recipient whose leaf could not be submitted.
type FanOutFailure struct {
	Recipient model.Recipient
	Err       error
}

// Dispatch builds the shared params once and submits one leaf task per
// recipient under a fresh group id.
//
// Recipients are used as given; deduplication is the caller's job. Leaves
// are independent: a recipient whose submission fails is reported in
// FanOut.Failed and the rest are still submitted. Dispatch does not wait
// for any leaf to run. The only error returned is a failure to build
// params, which happens before anything is submitted.
func Dispatch[P any](ctx context.Context, s Submitter, recipients []model.Recipient, build func(ctx context.Context) (P, error), leaf Leaf[P]) (*FanOut, error) {
	params, err := build(ctx)
	if err != nil {
		return nil, err
	}

	group := uuid.New()
	out := &FanOut{
		GroupID:   group,
		Submitted: make([]*model.TaskRecord, 0, len(recipients)),
	}

	for _, r := range recipients {
		rec, err := s.Submit(ctx, TaskSpec{
			Name:    leaf.Name,
			Tag:     leaf.Tag,
			GroupID: &group,
			Args:    leaf.Args(r, params),
		})
		if err != nil {
			out.Failed = append(out.Failed, FanOutFailure{Recipient: r, Err: err})
			continue
		}
		out.Submitted = append(out.Submitted, rec)
	}

	return out, nil
}
