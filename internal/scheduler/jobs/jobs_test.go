package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	ids []string
	err error
}

func (s *stubLister) StockIDs(context.Context) ([]string, error) {
	return s.ids, s.err
}

func TestCollectJobEmptyCoverageIsNoOp(t *testing.T) {
	job := NewCollectJob(nil, &stubLister{}, zerolog.Nop())
	require.NoError(t, job.Run(context.Background()))
}

func TestCollectJobPropagatesListerError(t *testing.T) {
	job := NewCollectJob(nil, &stubLister{err: errors.New("db down")}, zerolog.Nop())
	require.Error(t, job.Run(context.Background()))
}

func TestRetrainJobEmptyCoverageIsNoOp(t *testing.T) {
	job := NewRetrainJob(nil, &stubLister{}, zerolog.Nop())
	require.NoError(t, job.Run(context.Background()))
}

func TestJobSchedulesParse(t *testing.T) {
	// Both schedules must be valid six-field cron expressions.
	for _, schedule := range []string{
		NewCollectJob(nil, nil, zerolog.Nop()).Schedule(),
		NewRetrainJob(nil, nil, zerolog.Nop()).Schedule(),
	} {
		require.Len(t, strings.Fields(schedule), 6)
	}
}
