package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imoveis-importer/models"
	"imoveis-importer/utils"
)

func waitForStatus(t *testing.T, q *Queue, id string, want Status) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = q.Get(id)
		return ok && job.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestEnqueueRunsJob(t *testing.T) {
	q := NewQueue(map[Kind]RunFunc{
		KindCrawl: func(ctx context.Context) (*models.RunSummary, error) {
			return &models.RunSummary{Created: 3}, nil
		},
	}, 4, 0, utils.NewNopLogger())
	defer q.Close()

	job, err := q.Enqueue(KindCrawl)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, KindCrawl, job.Kind)

	done := waitForStatus(t, q, job.ID, StatusSucceeded)
	require.NotNil(t, done.Summary)
	assert.Equal(t, 3, done.Summary.Created)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)
}

func TestFailedJobRecordsError(t *testing.T) {
	q := NewQueue(map[Kind]RunFunc{
		KindCrawl: func(ctx context.Context) (*models.RunSummary, error) {
			return &models.RunSummary{Fatal: "index page 1: HTTP 503"}, errors.New("index page 1: HTTP 503")
		},
	}, 4, 0, utils.NewNopLogger())
	defer q.Close()

	job, err := q.Enqueue(KindCrawl)
	require.NoError(t, err)
	done := waitForStatus(t, q, job.ID, StatusFailed)
	assert.Equal(t, "index page 1: HTTP 503", done.Error)
	assert.Equal(t, "index page 1: HTTP 503", done.Summary.Fatal)
}

func TestJobsRunOneAtATime(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	q := NewQueue(map[Kind]RunFunc{
		KindCrawl: func(ctx context.Context) (*models.RunSummary, error) {
			started <- struct{}{}
			<-release
			return &models.RunSummary{}, nil
		},
	}, 4, 0, utils.NewNopLogger())
	defer q.Close()

	first, err := q.Enqueue(KindCrawl)
	require.NoError(t, err)
	second, err := q.Enqueue(KindCrawl)
	require.NoError(t, err)

	<-started
	waitForStatus(t, q, first.ID, StatusRunning)
	got, _ := q.Get(second.ID)
	assert.Equal(t, StatusQueued, got.Status)

	close(release)
	waitForStatus(t, q, first.ID, StatusSucceeded)
	waitForStatus(t, q, second.ID, StatusSucceeded)

	list := q.List()
	require.Len(t, list, 2)
	assert.False(t, list[0].CreatedAt.Before(list[1].CreatedAt), "List is newest first")
}

func TestEnqueueRejections(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue(map[Kind]RunFunc{
		KindCrawl: func(ctx context.Context) (*models.RunSummary, error) {
			<-block
			return nil, nil
		},
	}, 1, 0, utils.NewNopLogger())
	defer q.Close()
	defer close(block)

	_, err := q.Enqueue("reindex")
	assert.ErrorIs(t, err, ErrUnknownKind)

	first, err := q.Enqueue(KindCrawl)
	require.NoError(t, err)
	waitForStatus(t, q, first.ID, StatusRunning)

	_, err = q.Enqueue(KindCrawl) // fills the single slot
	require.NoError(t, err)
	_, err = q.Enqueue(KindCrawl)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Len(t, q.List(), 2)
}

func TestCloseCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	q := NewQueue(map[Kind]RunFunc{
		KindCrawl: func(ctx context.Context) (*models.RunSummary, error) {
			close(started)
			<-ctx.Done()
			return &models.RunSummary{Cancelled: true}, ctx.Err()
		},
	}, 2, time.Hour, utils.NewNopLogger())

	job, err := q.Enqueue(KindCrawl)
	require.NoError(t, err)
	<-started
	q.Close()

	got, ok := q.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.True(t, got.Summary.Cancelled)
}
