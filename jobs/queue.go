package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"imoveis-importer/models"
	"imoveis-importer/utils"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Kind names what a job runs.
type Kind string

const (
	KindCrawl         Kind = "crawl"
	KindMigrateImages Kind = "migrate-images"
)

var (
	ErrUnknownKind = errors.New("unknown job kind")
	ErrQueueFull   = errors.New("job queue is full")
)

// Job is a snapshot of one enqueued run.
type Job struct {
	ID         string             `json:"id"`
	Kind       Kind               `json:"kind"`
	Status     Status             `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Error      string             `json:"error,omitempty"`
	Summary    *models.RunSummary `json:"summary,omitempty"`
}

// RunFunc performs a job. It must honour ctx cancellation.
type RunFunc func(ctx context.Context) (*models.RunSummary, error)

// Queue runs jobs one at a time, in the order they were enqueued, with a minimum
// interval between job starts. Callers get a job id back immediately and poll it.
type Queue struct {
	runners map[Kind]RunFunc
	pool    *utils.WorkerPool
	logger  *utils.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewQueue creates a Queue holding at most capacity pending jobs.
func NewQueue(runners map[Kind]RunFunc, capacity int, minInterval time.Duration, logger *utils.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		runners: runners,
		pool:    utils.NewWorkerPool(1, capacity, minInterval),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*Job),
	}
}

// Enqueue schedules a job of the given kind.
func (q *Queue) Enqueue(kind Kind) (Job, error) {
	run, ok := q.runners[kind]
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	job := &Job{ID: uuid.NewString(), Kind: kind, Status: StatusQueued, CreatedAt: time.Now()}
	q.mu.Lock()
	q.jobs[job.ID] = job
	snapshot := *job
	q.mu.Unlock()

	if !q.pool.Submit(func() { q.execute(job.ID, run) }) {
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	q.logger.Info("[jobs] Enqueued %s job %s", kind, job.ID)
	return snapshot, nil
}

func (q *Queue) execute(id string, run RunFunc) {
	now := time.Now()
	q.update(id, func(j *Job) {
		j.StartedAt = &now
		if q.ctx.Err() == nil {
			j.Status = StatusRunning
		}
	})
	if err := q.ctx.Err(); err != nil {
		q.finish(id, nil, err)
		return
	}

	q.logger.Info("[jobs] Starting job %s", id)
	summary, err := run(q.ctx)
	q.finish(id, summary, err)
}

func (q *Queue) finish(id string, summary *models.RunSummary, err error) {
	now := time.Now()
	q.update(id, func(j *Job) {
		j.FinishedAt = &now
		j.Summary = summary
		switch {
		case err == nil:
			j.Status = StatusSucceeded
		case errors.Is(err, context.Canceled):
			j.Status = StatusCancelled
			j.Error = err.Error()
		default:
			j.Status = StatusFailed
			j.Error = err.Error()
		}
		q.logger.Info("[jobs] Job %s finished: %s", j.ID, j.Status)
	})
}

func (q *Queue) update(id string, fn func(*Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		fn(j)
	}
}

// Get returns a snapshot of the job with the given id.
func (q *Queue) Get(id string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns every known job, newest first.
func (q *Queue) List() []Job {
	q.mu.RLock()
	out := make([]Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, *j)
	}
	q.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Close cancels the running job, marks pending ones cancelled and waits for the worker.
func (q *Queue) Close() {
	q.cancel()
	q.pool.Shutdown()
}
