package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrQueueClosed = errors.New("job queue is closed")

// LocalQueue runs jobs on a pool of goroutines in the current process.
// Failed deliveries are retried up to MaxAttempts with linear backoff.
type LocalQueue struct {
	jobs    chan *Job
	done    chan struct{}
	handler Handler

	maxAttempts int
	backoff     time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ Queue = (*LocalQueue)(nil)

type LocalOptions struct {
	Workers     int
	Buffer      int
	MaxAttempts int
	Backoff     time.Duration
}

func NewLocalQueue(handler Handler, opts LocalOptions) *LocalQueue {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}

	q := &LocalQueue{
		jobs:        make(chan *Job, opts.Buffer),
		done:        make(chan struct{}),
		handler:     handler,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
	}
	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	return q
}

func (q *LocalQueue) Enqueue(ctx context.Context, job *Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, lets the workers drain what is buffered and
// waits for them, or for ctx to expire.
func (q *LocalQueue) Close(ctx context.Context) error {
	q.closeOnce.Do(func() { close(q.done) })

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *LocalQueue) worker(n int) {
	defer q.wg.Done()
	log := slog.With("worker", n)

	for {
		select {
		case job := <-q.jobs:
			q.process(log, job)
		case <-q.done:
			for {
				select {
				case job := <-q.jobs:
					q.process(log, job)
				default:
					return
				}
			}
		}
	}
}

func (q *LocalQueue) process(log *slog.Logger, job *Job) {
	jobLog := log.With("job_id", job.Id, "kind", job.Kind)
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		err := q.handler(context.Background(), job)
		if err == nil {
			return
		}
		if errors.Is(err, ErrJobNotFound) {
			jobLog.Error("dropping job with no stored record", "error", err)
			return
		}
		jobLog.Warn("job attempt failed", "attempt", attempt, "error", err)
		if attempt < q.maxAttempts {
			time.Sleep(time.Duration(attempt) * q.backoff)
		}
	}
	jobLog.Error("job failed permanently", "attempts", q.maxAttempts)
}
