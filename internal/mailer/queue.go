package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	DefaultQueueCapacity = 1000
	defaultSendTimeout   = 30 * time.Second
)

// ErrWorkerStopping is returned by Start while a stopped worker is still finishing
// its in-flight send.
var ErrWorkerStopping = errors.New("email worker is still stopping")

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	IsRunning      bool    `json:"isRunning"`
	IsStopping     bool    `json:"isStopping"`
	QueueSize      int     `json:"queueSize"`
	Capacity       int     `json:"capacity"`
	ProcessedCount int64   `json:"processedCount"`
	FailedCount    int64   `json:"failedCount"`
	DroppedCount   int64   `json:"droppedCount"`
	SuccessRate    float64 `json:"successRate"`
}

// Healthy reports whether the worker is running, not asked to stop, and the queue
// has room.
func (s Stats) Healthy() bool {
	return s.IsRunning && !s.IsStopping && s.QueueSize < s.Capacity
}

// Queue is a bounded in-memory FIFO drained by a single worker goroutine.
// Delivery is at most once: no retries, no persistence, failures are only counted.
type Queue struct {
	tasks       chan EmailTask
	sender      Sender
	metrics     *Metrics
	logger      *slog.Logger
	sendTimeout time.Duration

	// mu guards stop and done. running is true from Start until the worker
	// goroutine has returned; stopping is true from Stop until then.
	mu       sync.Mutex
	running  atomic.Bool
	stopping atomic.Bool
	stop     chan struct{}
	done     chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewQueue(sender Sender, capacity int, metrics *Metrics) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		tasks:       make(chan EmailTask, capacity),
		sender:      sender,
		metrics:     metrics,
		logger:      slog.Default().With("component", "email_queue"),
		sendTimeout: defaultSendTimeout,
	}
}

// AddEmail enqueues without blocking. It returns false, dropping the task, when
// the queue is full. Tasks are accepted while the worker is stopped.
func (q *Queue) AddEmail(task EmailTask) bool {
	select {
	case q.tasks <- task:
		q.metrics.setSize(len(q.tasks))
		q.logger.Debug("email_task_queued", "task_id", task.ID, "queue_size", len(q.tasks))
		return true
	default:
		q.dropped.Add(1)
		q.metrics.incDropped()
		q.logger.Warn("email_queue_full", "task_id", task.ID, "capacity", cap(q.tasks))
		return false
	}
}

// QueueEmail builds a task and enqueues it.
func (q *Queue) QueueEmail(to, cc, bcc []string, subject, message string, isHTML bool) (string, bool) {
	task := NewEmailTask(to, cc, bcc, subject, message, isHTML)
	return task.ID, q.AddEmail(task)
}

// Start launches the worker. Calling it while running is a no-op; while a stopped
// worker is still finishing a send it returns ErrWorkerStopping without waiting.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.done != nil {
		select {
		case <-q.done:
		default:
			if q.stopping.Load() {
				return ErrWorkerStopping
			}
			return nil
		}
	}

	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	q.stopping.Store(false)
	q.running.Store(true)

	go q.run(q.stop, q.done)
	q.logger.Info("email_worker_started", "capacity", cap(q.tasks))
	return nil
}

// Stop asks the worker to exit and waits for it. An in-flight send completes first;
// queued tasks stay in memory. Calling it while stopped is a no-op; calling it again
// after a timed-out Stop waits again.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	done := q.done
	if done == nil {
		q.mu.Unlock()
		return nil
	}
	select {
	case <-done:
		q.mu.Unlock()
		return nil
	default:
	}
	if !q.stopping.Load() {
		q.stopping.Store(true)
		close(q.stop)
	}
	q.mu.Unlock()

	select {
	case <-done:
		q.logger.Info("email_worker_stopped", "queue_size", len(q.tasks))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for email worker: %w", ctx.Err())
	}
}

func (q *Queue) IsRunning() bool {
	return q.running.Load()
}

func (q *Queue) Stats() Stats {
	processed := q.processed.Load()
	failed := q.failed.Load()

	var rate float64
	if total := processed + failed; total > 0 {
		rate = float64(processed) / float64(total) * 100
	}

	return Stats{
		IsRunning:      q.IsRunning(),
		IsStopping:     q.stopping.Load() && q.IsRunning(),
		QueueSize:      len(q.tasks),
		Capacity:       cap(q.tasks),
		ProcessedCount: processed,
		FailedCount:    failed,
		DroppedCount:   q.dropped.Load(),
		SuccessRate:    rate,
	}
}

func (q *Queue) run(stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		q.running.Store(false)
		close(done)
	}()

	for {
		// stop wins over a ready task
		select {
		case <-stop:
			return
		default:
		}

		select {
		case <-stop:
			return
		case task := <-q.tasks:
			q.metrics.setSize(len(q.tasks))
			q.process(task)
		}
	}
}

func (q *Queue) process(task EmailTask) {
	// detached from Stop so an in-flight send is never cut short
	ctx, cancel := context.WithTimeout(context.Background(), q.sendTimeout)
	defer cancel()

	start := time.Now()
	err := q.send(ctx, task)
	logger := q.logger.With("task_id", task.ID, "recipients", len(task.Recipients()), "duration_ms", time.Since(start).Milliseconds())

	if err != nil {
		q.failed.Add(1)
		q.metrics.incFailed()
		logger.Error("email_task_failed", "error", err)

		hub := sentry.CurrentHub().Clone()
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("component", "email_queue")
			scope.SetTag("task_id", task.ID)
			hub.CaptureException(err)
		})
		return
	}

	q.processed.Add(1)
	q.metrics.incProcessed()
	logger.Info("email_task_sent")
}

func (q *Queue) send(ctx context.Context, task EmailTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return q.sender.Send(ctx, task)
}
