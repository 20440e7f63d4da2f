package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobTypeBlacklistPurge JobType = "blacklist_purge"
)

const (
	DefaultQueue = "default"
	RetryQueue   = "retry_queue"
	DeadQueue    = "dead_queue"
	// ScheduledSet holds jobs that are not due yet, scored by ProcessAt in
	// unix milliseconds.
	ScheduledSet = "scheduled_jobs"

	defaultMaxTries = 3
)

var ErrNoHandler = errors.New("no handler registered for job type")

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Queue     string                 `json:"queue"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	LastError string                 `json:"last_error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

type Worker struct {
	client     *redis.Client
	handlers   map[JobType]JobHandler
	queues     []string
	pollWait   time.Duration
	retryDelay time.Duration
	jobTimeout time.Duration
	logger     *slog.Logger
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	now        func() time.Time
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	Concurrency  int
	PollInterval time.Duration
	Queues       []string
	// RetryBaseDelay is doubled for every failed attempt.
	RetryBaseDelay time.Duration
	JobTimeout     time.Duration
	Logger         *slog.Logger
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	queues := config.Queues
	if len(queues) == 0 {
		queues = []string{DefaultQueue, RetryQueue}
	}
	pollWait := config.PollInterval
	if pollWait <= 0 {
		pollWait = 5 * time.Second
	}
	retryDelay := config.RetryBaseDelay
	if retryDelay <= 0 {
		retryDelay = time.Minute
	}
	jobTimeout := config.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		client:     config.RedisClient,
		handlers:   make(map[JobType]JobHandler),
		queues:     queues,
		pollWait:   pollWait,
		retryDelay: retryDelay,
		jobTimeout: jobTimeout,
		logger:     logger.With("component", "worker"),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	w.logger.Info("starting worker", "concurrency", concurrency, "queues", w.queues)

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
}

func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if _, err := w.ProcessNext(w.ctx); err != nil {
				if w.ctx.Err() != nil {
					return
				}
				w.logger.Error("error processing job", "error", err)
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// ProcessNext promotes due scheduled jobs, then waits up to the poll interval
// for one job and handles it. It reports whether a job was popped.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	if err := promoteDue(ctx, w.client, w.now()); err != nil {
		return false, err
	}

	result, err := w.client.BLPop(ctx, w.pollWait, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return true, fmt.Errorf("invalid job result")
	}

	queue := result[0]
	jobData := result[1]

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return true, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if w.now().Before(job.ProcessAt) {
		return true, scheduleJob(ctx, w.client, queue, &job)
	}

	return true, w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		job.LastError = ErrNoHandler.Error()
		if err := w.moveToDeadQueue(ctx, job); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrNoHandler, job.Type)
	}

	logger := w.logger.With("job_id", job.ID, "job_type", job.Type)
	logger.Debug("processing job")

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	if err := handler(jobCtx, job); err != nil {
		job.Attempts++
		job.LastError = err.Error()
		if job.Attempts < job.MaxTries {
			logger.Warn("job failed, retrying", "attempt", job.Attempts, "max_tries", job.MaxTries, "error", err)
			return w.retryJob(ctx, job)
		}

		logger.Error("job failed permanently", "attempts", job.Attempts, "error", err)
		return w.moveToDeadQueue(ctx, job)
	}

	logger.Info("job completed")
	return nil
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := w.retryDelay * time.Duration(1<<(job.Attempts-1))
	job.ProcessAt = w.now().Add(delay)

	return scheduleJob(ctx, w.client, RetryQueue, job)
}

// scheduleJob parks job in the scheduled set until its ProcessAt; promoteDue
// later pushes it onto queue.
func scheduleJob(ctx context.Context, client *redis.Client, queue string, job *Job) error {
	job.Queue = queue
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	member := redis.Z{Score: float64(job.ProcessAt.UnixMilli()), Member: jobData}
	if err := client.ZAdd(ctx, ScheduledSet, member).Err(); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	return nil
}

// promoteDue moves every scheduled job due at now onto its queue. ZREM decides
// which worker owns a job, so concurrent workers never push it twice.
func promoteDue(ctx context.Context, client *redis.Client, now time.Time) error {
	due, err := client.ZRangeByScore(ctx, ScheduledSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read scheduled jobs: %w", err)
	}

	for _, member := range due {
		removed, err := client.ZRem(ctx, ScheduledSet, member).Result()
		if err != nil {
			return fmt.Errorf("failed to claim scheduled job: %w", err)
		}
		if removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			return fmt.Errorf("failed to unmarshal scheduled job: %w", err)
		}
		queue := job.Queue
		if queue == "" {
			queue = DefaultQueue
		}
		if err := client.RPush(ctx, queue, member).Err(); err != nil {
			return fmt.Errorf("failed to promote job: %w", err)
		}
	}
	return nil
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        job.LastError,
		"failed_at":    w.now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(ctx, DeadQueue, deadJobData).Err()
}

type JobQueue struct {
	client *redis.Client
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}) (*Job, error) {
	return q.EnqueueAt(ctx, queue, jobType, payload, time.Now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) (*Job, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		Queue:     queue,
		Payload:   payload,
		MaxTries:  defaultMaxTries,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if processAt.After(time.Now()) {
		if err := scheduleJob(ctx, q.client, queue, job); err != nil {
			return nil, err
		}
		return job, nil
	}
	if err := q.client.RPush(ctx, queue, jobData).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}

// ScheduledSize reports how many jobs wait in the scheduled set.
func (q *JobQueue) ScheduledSize(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.ZCard(ctx, ScheduledSet).Result()
}

// Stats reports the length of each queue, and of the scheduled set, for the
// metrics endpoint.
func (q *JobQueue) Stats(queues ...string) map[string]interface{} {
	stats := make(map[string]interface{}, len(queues)+1)
	if n, err := q.ScheduledSize(context.Background()); err != nil {
		stats[ScheduledSet] = "unavailable"
	} else {
		stats[ScheduledSet] = n
	}
	for _, name := range queues {
		n, err := q.GetQueueSize(context.Background(), name)
		if err != nil {
			stats[name] = "unavailable"
			continue
		}
		stats[name] = n
	}
	return stats
}

// Schedule enqueues a job of jobType every interval until ctx is done.
func (q *JobQueue) Schedule(ctx context.Context, interval time.Duration, jobType JobType, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.Enqueue(ctx, DefaultQueue, jobType, nil); err != nil {
				logger.Warn("failed to schedule job", "job_type", jobType, "error", err)
			}
		}
	}
}
