// Package scheduler runs one polling job per pending request: a
// cancellable timer goroutine that re-validates its target on a fixed
// interval until the request reaches a terminal state. Admission is capped
// globally, with FIFO queueing for requests beyond the cap, and the whole
// set of jobs is reconstructed from the store on process start.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/fntelecomllc/dnsguard/internal/logging"
	"github.com/fntelecomllc/dnsguard/internal/mailer"
	"github.com/fntelecomllc/dnsguard/internal/models"
	"github.com/fntelecomllc/dnsguard/internal/observability"
	"github.com/fntelecomllc/dnsguard/internal/sanitize"
	"github.com/fntelecomllc/dnsguard/internal/store"
	"github.com/fntelecomllc/dnsguard/internal/validation"
)

// Validator is the subset of validation.Engine the scheduler depends on.
type Validator interface {
	Check(ctx context.Context, target string) (*models.CheckResult, error)
}

// job is one running or queued poll loop.
type job struct {
	key     string
	id      int64
	reqType models.RequestType
	running bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// Scheduler owns the process-local job map, the FIFO admission queue, and
// drives each job's periodic validation tick.
type Scheduler struct {
	store     store.RequestStore
	validator Validator
	notifier  mailer.Notifier
	logger    *logging.Logger
	metrics   *observability.Metrics

	pollInterval     time.Duration
	maxActiveJobs    int
	jobMaxAge        time.Duration
	startupJitterMax time.Duration
	resultMaxBytes   int

	mu     sync.Mutex
	jobs   map[string]*job
	queue  []*job
	closed bool
}

// Config bundles the scheduler's tunables, sourced from AppConfig.
type Config struct {
	PollInterval     time.Duration
	MaxActiveJobs    int
	JobMaxAge        time.Duration
	StartupJitterMax time.Duration
	ResultMaxBytes   int
}

func New(s store.RequestStore, v Validator, n mailer.Notifier, logger *logging.Logger, metrics *observability.Metrics, cfg Config) *Scheduler {
	return &Scheduler{
		store:            s,
		validator:        v,
		notifier:         n,
		logger:           logger,
		metrics:          metrics,
		pollInterval:     cfg.PollInterval,
		maxActiveJobs:    cfg.MaxActiveJobs,
		jobMaxAge:        cfg.JobMaxAge,
		startupJitterMax: cfg.StartupJitterMax,
		resultMaxBytes:   cfg.ResultMaxBytes,
		jobs:             make(map[string]*job),
	}
}

// ActiveCount returns the number of currently running jobs (not including
// the FIFO queue), used by the intake handler's server_busy check.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// MaxActiveJobs returns the configured admission cap.
func (s *Scheduler) MaxActiveJobs() int {
	return s.maxActiveJobs
}

// StartForRequest admits a job for row, starting it immediately if there's
// capacity or enqueueing it FIFO otherwise. A no-op if a job already
// exists for row's key.
func (s *Scheduler) StartForRequest(row *models.Request, initialDelay time.Duration) {
	key := row.Key()

	s.mu.Lock()
	if _, exists := s.jobs[key]; exists {
		s.mu.Unlock()
		return
	}
	j := &job{key: key, id: row.ID, reqType: row.Type}
	if len(s.jobs) < s.maxActiveJobs {
		s.jobs[key] = j
		s.metrics.SchedulerActiveJobs.Set(float64(len(s.jobs)))
		s.mu.Unlock()
		s.startJob(j, initialDelay)
		return
	}
	s.queue = append(s.queue, j)
	s.mu.Unlock()
}

func (s *Scheduler) startJob(j *job, initialDelay time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	go func() {
		if initialDelay > 0 {
			select {
			case <-time.After(initialDelay):
			case <-ctx.Done():
				return
			}
		}

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		s.runCheck(ctx, j)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCheck(ctx, j)
			}
		}
	}()
}

// stopJob tears down j's timer, removes it from the job map, and promotes
// the next queued job if there's room.
func (s *Scheduler) stopJob(j *job) {
	if j.cancel != nil {
		j.cancel()
	}

	s.mu.Lock()
	delete(s.jobs, j.key)
	s.metrics.SchedulerActiveJobs.Set(float64(len(s.jobs)))
	s.mu.Unlock()

	s.drainQueue()
}

func (s *Scheduler) drainQueue() {
	for {
		s.mu.Lock()
		if s.closed || len(s.queue) == 0 || len(s.jobs) >= s.maxActiveJobs {
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.jobs[next.key] = next
		s.metrics.SchedulerActiveJobs.Set(float64(len(s.jobs)))
		s.mu.Unlock()
		s.startJob(next, 0)
	}
}

// runCheck is the per-tick contract: reentrancy-guarded, conditional on
// the row still being PENDING, and responsible for stopping the job on
// any terminal outcome.
func (s *Scheduler) runCheck(ctx context.Context, j *job) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	row, err := s.store.FindByID(ctx, j.id)
	if err != nil || row == nil || row.Status != models.StatusPending {
		s.stopJob(j)
		return
	}

	now := time.Now().UTC()
	if !row.ExpiresAt.After(now) {
		reason := "Request expired"
		affected, err := s.store.ConditionalTransition(ctx, row.ID, models.StatusExpired, store.TransitionFields{FailReason: &reason})
		if err == nil && affected > 0 {
			s.notifyStatus(row, models.StatusExpired, nil)
			s.metrics.SchedulerTicksTotal.WithLabelValues("expired").Inc()
		}
		s.stopJob(j)
		return
	}

	result, checkErr := s.validator.Check(ctx, row.Target)
	nextCheckAt := now.Add(s.pollInterval)

	if checkErr != nil {
		reason := sanitize.String(checkErr.Error(), 500)
		if _, err := s.store.UpdateCheckResult(ctx, row.ID, now, nextCheckAt, nil, &reason); err != nil {
			s.logger.Error(ctx, "update check result after validation error", err, logging.Fields{"key": j.key})
		}
		s.metrics.SchedulerTicksTotal.WithLabelValues("error").Inc()
		return
	}

	payload, err := validation.BuildResultPayload(result, s.resultMaxBytes)
	if err != nil {
		s.logger.Error(ctx, "marshal check result", err, logging.Fields{"key": j.key})
		return
	}

	affected, err := s.store.UpdateCheckResult(ctx, row.ID, now, nextCheckAt, payload, nil)
	if err != nil {
		s.logger.Error(ctx, "persist check result", err, logging.Fields{"key": j.key})
		return
	}
	if affected == 0 {
		s.stopJob(j)
		return
	}

	if result.OK {
		affected, err := s.store.ConditionalTransition(ctx, row.ID, models.StatusActive, store.TransitionFields{ActivatedAt: &now})
		if err != nil {
			s.logger.Error(ctx, "promote to active", err, logging.Fields{"key": j.key})
		} else if affected > 0 {
			s.notifyStatus(row, models.StatusActive, result)
			if err := s.store.InsertDomainActive(ctx, row.Target); err != nil {
				s.logger.Error(ctx, "insert domain active", err, logging.Fields{"target": row.Target})
			}
			s.metrics.SchedulerTicksTotal.WithLabelValues("activated").Inc()
		}
		s.stopJob(j)
		return
	}

	s.metrics.SchedulerTicksTotal.WithLabelValues("retained_pending").Inc()
}

func (s *Scheduler) notifyStatus(row *models.Request, status models.RequestStatus, result *models.CheckResult) {
	if err := s.notifier.SendStatusChange(row.Target, row.Type, status, result); err != nil {
		s.logger.Warn(context.Background(), "status change email failed", logging.Fields{"target": row.Target, "error": err.Error()})
	}
}

// ResumeFromStore reconstructs jobs for every non-expired PENDING row at
// process start, staggering each with random jitter to avoid a thundering
// herd against the resolver.
func (s *Scheduler) ResumeFromStore(ctx context.Context) error {
	rows, err := s.store.FindPendingNotExpired(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		s.StartForRequest(row, s.jitter())
	}
	return nil
}

func (s *Scheduler) jitter() time.Duration {
	maxMs := s.startupJitterMax.Milliseconds()
	pollMs := s.pollInterval.Milliseconds() - 100
	if pollMs < maxMs {
		maxMs = pollMs
	}
	if maxMs <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(maxMs)) * time.Millisecond
}

// Shutdown cancels every running job's timer. Call during graceful
// shutdown; it does not wait for in-flight ticks to finish.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		if j.cancel != nil {
			j.cancel()
		}
	}
}
