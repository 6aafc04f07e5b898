// Package scheduler holds one-shot announcement jobs until their fire time
// and hands each to a delivery callback exactly once.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/herald-bot/internal/metrics"
	"github.com/xaenox/herald-bot/internal/models"
	"go.uber.org/zap"
)

var (
	ErrNotStarted = errors.New("scheduler not started")
	ErrStopped    = errors.New("scheduler stopped")
)

// DeliverFunc is invoked once per job at or after its fire time.
type DeliverFunc func(ctx context.Context, job models.ScheduledJob)

type Scheduler struct {
	mu      sync.Mutex
	ctx     context.Context
	stopped bool
	pending map[string]*entry
	running sync.WaitGroup

	deliver DeliverFunc
	now     func() time.Time
	logger  *zap.Logger
}

type entry struct {
	job   models.ScheduledJob
	timer *time.Timer
}

func New(deliver DeliverFunc, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		pending: make(map[string]*entry),
		deliver: deliver,
		now:     time.Now,
		logger:  logger,
	}
}

// Start enables scheduling. ctx is passed to every delivery.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx
	s.logger.Info("Scheduler started")
}

// Schedule registers a job firing at fireAt. A fire time in the past fires
// immediately.
func (s *Scheduler) Schedule(payload string, fireAt time.Time, createdBy int64) (models.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return models.ScheduledJob{}, ErrNotStarted
	}
	if s.stopped {
		return models.ScheduledJob{}, ErrStopped
	}

	now := s.now()
	job := models.ScheduledJob{
		ID:        uuid.New().String(),
		Payload:   payload,
		FireAt:    fireAt,
		CreatedBy: createdBy,
		CreatedAt: now,
	}

	delay := fireAt.Sub(now)
	if delay < 0 {
		delay = 0
	}

	e := &entry{job: job}
	// fire blocks on s.mu until the entry is registered.
	e.timer = time.AfterFunc(delay, func() { s.fire(job.ID) })
	s.pending[job.ID] = e

	metrics.JobsScheduled.Inc()
	s.logger.Info("Job scheduled",
		zap.String("job_id", job.ID),
		zap.Time("fire_at", fireAt),
		zap.Int64("created_by", createdBy))

	return job, nil
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	e, ok := s.pending[id]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	ctx := s.ctx
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job delivery panicked",
				zap.String("job_id", id),
				zap.Any("panic", r))
		}
	}()

	metrics.JobsFired.Inc()
	s.logger.Info("Job firing", zap.String("job_id", id))
	s.deliver(ctx, e.job)
}

// Pending returns the jobs that have not fired yet, earliest first.
func (s *Scheduler) Pending() []models.ScheduledJob {
	s.mu.Lock()
	jobs := make([]models.ScheduledJob, 0, len(s.pending))
	for _, e := range s.pending {
		jobs = append(jobs, e.job)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].FireAt.Before(jobs[j].FireAt) })
	return jobs
}

// Stop drops every pending job and waits for running deliveries to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	dropped := len(s.pending)
	for id, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.running.Wait()
	s.logger.Info("Scheduler stopped", zap.Int("dropped_jobs", dropped))
}
