// Package jobs holds the in-memory registry that tracks asynchronous
// generation jobs. Jobs live from creation until TTL-based garbage
// collection; clients never delete them directly.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
)

// Params carries the request fields denormalized onto a new job so status
// queries can echo them back without a second lookup.
type Params struct {
	Type        domain.JobType
	Prompt      string
	AspectRatio string
	Resolution  string
	Mode        string
	Count       int
}

// Registry owns the job map for one request type. All access funnels through
// the mutex; read paths hand out snapshots so callers never observe a job
// mid-update.
//
// Garbage collection is lazy: every Create and Get runs a sweep first, so
// expired jobs are reflected even without a background timer.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	maxProcessing time.Duration
	retention     time.Duration
	now           func() time.Time
	onEvict       func(jobID string)
	logger        infra.Logger
}

// NewRegistry constructs a registry. maxProcessing bounds how long a job may
// stay non-terminal before it is force-failed; retention bounds how long a
// terminal job stays queryable.
func NewRegistry(maxProcessing, retention time.Duration, logger infra.Logger) *Registry {
	return &Registry{
		jobs:          make(map[string]*domain.Job),
		maxProcessing: maxProcessing,
		retention:     retention,
		now:           time.Now,
		logger:        logger,
	}
}

// OnEvict registers a hook invoked (under the registry lock) whenever a
// terminal job is removed, so side tables keyed by job id can drop their
// entries.
func (r *Registry) OnEvict(fn func(jobID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = fn
}

// Create allocates a new pending job and returns a snapshot of it.
func (r *Registry) Create(p Params) domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	job := &domain.Job{
		ID:          uuid.NewString(),
		Type:        p.Type,
		Status:      domain.JobStatusPending,
		CreatedAt:   r.now(),
		Prompt:      p.Prompt,
		AspectRatio: p.AspectRatio,
		Resolution:  p.Resolution,
		Mode:        p.Mode,
		Count:       p.Count,
	}
	r.jobs[job.ID] = job
	return snapshot(job)
}

// Get returns a snapshot of the job's current state.
func (r *Registry) Get(id string) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return snapshot(job), true
}

// Start transitions a pending job to processing with the initial progress.
func (r *Registry) Start(id string) {
	r.mutate(id, func(job *domain.Job) {
		job.Status = domain.JobStatusProcessing
		if job.Progress < 10 {
			job.Progress = 10
		}
	})
}

// SetProgress raises the job's progress. Regressions are ignored so readers
// always observe a non-decreasing value.
func (r *Registry) SetProgress(id string, progress int) {
	r.mutate(id, func(job *domain.Job) {
		if progress > 100 {
			progress = 100
		}
		if progress > job.Progress {
			job.Progress = progress
		}
	})
}

// AppendResult records one persisted artifact. Results only ever grow, one
// artifact at a time, so concurrent status readers see partial output.
func (r *Registry) AppendResult(id, filename string) {
	r.mutate(id, func(job *domain.Job) {
		job.Results = append(job.Results, filename)
	})
}

// SetSession links the job to the conversation session created on its behalf.
func (r *Registry) SetSession(id, sessionID string) {
	r.mutate(id, func(job *domain.Job) {
		job.SessionID = sessionID
	})
}

// Complete marks the job successful. Callers must have appended at least one
// result beforehand.
func (r *Registry) Complete(id string) {
	r.mutate(id, func(job *domain.Job) {
		job.Status = domain.JobStatusCompleted
		job.Progress = 100
	})
}

// Fail marks the job failed with a human-readable message.
func (r *Registry) Fail(id, message string) {
	r.mutate(id, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = message
	})
}

// Len reports the number of resident jobs, mainly for diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// mutate applies fn to a live job. Terminal jobs are immutable: a job the
// sweep already force-failed must not be resurrected by its orchestration
// goroutine finishing late.
func (r *Registry) mutate(id string, fn func(job *domain.Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	fn(job)
}

func (r *Registry) sweepLocked() {
	now := r.now()
	for id, job := range r.jobs {
		age := now.Sub(job.CreatedAt)
		if !job.Status.Terminal() {
			if r.maxProcessing > 0 && age > r.maxProcessing {
				job.Status = domain.JobStatusFailed
				job.ErrorMessage = fmt.Sprintf("job timed out after %s", r.maxProcessing)
				if job.Progress > 99 {
					job.Progress = 99
				}
				r.logger.Warn().Str("job_id", id).Dur("age", age).Msg("jobs: force-failed stale job")
			}
			continue
		}
		if r.retention > 0 && age > r.retention {
			delete(r.jobs, id)
			if r.onEvict != nil {
				r.onEvict(id)
			}
			r.logger.Debug().Str("job_id", id).Msg("jobs: evicted expired job")
		}
	}
}

func snapshot(job *domain.Job) domain.Job {
	copied := *job
	copied.Results = append([]string(nil), job.Results...)
	return copied
}
