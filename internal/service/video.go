package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"server/internal/domain"
	"server/internal/genai"
	"server/internal/history"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/retry"
	"server/internal/storage"
)

// Video generation modes.
const (
	VideoModeText2Vid  = "text2vid"
	VideoModeImg2Vid   = "img2vid"
	VideoModeFirstLast = "first_last"
	VideoModeExtend    = "extend"
)

// VideoBackend is the slice of the API client the video orchestrator needs.
type VideoBackend interface {
	GenerateVideos(ctx context.Context, prompt string, image *genai.Blob, source *genai.VideoRef, cfg genai.VideoConfig) (*genai.Operation, error)
	PollOperation(ctx context.Context, op *genai.Operation) (*genai.Operation, error)
	DownloadVideo(ctx context.Context, ref genai.VideoRef) ([]byte, error)
}

// VideoRequest carries the parameters of one video generation submission.
type VideoRequest struct {
	Prompt          string
	Mode            string
	AspectRatio     string
	Resolution      string
	DurationSeconds string
	FirstFrame      *genai.Blob
	LastFrame       *genai.Blob
}

// VideoOptions bundles the dependencies and tunables of the video service.
// InitTimeout bounds every individual backend call: the operation start, each
// poll, and the artifact download.
type VideoOptions struct {
	Backend      VideoBackend
	Jobs         *jobs.Registry
	Files        *storage.FileStore
	History      *history.Store
	Logger       infra.Logger
	InitTimeout  time.Duration
	PollInterval time.Duration
	PollBudget   time.Duration
	Retry        retry.Config
}

// VideoService orchestrates long-running video generation. Completed jobs
// keep the backend's artifact reference in a side table keyed by job id so a
// later extension request can feed the video back in; the table is pruned in
// lockstep with registry eviction.
type VideoService struct {
	backend VideoBackend
	jobs    *jobs.Registry
	files   *storage.FileStore
	history *history.Store
	logger  infra.Logger

	initTimeout  time.Duration
	pollInterval time.Duration
	pollBudget   time.Duration
	retryCfg     retry.Config
	sleep        func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	handles map[string]genai.VideoRef
}

// NewVideoService wires a video orchestrator and hooks the handle table onto
// the registry's eviction path.
func NewVideoService(opts VideoOptions) *VideoService {
	retryCfg := opts.Retry
	if retryCfg.Attempts == 0 {
		retryCfg = retry.DefaultConfig
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	pollBudget := opts.PollBudget
	if pollBudget <= 0 {
		pollBudget = 10 * time.Minute
	}
	initTimeout := opts.InitTimeout
	if initTimeout <= 0 {
		initTimeout = time.Minute
	}

	s := &VideoService{
		backend:      opts.Backend,
		jobs:         opts.Jobs,
		files:        opts.Files,
		history:      opts.History,
		logger:       opts.Logger,
		initTimeout:  initTimeout,
		pollInterval: pollInterval,
		pollBudget:   pollBudget,
		retryCfg:     retryCfg,
		sleep:        sleepCtx,
		handles:      make(map[string]genai.VideoRef),
	}
	opts.Jobs.OnEvict(func(jobID string) {
		s.mu.Lock()
		delete(s.handles, jobID)
		s.mu.Unlock()
	})
	return s
}

// Generate registers a pending job and starts the generation workflow in a
// detached goroutine.
func (s *VideoService) Generate(req VideoRequest) domain.Job {
	if req.Mode == "" {
		req.Mode = VideoModeText2Vid
	}
	job := s.jobs.Create(jobs.Params{
		Type:        domain.JobTypeVideo,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
		Mode:        req.Mode,
	})
	s.logger.Info().Str("job_id", job.ID).Str("mode", req.Mode).Msg("video: job created")

	go s.run(job.ID, req, nil, "video")
	return job
}

// Extend starts a continuation of a previously completed video. The source
// job must still hold an artifact reference; an evicted or unknown one is a
// client-visible error. Extensions always render at 720p.
func (s *VideoService) Extend(sourceJobID, prompt string) (domain.Job, error) {
	s.mu.Lock()
	source, ok := s.handles[sourceJobID]
	s.mu.Unlock()
	if !ok {
		return domain.Job{}, domain.ErrSourceVideoExpired
	}

	job := s.jobs.Create(jobs.Params{
		Type:       domain.JobTypeVideo,
		Prompt:     prompt,
		Resolution: "720p",
		Mode:       VideoModeExtend,
	})
	s.logger.Info().Str("job_id", job.ID).Str("source_job_id", sourceJobID).Msg("video: extension job created")

	req := VideoRequest{Prompt: prompt, Mode: VideoModeExtend, Resolution: "720p"}
	go s.run(job.ID, req, &source, "video_extended")
	return job, nil
}

// Status returns the current snapshot of a job.
func (s *VideoService) Status(jobID string) (domain.Job, error) {
	job, ok := s.jobs.Get(jobID)
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *VideoService) run(jobID string, req VideoRequest, source *genai.VideoRef, filePrefix string) {
	ctx := context.Background()

	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.attempt(ctx, jobID, req, source, filePrefix)
	})
	if err != nil {
		s.jobs.Fail(jobID, err.Error())
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("video: job failed")
		return
	}
	s.jobs.Complete(jobID)
	s.logger.Info().Str("job_id", jobID).Msg("video: job completed")
}

func (s *VideoService) attempt(ctx context.Context, jobID string, req VideoRequest, source *genai.VideoRef, filePrefix string) error {
	s.jobs.Start(jobID)

	cfg := genai.VideoConfig{
		AspectRatio:     req.AspectRatio,
		Resolution:      req.Resolution,
		DurationSeconds: req.DurationSeconds,
	}
	var image *genai.Blob
	switch req.Mode {
	case VideoModeImg2Vid:
		image = req.FirstFrame
	case VideoModeFirstLast:
		image = req.FirstFrame
		cfg.LastFrame = req.LastFrame
	}
	s.jobs.SetProgress(jobID, 20)

	startCtx, cancel := context.WithTimeout(ctx, s.initTimeout)
	op, err := s.backend.GenerateVideos(startCtx, req.Prompt, image, source, cfg)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return retry.Permanent(errors.New("video initialization timed out"))
		}
		return err
	}
	s.jobs.SetProgress(jobID, 30)

	started := time.Now()
	polls := 0
	for !op.Done {
		if time.Since(started) > s.pollBudget {
			return retry.Permanent(fmt.Errorf("video generation timed out"))
		}
		polls++
		s.jobs.SetProgress(jobID, minProgress(30+polls*5, 90))

		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return retry.Permanent(err)
		}
		pollCtx, cancel := context.WithTimeout(ctx, s.initTimeout)
		op, err = s.backend.PollOperation(pollCtx, op)
		cancel()
		if err != nil {
			return err
		}
	}

	if op.ErrMessage != "" {
		return retry.Permanent(errors.New(op.ErrMessage))
	}
	if len(op.Videos) == 0 {
		return retry.Permanent(domain.ErrNoArtifacts)
	}
	s.jobs.SetProgress(jobID, 95)

	dlCtx, cancel := context.WithTimeout(ctx, s.initTimeout)
	data, err := s.backend.DownloadVideo(dlCtx, op.Videos[0])
	cancel()
	if err != nil {
		return err
	}
	filename, err := s.files.Write(storage.Filename(filePrefix, "mp4"), data)
	if err != nil {
		return retry.Permanent(err)
	}
	s.jobs.AppendResult(jobID, filename)

	s.mu.Lock()
	s.handles[jobID] = op.Videos[0]
	s.mu.Unlock()

	params := map[string]any{
		"mode":         req.Mode,
		"aspect_ratio": req.AspectRatio,
		"resolution":   req.Resolution,
		"job_id":       jobID,
	}
	if req.DurationSeconds != "" {
		params["duration_seconds"] = req.DurationSeconds
	}
	if _, err := s.history.Append(domain.RecordTypeVideo, req.Prompt, filename, params); err != nil {
		s.logger.Warn().Err(err).Str("filename", filename).Msg("video: history append failed")
	}
	return nil
}

func minProgress(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
