// Package service contains the generation orchestrators: the background
// workflows that drive a job from submission through the external API to a
// terminal state, persisting artifacts and appending history along the way.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/genai"
	"server/internal/history"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/retry"
	"server/internal/session"
	"server/internal/storage"
)

// Conversation is one multi-turn image chat. Sessions store these as opaque
// handles; edits send follow-up turns through them.
type Conversation interface {
	Send(ctx context.Context, parts []genai.Part) (*genai.Reply, error)
}

// ChatStarter opens image conversations against the backend model.
type ChatStarter interface {
	StartChat(cfg genai.GenerationConfig) Conversation
}

// NewChatStarter adapts the API client to the ChatStarter interface.
func NewChatStarter(client *genai.Client) ChatStarter {
	return chatStarter{client: client}
}

type chatStarter struct{ client *genai.Client }

func (s chatStarter) StartChat(cfg genai.GenerationConfig) Conversation {
	return s.client.StartChat(cfg)
}

// ImageRequest carries the parameters of one image generation submission.
type ImageRequest struct {
	Prompt          string
	AspectRatio     string
	Resolution      string
	Count           int
	UseGoogleSearch bool
	ReferenceImage  *genai.Blob
}

// ImageOptions bundles the dependencies and tunables of the image service.
type ImageOptions struct {
	Backend         ChatStarter
	Jobs            *jobs.Registry
	Sessions        *session.Table[Conversation]
	Files           *storage.FileStore
	History         *history.Store
	Logger          infra.Logger
	GenerateTimeout time.Duration
	Retry           retry.Config
	Tier            string
}

// ImageService orchestrates asynchronous image generation and synchronous
// multi-turn edits. Each generation opens a fresh conversation whose handle
// outlives the job, so the caller can keep editing the result.
type ImageService struct {
	backend  ChatStarter
	jobs     *jobs.Registry
	sessions *session.Table[Conversation]
	files    *storage.FileStore
	history  *history.Store
	logger   infra.Logger

	generateTimeout time.Duration
	retryCfg        retry.Config
	tier            string
}

// NewImageService wires an image orchestrator.
func NewImageService(opts ImageOptions) *ImageService {
	retryCfg := opts.Retry
	if retryCfg.Attempts == 0 {
		retryCfg = retry.DefaultConfig
	}
	timeout := opts.GenerateTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &ImageService{
		backend:         opts.Backend,
		jobs:            opts.Jobs,
		sessions:        opts.Sessions,
		files:           opts.Files,
		history:         opts.History,
		logger:          opts.Logger,
		generateTimeout: timeout,
		retryCfg:        retryCfg,
		tier:            opts.Tier,
	}
}

// Generate registers a pending job and kicks off the orchestration in a
// detached goroutine. The returned snapshot carries the job id the client
// polls with.
func (s *ImageService) Generate(req ImageRequest) domain.Job {
	if req.Count < 1 {
		req.Count = 1
	}
	job := s.jobs.Create(jobs.Params{
		Type:        domain.JobTypeImage,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
		Count:       req.Count,
	})
	s.logger.Info().Str("job_id", job.ID).Int("count", req.Count).Msg("image: job created")

	go s.run(job.ID, req)
	return job
}

// Status returns the current snapshot of a job.
func (s *ImageService) Status(jobID string) (domain.Job, error) {
	job, ok := s.jobs.Get(jobID)
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, nil
}

// run drives one generation job to a terminal state. The conversation is
// opened once; on transient failure the retried attempt resumes on the same
// session from whatever artifacts earlier attempts already produced. Timeouts
// and empty responses are permanent.
func (s *ImageService) run(jobID string, req ImageRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.generateTimeout)
	defer cancel()

	s.jobs.Start(jobID)
	chat := s.backend.StartChat(genai.GenerationConfig{
		AspectRatio:     req.AspectRatio,
		Resolution:      req.Resolution,
		UseGoogleSearch: req.UseGoogleSearch,
	})
	sessionID := uuid.NewString()
	s.sessions.Put(sessionID, chat)
	s.jobs.SetSession(jobID, sessionID)
	s.jobs.SetProgress(jobID, 20)

	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.attempt(ctx, jobID, chat, req)
	})
	if err != nil {
		s.jobs.Fail(jobID, s.failureMessage(err, req))
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("image: job failed")
		return
	}
	s.jobs.Complete(jobID)
	s.logger.Info().Str("job_id", jobID).Msg("image: job completed")
}

func (s *ImageService) attempt(ctx context.Context, jobID string, chat Conversation, req ImageRequest) error {
	job, ok := s.jobs.Get(jobID)
	if !ok {
		return retry.Permanent(domain.ErrJobNotFound)
	}
	produced := len(job.Results)

	for i := produced; i < req.Count; i++ {
		parts := []genai.Part{{Text: req.Prompt}}
		if i == 0 {
			if req.ReferenceImage != nil {
				parts = append(parts, genai.Part{Inline: req.ReferenceImage})
			}
		} else {
			parts = []genai.Part{{Text: "Generate another similar image: " + req.Prompt}}
		}

		reply, err := chat.Send(ctx, parts)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return retry.Permanent(fmt.Errorf("image generation timed out"))
			}
			return err
		}

		for _, img := range reply.Images {
			filename, err := s.files.Write(storage.Filename("image", "png"), img.Data)
			if err != nil {
				return retry.Permanent(err)
			}
			s.jobs.AppendResult(jobID, filename)
			s.appendHistory(jobID, req, filename, false)
			produced++
		}
		s.jobs.SetProgress(jobID, 20+(i+1)*70/req.Count)
	}

	if produced == 0 {
		return retry.Permanent(domain.ErrNoArtifacts)
	}
	return nil
}

func (s *ImageService) failureMessage(err error, req ImageRequest) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "image generation timed out"
	}
	if errors.Is(err, domain.ErrNoArtifacts) && req.UseGoogleSearch {
		return domain.ErrNoArtifacts.Error() + "; try again without google search"
	}
	return err.Error()
}

// Edit sends a follow-up turn on an existing conversation and returns the
// filenames of the edited images. It runs synchronously; an expired or
// unknown session is a client error, never a fresh conversation.
func (s *ImageService) Edit(ctx context.Context, sessionID, prompt, aspectRatio, resolution string) ([]string, error) {
	chat, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	var filenames []string
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		reply, err := chat.Send(ctx, []genai.Part{{Text: prompt}})
		if err != nil {
			return err
		}
		for _, img := range reply.Images {
			filename, werr := s.files.Write(storage.Filename("image", "png"), img.Data)
			if werr != nil {
				return retry.Permanent(werr)
			}
			filenames = append(filenames, filename)
		}
		if len(filenames) == 0 {
			return retry.Permanent(domain.ErrNoArtifacts)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sessions.Touch(sessionID)
	for _, filename := range filenames {
		s.appendHistory("", ImageRequest{Prompt: prompt, AspectRatio: aspectRatio, Resolution: resolution}, filename, true)
	}
	s.logger.Info().Str("session_id", sessionID).Int("images", len(filenames)).Msg("image: edit completed")
	return filenames, nil
}

// CloseSession drops a conversation and reports whether it existed.
func (s *ImageService) CloseSession(sessionID string) bool {
	closed := s.sessions.Close(sessionID)
	if closed {
		s.logger.Info().Str("session_id", sessionID).Msg("image: session closed")
	}
	return closed
}

// appendHistory records a produced artifact. Ledger failures never fail the
// job; the file is already on disk.
func (s *ImageService) appendHistory(jobID string, req ImageRequest, filename string, isEdit bool) {
	params := map[string]any{
		"aspect_ratio": req.AspectRatio,
		"resolution":   req.Resolution,
		"tier":         s.tier,
	}
	if jobID != "" {
		params["job_id"] = jobID
	}
	if isEdit {
		params["is_edit"] = true
	}
	if _, err := s.history.Append(domain.RecordTypeImage, req.Prompt, filename, params); err != nil {
		s.logger.Warn().Err(err).Str("filename", filename).Msg("image: history append failed")
	}
}
