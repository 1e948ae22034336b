package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"server/internal/domain"
	"server/internal/genai"
	"server/internal/history"
	"server/internal/jobs"
	"server/internal/retry"
	"server/internal/storage"
)

type fakeVideoBackend struct {
	mu        sync.Mutex
	generated []genai.VideoConfig
	source    *genai.VideoRef
	pollsLeft int
	finalOp   *genai.Operation
	genErr    error
	data      []byte
}

func (f *fakeVideoBackend) GenerateVideos(ctx context.Context, prompt string, image *genai.Blob, source *genai.VideoRef, cfg genai.VideoConfig) (*genai.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.genErr != nil {
		return nil, f.genErr
	}
	f.generated = append(f.generated, cfg)
	f.source = source
	return &genai.Operation{Name: "operations/op-1"}, nil
}

func (f *fakeVideoBackend) PollOperation(ctx context.Context, op *genai.Operation) (*genai.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollsLeft > 0 {
		f.pollsLeft--
		return &genai.Operation{Name: op.Name}, nil
	}
	return f.finalOp, nil
}

func (f *fakeVideoBackend) DownloadVideo(ctx context.Context, ref genai.VideoRef) ([]byte, error) {
	return f.data, nil
}

type videoFixture struct {
	svc     *VideoService
	backend *fakeVideoBackend
	jobs    *jobs.Registry
	files   *storage.FileStore
	history *history.Store
}

func newVideoFixture(t *testing.T, backend *fakeVideoBackend, pollBudget time.Duration) *videoFixture {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &videoFixture{
		backend: backend,
		jobs:    jobs.NewRegistry(15*time.Minute, 24*time.Hour, zerolog.Nop()),
		files:   files,
		history: history.NewStore(filepath.Join(t.TempDir(), "history.json"), zerolog.Nop()),
	}
	f.svc = NewVideoService(VideoOptions{
		Backend:      backend,
		Jobs:         f.jobs,
		Files:        f.files,
		History:      f.history,
		Logger:       zerolog.Nop(),
		PollInterval: time.Millisecond,
		PollBudget:   pollBudget,
		Retry:        retry.Config{Attempts: 1, Delay: time.Millisecond, Backoff: 1},
	})
	f.svc.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return f
}

func waitForVideoTerminal(t *testing.T, svc *VideoService, jobID string) domain.Job {
	t.Helper()
	var job domain.Job
	require.Eventually(t, func() bool {
		j, err := svc.Status(jobID)
		if err != nil {
			return false
		}
		job = j
		return job.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func doneOp(uri string) *genai.Operation {
	return &genai.Operation{
		Name:   "operations/op-1",
		Done:   true,
		Videos: []genai.VideoRef{{URI: uri}},
	}
}

func TestVideoGenerateCompletes(t *testing.T) {
	backend := &fakeVideoBackend{pollsLeft: 2, finalOp: doneOp("files/video-1"), data: []byte("mp4")}
	f := newVideoFixture(t, backend, time.Minute)

	job := f.svc.Generate(VideoRequest{Prompt: "waves", AspectRatio: "16:9", Resolution: "720p", DurationSeconds: "8"})
	done := waitForVideoTerminal(t, f.svc, job.ID)

	require.Equal(t, domain.JobStatusCompleted, done.Status)
	require.Equal(t, 100, done.Progress)
	require.Len(t, done.Results, 1)

	entries, err := f.files.List(".mp4")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	records, total, err := f.history.List(domain.RecordTypeVideo, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "waves", records[0].Prompt)
	require.Equal(t, "8", records[0].Params["duration_seconds"])

	// config passed through to the backend
	require.Equal(t, "16:9", backend.generated[0].AspectRatio)
	require.Equal(t, "720p", backend.generated[0].Resolution)
}

func TestVideoGenerateFailsOnOperationError(t *testing.T) {
	backend := &fakeVideoBackend{finalOp: &genai.Operation{Name: "operations/op-1", Done: true, ErrMessage: "content policy"}}
	f := newVideoFixture(t, backend, time.Minute)

	job := f.svc.Generate(VideoRequest{Prompt: "waves"})
	done := waitForVideoTerminal(t, f.svc, job.ID)

	require.Equal(t, domain.JobStatusFailed, done.Status)
	require.Contains(t, done.ErrorMessage, "content policy")
}

func TestVideoGenerateFailsOnEmptyOperation(t *testing.T) {
	backend := &fakeVideoBackend{finalOp: &genai.Operation{Name: "operations/op-1", Done: true}}
	f := newVideoFixture(t, backend, time.Minute)

	job := f.svc.Generate(VideoRequest{Prompt: "waves"})
	done := waitForVideoTerminal(t, f.svc, job.ID)

	require.Equal(t, domain.JobStatusFailed, done.Status)
	require.Contains(t, done.ErrorMessage, "no artifacts")
}

func TestVideoGenerateTimesOutOnPollBudget(t *testing.T) {
	backend := &fakeVideoBackend{pollsLeft: 1 << 30}
	f := newVideoFixture(t, backend, time.Nanosecond)

	job := f.svc.Generate(VideoRequest{Prompt: "waves"})
	done := waitForVideoTerminal(t, f.svc, job.ID)

	require.Equal(t, domain.JobStatusFailed, done.Status)
	require.Contains(t, done.ErrorMessage, "timed out")
	require.LessOrEqual(t, done.Progress, 99)
}

func TestVideoExtendUsesStoredHandle(t *testing.T) {
	backend := &fakeVideoBackend{finalOp: doneOp("files/video-1"), data: []byte("mp4")}
	f := newVideoFixture(t, backend, time.Minute)

	job := f.svc.Generate(VideoRequest{Prompt: "waves", Resolution: "720p"})
	done := waitForVideoTerminal(t, f.svc, job.ID)
	require.Equal(t, domain.JobStatusCompleted, done.Status)

	ext, err := f.svc.Extend(job.ID, "and then a sunset")
	require.NoError(t, err)
	extDone := waitForVideoTerminal(t, f.svc, ext.ID)

	require.Equal(t, domain.JobStatusCompleted, extDone.Status)
	require.Equal(t, VideoModeExtend, extDone.Mode)
	require.Contains(t, extDone.Results[0], "video_extended")

	backend.mu.Lock()
	source := backend.source
	backend.mu.Unlock()
	require.NotNil(t, source)
	require.Equal(t, "files/video-1", source.URI)
}

type stalledVideoBackend struct{}

func (stalledVideoBackend) GenerateVideos(ctx context.Context, prompt string, image *genai.Blob, source *genai.VideoRef, cfg genai.VideoConfig) (*genai.Operation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledVideoBackend) PollOperation(ctx context.Context, op *genai.Operation) (*genai.Operation, error) {
	return op, nil
}

func (stalledVideoBackend) DownloadVideo(ctx context.Context, ref genai.VideoRef) ([]byte, error) {
	return nil, nil
}

func TestVideoGenerateFailsWhenStartStalls(t *testing.T) {
	files, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	svc := NewVideoService(VideoOptions{
		Backend:      stalledVideoBackend{},
		Jobs:         jobs.NewRegistry(15*time.Minute, 24*time.Hour, zerolog.Nop()),
		Files:        files,
		History:      history.NewStore(filepath.Join(t.TempDir(), "history.json"), zerolog.Nop()),
		Logger:       zerolog.Nop(),
		InitTimeout:  10 * time.Millisecond,
		PollInterval: time.Millisecond,
		PollBudget:   time.Second,
		Retry:        retry.Config{Attempts: 1, Delay: time.Millisecond, Backoff: 1},
	})
	svc.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	job := svc.Generate(VideoRequest{Prompt: "waves"})
	done := waitForVideoTerminal(t, svc, job.ID)

	require.Equal(t, domain.JobStatusFailed, done.Status)
	require.Contains(t, done.ErrorMessage, "initialization timed out")
	require.LessOrEqual(t, done.Progress, 99)
}

func TestVideoExtendRejectsUnknownSource(t *testing.T) {
	f := newVideoFixture(t, &fakeVideoBackend{}, time.Minute)

	_, err := f.svc.Extend("nope", "more waves")
	require.ErrorIs(t, err, domain.ErrSourceVideoExpired)
}
