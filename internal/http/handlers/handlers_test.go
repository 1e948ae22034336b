package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/genai"
	"server/internal/history"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/retry"
	"server/internal/service"
	"server/internal/session"
	"server/internal/storage"
)

type stubChat struct{ reply *genai.Reply }

func (s *stubChat) Send(ctx context.Context, parts []genai.Part) (*genai.Reply, error) {
	if s.reply == nil {
		return &genai.Reply{}, nil
	}
	return s.reply, nil
}

type stubStarter struct{ chat *stubChat }

func (s *stubStarter) StartChat(cfg genai.GenerationConfig) service.Conversation { return s.chat }

type stubVideoBackend struct{}

func (stubVideoBackend) GenerateVideos(ctx context.Context, prompt string, image *genai.Blob, source *genai.VideoRef, cfg genai.VideoConfig) (*genai.Operation, error) {
	return &genai.Operation{Name: "operations/op-1", Done: true, Videos: []genai.VideoRef{{URI: "files/v1"}}}, nil
}

func (stubVideoBackend) PollOperation(ctx context.Context, op *genai.Operation) (*genai.Operation, error) {
	return op, nil
}

func (stubVideoBackend) DownloadVideo(ctx context.Context, ref genai.VideoRef) ([]byte, error) {
	return []byte("mp4"), nil
}

type stubTextBackend struct{}

func (stubTextBackend) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return "an elaborate prompt", nil
}

func newTestApp(t *testing.T) (*App, chi.Router) {
	t.Helper()
	logger := zerolog.Nop()
	cfg := &infra.Config{ImageTier: "pro"}

	imageFiles, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("image store: %v", err)
	}
	videoFiles, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("video store: %v", err)
	}
	historyStore := history.NewStore(filepath.Join(t.TempDir(), "history.json"), logger)

	retryCfg := retry.Config{Attempts: 1, Delay: time.Millisecond, Backoff: 1}
	imageJobs := jobs.NewRegistry(time.Minute, time.Hour, logger)
	videoJobs := jobs.NewRegistry(time.Minute, time.Hour, logger)
	sessions := session.New[service.Conversation](time.Minute, logger)

	app := NewApp(cfg, logger)
	app.Images = service.NewImageService(service.ImageOptions{
		Backend:         &stubStarter{chat: &stubChat{reply: &genai.Reply{Images: []genai.Blob{{Data: []byte("png")}}}}},
		Jobs:            imageJobs,
		Sessions:        sessions,
		Files:           imageFiles,
		History:         historyStore,
		Logger:          logger,
		GenerateTimeout: time.Second,
		Retry:           retryCfg,
		Tier:            cfg.ImageTier,
	})
	app.Videos = service.NewVideoService(service.VideoOptions{
		Backend:      stubVideoBackend{},
		Jobs:         videoJobs,
		Files:        videoFiles,
		History:      historyStore,
		Logger:       logger,
		PollInterval: time.Millisecond,
		PollBudget:   time.Second,
		Retry:        retryCfg,
	})
	app.Prompts = service.NewPromptService(stubTextBackend{}, logger)
	app.History = historyStore
	app.ImageFiles = imageFiles
	app.VideoFiles = videoFiles
	app.ImageLibrary = history.NewLibrary(historyStore, imageFiles, domain.RecordTypeImage, "/api/image/", ".png")
	app.VideoLibrary = history.NewLibrary(historyStore, videoFiles, domain.RecordTypeVideo, "/api/video/", ".mp4")

	r := chi.NewRouter()
	r.Get("/health", app.Health)
	r.Post("/api/image/generate", app.ImagesGenerate)
	r.Get("/api/image/status/{job_id}", app.ImageStatus)
	r.Post("/api/image/edit", app.ImagesEdit)
	r.Post("/api/image/enhance-prompt", app.PromptEnhance)
	r.Get("/api/image/library", app.ImageLibraryView)
	r.Get("/api/image/{filename}", app.ImageFile)
	r.Post("/api/video/generate", app.VideosGenerate)
	r.Get("/api/history", app.HistoryList)
	r.Delete("/api/history", app.HistoryClear)
	return app, r
}

func postJSON(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, r := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestImagesGenerateAcceptsAndTracksJob(t *testing.T) {
	_, r := newTestApp(t)

	rec := postJSON(t, r, "/api/image/generate", map[string]any{"prompt": "a cat"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.JobID == "" {
		t.Fatalf("resp = %+v", resp)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/api/image/status/"+resp.JobID, nil)
		statusRec := httptest.NewRecorder()
		r.ServeHTTP(statusRec, req)
		if statusRec.Code != http.StatusOK {
			t.Fatalf("status query = %d", statusRec.Code)
		}
		var status struct {
			Status   string   `json:"status"`
			Progress int      `json:"progress"`
			Images   []string `json:"images"`
		}
		if err := json.Unmarshal(statusRec.Body.Bytes(), &status); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if status.Status == "completed" {
			if status.Progress != 100 || len(status.Images) != 1 {
				t.Fatalf("completed status = %+v", status)
			}
			break
		}
		if status.Status == "failed" {
			t.Fatalf("job failed: %s", statusRec.Body.String())
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish: %s", statusRec.Body.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestImagesGenerateRejectsMissingPrompt(t *testing.T) {
	_, r := newTestApp(t)
	rec := postJSON(t, r, "/api/image/generate", map[string]any{"count": 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestImagesEditUnknownSessionIs404(t *testing.T) {
	_, r := newTestApp(t)
	rec := postJSON(t, r, "/api/image/edit", map[string]any{"session_id": "ghost", "prompt": "bluer"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestVideosGenerateValidatesModeCompanions(t *testing.T) {
	_, r := newTestApp(t)

	rec := postJSON(t, r, "/api/video/generate", map[string]any{"prompt": "waves", "mode": "img2vid"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("img2vid without first_frame: status = %d", rec.Code)
	}

	rec = postJSON(t, r, "/api/video/generate", map[string]any{
		"prompt": "waves", "mode": "first_last", "first_frame": "aGVsbG8=",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("first_last without last_frame: status = %d", rec.Code)
	}

	rec = postJSON(t, r, "/api/video/generate", map[string]any{"prompt": "waves"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("text2vid: status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestPromptEnhance(t *testing.T) {
	_, r := newTestApp(t)
	rec := postJSON(t, r, "/api/image/enhance-prompt", map[string]any{"prompt": "cat", "target_type": "image"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "an elaborate prompt") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHistoryEndpoints(t *testing.T) {
	app, r := newTestApp(t)

	if _, err := app.History.Append(domain.RecordTypeImage, "img", "a.png", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := app.History.Append(domain.RecordTypeVideo, "vid", "a.mp4", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history?type=image", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var resp historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 || resp.Items[0].Prompt != "img" {
		t.Fatalf("resp = %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/history?type=bogus", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus type status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/history?type=video", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"deleted":1`) {
		t.Fatalf("clear body = %s", rec.Body.String())
	}
}

func TestImageFileRejectsTraversalAndMissing(t *testing.T) {
	_, r := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/image/%2e%2e%2fsecret.png", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusNotFound {
		t.Fatalf("traversal status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/image/missing.png", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing file status = %d", rec.Code)
	}
}

func TestImageLibraryEndpoint(t *testing.T) {
	app, r := newTestApp(t)

	if _, err := app.ImageFiles.Write("shot.png", []byte("png")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := app.History.Append(domain.RecordTypeImage, "a shot", "shot.png", map[string]any{"tier": "pro"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/image/library?days=7", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var page history.LibraryPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || len(page.Groups) != 1 || page.Groups[0].Items[0].Prompt != "a shot" {
		t.Fatalf("page = %+v", page)
	}
}
