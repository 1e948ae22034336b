package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/genai"
	"server/internal/service"
)

type imageGenerateRequest struct {
	Prompt          string `json:"prompt" validate:"required,max=2000"`
	AspectRatio     string `json:"aspect_ratio" validate:"omitempty,max=16"`
	Resolution      string `json:"resolution" validate:"omitempty,oneof=1K 2K 4K"`
	Count           int    `json:"count" validate:"gte=0,lte=10"`
	UseGoogleSearch bool   `json:"use_google_search"`
	ReferenceImage  string `json:"reference_image"`
}

type imageEditRequest struct {
	SessionID   string `json:"session_id" validate:"required"`
	Prompt      string `json:"prompt" validate:"required,max=2000"`
	AspectRatio string `json:"aspect_ratio" validate:"omitempty,max=16"`
	Resolution  string `json:"resolution" validate:"omitempty,oneof=1K 2K 4K"`
}

type imageResponse struct {
	Success   bool     `json:"success"`
	JobID     string   `json:"job_id,omitempty"`
	Images    []string `json:"images"`
	SessionID string   `json:"session_id,omitempty"`
	Message   string   `json:"message,omitempty"`
}

type imageStatusResponse struct {
	JobID       string   `json:"job_id"`
	Status      string   `json:"status"`
	Progress    int      `json:"progress"`
	Images      []string `json:"images"`
	SessionID   string   `json:"session_id,omitempty"`
	Message     string   `json:"message,omitempty"`
	Prompt      string   `json:"prompt"`
	AspectRatio string   `json:"aspect_ratio"`
}

func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	var req imageGenerateRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "3:2"
	}
	if req.Resolution == "" {
		req.Resolution = "2K"
	}
	if req.Count <= 0 {
		req.Count = 1
	}

	var reference *genai.Blob
	if req.ReferenceImage != "" {
		blob, err := decodeImagePayload(req.ReferenceImage)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid reference image")
			return
		}
		reference = blob
	}

	job := a.Images.Generate(service.ImageRequest{
		Prompt:          req.Prompt,
		AspectRatio:     req.AspectRatio,
		Resolution:      req.Resolution,
		Count:           req.Count,
		UseGoogleSearch: req.UseGoogleSearch,
		ReferenceImage:  reference,
	})

	a.json(w, http.StatusAccepted, imageResponse{
		Success: true,
		JobID:   job.ID,
		Images:  []string{},
		Message: "image generation started; poll /api/image/status/{job_id}",
	})
}

func (a *App) ImageStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Images.Status(jobID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	resp := imageStatusResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Images:      job.Results,
		SessionID:   job.SessionID,
		Prompt:      job.Prompt,
		AspectRatio: job.AspectRatio,
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	if job.Status == domain.JobStatusFailed {
		resp.Message = job.ErrorMessage
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) ImagesEdit(w http.ResponseWriter, r *http.Request) {
	var req imageEditRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "3:2"
	}
	if req.Resolution == "" {
		req.Resolution = "2K"
	}

	images, err := a.Images.Edit(r.Context(), req.SessionID, req.Prompt, req.AspectRatio, req.Resolution)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "session not found or expired")
			return
		}
		a.internalError(w, "image edit failed", err)
		return
	}

	a.json(w, http.StatusOK, imageResponse{
		Success:   true,
		Images:    images,
		SessionID: req.SessionID,
	})
}

func (a *App) ImageLibraryView(w http.ResponseWriter, r *http.Request) {
	query, err := libraryQueryFromRequest(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	query.Tier = r.URL.Query().Get("tier")

	page, err := a.ImageLibrary.Build(query)
	if err != nil {
		a.internalError(w, "image library build failed", err)
		return
	}
	a.json(w, http.StatusOK, page)
}

func (a *App) ImageFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	path, err := a.ImageFiles.Resolve(filename, ".png", ".jpg", ".jpeg", ".webp")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid filename")
		return
	}
	if _, err := os.Stat(path); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (a *App) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if !a.Images.CloseSession(sessionID) {
		a.error(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "message": "session closed"})
}

// decodeImagePayload accepts raw base64 or a data URL and returns the decoded
// bytes with their MIME type.
func decodeImagePayload(payload string) (*genai.Blob, error) {
	mime := "image/png"
	if strings.HasPrefix(payload, "data:") {
		head, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, errors.New("malformed data url")
		}
		if meta, _, ok := strings.Cut(strings.TrimPrefix(head, "data:"), ";"); ok && meta != "" {
			mime = meta
		}
		payload = rest
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	return &genai.Blob{MIMEType: mime, Data: data}, nil
}
