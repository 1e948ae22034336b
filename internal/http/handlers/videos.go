package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/genai"
	"server/internal/service"
)

type videoGenerateRequest struct {
	Prompt          string `json:"prompt" validate:"required,max=2000"`
	Mode            string `json:"mode" validate:"omitempty,oneof=text2vid img2vid first_last"`
	AspectRatio     string `json:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16"`
	Resolution      string `json:"resolution" validate:"omitempty,oneof=720p 1080p 4k"`
	DurationSeconds string `json:"duration_seconds" validate:"omitempty,oneof=4 6 8"`
	FirstFrame      string `json:"first_frame"`
	LastFrame       string `json:"last_frame"`
}

type videoExtendRequest struct {
	VideoID string `json:"video_id" validate:"required"`
	Prompt  string `json:"prompt" validate:"required,max=2000"`
}

type videoResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Message string `json:"message,omitempty"`
}

type videoStatusResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	VideoURL string `json:"video_url,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	var req videoGenerateRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Mode == "" {
		req.Mode = service.VideoModeText2Vid
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "16:9"
	}
	if req.Resolution == "" {
		req.Resolution = "720p"
	}
	if req.DurationSeconds == "" {
		req.DurationSeconds = "8"
	}

	switch req.Mode {
	case service.VideoModeImg2Vid:
		if req.FirstFrame == "" {
			a.error(w, http.StatusBadRequest, "bad_request", "img2vid mode requires first_frame")
			return
		}
	case service.VideoModeFirstLast:
		if req.FirstFrame == "" {
			a.error(w, http.StatusBadRequest, "bad_request", "first_last mode requires first_frame")
			return
		}
		if req.LastFrame == "" {
			a.error(w, http.StatusBadRequest, "bad_request", "first_last mode requires last_frame")
			return
		}
	}

	// 1080p and 4k renders are fixed at 8 seconds upstream.
	if req.Resolution != "720p" {
		req.DurationSeconds = "8"
	}

	firstFrame, err := optionalImagePayload(req.FirstFrame)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid first frame")
		return
	}
	lastFrame, err := optionalImagePayload(req.LastFrame)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid last frame")
		return
	}

	job := a.Videos.Generate(service.VideoRequest{
		Prompt:          req.Prompt,
		Mode:            req.Mode,
		AspectRatio:     req.AspectRatio,
		Resolution:      req.Resolution,
		DurationSeconds: req.DurationSeconds,
		FirstFrame:      firstFrame,
		LastFrame:       lastFrame,
	})

	a.json(w, http.StatusAccepted, videoResponse{
		Success: true,
		JobID:   job.ID,
		Message: "video generation started; poll /api/video/status/{job_id}",
	})
}

func (a *App) VideosExtend(w http.ResponseWriter, r *http.Request) {
	var req videoExtendRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	job, err := a.Videos.Extend(req.VideoID, req.Prompt)
	if err != nil {
		if errors.Is(err, domain.ErrSourceVideoExpired) {
			a.error(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		a.internalError(w, "video extension failed", err)
		return
	}

	a.json(w, http.StatusAccepted, videoResponse{
		Success: true,
		JobID:   job.ID,
		Message: "video extension started; poll /api/video/status/{job_id}",
	})
}

func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Videos.Status(jobID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	resp := videoStatusResponse{
		JobID:    job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
	}
	if job.Status == domain.JobStatusCompleted && len(job.Results) > 0 {
		resp.VideoURL = "/api/video/" + job.Results[0]
	}
	if job.Status == domain.JobStatusFailed {
		resp.Message = job.ErrorMessage
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) VideoLibraryView(w http.ResponseWriter, r *http.Request) {
	query, err := libraryQueryFromRequest(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	page, err := a.VideoLibrary.Build(query)
	if err != nil {
		a.internalError(w, "video library build failed", err)
		return
	}
	a.json(w, http.StatusOK, page)
}

func (a *App) VideoFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	path, err := a.VideoFiles.Resolve(filename, ".mp4")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid filename")
		return
	}
	if _, err := os.Stat(path); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "video not found")
		return
	}
	http.ServeFile(w, r, path)
}

func optionalImagePayload(payload string) (*genai.Blob, error) {
	if payload == "" {
		return nil, nil
	}
	return decodeImagePayload(payload)
}
