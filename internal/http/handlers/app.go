// Package handlers exposes the HTTP surface of the generation backend.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"server/internal/history"
	"server/internal/infra"
	"server/internal/service"
	"server/internal/storage"
)

type App struct {
	Logger  infra.Logger
	Config  *infra.Config
	Images  *service.ImageService
	Videos  *service.VideoService
	Prompts *service.PromptService
	History *history.Store

	ImageFiles   *storage.FileStore
	VideoFiles   *storage.FileStore
	ImageLibrary *history.Library
	VideoLibrary *history.Library

	validate *validator.Validate
}

func NewApp(cfg *infra.Config, logger infra.Logger) *App {
	return &App{
		Logger:   logger,
		Config:   cfg,
		validate: validator.New(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, map[string]any{
		"success": false,
		"error":   kind,
		"detail":  msg,
	})
}

// internalError logs the failure under a fresh error id and returns only that
// id to the client.
func (a *App) internalError(w http.ResponseWriter, context string, err error) {
	errorID := uuid.NewString()
	a.Logger.Error().Err(err).Str("error_id", errorID).Msg(context)
	a.error(w, http.StatusInternalServerError, "internal", "internal server error (error_id="+errorID+")")
}

// decode parses the JSON body into v and runs struct validation.
func (a *App) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return a.validate.Struct(v)
}
