package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/history"
)

type historyResponse struct {
	Items []domain.HistoryRecord `json:"items"`
	Total int                    `json:"total"`
}

func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typeFilter := q.Get("type")
	if typeFilter != "" && typeFilter != domain.RecordTypeImage && typeFilter != domain.RecordTypeVideo {
		a.error(w, http.StatusBadRequest, "bad_request", "type must be image or video")
		return
	}
	limit := clampQueryInt(q.Get("limit"), 50, 1, 100)
	offset := clampQueryInt(q.Get("offset"), 0, 0, 1<<30)

	items, total, err := a.History.List(typeFilter, limit, offset)
	if err != nil {
		a.internalError(w, "history list failed", err)
		return
	}
	if items == nil {
		items = []domain.HistoryRecord{}
	}
	a.json(w, http.StatusOK, historyResponse{Items: items, Total: total})
}

func (a *App) HistoryDelete(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "record_id")
	deleted, err := a.History.Delete(recordID)
	if err != nil {
		a.internalError(w, "history delete failed", err)
		return
	}
	if !deleted {
		a.error(w, http.StatusNotFound, "not_found", "record not found")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "message": "record deleted"})
}

func (a *App) HistoryClear(w http.ResponseWriter, r *http.Request) {
	typeFilter := r.URL.Query().Get("type")
	if typeFilter != "" && typeFilter != domain.RecordTypeImage && typeFilter != domain.RecordTypeVideo {
		a.error(w, http.StatusBadRequest, "bad_request", "type must be image or video")
		return
	}
	deleted, err := a.History.Clear(typeFilter)
	if err != nil {
		a.internalError(w, "history clear failed", err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

// libraryQueryFromRequest parses the shared library paging parameters.
func libraryQueryFromRequest(r *http.Request) (history.LibraryQuery, error) {
	q := r.URL.Query()
	query := history.LibraryQuery{
		Days:      clampQueryInt(q.Get("days"), 7, 1, 30),
		LimitDays: clampQueryInt(q.Get("limit_days"), 7, 1, 30),
		Before:    q.Get("before"),
	}
	if before := q.Get("before"); before != "" && len(before) != len("2006-01-02") {
		return history.LibraryQuery{}, errors.New("before must be formatted YYYY-MM-DD")
	}
	return query, nil
}

func clampQueryInt(raw string, fallback, min, max int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
