package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

const (
	historyDefaultLimit = 20
	historyMaxLimit     = 100
)

type scanRecordResponse struct {
	ID             string          `json:"id"`
	MedicationName string          `json:"medication_name"`
	Confidence     float64         `json:"confidence"`
	Analysis       json.RawMessage `json:"analysis,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

func toScanRecordResponse(rec *domain.ScanRecord) scanRecordResponse {
	return scanRecordResponse{
		ID:             rec.ID,
		MedicationName: rec.MedicationName,
		Confidence:     rec.Confidence,
		Analysis:       json.RawMessage(rec.AnalysisJSON),
		CreatedAt:      rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HistoryList returns the caller's scan history, newest first.
func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	limit := queryInt(r, "limit", historyDefaultLimit)
	if limit <= 0 {
		limit = historyDefaultLimit
	}
	if limit > historyMaxLimit {
		limit = historyMaxLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, err := a.Scans.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to list scan history")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list history")
		return
	}

	items := make([]scanRecordResponse, 0, len(records))
	for i := range records {
		items = append(items, toScanRecordResponse(&records[i]))
	}
	a.json(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}

// HistoryGet returns one scan record, scoped to the caller.
func (a *App) HistoryGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")

	rec, err := a.Scans.GetByID(r.Context(), id, userID)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "scan record not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("scan_id", id).Msg("failed to load scan record")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load scan record")
		return
	}

	a.json(w, http.StatusOK, toScanRecordResponse(rec))
}

// HistoryDelete removes one scan record, scoped to the caller.
func (a *App) HistoryDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")

	err := a.Scans.Delete(r.Context(), id, userID)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "scan record not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("scan_id", id).Msg("failed to delete scan record")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete scan record")
		return
	}

	a.json(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
