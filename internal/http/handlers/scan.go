package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/providers/gemini"
)

const eventTypeScan = "SCAN"

type scanRequest struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

type scanResponse struct {
	ID                 string   `json:"id,omitempty"`
	Identified         bool     `json:"identified"`
	MedicationName     string   `json:"medication_name"`
	Confidence         float64  `json:"confidence"`
	Description        string   `json:"description,omitempty"`
	DosageInstructions string   `json:"dosage_instructions,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
	CreditsCharged     int      `json:"credits_charged"`
	CreditsRemaining   int      `json:"credits_remaining"`
}

// Scan identifies a medication from a photo. The fixed scan price is checked
// up front and only charged when the model actually identifies something; a
// failed identification costs nothing.
func (a *App) Scan(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	isTrial := a.currentIsTrial(r)

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	imageData, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil || len(imageData) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "image_base64 must be a non-empty base64 string")
		return
	}

	if err := a.Credits.EnsureSufficient(r.Context(), userID, credits.ScanCost, isTrial, 0); err != nil {
		if a.ledgerFailure(w, r, err) {
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to check credits")
		return
	}

	result, err := a.Analyzer.AnalyzeImage(r.Context(), gemini.ScanRequest{
		ImageData: imageData,
		MimeType:  req.MimeType,
		Locale:    middleware.LocaleFromContext(r.Context()),
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("scan analysis failed")
		a.recordUsage(r, eventTypeScan, false, 0, 0)
		a.error(w, http.StatusBadGateway, "provider_error", "medication analysis failed")
		return
	}

	resp := scanResponse{
		Identified:         identified(result),
		MedicationName:     result.MedicationName,
		Confidence:         result.Confidence,
		Description:        result.Description,
		DosageInstructions: result.DosageInstructions,
		Warnings:           result.Warnings,
	}

	if !resp.Identified {
		a.Logger.Info().
			Str("user_id", userID).
			Str("medication", result.MedicationName).
			Float64("confidence", result.Confidence).
			Msg("identification failed, credits not consumed")
		a.recordUsage(r, eventTypeScan, false, result.TotalTokens, 0)
		balance, berr := a.Credits.Balance(r.Context(), userID, isTrial)
		if berr == nil {
			resp.CreditsRemaining = balance
		}
		a.json(w, http.StatusOK, resp)
		return
	}

	// The scan price is fixed; token usage is recorded for analytics only.
	remaining, err := a.Credits.Consume(r.Context(), userID, credits.ScanCost, isTrial, 0)
	if err != nil {
		// The analysis already ran; its cost is accepted as lost.
		if a.ledgerFailure(w, r, err) {
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to consume scan credits")
		a.error(w, http.StatusInternalServerError, "internal", "failed to consume credits")
		return
	}
	resp.CreditsCharged = credits.ScanCost
	resp.CreditsRemaining = remaining

	analysisJSON, _ := json.Marshal(result)
	rec := &domain.ScanRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		MedicationName: result.MedicationName,
		Confidence:     result.Confidence,
		AnalysisJSON:   analysisJSON,
	}
	if err := a.Scans.Create(r.Context(), rec); err != nil {
		// History is best effort; the scan result still goes back to the user.
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to save scan record")
	} else {
		resp.ID = rec.ID
	}

	a.recordUsage(r, eventTypeScan, true, result.TotalTokens, credits.ScanCost)
	a.json(w, http.StatusOK, resp)
}

func identified(result *gemini.ScanResult) bool {
	name := strings.TrimSpace(result.MedicationName)
	if name == "" || strings.EqualFold(name, "unknown") {
		return false
	}
	return result.Confidence > 0
}
