package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"server/internal/credits"
	"server/internal/middleware"
	"server/internal/providers/gemini"
)

const eventTypeChat = "CHAT"

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type assistantRequest struct {
	Message string     `json:"message"`
	History []chatTurn `json:"history"`
}

type assistantResponse struct {
	Reply            string `json:"reply"`
	TokensUsed       int    `json:"tokens_used"`
	CreditsCharged   int    `json:"credits_charged"`
	CreditsRemaining int    `json:"credits_remaining"`
}

// AssistantChat answers a pharmacology question. The price is derived from the
// tokens the model actually burned, with the fixed chat price as floor when
// the provider reports nothing.
func (a *App) AssistantChat(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	isTrial := a.currentIsTrial(r)

	var req assistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "message must not be empty")
		return
	}

	if err := a.Credits.EnsureSufficient(r.Context(), userID, credits.ChatCost, isTrial, 0); err != nil {
		if a.ledgerFailure(w, r, err) {
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to check credits")
		return
	}

	history := make([]gemini.ChatTurn, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, gemini.ChatTurn{Role: turn.Role, Text: turn.Content})
	}

	result, err := a.Assistant.Chat(r.Context(), gemini.ChatRequest{
		Message: req.Message,
		History: history,
		Locale:  middleware.LocaleFromContext(r.Context()),
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("assistant chat failed")
		a.recordUsage(r, eventTypeChat, false, 0, 0)
		a.error(w, http.StatusBadGateway, "provider_error", "assistant request failed")
		return
	}

	remaining, err := a.Credits.Consume(r.Context(), userID, credits.ChatCost, isTrial, result.TotalTokens)
	if err != nil {
		if a.ledgerFailure(w, r, err) {
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to consume chat credits")
		a.error(w, http.StatusInternalServerError, "internal", "failed to consume credits")
		return
	}

	charged := credits.ChatCost
	if result.TotalTokens > 0 {
		charged = credits.CostFromTokens(result.TotalTokens)
	}

	a.recordUsage(r, eventTypeChat, true, result.TotalTokens, charged)
	a.json(w, http.StatusOK, assistantResponse{
		Reply:            result.Reply,
		TokensUsed:       result.TotalTokens,
		CreditsCharged:   charged,
		CreditsRemaining: remaining,
	})
}
