package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

type optimizeRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
}

type promptResponse struct {
	Prompt string `json:"prompt"`
}

func (a *App) PromptOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}
	out, err := a.Dispatcher.OptimizePrompt(r.Context(), req.Text, req.UserID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, promptResponse{Prompt: out})
}

type adaptRequest struct {
	Prompt     string `json:"prompt"`
	Refinement string `json:"refinement"`
	UserID     string `json:"user_id"`
}

func (a *App) PromptAdapt(w http.ResponseWriter, r *http.Request) {
	var req adaptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" || strings.TrimSpace(req.Refinement) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt and refinement are required")
		return
	}
	out, err := a.Dispatcher.AdaptPrompt(r.Context(), req.Prompt, req.Refinement, req.UserID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, promptResponse{Prompt: out})
}
