package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"genrelay/internal/moderation"
)

type moderateRequest struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Image    string `json:"image,omitempty"` // base64
}

type moderateResponse struct {
	Flagged     bool     `json:"flagged"`
	Categories  []string `json:"categories"`
	CleanedText string   `json:"cleaned_text"`
}

// Moderate exposes the gate so callers can pre-screen content without paying
// for a generation.
func (a *App) Moderate(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	input := moderation.Input{Text: req.Text}
	switch {
	case req.Image != "":
		raw, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "image must be valid base64")
			return
		}
		input.Image = raw
	case req.ImageURL != "":
		input.Image = req.ImageURL
	}

	verdict, err := a.Dispatcher.Moderate(r.Context(), input)
	if err != nil {
		a.fail(w, err)
		return
	}
	categories := verdict.Categories
	if categories == nil {
		categories = []string{}
	}
	a.json(w, http.StatusOK, moderateResponse{
		Flagged:     verdict.Flagged,
		Categories:  categories,
		CleanedText: verdict.CleanedText,
	})
}
