package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"genrelay/internal/chat"
	"genrelay/internal/dispatch"
	"genrelay/internal/domain"
)

// App bundles the handler dependencies. Handlers stay thin: decode, call the
// core, map the error taxonomy to a status, encode.
type App struct {
	Dispatcher *dispatch.Dispatcher
	ChatRouter *chat.Router
	Sessions   *chat.SessionRegistry
	Models     []string
	Logger     zerolog.Logger
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Code: errCode, Message: message})
}

// fail maps a core error onto an HTTP status without leaking internals for
// unexpected failures.
func (a *App) fail(w http.ResponseWriter, err error) {
	var provErr *domain.ProviderError
	switch {
	case errors.Is(err, domain.ErrNoContent):
		a.error(w, http.StatusBadRequest, "no_content", "text or image is required")
	case errors.Is(err, domain.ErrInvalidImageType):
		a.error(w, http.StatusBadRequest, "invalid_image", "image must be a URL or binary data")
	case errors.Is(err, domain.ErrUnknownSizeClass):
		a.error(w, http.StatusBadRequest, "invalid_size", "size must be square, tall or wide")
	case errors.Is(err, domain.ErrUnsupportedModel):
		a.error(w, http.StatusBadRequest, "unsupported_model", "model is not available")
	case errors.Is(err, domain.ErrContentFlagged):
		a.error(w, http.StatusUnprocessableEntity, "content_flagged", "content rejected by moderation")
	case errors.Is(err, domain.ErrInsufficientBalance):
		a.error(w, http.StatusPaymentRequired, "insufficient_balance", "provider balance too low")
	case errors.Is(err, domain.ErrNoResponseContent):
		a.error(w, http.StatusBadGateway, "no_response", "upstream returned no content")
	case errors.As(err, &provErr):
		a.Logger.Error().Err(err).Str("provider", provErr.Provider).Msg("provider call failed")
		a.error(w, http.StatusBadGateway, "provider_error", "upstream provider failed")
	default:
		a.Logger.Error().Err(err).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
