package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"genrelay/internal/chat"
)

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Chat appends the inbound message to the conversation (when one is named)
// and routes the full history through the configured backend. Stateless calls
// just send the single message.
func (a *App) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "message is required")
		return
	}

	userMsg := chat.Message{Role: chat.RoleUser, Content: req.Message}

	var reply string
	var err error
	if req.ConversationID != "" {
		session := a.Sessions.Lookup(req.ConversationID)
		if session == nil {
			a.error(w, http.StatusNotFound, "not_found", "conversation is not active")
			return
		}
		// The whole turn runs under the conversation's processing lock so
		// concurrent messages cannot interleave the history.
		reply, err = session.Converse(r.Context(), userMsg, a.ChatRouter.SendChat)
	} else {
		reply, err = a.ChatRouter.SendChat(r.Context(), []chat.Message{userMsg})
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, chatResponse{Reply: reply})
}

type conversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (a *App) ConversationActivate(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ConversationID) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "conversation_id is required")
		return
	}
	a.Sessions.Activate(req.ConversationID)
	a.json(w, http.StatusOK, map[string]string{"status": "active"})
}

func (a *App) ConversationDeactivate(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ConversationID) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "conversation_id is required")
		return
	}
	a.Sessions.Deactivate(req.ConversationID)
	a.json(w, http.StatusOK, map[string]string{"status": "inactive"})
}
