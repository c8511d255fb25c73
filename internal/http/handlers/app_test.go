package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"genrelay/internal/chat"
	"genrelay/internal/dispatch"
	"genrelay/internal/identity"
	"genrelay/internal/moderation"
	"genrelay/internal/postprocess"
	"genrelay/internal/providers"
)

type stubGenerator struct {
	buffers [][]byte
}

func (s *stubGenerator) Generate(context.Context, providers.Request) ([][]byte, error) {
	return s.buffers, nil
}

func (s *stubGenerator) Upscale(context.Context, []byte, string) ([]byte, error) {
	return s.buffers[0], nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonReply(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func testApp(t *testing.T, registry *providers.Registry) *App {
	t.Helper()
	hasher, err := identity.NewHasher("salt")
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	gate := moderation.NewGate(false, nil, moderation.NewWordFilter(true, []string{"crude"}, nil))
	dispatcher := dispatch.New(dispatch.Options{
		Registry: registry,
		Gate:     gate,
		Hasher:   hasher,
		Pipeline: postprocess.NewPipeline(postprocess.Options{
			SaveFormat: "png",
			SendFormat: "png",
			Encoder:    func(raw []byte, _ string, _ int) ([]byte, error) { return raw, nil },
		}),
		DefaultModel: "stub-model",
		Logger:       zerolog.Nop(),
	})
	chatRouter := chat.NewRouter(chat.Options{
		APIKey:    "key",
		Model:     "gpt-4o-mini",
		MaxTokens: 64,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return jsonReply(`{"choices":[{"message":{"content":"pong"}}]}`), nil
		})},
	})
	return &App{
		Dispatcher: dispatcher,
		ChatRouter: chatRouter,
		Sessions:   chat.NewSessionRegistry(),
		Models:     registry.Models(),
		Logger:     zerolog.Nop(),
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestImagesGenerateReturnsBase64(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register("stub-model", providers.Entry{Generator: &stubGenerator{buffers: [][]byte{{1, 2}, {3}}}})
	app := testApp(t, registry)

	rec := postJSON(t, app.ImagesGenerate, `{"prompt":"a fox","size":"512x512","count":2,"user_id":"u1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Images) != 2 {
		t.Fatalf("got %d images", len(resp.Images))
	}
	if raw, _ := base64.StdEncoding.DecodeString(resp.Images[0]); !bytes.Equal(raw, []byte{1, 2}) {
		t.Fatal("first image round-trip mismatch")
	}
}

func TestImagesGenerateUnsupportedModel(t *testing.T) {
	app := testApp(t, providers.NewRegistry())
	rec := postJSON(t, app.ImagesGenerate, `{"prompt":"p","model":"nope","user_id":"u"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported_model") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestImagesUpscaleRejectsBadBase64(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register("stub-model", providers.Entry{Upscaler: &stubGenerator{buffers: [][]byte{{9}}}})
	app := testApp(t, registry)

	rec := postJSON(t, app.ImagesUpscale, `{"image":"not-base64!!","model":"stub-model"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestModerateReturnsCleanedText(t *testing.T) {
	app := testApp(t, providers.NewRegistry())
	rec := postJSON(t, app.Moderate, `{"text":"a crude drawing"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Flagged     bool     `json:"flagged"`
		Categories  []string `json:"categories"`
		CleanedText string   `json:"cleaned_text"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Flagged {
		t.Fatal("disabled classifier must not flag")
	}
	if resp.Categories == nil {
		t.Fatal("categories must encode as an array, not null")
	}
	if resp.CleanedText != "a ***** drawing" {
		t.Fatalf("cleaned_text = %q", resp.CleanedText)
	}
}

func TestModerateRequiresContent(t *testing.T) {
	app := testApp(t, providers.NewRegistry())
	rec := postJSON(t, app.Moderate, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no_content") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestChatStatelessAndSessionFlow(t *testing.T) {
	app := testApp(t, providers.NewRegistry())

	rec := postJSON(t, app.Chat, `{"message":"ping"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pong") {
		t.Fatalf("stateless chat: %d %s", rec.Code, rec.Body)
	}

	// Unknown conversation is rejected before any upstream call.
	rec = postJSON(t, app.Chat, `{"conversation_id":"c1","message":"ping"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("inactive conversation: %d", rec.Code)
	}

	if rec = postJSON(t, app.ConversationActivate, `{"conversation_id":"c1"}`); rec.Code != http.StatusOK {
		t.Fatalf("activate: %d", rec.Code)
	}
	if rec = postJSON(t, app.Chat, `{"conversation_id":"c1","message":"ping"}`); rec.Code != http.StatusOK {
		t.Fatalf("session chat: %d %s", rec.Code, rec.Body)
	}
	// User turn plus assistant reply were recorded.
	if got := app.Sessions.Lookup("c1").Len(); got != 2 {
		t.Fatalf("history length = %d, want 2", got)
	}

	if rec = postJSON(t, app.ConversationDeactivate, `{"conversation_id":"c1"}`); rec.Code != http.StatusOK {
		t.Fatalf("deactivate: %d", rec.Code)
	}
	if app.Sessions.Lookup("c1") != nil {
		t.Fatal("conversation survived deactivation")
	}
}
