package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"genrelay/internal/domain"
)

type stubTransport struct {
	status   int
	payload  any
	calls    int
	lastBody []byte
}

func (t *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	if req.Body != nil {
		t.lastBody, _ = io.ReadAll(req.Body)
	}
	raw, _ := json.Marshal(t.payload)
	return &http.Response{
		StatusCode: t.status,
		Body:       io.NopCloser(bytes.NewReader(raw)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func newTestGate(t *stubTransport, enabled bool, filter *WordFilter) *Gate {
	client := NewClassifierClient(ClassifierOptions{
		APIKey:     "test",
		HTTPClient: &http.Client{Transport: t},
	})
	if filter == nil {
		filter = NewWordFilter(false, nil, nil)
	}
	return NewGate(enabled, client, filter)
}

func TestModerateRequiresContent(t *testing.T) {
	transport := &stubTransport{status: http.StatusOK, payload: moderationResponse{}}
	gate := newTestGate(transport, true, nil)
	if _, err := gate.Moderate(context.Background(), Input{}); !errors.Is(err, domain.ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
	if transport.calls != 0 {
		t.Fatalf("classifier called %d times for empty input", transport.calls)
	}
}

func TestModerateRejectsInvalidImageType(t *testing.T) {
	transport := &stubTransport{status: http.StatusOK, payload: moderationResponse{}}
	gate := newTestGate(transport, true, nil)
	if _, err := gate.Moderate(context.Background(), Input{Image: 12345}); !errors.Is(err, domain.ErrInvalidImageType) {
		t.Fatalf("err = %v, want ErrInvalidImageType", err)
	}
}

func TestModerateDisabledSkipsClassifier(t *testing.T) {
	transport := &stubTransport{status: http.StatusOK, payload: moderationResponse{}}
	filter := NewWordFilter(true, []string{"grenade"}, nil)
	gate := newTestGate(transport, false, filter)

	verdict, err := gate.Moderate(context.Background(), Input{Text: "clean text with a grenade"})
	if err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if verdict.Flagged {
		t.Fatalf("disabled gate flagged content")
	}
	if verdict.CleanedText != "clean text with a *******" {
		t.Fatalf("cleaned text = %q", verdict.CleanedText)
	}
	if transport.calls != 0 {
		t.Fatalf("classifier called %d times while disabled", transport.calls)
	}
}

func TestModerateAggregatesCategories(t *testing.T) {
	payload := map[string]any{
		"results": []any{
			map[string]any{
				"flagged":    true,
				"categories": map[string]bool{"violence": true, "harassment": true, "self-harm": false},
			},
		},
	}
	transport := &stubTransport{status: http.StatusOK, payload: payload}
	gate := newTestGate(transport, true, nil)

	verdict, err := gate.Moderate(context.Background(), Input{Text: "something vile"})
	if err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if !verdict.Flagged {
		t.Fatalf("expected flagged verdict")
	}
	want := []string{"harassment", "violence"}
	if !reflect.DeepEqual(verdict.Categories, want) {
		t.Fatalf("categories = %v, want %v", verdict.Categories, want)
	}
}

func TestModerateBatchesTextAndImage(t *testing.T) {
	transport := &stubTransport{status: http.StatusOK, payload: map[string]any{"results": []any{}}}
	gate := newTestGate(transport, true, nil)

	if _, err := gate.Moderate(context.Background(), Input{
		Text:  "caption",
		Image: "https://example.com/picture.png",
	}); err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if transport.calls != 1 {
		t.Fatalf("expected one batched call, got %d", transport.calls)
	}
	var req moderationRequest
	if err := json.Unmarshal(transport.lastBody, &req); err != nil {
		t.Fatalf("decode captured body: %v", err)
	}
	if len(req.Input) != 2 {
		t.Fatalf("batched %d items, want 2", len(req.Input))
	}
	if req.Model != defaultModerationModel {
		t.Fatalf("model = %q, want %q", req.Model, defaultModerationModel)
	}
}

func TestModeratePropagatesClassifierError(t *testing.T) {
	transport := &stubTransport{status: http.StatusUnauthorized, payload: map[string]any{
		"error": map[string]any{"message": "bad key"},
	}}
	gate := newTestGate(transport, true, nil)

	_, err := gate.Moderate(context.Background(), Input{Text: "hello"})
	var pErr *domain.ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if pErr.StatusCode != http.StatusUnauthorized || pErr.Message != "bad key" {
		t.Fatalf("provider error = %+v", pErr)
	}
}

func TestModerateAcceptsRawImageBytes(t *testing.T) {
	transport := &stubTransport{status: http.StatusOK, payload: map[string]any{"results": []any{}}}
	gate := newTestGate(transport, true, nil)
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	if _, err := gate.Moderate(context.Background(), Input{Image: png}); err != nil {
		t.Fatalf("moderate raw bytes: %v", err)
	}
	var req moderationRequest
	if err := json.Unmarshal(transport.lastBody, &req); err != nil {
		t.Fatalf("decode captured body: %v", err)
	}
	if len(req.Input) != 1 || req.Input[0].ImageURL == nil {
		t.Fatalf("expected one image item, got %+v", req.Input)
	}
	if !strings.HasPrefix(req.Input[0].ImageURL.URL, "data:image/png;base64,") {
		t.Fatalf("image url = %q, want sniffed png data url", req.Input[0].ImageURL.URL)
	}
}

func TestModerateSniffsImageMIME(t *testing.T) {
	transport := &stubTransport{status: http.StatusOK, payload: map[string]any{"results": []any{}}}
	gate := newTestGate(transport, true, nil)
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}
	if _, err := gate.Moderate(context.Background(), Input{Image: jpeg}); err != nil {
		t.Fatalf("moderate raw bytes: %v", err)
	}
	var req moderationRequest
	if err := json.Unmarshal(transport.lastBody, &req); err != nil {
		t.Fatalf("decode captured body: %v", err)
	}
	if !strings.HasPrefix(req.Input[0].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Fatalf("image url = %q, want sniffed jpeg data url", req.Input[0].ImageURL.URL)
	}
}
