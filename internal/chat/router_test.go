package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"genrelay/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newRouter(backend string, transport http.RoundTripper) *Router {
	return NewRouter(Options{
		APIKey:        "key",
		Model:         "gpt-4o-mini",
		Temperature:   0.7,
		MaxTokens:     256,
		SystemMessage: "You are a concise assistant.",
		Backend:       func() string { return backend },
		HTTPClient:    &http.Client{Transport: transport},
	})
}

func TestSendChatCompletionsPrependsSystemMessage(t *testing.T) {
	var captured []byte
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		captured, _ = io.ReadAll(req.Body)
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"4"}}]}`), nil
	})

	router := newRouter("completions", transport)
	got, err := router.SendChat(context.Background(), []Message{{Role: RoleUser, Content: "what is 2+2?"}})
	if err != nil {
		t.Fatalf("send chat: %v", err)
	}
	if got != "4" {
		t.Fatalf("got %q, want %q", got, "4")
	}

	var payload struct {
		MaxTokens int `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(captured, &payload); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if len(payload.Messages) != 2 || payload.Messages[0].Role != "system" {
		t.Fatalf("system message not prepended: %+v", payload.Messages)
	}
	if payload.MaxTokens != 256 {
		t.Fatalf("max_tokens = %d, want 256", payload.MaxTokens)
	}
}

func TestSendChatCompletionsEmptyChoices(t *testing.T) {
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"choices":[]}`), nil
	})
	router := newRouter("completions", transport)
	if _, err := router.SendChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}); !errors.Is(err, domain.ErrNoResponseContent) {
		t.Fatalf("err = %v, want ErrNoResponseContent", err)
	}
}

func TestSendChatResponsesPrefersOutputText(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/responses" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"output_text":"hello there","output":[]}`), nil
	})
	router := newRouter("responses", transport)
	got, err := router.SendChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("send chat: %v", err)
	}
	if got != "hello there" {
		t.Fatalf("got %q", got)
	}
}

func TestSendChatResponsesFallsBackToOutputItems(t *testing.T) {
	body := `{"output":[
		{"type":"reasoning","content":[]},
		{"type":"message","content":[{"type":"refusal","text":""},{"type":"output_text","text":"from items"}]}
	]}`
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, body), nil
	})
	router := newRouter("responses", transport)
	got, err := router.SendChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("send chat: %v", err)
	}
	if got != "from items" {
		t.Fatalf("got %q", got)
	}
}

func TestSendChatResponsesNoText(t *testing.T) {
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"output":[{"type":"message","content":[]}]}`), nil
	})
	router := newRouter("responses", transport)
	if _, err := router.SendChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}); !errors.Is(err, domain.ErrNoResponseContent) {
		t.Fatalf("err = %v, want ErrNoResponseContent", err)
	}
}

func TestSendChatResponsesUpstreamError(t *testing.T) {
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`), nil
	})
	router := newRouter("responses", transport)
	_, err := router.SendChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	var provErr *domain.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if provErr.StatusCode != http.StatusTooManyRequests || provErr.Message != "rate limited" {
		t.Fatalf("unexpected provider error: %+v", provErr)
	}
}

func TestSendChatBackendReadPerCall(t *testing.T) {
	var paths []string
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		paths = append(paths, req.URL.Path)
		if req.URL.Path == "/v1/responses" {
			return jsonResponse(http.StatusOK, `{"output_text":"r"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"c"}}]}`), nil
	})

	backend := "completions"
	router := NewRouter(Options{
		APIKey:     "key",
		Model:      "gpt-4o-mini",
		MaxTokens:  64,
		Backend:    func() string { return backend },
		HTTPClient: &http.Client{Transport: transport},
	})

	history := []Message{{Role: RoleUser, Content: "hi"}}
	if _, err := router.SendChat(context.Background(), history); err != nil {
		t.Fatalf("first send: %v", err)
	}
	backend = "responses"
	if _, err := router.SendChat(context.Background(), history); err != nil {
		t.Fatalf("second send: %v", err)
	}
	want := []string{"/v1/chat/completions", "/v1/responses"}
	for i, p := range want {
		if paths[i] != p {
			t.Fatalf("call %d hit %s, want %s", i, paths[i], p)
		}
	}
}

func TestSessionRegistrySerializesAppends(t *testing.T) {
	registry := NewSessionRegistry()
	session := registry.Activate("channel-1")

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				session.Append(Message{Role: RoleUser, Content: "m"})
			}
		}()
	}
	wg.Wait()

	if got := session.Len(); got != writers*perWriter {
		t.Fatalf("history length = %d, want %d", got, writers*perWriter)
	}
}

func TestConverseSerializesWholeTurns(t *testing.T) {
	registry := NewSessionRegistry()
	session := registry.Activate("channel-1")

	firstEntered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	send := func(_ context.Context, history []Message) (string, error) {
		calls++
		if calls == 1 {
			close(firstEntered)
			<-release // slow first upstream reply
		}
		return "reply-to:" + history[len(history)-1].Content, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := session.Converse(context.Background(), Message{Role: RoleUser, Content: "first"}, send); err != nil {
			t.Errorf("first turn: %v", err)
		}
	}()
	<-firstEntered

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := session.Converse(context.Background(), Message{Role: RoleUser, Content: "second"}, send); err != nil {
			t.Errorf("second turn: %v", err)
		}
	}()

	// The second turn must not touch the history while the first upstream
	// call is still in flight.
	time.Sleep(20 * time.Millisecond)
	if got := session.Len(); got != 1 {
		t.Fatalf("history length mid-turn = %d, want 1", got)
	}

	close(release)
	wg.Wait()

	want := []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply-to:first"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "reply-to:second"},
	}
	got := session.History()
	if len(got) != len(want) {
		t.Fatalf("history = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSessionRegistryLifecycle(t *testing.T) {
	registry := NewSessionRegistry()
	first := registry.Activate("c")
	first.Append(Message{Role: RoleUser, Content: "hello"})

	// Re-activating keeps the existing history.
	if again := registry.Activate("c"); again != first {
		t.Fatal("re-activation replaced the session")
	}
	if registry.Lookup("c") == nil {
		t.Fatal("lookup missed active session")
	}

	registry.Deactivate("c")
	if registry.Lookup("c") != nil {
		t.Fatal("session survived deactivation")
	}
	if fresh := registry.Activate("c"); fresh.Len() != 0 {
		t.Fatal("history survived deactivation")
	}
}
