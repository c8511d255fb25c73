package providers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"genrelay/internal/domain"
)

func TestStabilityBinaryResponse(t *testing.T) {
	transport := newCaptureTransport()
	transport.setBinary("/v2beta/stable-image/generate/core", []byte{0x89, 'P', 'N', 'G'})

	stability := NewStability("key", "default negative", &http.Client{Transport: transport})
	out, err := stability.Generate(context.Background(), Request{
		Model:  "stable-image-core",
		Prompt: "a lighthouse at dusk",
		Size:   "16:9",
		Count:  1,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(out) != 1 || !bytes.Equal(out[0], []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("unexpected buffers: %v", out)
	}
	body := string(transport.lastBody)
	for _, want := range []string{"a lighthouse at dusk", "default negative", "16:9"} {
		if !bytes.Contains([]byte(body), []byte(want)) {
			t.Fatalf("multipart body missing %q", want)
		}
	}
}

func TestStabilityUltraEndpoint(t *testing.T) {
	transport := newCaptureTransport()
	transport.setBinary("/v2beta/stable-image/generate/ultra", []byte{1})
	stability := NewStability("key", "", &http.Client{Transport: transport})
	if _, err := stability.Generate(context.Background(), Request{Model: "stable-image-ultra", Prompt: "x", Size: "1:1"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if transport.callCount("/v2beta/stable-image/generate/ultra") != 1 {
		t.Fatalf("ultra endpoint not used")
	}
}

func TestStabilityBestEffortPartialBatch(t *testing.T) {
	// Two of three calls succeed; the adapter drops the failure silently.
	var mu sync.Mutex
	calls := 0
	flaky := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			return jsonResponse(http.StatusInternalServerError, `{"errors":["backend exploded"]}`), nil
		}
		return binaryResponse([]byte{byte(n)}), nil
	})

	stability := NewStability("key", "", &http.Client{Transport: flaky})
	out, err := stability.Generate(context.Background(), Request{
		Model:  "stable-image-core",
		Prompt: "x",
		Size:   "1:1",
		Count:  3,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d survivors, want 2", len(out))
	}
}

func TestStabilityUpscale(t *testing.T) {
	transport := newCaptureTransport()
	transport.setBinary("/v2beta/stable-image/upscale/fast", []byte{0xAA})
	stability := NewStability("key", "", &http.Client{Transport: transport})
	out, err := stability.Upscale(context.Background(), []byte{0x01}, "stability-fast-upscale")
	if err != nil {
		t.Fatalf("upscale: %v", err)
	}
	if !bytes.Equal(out, []byte{0xAA}) {
		t.Fatalf("unexpected upscale output: %v", out)
	}
}

func TestStabilityBalance(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON("/v1/user/balance", http.StatusOK, `{"credits":42.5}`)
	stability := NewStability("key", "", &http.Client{Transport: transport})
	credits, err := stability.RemainingBalance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if credits != 42.5 {
		t.Fatalf("credits = %v, want 42.5", credits)
	}
}

func TestStabilityErrorCarriesStatus(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON("/v2beta/stable-image/generate/core", http.StatusForbidden, `{"errors":["invalid api key"]}`)
	stability := NewStability("bad", "", &http.Client{Transport: transport})
	_, err := stability.Generate(context.Background(), Request{Model: "stable-image-core", Prompt: "x", Size: "1:1"})
	var pErr *domain.ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if pErr.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", pErr.StatusCode)
	}
}
