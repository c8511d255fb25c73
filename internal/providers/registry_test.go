package providers

import (
	"strings"
	"testing"
)

func TestVerifyDimensionCoverage(t *testing.T) {
	r := NewRegistry()
	r.Register("dall-e-3", Entry{Generator: &OpenAI{}})
	r.Register("stability-fast-upscale", Entry{Upscaler: &Stability{}})
	if err := verifyDimensionCoverage(r); err != nil {
		t.Fatalf("mapped models rejected: %v", err)
	}

	r.Register("mystery-model", Entry{Generator: &OpenAI{}})
	err := verifyDimensionCoverage(r)
	if err == nil {
		t.Fatal("generator without a dimension mapping passed verification")
	}
	if !strings.Contains(err.Error(), "mystery-model") {
		t.Fatalf("err = %v, want the offending model named", err)
	}
}
