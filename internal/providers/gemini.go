package providers

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"genrelay/internal/domain"
)

const (
	imagenModelName      = "imagen-3.0-generate-002"
	geminiImageModelName = "gemini-2.5-flash-image"
)

// Gemini serves two models through the genai SDK: Imagen for dedicated
// text-to-image (one batched call, all-or-nothing) and the Gemini image
// model for generation and instruction-driven editing via content parts.
type Gemini struct {
	client *genai.Client
}

func NewGemini(apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) ([][]byte, error) {
	if req.Model == "imagen-3" {
		return g.generateImagen(ctx, req)
	}
	return g.generateGeminiImage(ctx, req)
}

func (g *Gemini) generateImagen(ctx context.Context, req Request) ([][]byte, error) {
	resp, err := g.client.Models.GenerateImages(ctx, imagenModelName, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(req.count()),
		AspectRatio:    req.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: generate images: %w", err)
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, domain.NewProviderError("gemini", 0, "no generated images")
	}
	out := make([][]byte, 0, len(resp.GeneratedImages))
	for _, img := range resp.GeneratedImages {
		if img.Image == nil || len(img.Image.ImageBytes) == 0 {
			return nil, domain.NewProviderError("gemini", 0, "empty image payload")
		}
		out = append(out, img.Image.ImageBytes)
	}
	return out, nil
}

// generateGeminiImage loops sequentially; a failure mid-batch fails the
// whole request, matching the Imagen path's all-or-nothing policy.
func (g *Gemini) generateGeminiImage(ctx context.Context, req Request) ([][]byte, error) {
	out := make([][]byte, 0, req.count())
	for i := 0; i < req.count(); i++ {
		resp, err := g.client.Models.GenerateContent(ctx, geminiImageModelName, genai.Text(req.Prompt),
			&genai.GenerateContentConfig{
				ResponseModalities: []string{"IMAGE"},
				ImageConfig:        &genai.ImageConfig{AspectRatio: req.Size},
			})
		if err != nil {
			return nil, fmt.Errorf("gemini: generate content: %w", err)
		}
		buf, err := firstInlineImage(resp)
		if err != nil {
			return nil, err
		}
		out = append(out, buf)
	}
	return out, nil
}

func (g *Gemini) Edit(ctx context.Context, req EditRequest) ([][]byte, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Instructions)}
	for _, img := range req.Images {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: img}})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, geminiImageModelName, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: edit content: %w", err)
	}
	buf, err := firstInlineImage(resp)
	if err != nil {
		return nil, err
	}
	return [][]byte{buf}, nil
}

func firstInlineImage(resp *genai.GenerateContentResponse) ([]byte, error) {
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, domain.NewProviderError("gemini", 0, "response carried no image part")
}

var (
	_ Generator = (*Gemini)(nil)
	_ Editor    = (*Gemini)(nil)
)
