// Package dimensions maps a logical size class onto the dimension encoding a
// given model family expects. Pixel-perfect diffusion families take literal
// "WxH" pairs; aspect-ratio-native families take "W:H" ratio strings. The two
// encodings are not interchangeable across families.
package dimensions

import (
	"fmt"

	"genrelay/internal/domain"
)

// SizeClass is the logical shape requested by the caller, independent of any
// provider's literal encoding.
type SizeClass string

const (
	Square SizeClass = "square"
	Tall   SizeClass = "tall"
	Wide   SizeClass = "wide"
)

// Family groups models that share a dimension encoding.
type Family string

const (
	FamilyOpenAI Family = "openai" // fixed DALL-E pixel pairs
	FamilySDXL   Family = "sdxl"   // SDXL-era pixel pairs
	FamilyRatio  Family = "ratio"  // aspect-ratio-native providers
	FamilyGemini Family = "gemini" // Imagen / Gemini image ratios
)

var modelFamilies = map[string]Family{
	"dall-e-3":           FamilyOpenAI,
	"gpt-image-1":        FamilyOpenAI,
	"flux-schnell":       FamilySDXL,
	"flux-dev":           FamilySDXL,
	"deepinfra-flux-dev": FamilySDXL,
	"prodia-sdxl":        FamilySDXL,
	"recraftv3":          FamilySDXL,
	"leonardo-phoenix":   FamilySDXL,
	"hf-sdxl":            FamilySDXL,
	"segmind-sdxl":       FamilySDXL,
	"hyperbolic-sdxl":    FamilySDXL,
	"deepai-standard":    FamilySDXL,
	"novita-sdxl":        FamilySDXL,
	"flux-pro":           FamilySDXL,
	"stable-image-core":  FamilyRatio,
	"stable-image-ultra": FamilyRatio,
	"ideogram-v2":        FamilyRatio,
	"imagen-3":           FamilyGemini,
	"gemini-image":       FamilyGemini,
}

var encodings = map[Family]map[SizeClass]string{
	FamilyOpenAI: {
		Square: "1024x1024",
		Tall:   "1024x1792",
		Wide:   "1792x1024",
	},
	FamilySDXL: {
		Square: "1024x1024",
		Tall:   "832x1216",
		Wide:   "1216x832",
	},
	FamilyRatio: {
		Square: "1:1",
		Tall:   "9:16",
		Wide:   "16:9",
	},
	FamilyGemini: {
		Square: "1:1",
		Tall:   "9:16",
		Wide:   "16:9",
	},
}

// FamilyOf reports the dimension family for a model id.
func FamilyOf(modelID string) (Family, bool) {
	f, ok := modelFamilies[modelID]
	return f, ok
}

// Resolve returns the provider-specific encoding for (modelID, class).
// Unknown models fail with ErrUnsupportedModel; an unrecognized size class
// for a known model fails with ErrUnknownSizeClass.
func Resolve(modelID string, class SizeClass) (string, error) {
	family, ok := modelFamilies[modelID]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedModel, modelID)
	}
	encoding, ok := encodings[family][class]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownSizeClass, class)
	}
	return encoding, nil
}

// Models returns every model id known to the resolver. The provider registry
// asserts at construction that its entries stay in sync with this table.
func Models() []string {
	out := make([]string, 0, len(modelFamilies))
	for id := range modelFamilies {
		out = append(out, id)
	}
	return out
}
