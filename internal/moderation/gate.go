// Package moderation screens prompt text and source images before any paid
// upstream call is made. It combines an external multi-modal classifier with
// a local denylist word filter; the two are independent switches.
package moderation

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"genrelay/internal/domain"
)

// Input carries the content to screen. At least one of Text or Image must be
// set. Image may be a URL string or raw bytes; anything else is rejected.
type Input struct {
	Text  string
	Image any
}

// Verdict is the gate's result. CleanedText is always populated, even when
// the classifier is disabled or the input text was empty.
type Verdict struct {
	Flagged    bool
	Categories []string
	CleanedText string
}

type classifier interface {
	Classify(ctx context.Context, items []moderationItem) (*classification, error)
}

// Gate runs the classifier and the word filter over caller content.
type Gate struct {
	enabled    bool
	classifier classifier
	filter     *WordFilter
}

// NewGate wires a Gate. When enabled is false the classifier is never called;
// the word filter still runs if it is enabled itself.
func NewGate(enabled bool, c *ClassifierClient, filter *WordFilter) *Gate {
	return &Gate{enabled: enabled, classifier: c, filter: filter}
}

// Moderate screens the input and returns a verdict. Classifier failures
// propagate verbatim; there is no retry here.
func (g *Gate) Moderate(ctx context.Context, in Input) (*Verdict, error) {
	if in.Text == "" && in.Image == nil {
		return nil, domain.ErrNoContent
	}

	imageURL := ""
	if in.Image != nil {
		switch img := in.Image.(type) {
		case string:
			imageURL = img
		case []byte:
			imageURL = "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
		default:
			return nil, fmt.Errorf("%w: %T", domain.ErrInvalidImageType, in.Image)
		}
	}

	verdict := &Verdict{CleanedText: g.filter.Clean(in.Text)}
	if !g.enabled {
		return verdict, nil
	}

	var items []moderationItem
	if in.Text != "" {
		items = append(items, textItem(in.Text))
	}
	if imageURL != "" {
		items = append(items, imageItem(imageURL))
	}
	result, err := g.classifier.Classify(ctx, items)
	if err != nil {
		return nil, err
	}
	verdict.Flagged = result.Flagged
	verdict.Categories = result.Categories
	return verdict, nil
}
