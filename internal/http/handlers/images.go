package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"genrelay/internal/dispatch"
)

type generateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Model          string  `json:"model,omitempty"`
	Size           string  `json:"size,omitempty"`
	Count          int     `json:"count,omitempty"`
	Strength       float64 `json:"strength,omitempty"`
	Seed           uint32  `json:"seed,omitempty"`
	UserID         string  `json:"user_id"`
	SourceImage    string  `json:"source_image,omitempty"` // base64
	SourceURL      string  `json:"source_url,omitempty"`
}

type imagesResponse struct {
	Model  string   `json:"model"`
	Images []string `json:"images"` // base64
}

func (a *App) decodeGenerate(w http.ResponseWriter, r *http.Request) (dispatch.Request, bool) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return dispatch.Request{}, false
	}
	out := dispatch.Request{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		Size:           req.Size,
		Count:          req.Count,
		Strength:       req.Strength,
		Seed:           req.Seed,
		UserID:         req.UserID,
		SourceURL:      req.SourceURL,
	}
	if req.SourceImage != "" {
		raw, err := base64.StdEncoding.DecodeString(req.SourceImage)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "source_image is not valid base64")
			return dispatch.Request{}, false
		}
		out.SourceImage = raw
	}
	return out, true
}

func encodeImages(model string, buffers [][]byte) imagesResponse {
	out := imagesResponse{Model: model, Images: make([]string, 0, len(buffers))}
	for _, buf := range buffers {
		out.Images = append(out.Images, base64.StdEncoding.EncodeToString(buf))
	}
	return out
}

func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeGenerate(w, r)
	if !ok {
		return
	}
	buffers, err := a.Dispatcher.Generate(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, encodeImages(req.Model, buffers))
}

func (a *App) ImagesTransform(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeGenerate(w, r)
	if !ok {
		return
	}
	if len(req.SourceImage) == 0 && req.SourceURL == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "source_image or source_url is required")
		return
	}
	buffers, err := a.Dispatcher.ImageToImage(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, encodeImages(req.Model, buffers))
}

type editRequest struct {
	Images       []string `json:"images"` // base64
	Instructions string   `json:"instructions"`
	Model        string   `json:"model,omitempty"`
	UserID       string   `json:"user_id"`
}

func (a *App) ImagesEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.Images) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "at least one image is required")
		return
	}
	images := make([][]byte, 0, len(req.Images))
	for _, enc := range req.Images {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "images must be valid base64")
			return
		}
		images = append(images, raw)
	}
	buffers, err := a.Dispatcher.ImageEdit(r.Context(), images, req.Instructions, req.Model, req.UserID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, encodeImages(req.Model, buffers))
}

type upscaleRequest struct {
	Image string `json:"image"` // base64
	Model string `json:"model"`
}

func (a *App) ImagesUpscale(w http.ResponseWriter, r *http.Request) {
	var req upscaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil || len(raw) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "image must be valid base64")
		return
	}
	out, err := a.Dispatcher.Upscale(r.Context(), raw, req.Model)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, encodeImages(req.Model, [][]byte{out}))
}

// Models lists every model the registry can dispatch to.
func (a *App) ModelsList(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, map[string][]string{"models": a.Models})
}
