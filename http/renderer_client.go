package http

import (
	"encoding/json"
	"fmt"

	"github.com/silberengel/epaperpub/common"
)

// mobileFormats get the extended 120s time budget; everything else gets 60s.
var mobileFormats = map[string]bool{"mobi": true, "azw3": true}

var recognizedFormats = map[string]bool{
	"epub": true, "pdf": true, "html5": true, "docbook5": true, "mobi": true, "azw3": true,
}

// RecognizedFormat reports whether format is one the renderer collaborator
// can convert to.
func RecognizedFormat(format string) bool {
	return recognizedFormats[format]
}

// RendererRequest is the JSON body POSTed to the renderer collaborator.
type RendererRequest struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Image   string `json:"image,omitempty"`
}

// RendererClient calls the external document-rendering collaborator.
type RendererClient struct {
	BaseURL string
}

// NewRendererClient builds a client bound to the renderer's base URL.
func NewRendererClient(baseURL string) *RendererClient {
	return &RendererClient{BaseURL: baseURL}
}

// Convert POSTs content to /convert/{format} and returns the rendered
// document's bytes. format must be one of the recognized output formats;
// the time budget is 120s for mobile formats (mobi, azw3) and 60s otherwise.
func (c *RendererClient) Convert(format string, body RendererRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding renderer request: %w", err)
	}

	timeout := 60
	if mobileFormats[format] {
		timeout = 120
	}

	req := NewRequest("POST", fmt.Sprintf("%s/convert/%s", c.BaseURL, format))
	req.JSONBody = string(payload)
	req.Timeout = timeout

	resp, err := Execute(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRendererUnavailable, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: status %d", common.ErrRendererUnavailable, resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", common.ErrRendererUnavailable)
	}

	return resp.Body, nil
}
