package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/maastricht-university/vamphost/orchestrator"
)

// --- Sink ---
type SinkResp struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// Publish posts a result bundle as JSON to url/features.
func (h *HTTP) Publish(ctx context.Context, url string, b orchestrator.Bundle) (*SinkResp, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("sink publish encode: %w", err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/features", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", "application/json")
	return h.do(r, "sink publish")
}

// Upload sends a persisted result file to url/upload as a multipart form.
func (h *HTTP) Upload(ctx context.Context, url, path string) (*SinkResp, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/upload", &b)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", w.FormDataContentType())
	return h.do(r, "sink upload")
}

func (h *HTTP) do(r *http.Request, what string) (*SinkResp, error) {
	resp, err := h.c.Do(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %s: %s", what, resp.Status, string(body))
	}

	var out SinkResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s decode: %w", what, err)
	}
	return &out, nil
}
