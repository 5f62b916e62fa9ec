package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// PredictPath is the model service endpoint.
const PredictPath = "/v1/labels/predict"

// Request is the payload sent to the model service.
type Request struct {
	Model      string      `json:"model"`
	ModelFile  string      `json:"model_file"`
	Timestamps []string    `json:"timestamps"`
	Columns    []string    `json:"columns"`
	Features   [][]float64 `json:"features"`
}

type response struct {
	Labels []int  `json:"labels"`
	Error  string `json:"error,omitempty"`
}

// Predictor returns one integer label per feature row.
type Predictor interface {
	Predict(ctx context.Context, req Request) ([]int, error)
}

// HTTPPredictor calls a model service over HTTP.
type HTTPPredictor struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewHTTPPredictor returns a predictor for the service at baseURL.
func NewHTTPPredictor(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPPredictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPPredictor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     logger,
	}
}

// Predict posts the request and validates that exactly one label comes back
// per feature row.
func (p *HTTPPredictor) Predict(ctx context.Context, req Request) ([]int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode predict request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+PredictPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call model service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model service response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("model service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode model service response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("model service: %s", out.Error)
	}
	if len(out.Labels) != len(req.Features) {
		return nil, fmt.Errorf("model service returned %d labels for %d rows", len(out.Labels), len(req.Features))
	}

	p.log.Info("predictions received",
		"model", req.Model,
		"rows", len(req.Features),
		"duration_ms", time.Since(start).Milliseconds())
	return out.Labels, nil
}
