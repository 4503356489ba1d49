package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spec-kit/ticket-sync/internal/config"
)

// Prediction is a single model inference result.
type Prediction struct {
	Label      string
	Confidence float64
}

// Classifier predicts ticket category and priority from free text. Both
// calls are expected to fail during model outages; callers recover with
// defaults and must never let a prediction failure block ticket capture.
type Classifier interface {
	PredictCategory(ctx context.Context, text string) (Prediction, error)
	PredictPriority(ctx context.Context, text string) (Prediction, error)
}

// HTTPClassifier calls a model inference endpoint. It is constructed once
// at startup and injected; it holds no mutable model state.
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
}

// New builds an HTTPClassifier from configuration.
func New(cfg config.ClassifierConfig) *HTTPClassifier {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClassifier{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// PredictCategory returns the category label and confidence for text.
func (c *HTTPClassifier) PredictCategory(ctx context.Context, text string) (Prediction, error) {
	return c.predict(ctx, "/predict/category", text)
}

// PredictPriority returns the priority label and confidence for text.
func (c *HTTPClassifier) PredictPriority(ctx context.Context, text string) (Prediction, error) {
	return c.predict(ctx, "/predict/priority", text)
}

func (c *HTTPClassifier) predict(ctx context.Context, path, text string) (Prediction, error) {
	body, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return Prediction{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Prediction{}, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, excerpt)
	}

	var parsed predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Prediction{}, fmt.Errorf("decode classifier response: %w", err)
	}
	return Prediction{Label: parsed.Label, Confidence: parsed.Confidence}, nil
}
