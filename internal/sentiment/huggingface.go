package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultHuggingFaceModel is the three-way twitter sentiment model; it answers
	// with LABEL_0 (negative), LABEL_1 (neutral) and LABEL_2 (positive).
	DefaultHuggingFaceModel = "cardiffnlp/twitter-roberta-base-sentiment"
	// DefaultHuggingFaceURL is the hosted inference API root.
	DefaultHuggingFaceURL = "https://api-inference.huggingface.co/models"
)

// HuggingFaceConfig configures the inference API classifier.
type HuggingFaceConfig struct {
	Token   string
	Model   string
	BaseURL string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

// HuggingFaceClassifier calls a text-classification model on the inference API.
type HuggingFaceClassifier struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHuggingFaceClassifier creates a classifier for cfg.Model.
func NewHuggingFaceClassifier(cfg HuggingFaceConfig) *HuggingFaceClassifier {
	if cfg.Model == "" {
		cfg.Model = DefaultHuggingFaceModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHuggingFaceURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HuggingFaceClassifier{
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/") + "/" + cfg.Model,
		token:    cfg.Token,
		client:   cfg.HTTPClient,
	}
}

// Classify posts {"inputs": text} and reads the first row of the [[{label,score}]] reply.
func (c *HuggingFaceClassifier) Classify(ctx context.Context, text string) ([]LabelScore, error) {
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("huggingface returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var rows [][]LabelScore
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode huggingface response: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("huggingface returned no results")
	}
	return rows[0], nil
}
