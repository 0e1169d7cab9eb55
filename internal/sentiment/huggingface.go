package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// DefaultHuggingFaceURL is the hosted multilingual sentiment model
const DefaultHuggingFaceURL = "https://api-inference.huggingface.co/models/tabularisai/multilingual-sentiment-analysis"

// HuggingFaceClassifier calls a hosted text-classification model
type HuggingFaceClassifier struct {
	client   *resty.Client
	apiToken string
	endpoint string
	limiter  *ratelimit.Limiter
}

var _ Classifier = (*HuggingFaceClassifier)(nil)

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewHuggingFaceClassifier creates a classifier. An empty endpoint selects
// the default model.
func NewHuggingFaceClassifier(apiToken, endpoint string, limiter *ratelimit.Limiter) *HuggingFaceClassifier {
	if endpoint == "" {
		endpoint = DefaultHuggingFaceURL
	}
	return &HuggingFaceClassifier{
		client:   resty.New().SetTimeout(requestTimeout),
		apiToken: apiToken,
		endpoint: endpoint,
		limiter:  limiter,
	}
}

func (h *HuggingFaceClassifier) Classify(ctx context.Context, text string) models.Sentiment {
	if strings.TrimSpace(text) == "" || h.apiToken == "" {
		return models.SentimentNeutral
	}

	if err := h.limiter.Acquire(ctx); err != nil {
		return models.SentimentNeutral
	}

	label, err := h.classify(ctx, truncate(text))
	if err != nil {
		logrus.Warnf("Sentiment analysis failed, defaulting to neutral: %v", err)
		return models.SentimentNeutral
	}

	return labelToSentiment(label)
}

func (h *HuggingFaceClassifier) classify(ctx context.Context, text string) (string, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetAuthToken(h.apiToken).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"inputs": text}).
		Post(h.endpoint)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("inference API returned status %d", resp.StatusCode())
	}

	scores, err := parseScores(resp.Body())
	if err != nil {
		return "", err
	}

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best.Label, nil
}

// parseScores accepts both the nested [[...]] shape returned for a single
// input and a flat list
func parseScores(body []byte) ([]labelScore, error) {
	var nested [][]labelScore
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return nested[0], nil
	}

	var flat []labelScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse inference response: %w", err)
	}
	if len(flat) == 0 {
		return nil, fmt.Errorf("inference response had no labels")
	}
	return flat, nil
}
