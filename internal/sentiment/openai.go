package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/ratelimit"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const classifyPrompt = `You classify the sentiment of social media posts that mention a fashion brand.
Reply with a JSON object only, mapping each of "positive", "neutral" and "negative" to a probability.`

// OpenAIConfig configures the chat-completions classifier
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional
}

// OpenAIClassifier asks a chat model for a label distribution
type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	enabled bool
	limiter *ratelimit.Limiter
}

var _ Classifier = (*OpenAIClassifier)(nil)

func NewOpenAIClassifier(cfg OpenAIConfig, limiter *ratelimit.Limiter) *OpenAIClassifier {
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(cc),
		model:   model,
		enabled: cfg.APIKey != "",
		limiter: limiter,
	}
}

func (o *OpenAIClassifier) Classify(ctx context.Context, text string) models.Sentiment {
	if strings.TrimSpace(text) == "" || !o.enabled {
		return models.SentimentNeutral
	}

	if err := o.limiter.Acquire(ctx); err != nil {
		return models.SentimentNeutral
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifyPrompt},
			{Role: openai.ChatMessageRoleUser, Content: truncate(text)},
		},
		Temperature: 0,
	})
	if err != nil {
		logrus.Warnf("openai: sentiment request failed, defaulting to neutral: %v", err)
		return models.SentimentNeutral
	}
	if len(resp.Choices) == 0 {
		return models.SentimentNeutral
	}

	label, err := bestLabel(resp.Choices[0].Message.Content)
	if err != nil {
		logrus.Warnf("openai: %v", err)
		return models.SentimentNeutral
	}
	return labelToSentiment(label)
}

// bestLabel picks the most probable label from a {"label": score} object,
// tolerating a fenced code block around it
func bestLabel(content string) (string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var dist map[string]float64
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &dist); err != nil {
		return "", fmt.Errorf("failed to parse label distribution: %w", err)
	}

	best, bestScore := "", -1.0
	for label, score := range dist {
		if score > bestScore || (score == bestScore && label < best) {
			best, bestScore = label, score
		}
	}
	if best == "" {
		return "", fmt.Errorf("empty label distribution")
	}
	return best, nil
}
