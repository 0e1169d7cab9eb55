package sentiment

import (
	"context"
	"strings"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/models"
)

const (
	maxInputRunes  = 1000
	requestTimeout = 10 * time.Second
)

// Classifier labels a piece of text. Implementations never fail: anything
// that goes wrong degrades to neutral.
type Classifier interface {
	Classify(ctx context.Context, text string) models.Sentiment
}

// Neutral is the classifier used when no enrichment provider is configured
type Neutral struct{}

var _ Classifier = Neutral{}

func (Neutral) Classify(context.Context, string) models.Sentiment {
	return models.SentimentNeutral
}

// labelToSentiment maps a provider label onto the three-value scale.
// Providers spell labels differently ("Very Positive", "LABEL_NEGATIVE"),
// so matching is by substring.
func labelToSentiment(label string) models.Sentiment {
	label = strings.ToLower(label)
	switch {
	case strings.Contains(label, "positive"):
		return models.SentimentPositive
	case strings.Contains(label, "negative"):
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func truncate(text string) string {
	runes := []rune(text)
	if len(runes) > maxInputRunes {
		return string(runes[:maxInputRunes])
	}
	return text
}
