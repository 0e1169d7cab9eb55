package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelToSentiment(t *testing.T) {
	tests := []struct {
		label    string
		expected models.Sentiment
	}{
		{"Very Positive", models.SentimentPositive},
		{"positive", models.SentimentPositive},
		{"LABEL_NEGATIVE", models.SentimentNegative},
		{"Very Negative", models.SentimentNegative},
		{"Neutral", models.SentimentNeutral},
		{"something else", models.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.expected, labelToSentiment(tt.label))
		})
	}
}

func TestHuggingFaceClassifier_PicksHighestScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "I love my badinka outfit", body["inputs"])

		fmt.Fprint(w, `[[{"label":"Neutral","score":0.1},{"label":"Very Positive","score":0.7},{"label":"Negative","score":0.2}]]`)
	}))
	defer server.Close()

	c := NewHuggingFaceClassifier("hf-token", server.URL, ratelimit.New("enrich", 0))
	assert.Equal(t, models.SentimentPositive, c.Classify(context.Background(), "I love my badinka outfit"))
}

func TestHuggingFaceClassifier_FlatResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"label":"negative","score":0.9},{"label":"positive","score":0.1}]`)
	}))
	defer server.Close()

	c := NewHuggingFaceClassifier("hf-token", server.URL, ratelimit.New("enrich", 0))
	assert.Equal(t, models.SentimentNegative, c.Classify(context.Background(), "the seams ripped"))
}

func TestHuggingFaceClassifier_TruncatesInput(t *testing.T) {
	var received int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received = len([]rune(body["inputs"]))
		fmt.Fprint(w, `[[{"label":"neutral","score":1}]]`)
	}))
	defer server.Close()

	c := NewHuggingFaceClassifier("hf-token", server.URL, ratelimit.New("enrich", 0))
	c.Classify(context.Background(), strings.Repeat("é", 1500))

	assert.Equal(t, maxInputRunes, received)
}

func TestHuggingFaceClassifier_NeutralWithoutCall(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		fmt.Fprint(w, `[[{"label":"positive","score":1}]]`)
	}))
	defer server.Close()

	tests := []struct {
		name  string
		token string
		text  string
	}{
		{name: "Empty text", token: "hf-token", text: ""},
		{name: "Whitespace text", token: "hf-token", text: "   \n"},
		{name: "No credential", token: "", text: "badinka is great"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewHuggingFaceClassifier(tt.token, server.URL, ratelimit.New("enrich", 0))
			assert.Equal(t, models.SentimentNeutral, c.Classify(context.Background(), tt.text))
		})
	}

	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
}

func TestHuggingFaceClassifier_FailuresDegradeToNeutral(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "Server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		},
		{
			name: "Malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"error": "model loading"`)
			},
		},
		{
			name: "Empty label list",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `[]`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			c := NewHuggingFaceClassifier("hf-token", server.URL, ratelimit.New("enrich", 0))
			assert.Equal(t, models.SentimentNeutral, c.Classify(context.Background(), "love it"))
		})
	}
}

func TestOpenAIClassifier_Classify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"positive\":0.05,\"neutral\":0.15,\"negative\":0.8}"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	c := NewOpenAIClassifier(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"}, ratelimit.New("enrich", 0))
	assert.Equal(t, models.SentimentNegative, c.Classify(context.Background(), "never ordering from iheartraves again"))
}

func TestOpenAIClassifier_NoKey(t *testing.T) {
	c := NewOpenAIClassifier(OpenAIConfig{}, ratelimit.New("enrich", 0))
	assert.Equal(t, models.SentimentNeutral, c.Classify(context.Background(), "anything"))
}

func TestBestLabel(t *testing.T) {
	label, err := bestLabel("```json\n{\"positive\": 0.6, \"neutral\": 0.4}\n```")
	require.NoError(t, err)
	assert.Equal(t, "positive", label)

	_, err = bestLabel("positive")
	assert.Error(t, err)

	_, err = bestLabel("{}")
	assert.Error(t, err)
}

func TestNeutral(t *testing.T) {
	assert.Equal(t, models.SentimentNeutral, Neutral{}.Classify(context.Background(), "love"))
}
