package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/monitoring"
	"github.com/azure/reddit-brand-monitor/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPipeline is a mock implementation of Pipeline
type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockPipeline) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockPipeline) IsRunning() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockPipeline) GetMetrics() string {
	args := m.Called()
	return args.String(0)
}

func seededStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var mentions []models.Mention
	for i := 0; i < 60; i++ {
		m := models.Mention{
			ID:        fmt.Sprintf("c%d", i),
			Kind:      models.KindComment,
			Body:      "badinka",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Community: "aves",
			Author:    "alice",
			Brand:     "badinka",
			Source:    models.SourceListing,
			Sentiment: models.SentimentNeutral,
		}
		if i%3 == 0 {
			m.Sentiment = models.SentimentPositive
		}
		mentions = append(mentions, m)
	}
	mentions = append(mentions, models.Mention{ID: "c0", Brand: "iheartraves", CreatedAt: base, Sentiment: models.SentimentNegative})

	require.NoError(t, store.UpsertBatch(context.Background(), mentions))
	return store
}

func do(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	pipeline := new(MockPipeline)
	pipeline.On("IsRunning").Return(true)

	rec := do(t, NewRouter(pipeline, storage.NewMemoryStore()), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["running"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestStartStop(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		method   string
		err      error
		expected int
	}{
		{name: "start", path: "/start", method: "Start", expected: http.StatusOK},
		{name: "start twice", path: "/start", method: "Start", err: monitoring.ErrAlreadyRunning, expected: http.StatusConflict},
		{name: "start fails", path: "/start", method: "Start", err: fmt.Errorf("seed: boom"), expected: http.StatusInternalServerError},
		{name: "stop", path: "/stop", method: "Stop", expected: http.StatusOK},
		{name: "stop when idle", path: "/stop", method: "Stop", err: monitoring.ErrNotRunning, expected: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := new(MockPipeline)
			if tt.method == "Start" {
				pipeline.On("Start", mock.Anything).Return(tt.err)
			} else {
				pipeline.On("Stop").Return(tt.err)
			}

			rec := do(t, NewRouter(pipeline, storage.NewMemoryStore()), http.MethodPost, tt.path, "")
			assert.Equal(t, tt.expected, rec.Code)
			pipeline.AssertExpectations(t)
		})
	}
}

func TestStart_WrongMethod(t *testing.T) {
	rec := do(t, NewRouter(new(MockPipeline), storage.NewMemoryStore()), http.MethodGet, "/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetrics(t *testing.T) {
	pipeline := new(MockPipeline)
	pipeline.On("GetMetrics").Return(`{"running": true}`)

	rec := do(t, NewRouter(pipeline, storage.NewMemoryStore()), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"running": true}`, rec.Body.String())
}

func TestData(t *testing.T) {
	router := NewRouter(new(MockPipeline), seededStore(t))

	tests := []struct {
		name      string
		query     string
		status    int
		total     int
		results   int
		firstID   string
		errSubstr string
	}{
		{name: "defaults", query: "", status: http.StatusOK, total: 61, results: 50, firstID: "c59"},
		{name: "second page", query: "?page=2", status: http.StatusOK, total: 61, results: 11},
		{name: "by brand", query: "?brand=IHeartRaves", status: http.StatusOK, total: 1, results: 1, firstID: "c0"},
		{name: "by sentiment", query: "?sentiment=positive&per_page=5", status: http.StatusOK, total: 20, results: 5, firstID: "c57"},
		{name: "time window", query: "?since=2024-05-01T12:10:00Z&until=2024-05-01T12:20:00Z", status: http.StatusOK, total: 10, results: 10, firstID: "c19"},
		{name: "unix since", query: "?since=1714565400", status: http.StatusOK, total: 50, results: 50},
		{name: "per_page too large", query: "?per_page=500", status: http.StatusBadRequest, errSubstr: "perpage failed max"},
		{name: "page zero", query: "?page=0", status: http.StatusBadRequest, errSubstr: "number failed min"},
		{name: "bad sentiment", query: "?sentiment=angry", status: http.StatusBadRequest, errSubstr: "sentiment failed oneof"},
		{name: "bad type", query: "?type=thread", status: http.StatusBadRequest, errSubstr: "kind failed oneof"},
		{name: "bad since", query: "?since=yesterday", status: http.StatusBadRequest, errSubstr: "invalid since"},
		{name: "inverted window", query: "?since=2024-05-02T00:00:00Z&until=2024-05-01T00:00:00Z", status: http.StatusBadRequest, errSubstr: "until must be after since"},
		{name: "non numeric page", query: "?page=two", status: http.StatusBadRequest, errSubstr: "invalid page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, "/data"+tt.query, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			if tt.status != http.StatusOK {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Contains(t, body["error"], tt.errSubstr)
				return
			}

			var page models.MentionPage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.Equal(t, tt.total, page.Total)
			assert.Len(t, page.Results, tt.results)
			if tt.firstID != "" {
				assert.Equal(t, tt.firstID, page.Results[0].ID)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	store := seededStore(t)
	router := NewRouter(new(MockPipeline), store)

	rec := do(t, router, http.MethodPost, "/delete", `{"id": "c0"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id": "c0", "deleted": 2}`, rec.Body.String())
	assert.Equal(t, 59, store.Len())

	rec = do(t, router, http.MethodPost, "/delete", `{"id": "c0"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/delete", `{"id": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/delete", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseTime(t *testing.T) {
	ts, err := parseTime("2024-05-01T14:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), ts)

	ts, err = parseTime("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}
