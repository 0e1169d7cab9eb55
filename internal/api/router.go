package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/monitoring"
	"github.com/azure/reddit-brand-monitor/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	defaultPerPage = 50
	maxPerPage     = 100
)

// Pipeline is the part of the monitoring service the HTTP surface controls
type Pipeline interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	GetMetrics() string
}

var _ Pipeline = (*monitoring.Service)(nil)

// Handler serves the control and query endpoints
type Handler struct {
	pipeline Pipeline
	store    storage.MentionStore
	validate *validator.Validate
}

// NewRouter builds the HTTP routes
func NewRouter(pipeline Pipeline, store storage.MentionStore) *mux.Router {
	h := &Handler{
		pipeline: pipeline,
		store:    store,
		validate: validator.New(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.HandleFunc("/start", h.start).Methods(http.MethodPost)
	router.HandleFunc("/stop", h.stop).Methods(http.MethodPost)
	router.HandleFunc("/metrics", h.metrics).Methods(http.MethodGet)
	router.HandleFunc("/data", h.data).Methods(http.MethodGet)
	router.HandleFunc("/delete", h.delete).Methods(http.MethodPost)
	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"running":   h.pipeline.IsRunning(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	err := h.pipeline.Start(r.Context())
	switch {
	case errors.Is(err, monitoring.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		logrus.Errorf("Failed to start monitoring: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Monitoring started"})
	}
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	err := h.pipeline.Stop()
	switch {
	case errors.Is(err, monitoring.ErrNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		logrus.Errorf("Failed to stop monitoring: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Monitoring stopped"})
	}
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.pipeline.GetMetrics()))
}

func (h *Handler) data(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(filter); err != nil {
		writeError(w, http.StatusBadRequest, describe(err))
		return
	}
	if err := h.validate.Struct(page); err != nil {
		writeError(w, http.StatusBadRequest, describe(err))
		return
	}

	result, err := h.store.QueryMentions(r.Context(), filter, page)
	if err != nil {
		logrus.Errorf("Failed to query mentions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query mentions")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type deleteRequest struct {
	ID string `json:"id" validate:"required,max=32"`
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, describe(err))
		return
	}

	removed, err := h.store.DeleteByID(r.Context(), req.ID)
	if err != nil {
		logrus.Errorf("Failed to delete %s: %v", req.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to delete mention")
		return
	}
	if removed == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no mention with id %s", req.ID))
		return
	}

	logrus.Infof("Deleted %d rows for %s", removed, req.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": req.ID, "deleted": removed})
}

// parseQuery reads the /data filter and paging parameters
func parseQuery(q url.Values) (models.MentionFilter, models.Page, error) {
	filter := models.MentionFilter{
		Brand:     strings.ToLower(strings.TrimSpace(q.Get("brand"))),
		Kind:      models.Kind(q.Get("type")),
		Source:    models.SourceKind(q.Get("source")),
		Community: strings.TrimSpace(q.Get("subreddit")),
		Sentiment: models.Sentiment(q.Get("sentiment")),
	}
	page := models.Page{Number: 1, PerPage: defaultPerPage}

	var err error
	if filter.Since, err = parseTime(q.Get("since")); err != nil {
		return filter, page, fmt.Errorf("invalid since: %w", err)
	}
	if filter.Until, err = parseTime(q.Get("until")); err != nil {
		return filter, page, fmt.Errorf("invalid until: %w", err)
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Until.After(filter.Since) {
		return filter, page, errors.New("until must be after since")
	}

	if v := q.Get("page"); v != "" {
		if page.Number, err = strconv.Atoi(v); err != nil {
			return filter, page, fmt.Errorf("invalid page: %s", v)
		}
	}
	if v := q.Get("per_page"); v != "" {
		if page.PerPage, err = strconv.Atoi(v); err != nil {
			return filter, page, fmt.Errorf("invalid per_page: %s", v)
		}
	}

	return filter, page, nil
}

// parseTime accepts RFC 3339 or unix seconds
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
