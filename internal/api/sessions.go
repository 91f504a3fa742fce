package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/pipeline"
	"github.com/sells-group/enrich-cli/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// CreateSessionRequest starts a batch.
type CreateSessionRequest struct {
	Rows    []model.Row             `json:"rows"`
	Columns []string                `json:"columns,omitempty"`
	Fields  []model.FieldDefinition `json:"fields"`
	Context *model.ContextConfig    `json:"context,omitempty"`
}

// SessionCompleteEvent is the final event of a streamed session.
type SessionCompleteEvent struct {
	Type    model.RowEventType `json:"type"`
	Session *model.Session     `json:"session"`
	Metrics *model.Metrics     `json:"metrics,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// ResultsPage is a page of stored row results.
type ResultsPage struct {
	SessionID string            `json:"sessionId"`
	Offset    int               `json:"offset"`
	Limit     int               `json:"limit"`
	Total     int               `json:"total"`
	Results   []model.RowResult `json:"results"`
}

// PlanRequest is a dry-run plan request.
type PlanRequest struct {
	Row      model.Row             `json:"row"`
	Field    model.FieldDefinition `json:"field"`
	RowIndex int                   `json:"rowIndex"`
	Rows     []model.Row           `json:"rows,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		badRequest(w, "rows are required")
		return
	}

	b := pipeline.Batch{Rows: req.Rows, Fields: req.Fields, Context: s.cfg.Context}
	if len(req.Columns) > 0 {
		for i, row := range b.Rows {
			b.Rows[i] = row.Reordered(req.Columns)
		}
	}
	if req.Context != nil {
		b.Context = *req.Context
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamSession(w, r, b)
		return
	}

	sr, err := s.runner.Start(s.base, b)
	if err != nil {
		writeError(w, err)
		return
	}
	sess := sr.Session()
	go func() {
		if _, err := sr.Wait(); err != nil {
			zap.L().Error("session failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, sess)
}

// streamSession runs the batch tied to the request and writes row_complete
// events as server-sent events, then a session_complete event.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request, b pipeline.Batch) {
	sr, err := s.runner.Start(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-Id", sr.Session().ID)
	w.WriteHeader(http.StatusOK)

	for ev := range sr.Events() {
		writeEvent(w, string(ev.Type), ev)
		_ = rc.Flush()
	}

	final := SessionCompleteEvent{Type: model.EventSessionComplete}
	m, err := sr.Wait()
	if err != nil {
		final.Error = err.Error()
	} else {
		final.Metrics = &m
	}
	sess := sr.Session()
	final.Session = &sess
	writeEvent(w, string(final.Type), final)
	_ = rc.Flush()
}

func writeEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("marshal event", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.runner.Store().GetSessionMetadata(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, err := parsePage(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	sess, err := s.runner.Store().GetSessionMetadata(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := s.runner.Store().GetSessionResults(r.Context(), id, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResultsPage{
		SessionID: id,
		Offset:    page.Offset,
		Limit:     page.Limit,
		Total:     sess.TotalRows,
		Results:   results,
	})
}

// parsePage reads offset/limit when given, otherwise 1-based page/pageSize.
func parsePage(r *http.Request) (store.Page, error) {
	q := r.URL.Query()
	if q.Has("offset") || q.Has("limit") {
		offset, err := intParam(q.Get("offset"), 0)
		if err != nil || offset < 0 {
			return store.Page{}, fmt.Errorf("invalid offset %q", q.Get("offset"))
		}
		limit, err := intParam(q.Get("limit"), 0)
		if err != nil || limit < 0 {
			return store.Page{}, fmt.Errorf("invalid limit %q", q.Get("limit"))
		}
		return store.Page{Offset: offset, Limit: min(limit, maxPageSize)}, nil
	}

	page, err := intParam(q.Get("page"), 1)
	if err != nil || page < 1 {
		return store.Page{}, fmt.Errorf("invalid page %q", q.Get("page"))
	}
	size, err := intParam(q.Get("pageSize"), defaultPageSize)
	if err != nil || size < 1 {
		return store.Page{}, fmt.Errorf("invalid pageSize %q", q.Get("pageSize"))
	}
	size = min(size, maxPageSize)
	return store.Page{Offset: (page - 1) * size, Limit: size}, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.runner.Metrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleRecomputeMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.runner.Store().GetSessionMetadata(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	m, err := s.runner.RecomputeMetrics(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Field.Name) == "" {
		badRequest(w, "field name is required")
		return
	}

	plan := pipeline.BuildPlan(pipeline.PlanInput{
		Field:    req.Field,
		Row:      req.Row,
		RowIndex: req.RowIndex,
		AllRows:  req.Rows,
		Context:  s.cfg.Context,
	})
	writeJSON(w, http.StatusOK, plan)
}
