package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/lessons-learned/internal/config"
	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
	"github.com/kirillkom/lessons-learned/internal/observability/metrics"
)

const (
	serviceName = "api"

	maxJSONBodyBytes   = 1 << 20
	maxUploadBodyBytes = 50 << 20
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// SearchExporter renders a search record as a downloadable document.
type SearchExporter interface {
	WriteSearch(w io.Writer, record *domain.SearchRecord) error
}

type Router struct {
	cfg       config.Config
	searches  ports.SolutionSearchService
	knowledge ports.KnowledgeIngestor
	exporter  SearchExporter
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	searches ports.SolutionSearchService,
	knowledge ports.KnowledgeIngestor,
	exporter SearchExporter,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		searches:  searches,
		knowledge: knowledge,
		exporter:  exporter,
		metrics:   httpMetrics,
	}
}

// Handler assembles the routes and the middleware chain. It fails only when the
// embedded OpenAPI document cannot be loaded.
func (rt *Router) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/solution-search", rt.submitSearch)
	mux.HandleFunc("GET /v1/solution-search/history", rt.searchHistory)
	mux.HandleFunc("GET /v1/solution-search/saved", rt.savedResults)
	mux.HandleFunc("GET /v1/solution-search/statistics", rt.searchStatistics)
	mux.HandleFunc("GET /v1/solution-search/{search_id}", rt.getSearch)
	mux.HandleFunc("GET /v1/solution-search/{search_id}/results", rt.getSearch)
	mux.HandleFunc("GET /v1/solution-search/{search_id}/status", rt.getSearchStatus)
	mux.HandleFunc("POST /v1/solution-search/{search_id}/refine", rt.refineSearch)
	mux.HandleFunc("POST /v1/solution-search/{search_id}/regenerate", rt.regenerateSearch)
	mux.HandleFunc("POST /v1/solution-search/{search_id}/save", rt.saveResult)
	mux.HandleFunc("GET /v1/solution-search/{search_id}/export.xlsx", rt.exportSearch)

	mux.HandleFunc("POST /v1/knowledge/documents", rt.uploadKnowledgeDocument)
	mux.HandleFunc("GET /v1/knowledge/documents/{document_id}", rt.getKnowledgeDocument)
	mux.HandleFunc("GET /v1/knowledge/stats", rt.knowledgeStats)

	var handler http.Handler = mux
	if rt.cfg.APIValidateRequests {
		validator, err := newRequestValidator(rt.recordValidationFailure)
		if err != nil {
			return nil, err
		}
		handler = validator.middleware(handler)
	}
	handler = backpressureMiddleware(
		handler,
		rt.cfg.APIMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
		rt.recordRejected,
	)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRejected)
	handler = accessLogMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(handler), nil
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) recordValidationFailure(path string) {
	if rt.metrics != nil {
		rt.metrics.RecordValidationFailure(serviceName, path)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) submitSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	record, err := rt.searches.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/solution-search/"+record.ID)
	writeJSON(w, http.StatusAccepted, record)
}

func (rt *Router) getSearch(w http.ResponseWriter, r *http.Request) {
	record, err := rt.searches.Get(r.Context(), r.PathValue("search_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type searchStatusResponse struct {
	SearchID   string                `json:"search_id"`
	Status     domain.SearchStatus   `json:"status"`
	Progress   domain.SearchProgress `json:"progress"`
	Confidence *float64              `json:"confidence_score,omitempty"`
	Error      string                `json:"error,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func (rt *Router) getSearchStatus(w http.ResponseWriter, r *http.Request) {
	record, err := rt.searches.Get(r.Context(), r.PathValue("search_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchStatusResponse{
		SearchID:   record.ID,
		Status:     record.Status,
		Progress:   record.Progress,
		Confidence: record.Confidence,
		Error:      record.Error,
		UpdatedAt:  record.UpdatedAt,
	})
}

func (rt *Router) refineSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.RefineRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := rt.searches.Refine(r.Context(), r.PathValue("search_id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) regenerateSearch(w http.ResponseWriter, r *http.Request) {
	record, err := rt.searches.Regenerate(r.Context(), r.PathValue("search_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (rt *Router) saveResult(w http.ResponseWriter, r *http.Request) {
	var req domain.SaveResultRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := rt.searches.SaveResult(r.Context(), r.PathValue("search_id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (rt *Router) searchHistory(w http.ResponseWriter, r *http.Request) {
	page, err := bindPage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := bindHistoryFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	history, err := rt.searches.History(r.Context(), filter, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (rt *Router) savedResults(w http.ResponseWriter, r *http.Request) {
	page, err := bindPage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := rt.searches.Saved(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (rt *Router) searchStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.searches.Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) exportSearch(w http.ResponseWriter, r *http.Request) {
	if rt.exporter == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{
			Error:     "export is not configured",
			RequestID: requestIDFromContext(r.Context()),
		})
		return
	}

	record, err := rt.searches.Get(r.Context(), r.PathValue("search_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Render into memory first so a failed export still yields a JSON error.
	var buf bytes.Buffer
	if err := rt.exporter.WriteSearch(&buf, record); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "solution-search-"+record.ID+".xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("export_write_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

func (rt *Router) uploadKnowledgeDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("multipart field 'file' is required: %w", err)))
		return
	}
	defer file.Close()

	doc, err := rt.knowledge.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getKnowledgeDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.knowledge.GetDocument(r.Context(), r.PathValue("document_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) knowledgeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.knowledge.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// decodeJSON reads a bounded JSON body into dst. An empty body is accepted only
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
