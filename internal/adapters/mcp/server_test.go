package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

type fakeSearches struct {
	mu        sync.Mutex
	submitted domain.SearchRequest
	refined   domain.RefineRequest
	gets      int
	doneAfter int
	err       error
}

func (f *fakeSearches) Submit(_ context.Context, req domain.SearchRequest) (*domain.SearchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = req
	if _, err := req.Normalize(); err != nil {
		return nil, err
	}
	return &domain.SearchRecord{ID: "search-1", Status: domain.SearchStatusSearching}, nil
}

func (f *fakeSearches) Get(_ context.Context, id string) (*domain.SearchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.gets++
	status := domain.SearchStatusSearching
	if f.gets >= f.doneAfter {
		status = domain.SearchStatusCompleted
	}
	return &domain.SearchRecord{ID: id, Status: status}, nil
}

func (f *fakeSearches) Refine(_ context.Context, _ string, req domain.RefineRequest) (*domain.RefineResult, error) {
	f.refined = req
	return &domain.RefineResult{TotalResults: 2}, nil
}

func (f *fakeSearches) Regenerate(context.Context, string) (*domain.SearchRecord, error) {
	return nil, errors.New("not used")
}

func (f *fakeSearches) SaveResult(_ context.Context, id string, req domain.SaveResultRequest) (*domain.SavedResult, error) {
	return nil, domain.WrapError(domain.ErrResultNotFound, "save result", errors.New(req.ResultID))
}

func (f *fakeSearches) History(context.Context, domain.HistoryFilter, domain.PageRequest) (*domain.HistoryPage, error) {
	return &domain.HistoryPage{}, nil
}

func (f *fakeSearches) Saved(context.Context, domain.PageRequest) (*domain.SavedPage, error) {
	return &domain.SavedPage{}, nil
}

func (f *fakeSearches) Statistics(context.Context) (domain.SearchStatistics, error) {
	return domain.SearchStatistics{TotalSearches: 7}, nil
}

type fakeKnowledge struct{}

func (fakeKnowledge) Upload(context.Context, string, string, io.Reader) (*domain.KnowledgeDocument, error) {
	return nil, errors.New("not used")
}

func (fakeKnowledge) GetDocument(context.Context, string) (*domain.KnowledgeDocument, error) {
	return nil, errors.New("not used")
}

func (fakeKnowledge) Stats(context.Context) (domain.KnowledgeStats, error) {
	return domain.KnowledgeStats{TotalEntries: 42}, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func newTestServer(t *testing.T, searches *fakeSearches) *Server {
	t.Helper()
	s, err := NewServer(searches, fakeKnowledge{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	s.poll = 5 * time.Millisecond
	return s
}

func TestSubmitWaitsForCompletion(t *testing.T) {
	searches := &fakeSearches{doneAfter: 3}
	s := newTestServer(t, searches)

	res, err := s.handleSubmit(context.Background(), callRequest("submit_solution_search", map[string]any{
		"problem_description": "Leaking seal on the gearbox housing",
		"department":          "Quality",
		"severity":            "critical",
		"reporter_name":       "Kim",
		"keywords":            []any{"seal", "gearbox"},
		"search_sources":      []any{"database"},
		"min_relevance_score": 0.4,
		"wait_seconds":        float64(2),
	}))
	if err != nil {
		t.Fatalf("handle submit: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	var record domain.SearchRecord
	if err := json.Unmarshal([]byte(resultText(t, res)), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.Status != domain.SearchStatusCompleted {
		t.Fatalf("expected completed record, got %s", record.Status)
	}
	if len(searches.submitted.Keywords) != 2 || searches.submitted.Sources[0] != domain.SourceDatabase {
		t.Fatalf("unexpected submitted request %+v", searches.submitted)
	}
	if searches.submitted.MinRelevanceScore == nil || *searches.submitted.MinRelevanceScore != 0.4 {
		t.Fatalf("expected threshold to be forwarded")
	}
}

func TestSubmitWithoutWaitReturnsImmediately(t *testing.T) {
	searches := &fakeSearches{doneAfter: 100}
	s := newTestServer(t, searches)

	res, err := s.handleSubmit(context.Background(), callRequest("submit_solution_search", map[string]any{
		"problem_description": "Leaking seal on the gearbox housing",
		"department":          "Quality",
		"severity":            "low",
		"reporter_name":       "Kim",
	}))
	if err != nil {
		t.Fatalf("handle submit: %v", err)
	}
	if !strings.Contains(resultText(t, res), `"status": "searching"`) {
		t.Fatalf("expected searching snapshot, got %s", resultText(t, res))
	}
	if searches.gets != 0 {
		t.Fatalf("expected no polling, got %d gets", searches.gets)
	}
}

func TestSubmitInvalidInputIsToolError(t *testing.T) {
	s := newTestServer(t, &fakeSearches{})

	res, err := s.handleSubmit(context.Background(), callRequest("submit_solution_search", map[string]any{
		"problem_description": "short",
		"department":          "Quality",
		"severity":            "low",
		"reporter_name":       "Kim",
	}))
	if err != nil {
		t.Fatalf("handle submit: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "problem_description") {
		t.Fatalf("expected validation tool error, got %+v", res)
	}
}

func TestRefineForwardsFilters(t *testing.T) {
	searches := &fakeSearches{}
	s := newTestServer(t, searches)

	res, err := s.handleRefine(context.Background(), callRequest("refine_solution_search", map[string]any{
		"search_id":           "search-1",
		"additional_keywords": []any{"seal"},
		"exclude_sources":     []any{"web"},
		"department_filter":   "Quality",
	}))
	if err != nil {
		t.Fatalf("handle refine: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if len(searches.refined.ExcludeSources) != 1 || searches.refined.ExcludeSources[0] != domain.SourceWeb {
		t.Fatalf("unexpected refine request %+v", searches.refined)
	}
	if searches.refined.MinRelevanceScore != nil {
		t.Fatalf("absent threshold must stay nil")
	}
}

func TestGetRequiresSearchID(t *testing.T) {
	s := newTestServer(t, &fakeSearches{})

	res, err := s.handleGet(context.Background(), callRequest("get_solution_search", map[string]any{}))
	if err != nil {
		t.Fatalf("handle get: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing search_id")
	}
}

func TestSaveUnknownResultIsToolError(t *testing.T) {
	s := newTestServer(t, &fakeSearches{})

	res, err := s.handleSave(context.Background(), callRequest("save_solution_result", map[string]any{
		"search_id": "search-1",
		"result_id": "nope",
	}))
	if err != nil {
		t.Fatalf("handle save: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "not found") {
		t.Fatalf("expected not found tool error, got %s", resultText(t, res))
	}
}

func TestStatisticsIncludesKnowledge(t *testing.T) {
	s := newTestServer(t, &fakeSearches{})

	res, err := s.handleStatistics(context.Background(), callRequest("search_statistics", nil))
	if err != nil {
		t.Fatalf("handle statistics: %v", err)
	}
	var out statisticsOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Searches.TotalSearches != 7 || out.Knowledge == nil || out.Knowledge.TotalEntries != 42 {
		t.Fatalf("unexpected statistics %+v", out)
	}
}
