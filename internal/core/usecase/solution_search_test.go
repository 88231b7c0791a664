package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
)

type memSearchStore struct {
	mu       sync.Mutex
	records  map[string]*domain.SearchRecord
	cached   []domain.SourceOutcome
	saved    []domain.SavedResult
	markErr  error
	cacheErr error
	loadErr  error
	failed   map[string]string
}

func newMemSearchStore() *memSearchStore {
	return &memSearchStore{records: map[string]*domain.SearchRecord{}, failed: map[string]string{}}
}

func cloneRecord(r *domain.SearchRecord) *domain.SearchRecord {
	out := *r
	out.Results = make(map[domain.Source][]domain.ScoredResult, len(r.Results))
	for k, v := range r.Results {
		out.Results[k] = append([]domain.ScoredResult(nil), v...)
	}
	out.SourceErrors = make(map[domain.Source]string, len(r.SourceErrors))
	for k, v := range r.SourceErrors {
		out.SourceErrors[k] = v
	}
	return &out
}

func (s *memSearchStore) Create(_ context.Context, r *domain.SearchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = cloneRecord(r)
	return nil
}

func (s *memSearchStore) GetByID(_ context.Context, id string) (*domain.SearchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadErr; err != nil {
		s.loadErr = nil
		return nil, err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSearchNotFound, "get search", errors.New(id))
	}
	return cloneRecord(r), nil
}

func (s *memSearchStore) MarkSourceCompleted(_ context.Context, id string, outcome domain.SourceOutcome) (domain.SearchProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return domain.SearchProgress{}, s.markErr
	}
	r := s.records[id]
	r.Progress.MarkCompleted(outcome.Source)
	r.Results[outcome.Source] = outcome.Results
	if outcome.Error != "" {
		r.SourceErrors[outcome.Source] = outcome.Error
	}
	return r.Progress, nil
}

func (s *memSearchStore) CacheSourceResults(_ context.Context, _ string, outcome domain.SourceOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cacheErr != nil {
		return s.cacheErr
	}
	s.cached = append(s.cached, outcome)
	return nil
}

func (s *memSearchStore) Finalize(_ context.Context, id string, fin domain.SearchFinalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	r.Status = domain.SearchStatusCompleted
	r.Results = fin.Results
	r.SourceErrors = fin.Errors
	r.Summary = fin.Summary
	confidence := fin.Confidence
	r.Confidence = &confidence
	r.Progress = fin.Progress
	completed := fin.CompletedAt
	r.CompletedAt = &completed
	return nil
}

func (s *memSearchStore) MarkFailed(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = reason
	if r, ok := s.records[id]; ok {
		r.Status = domain.SearchStatusFailed
		r.Error = reason
	}
	return nil
}

func (s *memSearchStore) Restart(_ context.Context, id string, progress domain.SearchProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	if r.Status == domain.SearchStatusSearching {
		return domain.WrapError(domain.ErrSearchNotCompleted, "restart search", errors.New(id))
	}
	r.Status = domain.SearchStatusSearching
	r.Results = map[domain.Source][]domain.ScoredResult{}
	r.SourceErrors = map[domain.Source]string{}
	r.Progress = progress
	r.Confidence = nil
	r.Summary = ""
	r.CompletedAt = nil
	return nil
}

func (s *memSearchStore) ListHistory(context.Context, domain.HistoryFilter, domain.PageRequest) ([]domain.SearchRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SearchRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *cloneRecord(r))
	}
	return out, len(out), nil
}

func (s *memSearchStore) SaveResult(_ context.Context, saved *domain.SavedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *saved)
	return nil
}

func (s *memSearchStore) ListSaved(context.Context, domain.PageRequest) ([]domain.SavedResult, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SavedResult(nil), s.saved...), len(s.saved), nil
}

func (s *memSearchStore) Statistics(context.Context) (domain.SearchStatistics, error) {
	return domain.SearchStatistics{TotalSearches: len(s.records)}, nil
}

type dispatcherFake struct {
	ids []string
	err error
}

func (d *dispatcherFake) DispatchSearch(_ context.Context, id string) error {
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

type adapterFake struct {
	source  domain.Source
	results []domain.ScoredResult
	err     error
	panics  bool
	delay   time.Duration
}

func (a *adapterFake) Source() domain.Source { return a.source }

func (a *adapterFake) Search(ctx context.Context, _ domain.ProblemQuery, _ int) ([]domain.ScoredResult, error) {
	if a.panics {
		panic("boom")
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.results, a.err
}

type summaryWriterFake struct {
	text string
	err  error
}

func (w *summaryWriterFake) WriteSummary(context.Context, string) (string, error) {
	return w.text, w.err
}

func scored(title string, score float64, meta map[string]any) domain.ScoredResult {
	return domain.ScoredResult{Title: title, Description: title + " description", RelevanceScore: score, Metadata: meta}
}

func validRequest(sources ...domain.Source) domain.SearchRequest {
	return domain.SearchRequest{
		ProblemDescription: "Paint blisters on the rear door after curing",
		Department:         "Quality",
		Severity:           domain.SeverityHigh,
		ReporterName:       "Kim",
		Sources:            sources,
	}
}

func runSearch(t *testing.T, store *memSearchStore, uc *SolutionSearchUseCase, req domain.SearchRequest) *domain.SearchRecord {
	t.Helper()
	record, err := uc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := uc.Process(context.Background(), record.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	got, err := store.GetByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	return got
}

func TestSubmitPersistsSearchingRecordAndDispatches(t *testing.T) {
	store := newMemSearchStore()
	dispatcher := &dispatcherFake{}
	uc := NewSolutionSearchUseCase(store, dispatcher, nil, nil, nil, domain.SearchLimits{})

	record, err := uc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if record.Status != domain.SearchStatusSearching {
		t.Fatalf("expected searching, got %s", record.Status)
	}
	if record.Progress.TotalSources != 3 || record.Progress.CompletedSources != 0 {
		t.Fatalf("unexpected progress %+v", record.Progress)
	}
	if len(dispatcher.ids) != 1 || dispatcher.ids[0] != record.ID {
		t.Fatalf("expected dispatch of %s, got %v", record.ID, dispatcher.ids)
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	store := newMemSearchStore()
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, nil, nil, nil, domain.SearchLimits{})

	req := validRequest()
	req.ProblemDescription = "short"
	_, err := uc.Submit(context.Background(), req)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("expected nothing persisted")
	}
}

func TestSubmitDispatchFailureMarksFailed(t *testing.T) {
	store := newMemSearchStore()
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{err: errors.New("nats down")}, nil, nil, nil, domain.SearchLimits{})

	if _, err := uc.Submit(context.Background(), validRequest()); err == nil {
		t.Fatalf("expected dispatch error")
	}
	if len(store.failed) != 1 {
		t.Fatalf("expected record marked failed, got %v", store.failed)
	}
}

func TestProcessCompletesAllSources(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{
		&adapterFake{source: domain.SourceDatabase, results: []domain.ScoredResult{scored("db1", 0.9, nil), scored("db2", 0.8, nil), scored("db low", 0.1, nil)}},
		&adapterFake{source: domain.SourceRAG, results: []domain.ScoredResult{scored("kb1", 0.6, nil)}},
		&adapterFake{source: domain.SourceWeb, results: []domain.ScoredResult{scored("web1", 0.5, nil), scored("web2", 0.7, nil)}},
	}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, nil, nil, domain.SearchLimits{})

	got := runSearch(t, store, uc, validRequest())

	if got.Status != domain.SearchStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.Error)
	}
	if got.Progress.CompletedSources != got.Progress.TotalSources || got.Progress.TotalSources != 3 {
		t.Fatalf("expected all sources completed, got %+v", got.Progress)
	}
	if len(got.Results[domain.SourceDatabase]) != 2 {
		t.Fatalf("expected low score filtered, got %d", len(got.Results[domain.SourceDatabase]))
	}
	if got.Results[domain.SourceWeb][0].Title != "web2" {
		t.Fatalf("expected web sorted descending, got %s first", got.Results[domain.SourceWeb][0].Title)
	}
	for _, r := range got.Results[domain.SourceRAG] {
		if r.Source != domain.SourceRAG || r.ID == "" {
			t.Fatalf("expected normalized result, got %+v", r)
		}
	}
	if got.Confidence == nil || *got.Confidence <= 0 || *got.Confidence > 1 {
		t.Fatalf("unexpected confidence %v", got.Confidence)
	}
	wantSummary := "Search completed for your high severity issue in Quality department. " +
		"Found 2 similar incidents in our internal database with proven solutions. " +
		"Located 1 relevant entries in our knowledge base. " +
		"Identified 2 industry best practices and external solutions. " +
		"Results drawn from 3 sources. High confidence in the provided solutions."
	if got.Summary != wantSummary {
		t.Fatalf("summary = %q, want %q", got.Summary, wantSummary)
	}
	if len(store.cached) != 3 {
		t.Fatalf("expected one cache row per source, got %d", len(store.cached))
	}
}

func TestProcessAllEmptyProducesNoResultSummary(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{
		&adapterFake{source: domain.SourceDatabase},
		&adapterFake{source: domain.SourceRAG},
		&adapterFake{source: domain.SourceWeb},
	}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, &summaryWriterFake{text: "never used"}, nil, domain.SearchLimits{})

	got := runSearch(t, store, uc, validRequest())

	want := "No relevant solutions found for your high severity issue in Quality department. Consider refining your search criteria or consulting with domain experts."
	if got.Summary != want {
		t.Fatalf("summary = %q, want %q", got.Summary, want)
	}
	if got.Confidence == nil || *got.Confidence != 0 {
		t.Fatalf("expected confidence 0, got %v", got.Confidence)
	}
	if got.Status != domain.SearchStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestProcessSingleSource(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{
		&adapterFake{source: domain.SourceDatabase, results: []domain.ScoredResult{scored("a", 0.9, nil), scored("b", 0.5, nil), scored("c", 0.2, nil)}},
	}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, nil, nil, domain.SearchLimits{})

	got := runSearch(t, store, uc, validRequest(domain.SourceDatabase))

	if kept := got.Results[domain.SourceDatabase]; len(kept) != 2 || kept[0].Title != "a" || kept[1].Title != "b" {
		t.Fatalf("expected the 0.2 result dropped by the default threshold, got %+v", kept)
	}

	if got.Progress.TotalSources != 1 || got.Progress.CompletedSources != 1 {
		t.Fatalf("unexpected progress %+v", got.Progress)
	}
	if got.Confidence == nil || math.Abs(*got.Confidence-0.7) > 1e-9 {
		t.Fatalf("expected confidence 0.7, got %v", got.Confidence)
	}
	want := "Search completed for your high severity issue in Quality department. Found 2 similar incidents in our internal database with proven solutions. Results drawn from 1 source. Moderate confidence in the provided solutions."
	if got.Summary != want {
		t.Fatalf("summary = %q, want %q", got.Summary, want)
	}
}

func TestProcessPanickingAdapterStillCompletes(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{
		&adapterFake{source: domain.SourceDatabase, results: []domain.ScoredResult{scored("a", 0.9, nil)}},
		&adapterFake{source: domain.SourceRAG},
		&adapterFake{source: domain.SourceWeb, panics: true},
	}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, nil, nil, domain.SearchLimits{})

	got := runSearch(t, store, uc, validRequest())

	if got.Status != domain.SearchStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if !strings.Contains(got.SourceErrors[domain.SourceWeb], "panic") {
		t.Fatalf("expected web panic note, got %q", got.SourceErrors[domain.SourceWeb])
	}
	if got.Results[domain.SourceWeb] == nil || len(got.Results[domain.SourceWeb]) != 0 {
		t.Fatalf("expected empty web results, got %#v", got.Results[domain.SourceWeb])
	}
	if !got.Progress.WebCompleted {
		t.Fatalf("expected web marked completed")
	}
}

func TestProcessSourceTimeoutIsSourceError(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{
		&adapterFake{source: domain.SourceDatabase, delay: time.Second},
	}
	limits := domain.SearchLimits{SourceTimeout: 20 * time.Millisecond}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, nil, nil, limits)

	got := runSearch(t, store, uc, validRequest(domain.SourceDatabase))

	if got.Status != domain.SearchStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.SourceErrors[domain.SourceDatabase] == "" {
		t.Fatalf("expected timeout note")
	}
}

func TestProcessMissingAdapterIsSourceError(t *testing.T) {
	store := newMemSearchStore()
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, nil, nil, nil, domain.SearchLimits{})

	got := runSearch(t, store, uc, validRequest(domain.SourceWeb))

	if got.SourceErrors[domain.SourceWeb] == "" || got.Status != domain.SearchStatusCompleted {
		t.Fatalf("expected completed with web error note, got %+v", got)
	}
}

func TestProcessStoreFailureMarksFailed(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{&adapterFake{source: domain.SourceDatabase}}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, nil, nil, domain.SearchLimits{})

	record, err := uc.Submit(context.Background(), validRequest(domain.SourceDatabase))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	store.markErr = errors.New("deadlock detected")

	if err := uc.Process(context.Background(), record.ID); err == nil {
		t.Fatalf("expected process error")
	}
	got, _ := store.GetByID(context.Background(), record.ID)
	if got.Status != domain.SearchStatusFailed || !strings.Contains(got.Error, "deadlock") {
		t.Fatalf("expected failed record with reason, got %s %q", got.Status, got.Error)
	}
}

func TestProcessLoadFailureMarksFailed(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{&adapterFake{source: domain.SourceDatabase}}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, nil, nil, domain.SearchLimits{})

	record, err := uc.Submit(context.Background(), validRequest(domain.SourceDatabase))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	store.loadErr = errors.New("connection refused")

	if err := uc.Process(context.Background(), record.ID); err == nil {
		t.Fatalf("expected process error")
	}
	got, _ := store.GetByID(context.Background(), record.ID)
	if got.Status != domain.SearchStatusFailed || !strings.Contains(got.Error, "connection refused") {
		t.Fatalf("expected failed record after load error, got %s %q", got.Status, got.Error)
	}
}

func TestProcessUnknownSearchIsNotMarkedFailed(t *testing.T) {
	store := newMemSearchStore()
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, nil, nil, nil, domain.SearchLimits{})

	err := uc.Process(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrSearchNotFound) {
		t.Fatalf("expected ErrSearchNotFound, got %v", err)
	}
	if len(store.failed) != 0 {
		t.Fatalf("expected no failure write for an unknown id, got %v", store.failed)
	}
}

func TestProcessCacheFailureIsNotFatal(t *testing.T) {
	store := newMemSearchStore()
	store.cacheErr = errors.New("cache table missing")
	adapters := []ports.SourceAdapter{&adapterFake{source: domain.SourceDatabase, results: []domain.ScoredResult{scored("a", 0.9, nil)}}}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, nil, nil, domain.SearchLimits{})

	got := runSearch(t, store, uc, validRequest(domain.SourceDatabase))
	if got.Status != domain.SearchStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestProcessSkipsTerminalRecord(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{&adapterFake{source: domain.SourceDatabase, panics: true}}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, nil, nil, domain.SearchLimits{})

	got := runSearch(t, store, uc, validRequest(domain.SourceDatabase))
	before := *got.Confidence
	if err := uc.Process(context.Background(), got.ID); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	again, _ := store.GetByID(context.Background(), got.ID)
	if *again.Confidence != before || again.Status != domain.SearchStatusCompleted {
		t.Fatalf("expected terminal record untouched")
	}
}

func TestProcessAppendsSummaryInsights(t *testing.T) {
	adapters := []ports.SourceAdapter{&adapterFake{source: domain.SourceDatabase, results: []domain.ScoredResult{scored("a", 0.9, nil)}}}

	store := newMemSearchStore()
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, &summaryWriterFake{text: " Dry the primer longer. "}, nil, domain.SearchLimits{})
	got := runSearch(t, store, uc, validRequest(domain.SourceDatabase))
	if !strings.HasSuffix(got.Summary, " Insights: Dry the primer longer.") {
		t.Fatalf("expected insights suffix, got %q", got.Summary)
	}

	store = newMemSearchStore()
	uc = NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, &summaryWriterFake{err: errors.New("model offline")}, nil, domain.SearchLimits{})
	got = runSearch(t, store, uc, validRequest(domain.SourceDatabase))
	if strings.Contains(got.Summary, "Insights") || got.Status != domain.SearchStatusCompleted {
		t.Fatalf("expected deterministic summary only, got %q", got.Summary)
	}
}

func TestRankAndFilterLaws(t *testing.T) {
	in := map[domain.Source][]domain.ScoredResult{}
	for i := 0; i < 12; i++ {
		score := float64(i) / 11
		in[domain.SourceDatabase] = append(in[domain.SourceDatabase], scored("db", score, nil))
		in[domain.SourceRAG] = append(in[domain.SourceRAG], scored("kb", score, nil))
		in[domain.SourceWeb] = append(in[domain.SourceWeb], scored("web", score, nil))
	}

	const threshold = 0.25
	ranked := RankAndFilter(in, threshold)
	for _, source := range domain.AllSources {
		items := ranked[source]
		if len(items) > source.FinalCap() {
			t.Fatalf("%s exceeds cap: %d > %d", source, len(items), source.FinalCap())
		}
		for i, item := range items {
			if item.RelevanceScore < threshold {
				t.Fatalf("%s kept score %v below threshold", source, item.RelevanceScore)
			}
			if i > 0 && items[i-1].RelevanceScore < item.RelevanceScore {
				t.Fatalf("%s not sorted descending", source)
			}
		}
	}
	if ranked[domain.SourceDatabase][0].RelevanceScore != 1 {
		t.Fatalf("expected best result kept first")
	}
}

func TestRankAndFilterKeepsTiesStable(t *testing.T) {
	in := map[domain.Source][]domain.ScoredResult{
		domain.SourceWeb: {scored("first", 0.5, nil), scored("second", 0.5, nil)},
	}
	ranked := RankAndFilter(in, 0)
	if ranked[domain.SourceWeb][0].Title != "first" {
		t.Fatalf("expected stable order for ties")
	}
}

func TestAggregateConfidenceOrderIndependent(t *testing.T) {
	a := map[domain.Source][]domain.ScoredResult{
		domain.SourceDatabase: {scored("a", 0.9, nil), scored("b", 0.4, nil)},
		domain.SourceWeb:      {scored("c", 0.6, nil)},
	}
	b := map[domain.Source][]domain.ScoredResult{
		domain.SourceWeb:      {scored("c", 0.6, nil)},
		domain.SourceDatabase: {scored("b", 0.4, nil), scored("a", 0.9, nil)},
	}
	if AggregateConfidence(a) != AggregateConfidence(b) {
		t.Fatalf("confidence depends on order")
	}
	// (0.65*0.5 + 0.6*0.2) / 0.7 * 1.1
	want := (0.65*0.5 + 0.6*0.2) / 0.7 * 1.1
	if got := AggregateConfidence(a); math.Abs(got-want) > 1e-9 {
		t.Fatalf("AggregateConfidence() = %v, want %v", got, want)
	}
	if got := AggregateConfidence(map[domain.Source][]domain.ScoredResult{}); got != 0 {
		t.Fatalf("expected 0 for no results, got %v", got)
	}
	full := map[domain.Source][]domain.ScoredResult{
		domain.SourceDatabase: {scored("a", 1, nil)},
		domain.SourceRAG:      {scored("b", 1, nil)},
	}
	if got := AggregateConfidence(full); got != 1 {
		t.Fatalf("expected clamp to 1, got %v", got)
	}
}

func TestRefineRequiresCompletedSearch(t *testing.T) {
	store := newMemSearchStore()
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, nil, nil, nil, domain.SearchLimits{})
	record, err := uc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	_, err = uc.Refine(context.Background(), record.ID, domain.RefineRequest{})
	if !domain.IsKind(err, domain.ErrSearchNotCompleted) {
		t.Fatalf("expected not completed error, got %v", err)
	}
}

func TestRefineFilters(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{
		&adapterFake{source: domain.SourceDatabase, results: []domain.ScoredResult{
			scored("primer humidity", 0.9, map[string]any{"department": "Paint"}),
			scored("primer cure", 0.6, map[string]any{"department": "Assembly"}),
			scored("primer no dept", 0.4, nil),
		}},
		&adapterFake{source: domain.SourceWeb, results: []domain.ScoredResult{scored("primer web", 0.95, nil)}},
	}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, nil, nil, domain.SearchLimits{})
	record := runSearch(t, store, uc, validRequest(domain.SourceDatabase, domain.SourceWeb))

	res, err := uc.Refine(context.Background(), record.ID, domain.RefineRequest{
		AdditionalKeywords: []string{"PRIMER"},
		ExcludeSources:     []domain.Source{"web"},
		DepartmentFilter:   "paint",
	})
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if res.TotalResults != 2 {
		t.Fatalf("expected 2 refined results, got %d: %+v", res.TotalResults, res.RefinedResults)
	}
	if res.RefinedResults[0].Title != "primer humidity" || res.RefinedResults[1].Title != "primer no dept" {
		t.Fatalf("unexpected refined order: %+v", res.RefinedResults)
	}
	if res.UpdatedSummary != "Refined search results based on additional criteria. Found 2 relevant solutions." {
		t.Fatalf("unexpected summary %q", res.UpdatedSummary)
	}

	threshold := 0.7
	res, err = uc.Refine(context.Background(), record.ID, domain.RefineRequest{MinRelevanceScore: &threshold})
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if res.TotalResults != 2 || res.RefinedResults[0].Source != domain.SourceWeb {
		t.Fatalf("expected threshold refine across sources, got %+v", res.RefinedResults)
	}
}

func TestSaveResult(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{&adapterFake{source: domain.SourceDatabase, results: []domain.ScoredResult{scored("Torque check", 0.9, nil)}}}
	uc := NewSolutionSearchUseCase(store, &dispatcherFake{}, adapters, nil, nil, domain.SearchLimits{})
	record := runSearch(t, store, uc, validRequest(domain.SourceDatabase))

	saved, err := uc.SaveResult(context.Background(), record.ID, domain.SaveResultRequest{ResultID: "Torque check", Notes: "worked", Helpful: "YES"})
	if err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if saved.Title != "Torque check" || saved.Helpful != domain.HelpfulYes || saved.ResultID == "" {
		t.Fatalf("unexpected saved result %+v", saved)
	}

	_, err = uc.SaveResult(context.Background(), record.ID, domain.SaveResultRequest{ResultID: "missing"})
	if !domain.IsKind(err, domain.ErrResultNotFound) {
		t.Fatalf("expected result not found, got %v", err)
	}

	page, err := uc.Saved(context.Background(), domain.PageRequest{})
	if err != nil {
		t.Fatalf("Saved() error = %v", err)
	}
	if page.Total != 1 || page.Page != 1 || page.Limit != domain.DefaultPageLimit || page.HasNext {
		t.Fatalf("unexpected page %+v", page.PageInfo)
	}
}

func TestRegenerate(t *testing.T) {
	store := newMemSearchStore()
	dispatcher := &dispatcherFake{}
	adapters := []ports.SourceAdapter{&adapterFake{source: domain.SourceDatabase, results: []domain.ScoredResult{scored("a", 0.9, nil)}}}
	uc := NewSolutionSearchUseCase(store, dispatcher, adapters, nil, nil, domain.SearchLimits{})

	record, err := uc.Submit(context.Background(), validRequest(domain.SourceDatabase))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := uc.Regenerate(context.Background(), record.ID); !domain.IsKind(err, domain.ErrSearchNotCompleted) {
		t.Fatalf("expected not completed for running search, got %v", err)
	}

	if err := uc.Process(context.Background(), record.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	restarted, err := uc.Regenerate(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if restarted.ID != record.ID || restarted.Status != domain.SearchStatusSearching || restarted.Progress.CompletedSources != 0 {
		t.Fatalf("unexpected restarted record %+v", restarted)
	}
	if len(dispatcher.ids) != 2 {
		t.Fatalf("expected second dispatch, got %v", dispatcher.ids)
	}
}

func TestHistoryRejectsUnknownStatus(t *testing.T) {
	uc := NewSolutionSearchUseCase(newMemSearchStore(), &dispatcherFake{}, nil, nil, nil, domain.SearchLimits{})
	_, err := uc.History(context.Background(), domain.HistoryFilter{Status: "paused"}, domain.PageRequest{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	_, err = uc.History(context.Background(), domain.HistoryFilter{}, domain.PageRequest{Limit: 101})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid page, got %v", err)
	}
}

func TestTaskSetRunsAndShutsDown(t *testing.T) {
	store := newMemSearchStore()
	adapters := []ports.SourceAdapter{&adapterFake{source: domain.SourceDatabase, results: []domain.ScoredResult{scored("a", 0.9, nil)}}}
	uc := NewSolutionSearchUseCase(store, nil, adapters, nil, nil, domain.SearchLimits{})
	tasks := NewTaskSet(uc, nil, time.Second)
	uc.SetDispatcher(tasks)

	record, err := uc.Submit(context.Background(), validRequest(domain.SourceDatabase))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	tasks.Wait()

	got, _ := store.GetByID(context.Background(), record.ID)
	if got.Status != domain.SearchStatusCompleted {
		t.Fatalf("expected completed via task set, got %s", got.Status)
	}

	if err := tasks.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := tasks.DispatchSearch(context.Background(), "late"); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error after shutdown, got %v", err)
	}
}
