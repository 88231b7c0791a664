package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
)

const (
	sourceOutcomeOK    = "ok"
	sourceOutcomeEmpty = "empty"
	sourceOutcomeError = "error"
)

type SolutionSearchUseCase struct {
	store      ports.SearchRecordStore
	dispatcher ports.SearchDispatcher
	adapters   map[domain.Source]ports.SourceAdapter
	summaries  ports.SummaryWriter
	observer   ports.SearchObserver
	limits     domain.SearchLimits
	now        func() time.Time
}

func NewSolutionSearchUseCase(
	store ports.SearchRecordStore,
	dispatcher ports.SearchDispatcher,
	adapters []ports.SourceAdapter,
	summaries ports.SummaryWriter,
	observer ports.SearchObserver,
	limits domain.SearchLimits,
) *SolutionSearchUseCase {
	if limits.SourceTimeout <= 0 {
		limits.SourceTimeout = 20 * time.Second
	}
	if limits.WebTimeout <= 0 {
		limits.WebTimeout = 10 * time.Second
	}
	if limits.SummaryTimeout <= 0 {
		limits.SummaryTimeout = 15 * time.Second
	}
	if observer == nil {
		observer = noopObserver{}
	}

	bySource := make(map[domain.Source]ports.SourceAdapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		bySource[adapter.Source()] = adapter
	}

	return &SolutionSearchUseCase{
		store:      store,
		dispatcher: dispatcher,
		adapters:   bySource,
		summaries:  summaries,
		observer:   observer,
		limits:     limits,
		now:        time.Now,
	}
}

// SetDispatcher wires the dispatcher after construction. The in-process task set
// needs the use case itself as its processor.
func (uc *SolutionSearchUseCase) SetDispatcher(dispatcher ports.SearchDispatcher) {
	uc.dispatcher = dispatcher
}

func (uc *SolutionSearchUseCase) Submit(ctx context.Context, req domain.SearchRequest) (*domain.SearchRecord, error) {
	normalized, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	record := &domain.SearchRecord{
		ID:           uuid.NewString(),
		Request:      normalized,
		Status:       domain.SearchStatusSearching,
		Results:      map[domain.Source][]domain.ScoredResult{},
		SourceErrors: map[domain.Source]string{},
		Progress:     domain.NewSearchProgress(normalized.Sources),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create search record: %w", err)
	}
	uc.observer.SearchSubmitted()

	if err := uc.dispatch(ctx, record.ID); err != nil {
		return nil, err
	}
	return record, nil
}

func (uc *SolutionSearchUseCase) Regenerate(ctx context.Context, id string) (*domain.SearchRecord, error) {
	record, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.Status.Terminal() {
		return nil, domain.WrapError(domain.ErrSearchNotCompleted, "regenerate search", fmt.Errorf("search %s is still %s", id, record.Status))
	}

	progress := domain.NewSearchProgress(record.Request.Sources)
	if err := uc.store.Restart(ctx, id, progress); err != nil {
		return nil, fmt.Errorf("restart search: %w", err)
	}
	if err := uc.dispatch(ctx, id); err != nil {
		return nil, err
	}

	record.Status = domain.SearchStatusSearching
	record.Results = map[domain.Source][]domain.ScoredResult{}
	record.SourceErrors = map[domain.Source]string{}
	record.Summary = ""
	record.Confidence = nil
	record.Error = ""
	record.Progress = progress
	record.CompletedAt = nil
	record.UpdatedAt = uc.now().UTC()
	return record, nil
}

func (uc *SolutionSearchUseCase) dispatch(ctx context.Context, id string) error {
	if uc.dispatcher == nil {
		err := errors.New("search dispatcher is not configured")
		uc.fail(ctx, id, err)
		return fmt.Errorf("dispatch search: %w", err)
	}
	if err := uc.dispatcher.DispatchSearch(ctx, id); err != nil {
		uc.fail(ctx, id, err)
		return fmt.Errorf("dispatch search: %w", err)
	}
	return nil
}

// Process runs every enabled source, ranks the outcomes and finalizes the record.
// Any fault outside the per-source boundary leaves the record failed.
func (uc *SolutionSearchUseCase) Process(ctx context.Context, searchID string) (err error) {
	record, err := uc.store.GetByID(ctx, searchID)
	if err != nil {
		err = fmt.Errorf("load search record: %w", err)
		if !domain.IsKind(err, domain.ErrSearchNotFound) {
			uc.fail(ctx, searchID, err)
		}
		return err
	}
	if record.Status != domain.SearchStatusSearching {
		slog.Info("search_process_skipped", "search_id", searchID, "status", string(record.Status))
		return nil
	}

	started := uc.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search pipeline panic: %v", r)
		}
		if err != nil {
			uc.fail(ctx, searchID, err)
		}
	}()

	outcomes, err := uc.runSources(ctx, record)
	if err != nil {
		return err
	}

	results := make(map[domain.Source][]domain.ScoredResult, len(outcomes))
	sourceErrors := make(map[domain.Source]string)
	progress := domain.NewSearchProgress(record.Request.Sources)
	for _, source := range record.Request.Sources {
		outcome := outcomes[source]
		results[source] = outcome.Results
		if outcome.Error != "" {
			sourceErrors[source] = outcome.Error
		}
		progress.MarkCompleted(source)
	}

	ranked := RankAndFilter(results, record.Request.MinRelevance())
	confidence := AggregateConfidence(ranked)
	summary := uc.summarize(ctx, ranked, record.Request)

	fin := domain.SearchFinalization{
		Results:     ranked,
		Errors:      sourceErrors,
		Summary:     summary,
		Confidence:  confidence,
		Progress:    progress,
		CompletedAt: uc.now().UTC(),
	}
	if err := uc.store.Finalize(ctx, searchID, fin); err != nil {
		return fmt.Errorf("finalize search: %w", err)
	}

	uc.observer.SearchFinished(domain.SearchStatusCompleted, confidence)
	slog.Info("search_completed",
		"search_id", searchID,
		"sources", len(record.Request.Sources),
		"results", countResults(ranked),
		"confidence", confidence,
		"duration_ms", float64(uc.now().Sub(started).Microseconds())/1000.0,
	)
	return nil
}

func (uc *SolutionSearchUseCase) runSources(ctx context.Context, record *domain.SearchRecord) (map[domain.Source]domain.SourceOutcome, error) {
	query := record.Request.Query()

	var mu sync.Mutex
	outcomes := make(map[domain.Source]domain.SourceOutcome, len(record.Request.Sources))

	// Plain group: a failing sibling must not cancel the others, every source resolves.
	var group errgroup.Group
	for _, source := range record.Request.Sources {
		group.Go(func() error {
			outcome := uc.runSource(ctx, source, query)

			mu.Lock()
			outcomes[source] = outcome
			mu.Unlock()

			return uc.recordOutcome(ctx, record.ID, outcome)
		})
	}
	if err := group.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

type sourceReply struct {
	results []domain.ScoredResult
	err     error
}

// runSource never fails: adapter errors, panics and timeouts become an error note.
func (uc *SolutionSearchUseCase) runSource(ctx context.Context, source domain.Source, query domain.ProblemQuery) domain.SourceOutcome {
	started := uc.now()
	outcome := domain.SourceOutcome{Source: source, Query: query.Text()}

	adapter, ok := uc.adapters[source]
	if !ok {
		outcome.Error = "source adapter is not configured"
	} else {
		sourceCtx, cancel := context.WithTimeout(ctx, uc.timeoutFor(source))
		reply := make(chan sourceReply, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					reply <- sourceReply{err: fmt.Errorf("source panic: %v", r)}
				}
			}()
			results, err := adapter.Search(sourceCtx, query, source.FetchLimit())
			reply <- sourceReply{results: results, err: err}
		}()

		select {
		case r := <-reply:
			if r.err != nil {
				outcome.Error = r.err.Error()
			} else {
				outcome.Results = normalizeResults(source, r.results)
			}
		case <-sourceCtx.Done():
			outcome.Error = fmt.Sprintf("source timed out: %v", sourceCtx.Err())
		}
		cancel()
	}

	outcome.Duration = uc.now().Sub(started)
	if outcome.Results == nil {
		outcome.Results = []domain.ScoredResult{}
	}

	label := sourceOutcomeOK
	switch {
	case outcome.Error != "":
		label = sourceOutcomeError
		slog.Warn("search_source_failed", "source", string(source), "error", outcome.Error)
	case len(outcome.Results) == 0:
		label = sourceOutcomeEmpty
	}
	uc.observer.SourceFinished(source, label, outcome.Duration)
	return outcome
}

func (uc *SolutionSearchUseCase) recordOutcome(ctx context.Context, searchID string, outcome domain.SourceOutcome) error {
	if err := uc.store.CacheSourceResults(ctx, searchID, outcome); err != nil {
		slog.Warn("search_source_cache_failed", "search_id", searchID, "source", string(outcome.Source), "error", err)
	}
	progress, err := uc.store.MarkSourceCompleted(ctx, searchID, outcome)
	if err != nil {
		return fmt.Errorf("record %s outcome: %w", outcome.Source, err)
	}
	slog.Info("search_source_completed",
		"search_id", searchID,
		"source", string(outcome.Source),
		"results", len(outcome.Results),
		"completed_sources", progress.CompletedSources,
		"total_sources", progress.TotalSources,
	)
	return nil
}

func (uc *SolutionSearchUseCase) timeoutFor(source domain.Source) time.Duration {
	if source == domain.SourceWeb {
		return uc.limits.WebTimeout
	}
	return uc.limits.SourceTimeout
}

// fail writes the terminal failed status even when the caller context is gone.
func (uc *SolutionSearchUseCase) fail(ctx context.Context, searchID string, cause error) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := uc.store.MarkFailed(failCtx, searchID, cause.Error()); err != nil {
		slog.Error("search_mark_failed_error", "search_id", searchID, "cause", cause, "error", err)
		return
	}
	uc.observer.SearchFinished(domain.SearchStatusFailed, 0)
	slog.Error("search_failed", "search_id", searchID, "error", cause)
}

func (uc *SolutionSearchUseCase) summarize(ctx context.Context, ranked map[domain.Source][]domain.ScoredResult, req domain.SearchRequest) string {
	text := ComposeSummary(ranked, req)
	if uc.summaries == nil || countResults(ranked) == 0 {
		return text
	}

	summaryCtx, cancel := context.WithTimeout(ctx, uc.limits.SummaryTimeout)
	defer cancel()

	insight, err := uc.summaries.WriteSummary(summaryCtx, BuildSummaryPrompt(ranked, req))
	if err != nil {
		slog.Warn("search_summary_writer_failed", "error", err)
		return text
	}
	insight = strings.TrimSpace(insight)
	if insight == "" {
		return text
	}
	return text + " Insights: " + insight
}

func normalizeResults(source domain.Source, in []domain.ScoredResult) []domain.ScoredResult {
	out := make([]domain.ScoredResult, 0, len(in))
	for _, r := range in {
		r.Source = source
		r.Normalize()
		out = append(out, r)
	}
	return out
}

func countResults(results map[domain.Source][]domain.ScoredResult) int {
	n := 0
	for _, r := range results {
		n += len(r)
	}
	return n
}

type noopObserver struct{}

func (noopObserver) SearchSubmitted()                                    {}
func (noopObserver) SourceFinished(domain.Source, string, time.Duration) {}
func (noopObserver) SearchFinished(domain.SearchStatus, float64)         {}
