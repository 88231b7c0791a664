package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

func (uc *SolutionSearchUseCase) Get(ctx context.Context, id string) (*domain.SearchRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get search", fmt.Errorf("search id is required"))
	}
	record, err := uc.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get search: %w", err)
	}
	return record, nil
}

// Refine re-filters the stored results of a completed search. Sources are not re-run.
func (uc *SolutionSearchUseCase) Refine(ctx context.Context, id string, req domain.RefineRequest) (*domain.RefineResult, error) {
	normalized, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	record, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.SearchStatusCompleted {
		return nil, domain.WrapError(domain.ErrSearchNotCompleted, "refine search", fmt.Errorf("search %s is %s", id, record.Status))
	}

	threshold := record.Request.MinRelevance()
	if normalized.MinRelevanceScore != nil {
		threshold = *normalized.MinRelevanceScore
	}

	refined := refineResults(record, normalized, threshold)
	return &domain.RefineResult{
		RefinedResults:    refined,
		UpdatedSummary:    fmt.Sprintf("Refined search results based on additional criteria. Found %d relevant solutions.", len(refined)),
		RefinementApplied: describeRefinement(normalized, threshold),
		TotalResults:      len(refined),
	}, nil
}

func (uc *SolutionSearchUseCase) SaveResult(ctx context.Context, id string, req domain.SaveResultRequest) (*domain.SavedResult, error) {
	normalized, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	record, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.SearchStatusCompleted {
		return nil, domain.WrapError(domain.ErrSearchNotCompleted, "save result", fmt.Errorf("search %s is %s", id, record.Status))
	}

	result, ok := record.FindResult(normalized.ResultID)
	if !ok {
		return nil, domain.WrapError(domain.ErrResultNotFound, "save result", fmt.Errorf("result %q not in search %s", normalized.ResultID, id))
	}

	saved := &domain.SavedResult{
		ID:             uuid.NewString(),
		SearchID:       record.ID,
		ResultID:       result.ID,
		Source:         result.Source,
		Title:          result.Title,
		Description:    result.Description,
		Solution:       result.Solution,
		URL:            result.URL,
		RelevanceScore: result.RelevanceScore,
		Notes:          normalized.Notes,
		Helpful:        normalized.Helpful,
		SavedAt:        uc.now().UTC(),
	}
	if err := uc.store.SaveResult(ctx, saved); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}
	return saved, nil
}

func (uc *SolutionSearchUseCase) History(ctx context.Context, filter domain.HistoryFilter, page domain.PageRequest) (*domain.HistoryPage, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	filter.ReporterName = strings.TrimSpace(filter.ReporterName)
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list history", fmt.Errorf("unknown status %q", filter.Status))
	}

	records, total, err := uc.store.ListHistory(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if records == nil {
		records = []domain.SearchRecord{}
	}
	return &domain.HistoryPage{Searches: records, PageInfo: domain.NewPageInfo(page, total)}, nil
}

func (uc *SolutionSearchUseCase) Saved(ctx context.Context, page domain.PageRequest) (*domain.SavedPage, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	saved, total, err := uc.store.ListSaved(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("list saved results: %w", err)
	}
	if saved == nil {
		saved = []domain.SavedResult{}
	}
	return &domain.SavedPage{Saved: saved, PageInfo: domain.NewPageInfo(page, total)}, nil
}

func (uc *SolutionSearchUseCase) Statistics(ctx context.Context) (domain.SearchStatistics, error) {
	stats, err := uc.store.Statistics(ctx)
	if err != nil {
		return domain.SearchStatistics{}, fmt.Errorf("search statistics: %w", err)
	}
	if stats.StatusBreakdown == nil {
		stats.StatusBreakdown = map[domain.SearchStatus]int{}
	}
	if stats.DepartmentBreakdown == nil {
		stats.DepartmentBreakdown = map[string]int{}
	}
	return stats, nil
}
