package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

type SearchRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSearchRepository(db *sql.DB) *SearchRepository {
	return &SearchRepository{db: db, now: time.Now}
}

const searchColumns = `id, request, status, search_results, source_errors, summary, confidence_score, progress, error_message, created_at, updated_at, completed_at`

func (r *SearchRepository) Create(ctx context.Context, record *domain.SearchRecord) error {
	requestJSON, err := json.Marshal(record.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	progressJSON, err := json.Marshal(record.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO solution_searches (
	id, problem_description, department, severity, reporter_name, request, status, progress, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		record.ID, record.Request.ProblemDescription, record.Request.Department, string(record.Request.Severity),
		record.Request.ReporterName, requestJSON, string(record.Status), progressJSON, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert search: %w", err)
	}
	return nil
}

func (r *SearchRepository) GetByID(ctx context.Context, id string) (*domain.SearchRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+searchColumns+` FROM solution_searches WHERE id = $1`, id)
	record, err := scanSearch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSearchNotFound, "get search", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSearch(row rowScanner) (*domain.SearchRecord, error) {
	var (
		record                                     domain.SearchRecord
		requestRaw, resultsRaw, errorsRaw, progRaw []byte
		status                                     string
		summary, errMessage                        sql.NullString
		confidence                                 sql.NullFloat64
		completedAt                                sql.NullTime
	)
	err := row.Scan(
		&record.ID, &requestRaw, &status, &resultsRaw, &errorsRaw, &summary, &confidence,
		&progRaw, &errMessage, &record.CreatedAt, &record.UpdatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan search: %w", err)
	}

	if err := json.Unmarshal(requestRaw, &record.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	if err := unmarshalResults(resultsRaw, errorsRaw, &record.Results, &record.SourceErrors); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(progRaw, &record.Progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}

	record.Status = domain.SearchStatus(status)
	record.Summary = summary.String
	record.Error = errMessage.String
	if confidence.Valid {
		v := confidence.Float64
		record.Confidence = &v
	}
	if completedAt.Valid {
		t := completedAt.Time
		record.CompletedAt = &t
	}
	return &record, nil
}

func unmarshalResults(resultsRaw, errorsRaw []byte, results *map[domain.Source][]domain.ScoredResult, sourceErrors *map[domain.Source]string) error {
	*results = map[domain.Source][]domain.ScoredResult{}
	*sourceErrors = map[domain.Source]string{}
	if len(resultsRaw) > 0 {
		if err := json.Unmarshal(resultsRaw, results); err != nil {
			return fmt.Errorf("unmarshal search results: %w", err)
		}
	}
	if len(errorsRaw) > 0 {
		if err := json.Unmarshal(errorsRaw, sourceErrors); err != nil {
			return fmt.Errorf("unmarshal source errors: %w", err)
		}
	}
	return nil
}

// MarkSourceCompleted merges one source outcome under a row lock. A source that is
// already marked, or a record that left the searching state, is left unchanged.
func (r *SearchRepository) MarkSourceCompleted(ctx context.Context, id string, outcome domain.SourceOutcome) (domain.SearchProgress, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.SearchProgress{}, fmt.Errorf("begin progress tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		status                         string
		resultsRaw, errorsRaw, progRaw []byte
	)
	err = tx.QueryRowContext(ctx, `
SELECT status, search_results, source_errors, progress
FROM solution_searches
WHERE id = $1
FOR UPDATE
`, id).Scan(&status, &resultsRaw, &errorsRaw, &progRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SearchProgress{}, domain.WrapError(domain.ErrSearchNotFound, "mark source completed", fmt.Errorf("id=%s", id))
		}
		return domain.SearchProgress{}, fmt.Errorf("lock search row: %w", err)
	}

	var progress domain.SearchProgress
	if err := json.Unmarshal(progRaw, &progress); err != nil {
		return domain.SearchProgress{}, fmt.Errorf("unmarshal progress: %w", err)
	}
	if domain.SearchStatus(status) != domain.SearchStatusSearching || !progress.MarkCompleted(outcome.Source) {
		if err := tx.Commit(); err != nil {
			return domain.SearchProgress{}, fmt.Errorf("commit progress tx: %w", err)
		}
		return progress, nil
	}

	var (
		results      map[domain.Source][]domain.ScoredResult
		sourceErrors map[domain.Source]string
	)
	if err := unmarshalResults(resultsRaw, errorsRaw, &results, &sourceErrors); err != nil {
		return domain.SearchProgress{}, err
	}
	results[outcome.Source] = outcome.Results
	if outcome.Error != "" {
		sourceErrors[outcome.Source] = outcome.Error
	}

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return domain.SearchProgress{}, fmt.Errorf("marshal search results: %w", err)
	}
	errorsJSON, err := json.Marshal(sourceErrors)
	if err != nil {
		return domain.SearchProgress{}, fmt.Errorf("marshal source errors: %w", err)
	}
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return domain.SearchProgress{}, fmt.Errorf("marshal progress: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE solution_searches
SET search_results = $2, source_errors = $3, progress = $4, updated_at = $5
WHERE id = $1
`, id, resultsJSON, errorsJSON, progressJSON, r.now().UTC()); err != nil {
		return domain.SearchProgress{}, fmt.Errorf("update search progress: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.SearchProgress{}, fmt.Errorf("commit progress tx: %w", err)
	}
	return progress, nil
}

func (r *SearchRepository) CacheSourceResults(ctx context.Context, id string, outcome domain.SourceOutcome) error {
	results := outcome.Results
	if results == nil {
		results = []domain.ScoredResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal cached results: %w", err)
	}

	var errMessage sql.NullString
	if outcome.Error != "" {
		errMessage = sql.NullString{String: outcome.Error, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO solution_search_cache (
	search_id, source, search_query, results, result_count, relevance_score, duration_ms, error_message, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		id, string(outcome.Source), outcome.Query, resultsJSON, len(results), outcome.AverageRelevance(),
		outcome.Duration.Milliseconds(), errMessage, r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert search cache: %w", err)
	}
	return nil
}

func (r *SearchRepository) Finalize(ctx context.Context, id string, fin domain.SearchFinalization) error {
	resultsJSON, err := json.Marshal(fin.Results)
	if err != nil {
		return fmt.Errorf("marshal search results: %w", err)
	}
	errs := fin.Errors
	if errs == nil {
		errs = map[domain.Source]string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal source errors: %w", err)
	}
	progressJSON, err := json.Marshal(fin.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE solution_searches
SET status = $2, search_results = $3, source_errors = $4, summary = $5, confidence_score = $6,
	progress = $7, error_message = NULL, completed_at = $8, updated_at = $8
WHERE id = $1 AND status = $9
`, id, string(domain.SearchStatusCompleted), resultsJSON, errorsJSON, fin.Summary, fin.Confidence, progressJSON, fin.CompletedAt,
		string(domain.SearchStatusSearching))
	if err != nil {
		return fmt.Errorf("finalize search: %w", err)
	}
	return r.expectTransition(ctx, res, "finalize search", id, "search %s is no longer searching")
}

func (r *SearchRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE solution_searches
SET status = $2, error_message = $3, completed_at = $4, updated_at = $4
WHERE id = $1 AND status = $5
`, id, string(domain.SearchStatusFailed), reason, now, string(domain.SearchStatusSearching))
	if err != nil {
		return fmt.Errorf("mark search failed: %w", err)
	}
	return r.expectTransition(ctx, res, "mark search failed", id, "search %s is no longer searching")
}

// Restart resets a terminal search for another run. A search that is still running
// yields ErrSearchNotCompleted.
func (r *SearchRepository) Restart(ctx context.Context, id string, progress domain.SearchProgress) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE solution_searches
SET status = $2, search_results = '{}'::jsonb, source_errors = '{}'::jsonb, summary = NULL,
	confidence_score = NULL, progress = $3, error_message = NULL, completed_at = NULL, updated_at = $4
WHERE id = $1 AND status <> $2
`, id, string(domain.SearchStatusSearching), progressJSON, r.now().UTC())
	if err != nil {
		return fmt.Errorf("restart search: %w", err)
	}
	return r.expectTransition(ctx, res, "restart search", id, "search %s is still running")
}

// expectTransition resolves a status-guarded update that touched no row. A missing
// record is ErrSearchNotFound, a record in the wrong state is ErrSearchNotCompleted.
func (r *SearchRepository) expectTransition(ctx context.Context, res sql.Result, op, id, conflict string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM solution_searches WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check search exists: %w", err)
	}
	if !exists {
		return domain.WrapError(domain.ErrSearchNotFound, op, fmt.Errorf("id=%s", id))
	}
	return domain.WrapError(domain.ErrSearchNotCompleted, op, fmt.Errorf(conflict, id))
}

func (r *SearchRepository) ListHistory(ctx context.Context, filter domain.HistoryFilter, page domain.PageRequest) ([]domain.SearchRecord, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ReporterName != "" {
		args = append(args, "%"+filter.ReporterName+"%")
		conditions = append(conditions, fmt.Sprintf("reporter_name ILIKE $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM solution_searches`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count searches: %w", err)
	}

	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM solution_searches%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		searchColumns, where, len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list searches: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SearchRecord, 0, page.Limit)
	for rows.Next() {
		record, err := scanSearch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate searches: %w", err)
	}
	return out, total, nil
}

func (r *SearchRepository) SaveResult(ctx context.Context, saved *domain.SavedResult) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO saved_solutions (
	id, search_id, result_id, source, title, description, solution, url, relevance_score, user_notes, is_helpful, saved_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		saved.ID, saved.SearchID, saved.ResultID, string(saved.Source), saved.Title, saved.Description,
		saved.Solution, saved.URL, saved.RelevanceScore, saved.Notes, string(saved.Helpful), saved.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("insert saved solution: %w", err)
	}
	return nil
}

func (r *SearchRepository) ListSaved(ctx context.Context, page domain.PageRequest) ([]domain.SavedResult, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM saved_solutions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count saved solutions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, search_id, result_id, source, title, description, COALESCE(solution, ''), COALESCE(url, ''),
	relevance_score, COALESCE(user_notes, ''), COALESCE(is_helpful, ''), saved_at
FROM saved_solutions
ORDER BY saved_at DESC
LIMIT $1 OFFSET $2
`, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list saved solutions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SavedResult, 0, page.Limit)
	for rows.Next() {
		var (
			item            domain.SavedResult
			source, helpful string
		)
		if err := rows.Scan(
			&item.ID, &item.SearchID, &item.ResultID, &source, &item.Title, &item.Description, &item.Solution,
			&item.URL, &item.RelevanceScore, &item.Notes, &helpful, &item.SavedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan saved solution: %w", err)
		}
		item.Source = domain.Source(source)
		item.Helpful = domain.Helpfulness(helpful)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate saved solutions: %w", err)
	}
	return out, total, nil
}

func (r *SearchRepository) Statistics(ctx context.Context) (domain.SearchStatistics, error) {
	stats := domain.SearchStatistics{
		StatusBreakdown:     map[domain.SearchStatus]int{},
		DepartmentBreakdown: map[string]int{},
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM solution_searches`).Scan(&stats.TotalSearches); err != nil {
		return domain.SearchStatistics{}, fmt.Errorf("count searches: %w", err)
	}

	if err := r.groupCount(ctx, `SELECT status, COUNT(*) FROM solution_searches GROUP BY status`, func(key string, n int) {
		stats.StatusBreakdown[domain.SearchStatus(key)] = n
	}); err != nil {
		return domain.SearchStatistics{}, fmt.Errorf("status breakdown: %w", err)
	}
	if err := r.groupCount(ctx, `SELECT department, COUNT(*) FROM solution_searches GROUP BY department`, func(key string, n int) {
		stats.DepartmentBreakdown[key] = n
	}); err != nil {
		return domain.SearchStatistics{}, fmt.Errorf("department breakdown: %w", err)
	}
	return stats, nil
}

func (r *SearchRepository) groupCount(ctx context.Context, query string, add func(string, int)) error {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		add(key, n)
	}
	return rows.Err()
}

func expectAffected(res sql.Result, kind error, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(kind, op, fmt.Errorf("id=%s", id))
	}
	return nil
}
