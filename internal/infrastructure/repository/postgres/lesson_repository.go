package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

// LessonRepository reads the incident table. It never writes to it.
type LessonRepository struct {
	db         *sql.DB
	now        func() time.Time
	recentDays int
}

func NewLessonRepository(db *sql.DB) *LessonRepository {
	return &LessonRepository{db: db, now: time.Now, recentDays: 30}
}

const lessonColumns = `id, commodity, error_location, problem_description, missed_detection, provided_solution,
	department, severity, reporter_name, COALESCE(part_number, ''), COALESCE(supplier, ''), created_at`

var lessonSearchFields = []string{
	"problem_description",
	"provided_solution",
	"error_location",
	"missed_detection",
	"commodity",
}

// SearchLessons returns lessons where any term occurs in any searchable field.
func (r *LessonRepository) SearchLessons(ctx context.Context, query domain.LessonQuery) ([]domain.Lesson, error) {
	if len(query.Terms) == 0 {
		return []domain.Lesson{}, nil
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}

	args := make([]any, 0, len(query.Terms)+2)
	matches := make([]string, 0, len(query.Terms)*len(lessonSearchFields))
	for _, term := range query.Terms {
		args = append(args, "%"+term+"%")
		for _, field := range lessonSearchFields {
			matches = append(matches, fmt.Sprintf("%s ILIKE $%d", field, len(args)))
		}
	}
	where := "(" + strings.Join(matches, " OR ") + ")"
	if query.Department != "" {
		args = append(args, query.Department)
		where += fmt.Sprintf(" AND department = $%d", len(args))
	}
	args = append(args, limit)

	q := fmt.Sprintf(`SELECT %s FROM lessons_learned WHERE %s ORDER BY created_at DESC LIMIT $%d`, lessonColumns, where, len(args))
	return r.queryLessons(ctx, q, args...)
}

// RecentLessons returns the newest lessons inside the recent window.
func (r *LessonRepository) RecentLessons(ctx context.Context, limit int) ([]domain.Lesson, error) {
	if limit <= 0 {
		limit = 100
	}
	since := r.now().UTC().AddDate(0, 0, -r.recentDays)
	q := `SELECT ` + lessonColumns + ` FROM lessons_learned WHERE created_at >= $1 ORDER BY created_at DESC LIMIT $2`
	return r.queryLessons(ctx, q, since, limit)
}

func (r *LessonRepository) queryLessons(ctx context.Context, query string, args ...any) ([]domain.Lesson, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Lesson, 0)
	for rows.Next() {
		var (
			lesson   domain.Lesson
			severity string
		)
		if err := rows.Scan(
			&lesson.ID, &lesson.Commodity, &lesson.ErrorLocation, &lesson.ProblemDescription, &lesson.MissedDetection,
			&lesson.ProvidedSolution, &lesson.Department, &severity, &lesson.ReporterName, &lesson.PartNumber,
			&lesson.Supplier, &lesson.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lesson.Severity = domain.Severity(strings.ToLower(severity))
		out = append(out, lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}
	return out, nil
}
