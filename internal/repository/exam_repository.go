package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/mockexam-backend/internal/model"
)

const examColumns = `id, slug, title, description, bank_slug, question_count, time_limit_seconds,
	pass_threshold, marginal_threshold, sampling, basic_weight, intermediate_weight,
	advanced_weight, categories, created_at, updated_at`

// ExamRepository handles exam definition data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Slug, &e.Title, &e.Description, &e.BankSlug, &e.QuestionCount,
		&e.TimeLimitSeconds, &e.PassThreshold, &e.MarginalThreshold, &e.Sampling,
		&e.BasicWeight, &e.IntermediateWeight, &e.AdvancedWeight, &e.Categories,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetBySlug retrieves an exam by its slug.
func (r *ExamRepository) GetBySlug(ctx context.Context, slug string) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE slug = $1`, slug))
}

// List retrieves all exams ordered by title.
func (r *ExamRepository) List(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+examColumns+` FROM exams ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// Upsert creates or replaces an exam definition keyed by slug.
func (r *ExamRepository) Upsert(ctx context.Context, e *model.Exam) error {
	if e.Categories == nil {
		e.Categories = []string{}
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (slug, title, description, bank_slug, question_count, time_limit_seconds,
			pass_threshold, marginal_threshold, sampling, basic_weight, intermediate_weight,
			advanced_weight, categories)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			bank_slug = EXCLUDED.bank_slug,
			question_count = EXCLUDED.question_count,
			time_limit_seconds = EXCLUDED.time_limit_seconds,
			pass_threshold = EXCLUDED.pass_threshold,
			marginal_threshold = EXCLUDED.marginal_threshold,
			sampling = EXCLUDED.sampling,
			basic_weight = EXCLUDED.basic_weight,
			intermediate_weight = EXCLUDED.intermediate_weight,
			advanced_weight = EXCLUDED.advanced_weight,
			categories = EXCLUDED.categories,
			updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		e.Slug, e.Title, e.Description, e.BankSlug, e.QuestionCount, e.TimeLimitSeconds,
		e.PassThreshold, e.MarginalThreshold, e.Sampling, e.BasicWeight, e.IntermediateWeight,
		e.AdvancedWeight, e.Categories,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}
