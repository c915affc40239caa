package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/mockexam-backend/internal/assessment"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByBank returns every question of a bank in stored order.
func (r *QuestionRepository) ListByBank(ctx context.Context, bankSlug string) ([]assessment.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, options, correct_option, explanation, difficulty, topic, section, category
		 FROM questions
		 WHERE bank_slug = $1
		 ORDER BY position`, bankSlug,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []assessment.Question
	for rows.Next() {
		var (
			q       assessment.Question
			options []byte
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &options, &q.CorrectOption, &q.Explanation,
			&q.Metadata.Difficulty, &q.Metadata.Topic, &q.Metadata.Section, &q.Metadata.Category); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("question %s options: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ReplaceBank swaps the whole bank in one transaction.
func (r *QuestionRepository) ReplaceBank(ctx context.Context, bankSlug string, questions []assessment.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE bank_slug = $1`, bankSlug); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO questions (bank_slug, id, position, prompt, options, correct_option,
				explanation, difficulty, topic, section, category)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			bankSlug, q.ID, i, q.Prompt, options, q.CorrectOption, q.Explanation,
			string(q.Metadata.Difficulty), q.Metadata.Topic, q.Metadata.Section, q.Metadata.Category,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
