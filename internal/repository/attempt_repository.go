package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/mockexam-backend/internal/assessment"
	"github.com/stemsi/mockexam-backend/internal/model"
)

const attemptColumns = `a.id, a.exam_id, e.slug, e.title, a.learner_id, a.question_ids,
	a.time_limit_seconds, a.status, a.started_at, a.finished_at,
	a.correct, a.incorrect, a.unanswered, a.total, a.percentage, a.verdict, a.forced`

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	var (
		a                                          model.Attempt
		correct, incorrect, unanswered, total, pct *int
		verdict                                    *string
		forced                                     bool
	)
	err := row.Scan(&a.ID, &a.ExamID, &a.ExamSlug, &a.ExamTitle, &a.LearnerID, &a.QuestionIDs,
		&a.TimeLimit, &a.Status, &a.StartedAt, &a.FinishedAt,
		&correct, &incorrect, &unanswered, &total, &pct, &verdict, &forced)
	if err != nil {
		return nil, err
	}
	if a.Status == model.AttemptStatusSubmitted && total != nil {
		a.Result = &assessment.Result{
			Correct:    deref(correct),
			Incorrect:  deref(incorrect),
			Unanswered: deref(unanswered),
			Total:      *total,
			Percentage: deref(pct),
			Forced:     forced,
		}
		if verdict != nil {
			a.Result.Verdict = assessment.Verdict(*verdict)
		}
	}
	return &a, nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Create inserts a new in-progress attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (id, exam_id, learner_id, question_ids, time_limit_seconds, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING started_at`,
		a.ID, a.ExamID, a.LearnerID, a.QuestionIDs, a.TimeLimit, model.AttemptStatusInProgress,
	).Scan(&a.StartedAt)
}

// GetByID retrieves an attempt with its exam slug and title.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts a JOIN exams e ON e.id = a.exam_id
		 WHERE a.id = $1`, id))
}

// ListByLearner returns a page of attempts, newest first, and the total count.
func (r *AttemptRepository) ListByLearner(ctx context.Context, learnerID, limit, offset int) ([]model.Attempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE learner_id = $1`, learnerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts a JOIN exams e ON e.id = a.exam_id
		 WHERE a.learner_id = $1
		 ORDER BY a.started_at DESC
		 LIMIT $2 OFFSET $3`, learnerID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	attempts := make([]model.Attempt, 0, limit)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}

// AbandonOpen closes every other unfinished attempt of the learner at this exam.
func (r *AttemptRepository) AbandonOpen(ctx context.Context, learnerID int, examID, keep uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finished_at = NOW()
		 WHERE learner_id = $2 AND exam_id = $3 AND status = $4 AND id <> $5`,
		model.AttemptStatusAbandoned, learnerID, examID, model.AttemptStatusInProgress, keep,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Answers returns the persisted answers and flags of an attempt.
func (r *AttemptRepository) Answers(ctx context.Context, attemptID uuid.UUID) (map[int]int, []int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_index, selected_option, flagged
		 FROM attempt_answers
		 WHERE attempt_id = $1
		 ORDER BY question_index`, attemptID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	answers := make(map[int]int)
	var flagged []int
	for rows.Next() {
		var (
			idx    int
			opt    *int
			isFlag bool
		)
		if err := rows.Scan(&idx, &opt, &isFlag); err != nil {
			return nil, nil, err
		}
		if opt != nil {
			answers[idx] = *opt
		}
		if isFlag {
			flagged = append(flagged, idx)
		}
	}
	return answers, flagged, rows.Err()
}

// UpsertAnswer stores the full state of one question.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, ev *model.AnswerEvent) error {
	id, err := uuid.Parse(ev.AttemptID)
	if err != nil {
		return err
	}
	var opt *int
	if ev.Option >= 0 {
		opt = &ev.Option
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_index, selected_option, flagged, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (attempt_id, question_index) DO UPDATE
		 SET selected_option = EXCLUDED.selected_option,
		     flagged = EXCLUDED.flagged,
		     updated_at = EXCLUDED.updated_at
		 WHERE attempt_answers.updated_at <= EXCLUDED.updated_at`,
		id, ev.QuestionIndex, opt, ev.Flagged, ev.At,
	)
	return err
}

// Complete stores a scored result for one attempt. An attempt abandoned by a
// retake after it was scored still ends up submitted.
func (r *AttemptRepository) Complete(ctx context.Context, ev *model.ResultEvent) error {
	id, err := uuid.Parse(ev.AttemptID)
	if err != nil {
		return err
	}
	res := ev.Result
	_, err = r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finished_at = $2, correct = $3, incorrect = $4, unanswered = $5,
		     total = $6, percentage = $7, verdict = $8, forced = $9
		 WHERE id = $10 AND status <> 'SUBMITTED'`,
		model.AttemptStatusSubmitted, ev.FinishedAt, res.Correct, res.Incorrect, res.Unanswered,
		res.Total, res.Percentage, string(res.Verdict), res.Forced, id,
	)
	return err
}

// CompleteBatch stores many results with a single UNNEST update.
func (r *AttemptRepository) CompleteBatch(ctx context.Context, batch []*model.ResultEvent) error {
	n := len(batch)
	ids := make([]uuid.UUID, 0, n)
	finished := make([]time.Time, 0, n)
	correct := make([]int, 0, n)
	incorrect := make([]int, 0, n)
	unanswered := make([]int, 0, n)
	total := make([]int, 0, n)
	pct := make([]int, 0, n)
	verdicts := make([]string, 0, n)
	forced := make([]bool, 0, n)

	for _, ev := range batch {
		id, err := uuid.Parse(ev.AttemptID)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		finished = append(finished, ev.FinishedAt)
		correct = append(correct, ev.Result.Correct)
		incorrect = append(incorrect, ev.Result.Incorrect)
		unanswered = append(unanswered, ev.Result.Unanswered)
		total = append(total, ev.Result.Total)
		pct = append(pct, ev.Result.Percentage)
		verdicts = append(verdicts, string(ev.Result.Verdict))
		forced = append(forced, ev.Result.Forced)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE attempts AS a
		SET status = 'SUBMITTED',
		    finished_at = t.finished_at,
		    correct = t.correct,
		    incorrect = t.incorrect,
		    unanswered = t.unanswered,
		    total = t.total,
		    percentage = t.percentage,
		    verdict = t.verdict,
		    forced = t.forced
		FROM UNNEST(
			$1::uuid[],
			$2::timestamptz[],
			$3::int[],
			$4::int[],
			$5::int[],
			$6::int[],
			$7::int[],
			$8::text[],
			$9::bool[]
		) AS t (id, finished_at, correct, incorrect, unanswered, total, percentage, verdict, forced)
		WHERE a.id = t.id
		  AND a.status <> 'SUBMITTED'`,
		ids, finished, correct, incorrect, unanswered, total, pct, verdicts, forced,
	)
	return err
}
