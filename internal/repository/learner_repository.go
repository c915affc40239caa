package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/mockexam-backend/internal/model"
)

var ErrDuplicateEmail = errors.New("learner with this email already exists")

// LearnerRepository handles learner data access.
type LearnerRepository struct {
	pool *pgxpool.Pool
}

// NewLearnerRepository creates a new LearnerRepository.
func NewLearnerRepository(pool *pgxpool.Pool) *LearnerRepository {
	return &LearnerRepository{pool: pool}
}

// GetByID retrieves a learner by ID.
func (r *LearnerRepository) GetByID(ctx context.Context, id int) (*model.Learner, error) {
	l := &model.Learner{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at, updated_at
		 FROM learners WHERE id = $1`, id,
	).Scan(&l.ID, &l.Email, &l.Name, &l.PasswordHash, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// GetByEmail retrieves a learner by their unique email.
func (r *LearnerRepository) GetByEmail(ctx context.Context, email string) (*model.Learner, error) {
	l := &model.Learner{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at, updated_at
		 FROM learners WHERE lower(email) = lower($1)`, email,
	).Scan(&l.ID, &l.Email, &l.Name, &l.PasswordHash, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Create inserts a new learner.
func (r *LearnerRepository) Create(ctx context.Context, l *model.Learner) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO learners (email, name, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		l.Email, l.Name, l.PasswordHash,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return err
}
