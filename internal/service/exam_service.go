package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/assessment"
	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/repository"
)

// Exam errors.
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrNoQuestions      = errors.New("question bank is empty")
	ErrUnknownQuestion  = errors.New("question not in bank")
	ErrInvalidExamSetup = errors.New("invalid exam definition")
)

// ExamService serves exam definitions and draws papers from cached banks.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// List returns every exam definition.
func (s *ExamService) List(ctx context.Context) ([]model.Exam, error) {
	return s.examRepo.List(ctx)
}

// GetBySlug returns one exam definition.
func (s *ExamService) GetBySlug(ctx context.Context, slug string) (*model.Exam, error) {
	exam, err := s.examRepo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam %s: %w", slug, err)
	}
	return exam, nil
}

// LoadBank returns a bank from Redis, falling back to PostgreSQL and
// re-caching on a miss.
func (s *ExamService) LoadBank(ctx context.Context, bankSlug string) ([]assessment.Question, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.BankPayloadKey(bankSlug)).Bytes()
	if err == nil {
		var qs []assessment.Question
		if err := json.Unmarshal(data, &qs); err == nil && len(qs) > 0 {
			return qs, nil
		}
		s.log.Warn().Str("bank", bankSlug).Msg("Corrupt bank cache, reloading")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("bank", bankSlug).Msg("Bank cache unavailable, reading database")
	}

	qs, err := s.warmBank(ctx, bankSlug)
	if err != nil {
		return nil, err
	}
	return qs, nil
}

func (s *ExamService) warmBank(ctx context.Context, bankSlug string) ([]assessment.Question, error) {
	qs, err := s.questionRepo.ListByBank(ctx, bankSlug)
	if err != nil {
		return nil, fmt.Errorf("list bank %s: %w", bankSlug, err)
	}
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}

	payload, err := json.Marshal(qs)
	if err != nil {
		return nil, fmt.Errorf("marshal bank: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.BankPayloadKey(bankSlug), payload, 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("bank", bankSlug).Msg("Failed to cache bank")
	}

	s.log.Debug().Str("bank", bankSlug).Int("questions", len(qs)).Msg("Bank cache warmed")
	return qs, nil
}

// PrewarmAllCaches loads every bank referenced by an exam into Redis on startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}
	if len(exams) == 0 {
		s.log.Info().Msg("No exams to prewarm")
		return nil
	}

	seen := make(map[string]bool)
	warmed := 0
	for _, e := range exams {
		if seen[e.BankSlug] {
			continue
		}
		seen[e.BankSlug] = true
		if _, err := s.warmBank(ctx, e.BankSlug); err != nil {
			s.log.Warn().Err(err).Str("bank", e.BankSlug).Msg("Failed to warm bank, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("banks", len(seen)).Msg("Prewarming complete")
	return nil
}

// Draw samples a fresh paper for exam.
func (s *ExamService) Draw(ctx context.Context, exam *model.Exam) ([]assessment.Question, error) {
	bank, err := s.LoadBank(ctx, exam.BankSlug)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return DrawPaper(exam, bank, s.rng)
}

// DrawPaper applies the exam's sampling mode to bank.
func DrawPaper(exam *model.Exam, bank []assessment.Question, rng *rand.Rand) ([]assessment.Question, error) {
	var paper []assessment.Question
	switch exam.Sampling {
	case model.SamplingBalanced:
		if exam.Weighted() {
			paper = assessment.SampleBalancedByDifficulty(bank, exam.QuestionCount, exam.Categories, exam.Distribution(), rng)
		} else {
			paper = assessment.SampleBalanced(bank, exam.QuestionCount, exam.Categories, rng)
		}
	case model.SamplingRandom:
		paper = assessment.SampleRandom(bank, exam.QuestionCount, rng)
	default:
		paper = assessment.SampleByDifficulty(bank, exam.QuestionCount, exam.Distribution(), rng)
	}
	if len(paper) == 0 {
		return nil, ErrNoQuestions
	}
	return paper, nil
}

// Questions returns the bank questions with the given IDs, in that order.
func (s *ExamService) Questions(ctx context.Context, exam *model.Exam, ids []string) ([]assessment.Question, error) {
	bank, err := s.LoadBank(ctx, exam.BankSlug)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]assessment.Question, len(bank))
	for _, q := range bank {
		byID[q.ID] = q
	}
	out := make([]assessment.Question, len(ids))
	for i, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, id)
		}
		out[i] = q
	}
	return out, nil
}

// Seed replaces a bank and upserts its exam definition, then refreshes the cache.
func (s *ExamService) Seed(ctx context.Context, def *model.ExamDefinition, questions []assessment.Question) (*model.Exam, error) {
	if def.Slug == "" || def.BankSlug == "" || def.QuestionCount <= 0 || def.TimeLimitSeconds <= 0 {
		return nil, ErrInvalidExamSetup
	}
	if err := assessment.ValidateAll(questions); err != nil {
		return nil, fmt.Errorf("validate bank: %w", err)
	}

	exam := &model.Exam{
		Slug:              def.Slug,
		Title:             def.Title,
		Description:       def.Description,
		BankSlug:          def.BankSlug,
		QuestionCount:     def.QuestionCount,
		TimeLimitSeconds:  def.TimeLimitSeconds,
		PassThreshold:     def.PassThreshold,
		MarginalThreshold: def.MarginalThreshold,
		Sampling:          def.Sampling,
		Categories:        def.Categories,
	}
	if exam.Sampling == "" {
		exam.Sampling = model.SamplingDifficulty
	}
	if def.Distribution != nil {
		exam.BasicWeight = def.Distribution.Basic
		exam.IntermediateWeight = def.Distribution.Intermediate
		exam.AdvancedWeight = def.Distribution.Advanced
	}

	if err := s.questionRepo.ReplaceBank(ctx, def.BankSlug, questions); err != nil {
		return nil, fmt.Errorf("replace bank: %w", err)
	}
	if err := s.examRepo.Upsert(ctx, exam); err != nil {
		return nil, fmt.Errorf("upsert exam: %w", err)
	}
	if _, err := s.warmBank(ctx, def.BankSlug); err != nil {
		return nil, err
	}
	return exam, nil
}
