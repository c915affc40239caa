// Command seed-bank loads a question bank and the exams drawn from it.
//
//	seed-bank -file banks/aws-ccp.json
//
// The file holds one bank and any number of exam definitions:
//
//	{"bank": "aws-ccp", "questions": [...], "exams": [{"slug": "aws-ccp-quiz", ...}]}
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/stemsi/mockexam-backend/internal/assessment"
	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/database"
	"github.com/stemsi/mockexam-backend/internal/logger"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/repository"
	"github.com/stemsi/mockexam-backend/internal/service"
)

type seedFile struct {
	Bank      string                 `json:"bank"`
	Questions []assessment.Question  `json:"questions"`
	Exams     []model.ExamDefinition `json:"exams"`
}

func readSeed(r io.Reader) (*seedFile, error) {
	var f seedFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if f.Bank == "" {
		return nil, errors.New("seed file has no bank")
	}
	if len(f.Exams) == 0 {
		return nil, errors.New("seed file has no exams")
	}
	if err := assessment.ValidateAll(f.Questions); err != nil {
		return nil, err
	}
	for i := range f.Exams {
		if f.Exams[i].BankSlug == "" {
			f.Exams[i].BankSlug = f.Bank
		}
		if f.Exams[i].BankSlug != f.Bank {
			return nil, fmt.Errorf("exam %q draws from bank %q, file holds %q", f.Exams[i].Slug, f.Exams[i].BankSlug, f.Bank)
		}
		if f.Exams[i].QuestionCount > len(f.Questions) {
			return nil, fmt.Errorf("exam %q wants %d questions, bank has %d", f.Exams[i].Slug, f.Exams[i].QuestionCount, len(f.Questions))
		}
	}
	return &f, nil
}

func main() {
	var path string
	flag.StringVar(&path, "file", "", "Path to the bank JSON file")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if path == "" {
		log.Fatal().Msg("-file is required")
	}

	fh, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open seed file")
	}
	seed, err := readSeed(fh)
	fh.Close()
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Invalid seed file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examService := service.NewExamService(
		repository.NewExamRepository(pool),
		repository.NewQuestionRepository(pool),
		rdb, log,
	)

	fmt.Printf("=== Seeding bank %s (%d questions) ===\n", seed.Bank, len(seed.Questions))
	for i := range seed.Exams {
		exam, err := examService.Seed(ctx, &seed.Exams[i], seed.Questions)
		if err != nil {
			log.Fatal().Err(err).Str("exam", seed.Exams[i].Slug).Msg("Failed to seed exam")
		}
		fmt.Printf("  %s: %d questions, %ds, %s sampling\n", exam.Slug, exam.QuestionCount, exam.TimeLimitSeconds, exam.Sampling)
	}
	fmt.Println("Done.")
}
