package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/mockexam-backend/internal/assessment"
)

// SamplingMode selects how an exam draws its paper from the bank.
type SamplingMode string

const (
	SamplingDifficulty SamplingMode = "difficulty"
	SamplingBalanced   SamplingMode = "balanced"
	SamplingRandom     SamplingMode = "random"
)

// Exam is a mock exam definition backed by a question bank.
type Exam struct {
	ID                 uuid.UUID    `json:"id"`
	Slug               string       `json:"slug"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	BankSlug           string       `json:"bank_slug"`
	QuestionCount      int          `json:"question_count"`
	TimeLimitSeconds   int          `json:"time_limit_seconds"`
	PassThreshold      int          `json:"pass_threshold"`
	MarginalThreshold  int          `json:"marginal_threshold"`
	Sampling           SamplingMode `json:"sampling"`
	BasicWeight        int          `json:"basic_weight"`
	IntermediateWeight int          `json:"intermediate_weight"`
	AdvancedWeight     int          `json:"advanced_weight"`
	Categories         []string     `json:"categories"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Distribution returns the difficulty weights, falling back to the
// default split when none are stored.
func (e *Exam) Distribution() assessment.Distribution {
	d := assessment.Distribution{
		Basic:        e.BasicWeight,
		Intermediate: e.IntermediateWeight,
		Advanced:     e.AdvancedWeight,
	}
	if d.Basic+d.Intermediate+d.Advanced == 0 {
		return assessment.DefaultDistribution
	}
	return d
}

// Weighted reports whether difficulty weights were stored for the exam.
func (e *Exam) Weighted() bool {
	return e.BasicWeight+e.IntermediateWeight+e.AdvancedWeight > 0
}

// Thresholds returns pass and marginal percentages with defaults applied.
func (e *Exam) Thresholds(defaultPass int) (pass, marginal int) {
	pass = e.PassThreshold
	if pass <= 0 {
		pass = defaultPass
	}
	marginal = e.MarginalThreshold
	if marginal <= 0 {
		marginal = assessment.DefaultMarginalThreshold
	}
	return pass, marginal
}

// ExamDefinition is the seed file format for an exam and its bank.
type ExamDefinition struct {
	Slug              string                   `json:"slug"`
	Title             string                   `json:"title"`
	Description       string                   `json:"description"`
	BankSlug          string                   `json:"bank_slug"`
	QuestionCount     int                      `json:"question_count"`
	TimeLimitSeconds  int                      `json:"time_limit_seconds"`
	PassThreshold     int                      `json:"pass_threshold"`
	MarginalThreshold int                      `json:"marginal_threshold"`
	Sampling          SamplingMode             `json:"sampling"`
	Distribution      *assessment.Distribution `json:"distribution,omitempty"`
	Categories        []string                 `json:"categories"`
}
