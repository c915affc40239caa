package model

import (
	"github.com/stemsi/mockexam-backend/internal/assessment"
)

// BankQuestion is one stored question of a bank.
type BankQuestion struct {
	BankSlug string `json:"bank_slug"`
	assessment.Question
}

// QuestionForLearner is a question without its answer or explanation.
type QuestionForLearner struct {
	Index    int                 `json:"index"`
	ID       string              `json:"id"`
	Prompt   string              `json:"prompt"`
	Options  []string            `json:"options"`
	Metadata assessment.Metadata `json:"metadata"`
}

// ForLearner strips answer data from a drawn paper.
func ForLearner(questions []assessment.Question) []QuestionForLearner {
	out := make([]QuestionForLearner, len(questions))
	for i, q := range questions {
		out[i] = QuestionForLearner{
			Index:    i,
			ID:       q.ID,
			Prompt:   q.Prompt,
			Options:  q.Options,
			Metadata: q.Metadata,
		}
	}
	return out
}
