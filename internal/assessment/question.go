package assessment

import (
	"errors"
	"fmt"
)

// Difficulty bands used by the mock exam banks.
type Difficulty string

const (
	DifficultyBasic        Difficulty = "basic"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Metadata classifies a question for display and sampling. It never affects scoring.
type Metadata struct {
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Topic      string     `json:"topic,omitempty"`
	Section    string     `json:"section,omitempty"`
	Category   string     `json:"category,omitempty"`
}

// Question is a single multiple-choice item.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Explanation   string   `json:"explanation,omitempty"`
	Metadata      Metadata `json:"metadata"`
}

var (
	ErrQuestionID      = errors.New("question id is required")
	ErrTooFewOptions   = errors.New("question needs at least two options")
	ErrCorrectOutRange = errors.New("correct option is out of range")
	ErrDuplicateID     = errors.New("duplicate question id")
)

// Validate checks the structural invariants of a question.
func (q Question) Validate() error {
	if q.ID == "" {
		return ErrQuestionID
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%s: %w", q.ID, ErrTooFewOptions)
	}
	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		return fmt.Errorf("%s: %w", q.ID, ErrCorrectOutRange)
	}
	return nil
}

// ValidOption reports whether opt indexes one of the question's options.
func (q Question) ValidOption(opt int) bool {
	return opt >= 0 && opt < len(q.Options)
}

// ValidateAll validates every question and rejects duplicate IDs.
func ValidateAll(questions []Question) error {
	seen := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return err
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%s: %w", q.ID, ErrDuplicateID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}
