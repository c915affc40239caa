package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/mockexam-backend/internal/assessment"
)

// AttemptStatus mirrors the session lifecycle once persisted.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"

	// AttemptStatusAbandoned marks an unfinished attempt replaced by a retake.
	AttemptStatusAbandoned AttemptStatus = "ABANDONED"
)

// Attempt is one learner's sitting of an exam.
type Attempt struct {
	ID          uuid.UUID          `json:"id"`
	ExamID      uuid.UUID          `json:"exam_id"`
	ExamSlug    string             `json:"exam_slug"`
	ExamTitle   string             `json:"exam_title"`
	LearnerID   int                `json:"learner_id"`
	QuestionIDs []string           `json:"question_ids"`
	TimeLimit   int                `json:"time_limit_seconds"`
	Status      AttemptStatus      `json:"status"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Result      *assessment.Result `json:"result,omitempty"`
}

// AnswerEvent is queued for every answer or flag change.
// Option is -1 when the answer was cleared.
type AnswerEvent struct {
	AttemptID     string    `json:"attempt_id"`
	QuestionIndex int       `json:"question_index"`
	Option        int       `json:"option"`
	Flagged       bool      `json:"flagged"`
	At            time.Time `json:"at"`
}

// ResultEvent is queued once an attempt is submitted and scored.
type ResultEvent struct {
	AttemptID  string            `json:"attempt_id"`
	LearnerID  int               `json:"learner_id"`
	ExamSlug   string            `json:"exam_slug"`
	Result     assessment.Result `json:"result"`
	FinishedAt time.Time         `json:"finished_at"`
}

// StartAttemptResponse is returned when an attempt begins.
type StartAttemptResponse struct {
	AttemptID string               `json:"attempt_id"`
	Exam      *Exam                `json:"exam"`
	Questions []QuestionForLearner `json:"questions"`
	State     AttemptState         `json:"state"`
}

// AttemptState is the live view of an attempt.
type AttemptState struct {
	AttemptID string              `json:"attempt_id"`
	Snapshot  assessment.Snapshot `json:"snapshot"`
	Result    *assessment.Result  `json:"result,omitempty"`
}

// ActionRequest is one runner command sent over HTTP or the stream.
type ActionRequest struct {
	Action   string `json:"action" binding:"required,exam_action"`
	Question int    `json:"question" binding:"min=0"`
	Option   int    `json:"option" binding:"min=0"`
	Index    int    `json:"index"`
}

// ReviewQuery selects the review filter.
type ReviewQuery struct {
	Filter string `form:"filter" binding:"omitempty,review_filter"`
}

// ReviewItem is one question as shown after submission.
type ReviewItem struct {
	Index         int                `json:"index"`
	ID            string             `json:"id"`
	Prompt        string             `json:"prompt"`
	Options       []string           `json:"options"`
	Chosen        *int               `json:"chosen"`
	CorrectOption int                `json:"correct_option"`
	Explanation   string             `json:"explanation,omitempty"`
	Outcome       assessment.Outcome `json:"outcome"`
	Flagged       bool               `json:"flagged"`
}

// ReviewResponse is the filtered review of a submitted attempt.
type ReviewResponse struct {
	AttemptID string                    `json:"attempt_id"`
	Filter    assessment.Filter         `json:"filter"`
	Counts    map[assessment.Filter]int `json:"counts"`
	Result    assessment.Result         `json:"result"`
	Items     []ReviewItem              `json:"items"`
}
