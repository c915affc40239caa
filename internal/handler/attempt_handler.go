package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/mockexam-backend/internal/assessment"
	"github.com/stemsi/mockexam-backend/internal/middleware"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/runner"
	"github.com/stemsi/mockexam-backend/internal/validator"
)

// Attempts is the part of AttemptService the HTTP endpoints use.
type Attempts interface {
	Start(ctx context.Context, learnerID int, examSlug string) (*model.StartAttemptResponse, error)
	State(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.AttemptState, error)
	Paper(ctx context.Context, attemptID uuid.UUID, learnerID int) ([]model.QuestionForLearner, error)
	Apply(ctx context.Context, attemptID uuid.UUID, learnerID int, cmd runner.Command) (*model.AttemptState, error)
	Submit(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.AttemptState, error)
	Result(ctx context.Context, attemptID uuid.UUID, learnerID int) (*assessment.Result, error)
	Review(ctx context.Context, attemptID uuid.UUID, learnerID int, filter assessment.Filter) (*model.ReviewResponse, error)
	History(ctx context.Context, learnerID, page, perPage int) ([]model.Attempt, *response.Pagination, error)
}

// AttemptHandler handles the learner's exam attempts.
type AttemptHandler struct {
	attempts Attempts
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts Attempts) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

// attemptID parses :id, writing the error response itself.
func attemptID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// StartAttempt godoc
// POST /api/v1/learner/exams/:slug/attempts
// Draws a fresh paper and starts the clock. Starting again is a retake and
// abandons the learner's unfinished attempt at the same exam.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	resp, err := h.attempts.Start(c.Request.Context(), middleware.LearnerID(c), c.Param("slug"))
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, resp)
}

// GetState godoc
// GET /api/v1/learner/attempts/:id
// Covers page reloads: returns the current question, answers, flags and the
// remaining time. An attempt lost by a restart resumes here.
func (h *AttemptHandler) GetState(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	st, err := h.attempts.State(c.Request.Context(), id, middleware.LearnerID(c))
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, st)
}

// GetPaper godoc
// GET /api/v1/learner/attempts/:id/paper
// Returns the attempt's questions without their answer keys.
func (h *AttemptHandler) GetPaper(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	questions, err := h.attempts.Paper(c.Request.Context(), id, middleware.LearnerID(c))
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// PostAction godoc
// POST /api/v1/learner/attempts/:id/actions
// Applies one navigation, answer or flag command.
func (h *AttemptHandler) PostAction(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	var req model.ActionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	st, err := h.attempts.Apply(c.Request.Context(), id, middleware.LearnerID(c), runner.Command{
		Action:   runner.Action(req.Action),
		Question: req.Question,
		Option:   req.Option,
		Index:    req.Index,
	})
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, st)
}

// SubmitAttempt godoc
// POST /api/v1/learner/attempts/:id/submit
// Ends the attempt. Submitting twice returns the same result.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	st, err := h.attempts.Submit(c.Request.Context(), id, middleware.LearnerID(c))
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, st)
}

// GetResult godoc
// GET /api/v1/learner/attempts/:id/result
func (h *AttemptHandler) GetResult(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	res, err := h.attempts.Result(c.Request.Context(), id, middleware.LearnerID(c))
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// GetReview godoc
// GET /api/v1/learner/attempts/:id/review?filter=all|correct|incorrect|unanswered|flagged
func (h *AttemptHandler) GetReview(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	var q model.ReviewQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	filter := assessment.Filter(q.Filter)
	if filter == "" {
		filter = assessment.FilterAll
	}

	review, err := h.attempts.Review(c.Request.Context(), id, middleware.LearnerID(c), filter)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, review)
}

// ListAttempts godoc
// GET /api/v1/learner/attempts?page=&per_page=
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	attempts, pagination, err := h.attempts.History(c.Request.Context(), middleware.LearnerID(c), page, perPage)
	if err != nil {
		failFromError(c, err)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": attempts}, pagination)
}
