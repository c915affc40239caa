package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/response"
)

// ExamLister is the read side of ExamService.
type ExamLister interface {
	List(ctx context.Context) ([]model.Exam, error)
	GetBySlug(ctx context.Context, slug string) (*model.Exam, error)
}

// ExamHandler serves the exam catalogue.
type ExamHandler struct {
	exams ExamLister
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(exams ExamLister) *ExamHandler {
	return &ExamHandler{exams: exams}
}

// ListExams godoc
// GET /api/v1/exams
func (h *ExamHandler) ListExams(c *gin.Context) {
	exams, err := h.exams.List(c.Request.Context())
	if err != nil {
		failFromError(c, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/exams/:slug
func (h *ExamHandler) GetExam(c *gin.Context) {
	exam, err := h.exams.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}
