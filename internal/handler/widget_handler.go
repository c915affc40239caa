package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/mockexam-backend/internal/middleware"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/validator"
	"github.com/stemsi/mockexam-backend/internal/widget"
)

// Widgets is the part of WidgetService the endpoints use.
type Widgets interface {
	Preference(ctx context.Context, learnerID int) (widget.Preference, error)
	Update(ctx context.Context, learnerID int, req *model.UpdateWidgetRequest) (widget.Preference, error)
	Fire(learnerID int, ev widget.Event, reason string) model.WidgetConnectionState
}

// WidgetHandler serves the floating voice widget's settings and state.
type WidgetHandler struct {
	widgets Widgets
}

// NewWidgetHandler creates a new WidgetHandler.
func NewWidgetHandler(widgets Widgets) *WidgetHandler {
	return &WidgetHandler{widgets: widgets}
}

// GetWidget godoc
// GET /api/v1/learner/widget
func (h *WidgetHandler) GetWidget(c *gin.Context) {
	p, err := h.widgets.Preference(c.Request.Context(), middleware.LearnerID(c))
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"widget": p})
}

// UpdateWidget godoc
// PUT /api/v1/learner/widget
// Toggles the widget or records where it was dropped.
func (h *WidgetHandler) UpdateWidget(c *gin.Context) {
	var req model.UpdateWidgetRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	p, err := h.widgets.Update(c.Request.Context(), middleware.LearnerID(c), &req)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"widget": p})
}

// PostWidgetEvent godoc
// POST /api/v1/learner/widget/events
// Feeds a voice SDK callback into the connection state machine. Events that
// are not valid in the current state are reported with accepted=false.
func (h *WidgetHandler) PostWidgetEvent(c *gin.Context) {
	var req model.WidgetEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	st := h.widgets.Fire(middleware.LearnerID(c), req.Event, req.Reason)
	response.Success(c, http.StatusOK, gin.H{"connection": st})
}
