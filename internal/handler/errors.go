package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/service"
)

// failFromError maps service errors onto API error codes.
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	case errors.Is(err, service.ErrAttemptSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptSubmitted)
	case errors.Is(err, service.ErrAttemptInProgress):
		response.Fail(c, http.StatusConflict, response.ErrAttemptInProgress)
	case errors.Is(err, service.ErrAttemptClosed):
		response.Fail(c, http.StatusGone, response.ErrAttemptClosed)
	case errors.Is(err, service.ErrInvalidAction):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidAction)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled service error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
