package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/mockexam-backend/internal/middleware"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/service"
	"github.com/stemsi/mockexam-backend/internal/validator"
)

// Authenticator is the part of AuthService the auth endpoints use.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*model.LearnerLoginResponse, error)
	Me(ctx context.Context, learnerID int) (*model.Learner, error)
	Logout(ctx context.Context, learnerID int) error
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	auth Authenticator
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth Authenticator) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login godoc
// POST /api/v1/auth/login
// Validates email + password and returns a JWT. Any earlier session of the
// same learner is signed out.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LearnerLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}

// Me godoc
// GET /api/v1/auth/me
// Returns the profile of the currently authenticated learner.
func (h *AuthHandler) Me(c *gin.Context) {
	learner, err := h.auth.Me(c.Request.Context(), middleware.LearnerID(c))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"learner": learner})
}

// Logout godoc
// POST /api/v1/auth/logout
// Ends the learner's session on every device.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.LearnerID(c)); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
