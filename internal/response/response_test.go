package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(w, req)

	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return w, body
}

func TestSuccessEnvelope(t *testing.T) {
	w, body := perform(t, func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"ok": true})
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body.Error != nil {
		t.Errorf("unexpected error body: %+v", body.Error)
	}
	if body.Metadata.RequestID != "req-1" || w.Header().Get("X-Request-ID") != "req-1" {
		t.Errorf("request id not propagated: %+v", body.Metadata)
	}
	if body.Metadata.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestFailWithFields(t *testing.T) {
	w, body := perform(t, func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"option": "option is required"})
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if body.Error == nil || body.Error.Code != ErrValidation || body.Error.Fields["option"] == "" {
		t.Fatalf("error body = %+v", body.Error)
	}
	if body.Error.Message != GetMessage(ErrValidation) {
		t.Errorf("message = %q", body.Error.Message)
	}
}

func TestGetMessageUnknownCode(t *testing.T) {
	if got := GetMessage("NOPE"); got != "An unexpected error occurred." {
		t.Errorf("GetMessage(unknown) = %q", got)
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 21)
	if p.TotalPages != 3 || p.Page != 2 || p.TotalItems != 21 {
		t.Errorf("pagination = %+v", p)
	}
}
