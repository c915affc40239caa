package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/assessment"
	"github.com/stemsi/mockexam-backend/internal/middleware"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/runner"
	"github.com/stemsi/mockexam-backend/internal/service"
	"github.com/stemsi/mockexam-backend/internal/validator"
	ws "github.com/stemsi/mockexam-backend/internal/websocket"
	"github.com/stemsi/mockexam-backend/internal/widget"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// asLearner stands in for the JWT middleware.
func asLearner(id int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyLearnerID, id)
		c.Next()
	}
}

type fakeAttempts struct {
	owner    uuid.UUID
	applied  []runner.Command
	filter   assessment.Filter
	page     int
	perPage  int
	events   chan service.StreamEvent
	startErr error
}

func (f *fakeAttempts) check(id uuid.UUID, learnerID int) error {
	if id != f.owner || learnerID != 1 {
		return service.ErrAttemptNotFound
	}
	return nil
}

func (f *fakeAttempts) Start(_ context.Context, _ int, slug string) (*model.StartAttemptResponse, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &model.StartAttemptResponse{AttemptID: f.owner.String(), Exam: &model.Exam{Slug: slug}}, nil
}

func (f *fakeAttempts) State(_ context.Context, id uuid.UUID, learnerID int) (*model.AttemptState, error) {
	if err := f.check(id, learnerID); err != nil {
		return nil, err
	}
	return &model.AttemptState{AttemptID: id.String(), Snapshot: assessment.Snapshot{RemainingSeconds: 42}}, nil
}

func (f *fakeAttempts) Paper(_ context.Context, id uuid.UUID, learnerID int) ([]model.QuestionForLearner, error) {
	if err := f.check(id, learnerID); err != nil {
		return nil, err
	}
	return []model.QuestionForLearner{{Index: 0, ID: "q1", Prompt: "?", Options: []string{"a", "b"}}}, nil
}

func (f *fakeAttempts) Apply(_ context.Context, id uuid.UUID, learnerID int, cmd runner.Command) (*model.AttemptState, error) {
	if err := f.check(id, learnerID); err != nil {
		return nil, err
	}
	if !cmd.Action.Valid() {
		return nil, service.ErrInvalidAction
	}
	f.applied = append(f.applied, cmd)
	snap := assessment.Snapshot{RemainingSeconds: 42, Answers: map[int]int{}}
	if cmd.Action == runner.ActionSelect {
		snap.Answers[cmd.Question] = cmd.Option
		if f.events != nil {
			f.events <- service.StreamEvent{Type: service.StreamState, Snapshot: &snap}
		}
	}
	return &model.AttemptState{AttemptID: id.String(), Snapshot: snap}, nil
}

func (f *fakeAttempts) Submit(ctx context.Context, id uuid.UUID, learnerID int) (*model.AttemptState, error) {
	return f.Apply(ctx, id, learnerID, runner.Command{Action: runner.ActionSubmit})
}

func (f *fakeAttempts) Result(_ context.Context, id uuid.UUID, learnerID int) (*assessment.Result, error) {
	if err := f.check(id, learnerID); err != nil {
		return nil, err
	}
	return nil, service.ErrAttemptInProgress
}

func (f *fakeAttempts) Review(_ context.Context, id uuid.UUID, learnerID int, filter assessment.Filter) (*model.ReviewResponse, error) {
	if err := f.check(id, learnerID); err != nil {
		return nil, err
	}
	f.filter = filter
	return &model.ReviewResponse{AttemptID: id.String(), Filter: filter}, nil
}

func (f *fakeAttempts) History(_ context.Context, _ int, page, perPage int) ([]model.Attempt, *response.Pagination, error) {
	f.page, f.perPage = page, perPage
	return nil, response.NewPagination(page, perPage, 0), nil
}

func (f *fakeAttempts) Subscribe(_ context.Context, id uuid.UUID, learnerID int) (<-chan service.StreamEvent, func(), error) {
	if err := f.check(id, learnerID); err != nil {
		return nil, nil, err
	}
	return f.events, func() {}, nil
}

func attemptRouter(f *fakeAttempts) *gin.Engine {
	h := NewAttemptHandler(f)
	r := gin.New()
	g := r.Group("/api/v1/learner", asLearner(1))
	g.POST("/exams/:slug/attempts", h.StartAttempt)
	g.GET("/attempts", h.ListAttempts)
	g.GET("/attempts/:id", h.GetState)
	g.GET("/attempts/:id/paper", h.GetPaper)
	g.POST("/attempts/:id/actions", h.PostAction)
	g.POST("/attempts/:id/submit", h.SubmitAttempt)
	g.GET("/attempts/:id/result", h.GetResult)
	g.GET("/attempts/:id/review", h.GetReview)
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAttemptEndpoints(t *testing.T) {
	f := &fakeAttempts{owner: uuid.New()}
	r := attemptRouter(f)
	base := "/api/v1/learner/attempts/" + f.owner.String()

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
		wantBody string
	}{
		{"start", http.MethodPost, "/api/v1/learner/exams/aws-ccp/attempts", "", 201, `"slug":"aws-ccp"`},
		{"state", http.MethodGet, base, "", 200, `"remaining_seconds":42`},
		{"paper hides answers", http.MethodGet, base + "/paper", "", 200, `"id":"q1"`},
		{"bad id", http.MethodGet, "/api/v1/learner/attempts/nope", "", 400, "INVALID_ID"},
		{"someone else's attempt", http.MethodGet, "/api/v1/learner/attempts/" + uuid.NewString(), "", 404, "ATTEMPT_NOT_FOUND"},
		{"select", http.MethodPost, base + "/actions", `{"action":"select","question":1,"option":2}`, 200, `"answers":{"1":2}`},
		{"unknown action", http.MethodPost, base + "/actions", `{"action":"teleport"}`, 400, "VALIDATION_ERROR"},
		{"negative option", http.MethodPost, base + "/actions", `{"action":"select","question":0,"option":-1}`, 400, "VALIDATION_ERROR"},
		{"submit", http.MethodPost, base + "/submit", "", 200, f.owner.String()},
		{"result before submit", http.MethodGet, base + "/result", "", 409, "ATTEMPT_IN_PROGRESS"},
		{"review bad filter", http.MethodGet, base + "/review?filter=skipped", "", 400, "VALIDATION_ERROR"},
		{"review", http.MethodGet, base + "/review?filter=flagged", "", 200, `"filter":"flagged"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, tc.method, tc.target, tc.body)
			if w.Code != tc.wantCode || !strings.Contains(w.Body.String(), tc.wantBody) {
				t.Errorf("got %d %s", w.Code, w.Body.String())
			}
		})
	}

	if len(f.applied) != 2 || f.applied[1].Action != runner.ActionSubmit {
		t.Errorf("applied = %+v", f.applied)
	}
}

func TestReviewDefaultsToAll(t *testing.T) {
	f := &fakeAttempts{owner: uuid.New()}
	w := do(attemptRouter(f), http.MethodGet, "/api/v1/learner/attempts/"+f.owner.String()+"/review", "")
	if w.Code != http.StatusOK || f.filter != assessment.FilterAll {
		t.Errorf("code=%d filter=%q", w.Code, f.filter)
	}
}

func TestListAttempts(t *testing.T) {
	f := &fakeAttempts{owner: uuid.New()}
	w := do(attemptRouter(f), http.MethodGet, "/api/v1/learner/attempts?page=3&per_page=5", "")

	var body struct {
		Data struct {
			Attempts []model.Attempt `json:"attempts"`
		} `json:"data"`
		Pagination response.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if f.page != 3 || f.perPage != 5 || body.Data.Attempts == nil || body.Pagination.Page != 3 {
		t.Errorf("page=%d perPage=%d body=%s", f.page, f.perPage, w.Body.String())
	}
}

func TestStartUnknownExam(t *testing.T) {
	f := &fakeAttempts{owner: uuid.New(), startErr: service.ErrExamNotFound}
	w := do(attemptRouter(f), http.MethodPost, "/api/v1/learner/exams/nope/attempts", "")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "EXAM_NOT_FOUND") {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
}

type fakeAuth struct{ loggedOut int }

func (f *fakeAuth) Login(_ context.Context, email, password string) (*model.LearnerLoginResponse, error) {
	if password != "secret" {
		return nil, service.ErrInvalidCredentials
	}
	return &model.LearnerLoginResponse{Token: "tok", Learner: model.Learner{ID: 1, Email: email}}, nil
}

func (f *fakeAuth) Me(_ context.Context, id int) (*model.Learner, error) {
	return &model.Learner{ID: id, Name: "Ada"}, nil
}

func (f *fakeAuth) Logout(_ context.Context, id int) error {
	f.loggedOut = id
	return nil
}

func TestAuthEndpoints(t *testing.T) {
	f := &fakeAuth{}
	h := NewAuthHandler(f)
	r := gin.New()
	r.POST("/login", h.Login)
	r.GET("/me", asLearner(9), h.Me)
	r.POST("/logout", asLearner(9), h.Logout)

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
		wantBody string
	}{
		{"login", http.MethodPost, "/login", `{"email":"ada@example.com","password":"secret"}`, 200, `"token":"tok"`},
		{"wrong password", http.MethodPost, "/login", `{"email":"ada@example.com","password":"nope1"}`, 401, "INVALID_CREDENTIALS"},
		{"bad email", http.MethodPost, "/login", `{"email":"ada","password":"secret"}`, 400, `"email"`},
		{"me", http.MethodGet, "/me", "", 200, `"name":"Ada"`},
		{"logout", http.MethodPost, "/logout", "", 200, `"data":{}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, tc.method, tc.target, tc.body)
			if w.Code != tc.wantCode || !strings.Contains(w.Body.String(), tc.wantBody) {
				t.Errorf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
	if f.loggedOut != 9 {
		t.Errorf("logged out learner %d", f.loggedOut)
	}
}

func TestWidgetEndpoints(t *testing.T) {
	svc := service.NewWidgetService(widget.NewMemoryStore(), widget.DefaultZones, zerolog.Nop())
	h := NewWidgetHandler(svc)
	r := gin.New()
	g := r.Group("/widget", asLearner(1))
	g.GET("", h.GetWidget)
	g.PUT("", h.UpdateWidget)
	g.POST("/events", h.PostWidgetEvent)

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
		wantBody string
	}{
		{"default", http.MethodGet, "/widget", "", 200, `"side":"right"`},
		{"dock left", http.MethodPut, "/widget", `{"drop":{"point":{"x":10,"y":300},"viewport":{"width":400,"height":800}}}`, 200, `"side":"left"`},
		{"zero viewport", http.MethodPut, "/widget", `{"drop":{"point":{"x":10,"y":300},"viewport":{"width":0,"height":800}}}`, 400, "VALIDATION_ERROR"},
		{"persisted", http.MethodGet, "/widget", "", 200, `"x":16`},
		{"connect", http.MethodPost, "/widget/events", `{"event":"connect"}`, 200, `"state":"connecting"`},
		{"bogus event", http.MethodPost, "/widget/events", `{"event":"explode"}`, 400, "VALIDATION_ERROR"},
		{"out of order", http.MethodPost, "/widget/events", `{"event":"reset"}`, 200, `"accepted":false`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, tc.method, tc.target, tc.body)
			if w.Code != tc.wantCode || !strings.Contains(w.Body.String(), tc.wantBody) {
				t.Errorf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAttemptStream(t *testing.T) {
	f := &fakeAttempts{owner: uuid.New(), events: make(chan service.StreamEvent, 4)}
	h := NewWSHandler(f, zerolog.Nop(), nil)
	r := gin.New()
	r.GET("/ws/:id", asLearner(1), h.AttemptStream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/"
	if _, resp, err := websocket.DefaultDialer.Dial(url+uuid.NewString(), nil); err == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign attempt dial err=%v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url+f.owner.String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	read := func() ws.Message {
		t.Helper()
		var m ws.Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatal(err)
		}
		return m
	}

	if m := read(); m.Event != ws.EventState || m.Snapshot == nil || m.Snapshot.RemainingSeconds != 42 {
		t.Fatalf("first message = %+v", m)
	}

	_ = conn.WriteJSON(ws.Request{Action: ws.ActionPing})
	if m := read(); m.Event != ws.EventPong {
		t.Errorf("ping answered with %+v", m)
	}

	_ = conn.WriteJSON(ws.Request{Action: "select", Question: 2, Option: 1})
	if m := read(); m.Event != ws.EventState || m.Snapshot.Answers[2] != 1 {
		t.Errorf("select broadcast = %+v", m)
	}

	_ = conn.WriteJSON(ws.Request{Action: "teleport"})
	if m := read(); m.Event != ws.EventError || m.Error != "unknown action" {
		t.Errorf("bad action answered with %+v", m)
	}

	f.events <- service.StreamEvent{Type: service.StreamGraded, Result: &assessment.Result{Total: 3}}
	if m := read(); m.Event != ws.EventGraded || m.Result == nil || m.Result.Total != 3 {
		t.Errorf("graded = %+v", m)
	}
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return context.DeadlineExceeded }
	depth := func(context.Context) (int64, error) { return 7, nil }

	tests := []struct {
		name     string
		checks   map[string]HealthCheck
		wantCode int
	}{
		{"healthy", map[string]HealthCheck{"postgres": ok, "redis": ok}, 200},
		{"redis down", map[string]HealthCheck{"postgres": ok, "redis": down}, 503},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewSystemHandler(tc.checks, map[string]QueueDepth{"answers": depth}, zerolog.Nop())
			r := gin.New()
			r.GET("/health", h.Health)
			w := do(r, http.MethodGet, "/health", "")
			if w.Code != tc.wantCode || !strings.Contains(w.Body.String(), `"answers":7`) {
				t.Errorf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}
