package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/assessment"
	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/event"
	"github.com/stemsi/mockexam-backend/internal/metrics"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/runner"
)

// Attempt errors.
var (
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrAttemptSubmitted  = errors.New("attempt already submitted")
	ErrAttemptInProgress = errors.New("attempt still in progress")
	ErrAttemptClosed     = errors.New("attempt is no longer live")
	ErrInvalidAction     = errors.New("unknown attempt action")
)

// ExamCatalog is the part of ExamService attempts depend on.
type ExamCatalog interface {
	GetBySlug(ctx context.Context, slug string) (*model.Exam, error)
	Draw(ctx context.Context, exam *model.Exam) ([]assessment.Question, error)
	Questions(ctx context.Context, exam *model.Exam, ids []string) ([]assessment.Question, error)
}

// AttemptStore persists attempts.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	ListByLearner(ctx context.Context, learnerID, limit, offset int) ([]model.Attempt, int, error)
	Answers(ctx context.Context, attemptID uuid.UUID) (map[int]int, []int, error)
	AbandonOpen(ctx context.Context, learnerID int, examID, keep uuid.UUID) (int64, error)
}

// AttemptSink mirrors live attempt state so the workers can persist it.
type AttemptSink interface {
	AnswerChanged(ctx context.Context, ev *model.AnswerEvent) error
	Submitted(ctx context.Context, ev *model.ResultEvent) error
	// Restore returns mirrored answers; found is false when nothing is mirrored.
	Restore(ctx context.Context, attemptID string) (answers map[int]int, flagged []int, found bool, err error)
	// CachedResult returns nil without error when no result is cached.
	CachedResult(ctx context.Context, attemptID string) (*assessment.Result, error)
}

// StreamEventType names messages pushed to attempt subscribers.
type StreamEventType string

const (
	StreamState  StreamEventType = "state"
	StreamTick   StreamEventType = "tick"
	StreamGraded StreamEventType = "graded"
	StreamError  StreamEventType = "error"
)

// StreamEvent is one message to a live attempt subscriber.
type StreamEvent struct {
	Type     StreamEventType      `json:"type"`
	Snapshot *assessment.Snapshot `json:"snapshot,omitempty"`
	Result   *assessment.Result   `json:"result,omitempty"`
	Error    string               `json:"error,omitempty"`
}

type liveAttempt struct {
	attempt   *model.Attempt
	exam      *model.Exam
	questions []assessment.Question
	runner    *runner.Runner

	mu          sync.Mutex
	sub         *assessment.Submission
	result      *assessment.Result
	submittedAt time.Time
	watchers    map[chan StreamEvent]struct{}
}

func (la *liveAttempt) graded() (*assessment.Submission, *assessment.Result, time.Time) {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.sub, la.result, la.submittedAt
}

// broadcast never blocks; slow subscribers miss events.
func (la *liveAttempt) broadcast(ev StreamEvent) {
	la.mu.Lock()
	defer la.mu.Unlock()
	for ch := range la.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// mirrorTimeout bounds one mirror write. The runner waits on it, so a slow
// Redis delays that attempt's commands and ticks by at most this much.
const mirrorTimeout = 3 * time.Second

type activeKey struct {
	learnerID int
	exam      string
}

// AttemptService runs live attempts. Each attempt is owned by a runner
// goroutine; the service routes commands to it and reacts to its hooks.
type AttemptService struct {
	cfg        *config.Config
	exams      ExamCatalog
	store      AttemptStore
	sink       AttemptSink
	events     event.Publisher
	log        zerolog.Logger
	runnerOpts []runner.Option
	now        func() time.Time

	mu     sync.Mutex
	live   map[uuid.UUID]*liveAttempt
	active map[activeKey]uuid.UUID
}

// AttemptOption customizes an AttemptService.
type AttemptOption func(*AttemptService)

// WithRunnerOptions passes options to every runner the service creates.
func WithRunnerOptions(opts ...runner.Option) AttemptOption {
	return func(s *AttemptService) { s.runnerOpts = append(s.runnerOpts, opts...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AttemptOption {
	return func(s *AttemptService) { s.now = now }
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	exams ExamCatalog,
	store AttemptStore,
	sink AttemptSink,
	events event.Publisher,
	log zerolog.Logger,
	opts ...AttemptOption,
) *AttemptService {
	s := &AttemptService{
		cfg:    cfg,
		exams:  exams,
		store:  store,
		sink:   sink,
		events: events,
		log:    log.With().Str("component", "attempt_service").Logger(),
		now:    time.Now,
		live:   make(map[uuid.UUID]*liveAttempt),
		active: make(map[activeKey]uuid.UUID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start draws a paper and begins a timed attempt. Starting again at the same
// exam is a retake: the learner's previous unfinished attempt is stopped and
// abandoned.
func (s *AttemptService) Start(ctx context.Context, learnerID int, examSlug string) (*model.StartAttemptResponse, error) {
	exam, err := s.exams.GetBySlug(ctx, examSlug)
	if err != nil {
		return nil, err
	}
	paper, err := s.exams.Draw(ctx, exam)
	if err != nil {
		return nil, err
	}
	session, err := assessment.Start(paper, exam.TimeLimitSeconds)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	ids := make([]string, len(paper))
	for i, q := range paper {
		ids[i] = q.ID
	}
	attempt := &model.Attempt{
		ID:          uuid.New(),
		ExamID:      exam.ID,
		ExamSlug:    exam.Slug,
		ExamTitle:   exam.Title,
		LearnerID:   learnerID,
		QuestionIDs: ids,
		TimeLimit:   exam.TimeLimitSeconds,
		Status:      model.AttemptStatusInProgress,
	}
	if err := s.store.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.retire(activeKey{learnerID, exam.Slug}, attempt.ID)
	if n, err := s.store.AbandonOpen(ctx, learnerID, exam.ID, attempt.ID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to abandon previous attempts")
	} else if n > 0 {
		s.log.Info().Int64("count", n).Int("learner_id", learnerID).Str("exam", exam.Slug).Msg("Previous attempts abandoned")
	}

	la := s.launch(attempt, exam, paper, session)
	metrics.AttemptsStarted.WithLabelValues(exam.Slug).Inc()
	s.publish(ctx, &event.AttemptEvent{
		Type:       event.TypeAttemptStarted,
		AttemptID:  attempt.ID.String(),
		LearnerID:  learnerID,
		ExamSlug:   exam.Slug,
		OccurredAt: s.now(),
	})

	rep, err := la.runner.Do(ctx, runner.Command{Action: runner.ActionSnapshot})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("learner_id", learnerID).
		Str("exam", exam.Slug).
		Int("questions", len(paper)).
		Msg("Attempt started")

	return &model.StartAttemptResponse{
		AttemptID: attempt.ID.String(),
		Exam:      exam,
		Questions: model.ForLearner(paper),
		State:     s.stateOf(la, rep.Snapshot),
	}, nil
}

// retire stops the live attempt registered under key, if it is not keep.
// A graded attempt stays in memory for its result and review until Reap.
func (s *AttemptService) retire(key activeKey, keep uuid.UUID) {
	s.mu.Lock()
	prevID, ok := s.active[key]
	var prev *liveAttempt
	if ok && prevID != keep {
		if la := s.live[prevID]; la != nil {
			if _, res, _ := la.graded(); res == nil {
				prev = la
				delete(s.live, prevID)
			}
		}
	}
	s.active[key] = keep
	s.mu.Unlock()

	if prev != nil {
		prev.runner.Stop()
		prev.broadcast(StreamEvent{Type: StreamError, Error: ErrAttemptClosed.Error()})
		metrics.LiveRunners.Dec()
		s.log.Info().Str("attempt_id", prevID.String()).Msg("Live attempt replaced by retake")
	}
}

// launch registers and starts a runner for session. If another goroutine
// already launched the same attempt, that one is returned.
func (s *AttemptService) launch(attempt *model.Attempt, exam *model.Exam, questions []assessment.Question, session *assessment.Session) *liveAttempt {
	la := &liveAttempt{
		attempt:   attempt,
		exam:      exam,
		questions: questions,
		watchers:  make(map[chan StreamEvent]struct{}),
	}
	la.runner = runner.New(session, runner.Hooks{
		OnTick: func(snap assessment.Snapshot) {
			la.broadcast(StreamEvent{Type: StreamTick, Snapshot: &snap})
		},
		OnChange: func(cmd runner.Command, snap assessment.Snapshot) {
			s.mirror(la, cmd, snap)
		},
		OnSubmit: func(sub *assessment.Submission) {
			s.finalize(la, sub)
		},
	}, s.log, s.runnerOpts...)

	s.mu.Lock()
	if existing, ok := s.live[attempt.ID]; ok {
		s.mu.Unlock()
		return existing
	}
	s.live[attempt.ID] = la
	key := activeKey{attempt.LearnerID, attempt.ExamSlug}
	if _, ok := s.active[key]; !ok {
		s.active[key] = attempt.ID
	}
	s.mu.Unlock()

	metrics.LiveRunners.Inc()
	la.runner.Start(context.Background())

	// A resumed attempt whose time ran out while nobody held it.
	if sub, ok := session.Submission(); ok {
		s.finalize(la, sub)
	}
	return la
}

// finalize scores a submission exactly once and hands it to the sink,
// the broker and the metrics.
func (s *AttemptService) finalize(la *liveAttempt, sub *assessment.Submission) {
	pass, marginal := la.exam.Thresholds(s.cfg.DefaultPassThreshold)
	res := assessment.ScoreWith(sub, pass, marginal)
	now := s.now()

	la.mu.Lock()
	if la.result != nil {
		la.mu.Unlock()
		return
	}
	la.sub = sub
	la.result = &res
	la.submittedAt = now
	la.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := la.attempt.ID.String()
	if err := s.sink.Submitted(ctx, &model.ResultEvent{
		AttemptID:  id,
		LearnerID:  la.attempt.LearnerID,
		ExamSlug:   la.attempt.ExamSlug,
		Result:     res,
		FinishedAt: now,
	}); err != nil {
		s.log.Error().Err(err).Str("attempt_id", id).Msg("Failed to queue result")
	}
	s.publish(ctx, &event.AttemptEvent{
		Type:       event.TypeAttemptSubmitted,
		AttemptID:  id,
		LearnerID:  la.attempt.LearnerID,
		ExamSlug:   la.attempt.ExamSlug,
		Result:     &res,
		OccurredAt: now,
	})

	metrics.AttemptsSubmitted.WithLabelValues(la.attempt.ExamSlug, string(res.Verdict), strconv.FormatBool(res.Forced)).Inc()
	metrics.ScorePercentage.WithLabelValues(la.attempt.ExamSlug).Observe(float64(res.Percentage))

	snap := sub.Snapshot()
	la.broadcast(StreamEvent{Type: StreamGraded, Snapshot: &snap, Result: &res})

	s.log.Info().
		Str("attempt_id", id).
		Int("percentage", res.Percentage).
		Str("verdict", string(res.Verdict)).
		Bool("forced", res.Forced).
		Msg("Attempt submitted")
}

func (s *AttemptService) publish(ctx context.Context, ev *event.AttemptEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", string(ev.Type)).Str("attempt_id", ev.AttemptID).Msg("Failed to publish event")
	}
}

// lookup returns the live attempt, or the stored one when it is not live.
func (s *AttemptService) lookup(ctx context.Context, attemptID uuid.UUID, learnerID int) (*liveAttempt, *model.Attempt, error) {
	s.mu.Lock()
	la := s.live[attemptID]
	s.mu.Unlock()
	if la != nil {
		if la.attempt.LearnerID != learnerID {
			return nil, nil, ErrAttemptNotFound
		}
		return la, la.attempt, nil
	}

	a, err := s.store.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrAttemptNotFound
		}
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}
	if a.LearnerID != learnerID {
		return nil, nil, ErrAttemptNotFound
	}
	return nil, a, nil
}

// running returns a live attempt, resuming an unfinished stored one.
func (s *AttemptService) running(ctx context.Context, attemptID uuid.UUID, learnerID int) (*liveAttempt, error) {
	la, a, err := s.lookup(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}
	if la != nil {
		return la, nil
	}
	switch a.Status {
	case model.AttemptStatusSubmitted:
		return nil, ErrAttemptSubmitted
	case model.AttemptStatusAbandoned:
		if _, err := s.storedResult(ctx, a); err == nil {
			return nil, ErrAttemptSubmitted
		}
		return nil, ErrAttemptClosed
	}
	if cached, err := s.sink.CachedResult(ctx, a.ID.String()); err == nil && cached != nil {
		return nil, ErrAttemptSubmitted
	}
	return s.resume(ctx, a)
}

// resume rebuilds an in-progress attempt after the process lost it, using
// mirrored answers and the wall-clock time left since it started.
func (s *AttemptService) resume(ctx context.Context, a *model.Attempt) (*liveAttempt, error) {
	exam, err := s.exams.GetBySlug(ctx, a.ExamSlug)
	if err != nil {
		return nil, err
	}
	questions, err := s.exams.Questions(ctx, exam, a.QuestionIDs)
	if err != nil {
		return nil, err
	}
	answers, flagged, err := s.savedAnswers(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	elapsed := int(s.now().Sub(a.StartedAt) / time.Second)
	session, err := assessment.Resume(questions, a.TimeLimit-elapsed, answers, flagged)
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Int("remaining", session.RemainingSeconds()).
		Int("answers", len(answers)).
		Msg("Attempt resumed")
	return s.launch(a, exam, questions, session), nil
}

func (s *AttemptService) savedAnswers(ctx context.Context, attemptID uuid.UUID) (map[int]int, []int, error) {
	answers, flagged, found, err := s.sink.Restore(ctx, attemptID.String())
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Mirror unavailable, reading database")
	}
	if found {
		return answers, flagged, nil
	}
	answers, flagged, err = s.store.Answers(ctx, attemptID)
	if err != nil {
		return nil, nil, fmt.Errorf("load answers: %w", err)
	}
	return answers, flagged, nil
}

func (s *AttemptService) stateOf(la *liveAttempt, snap assessment.Snapshot) model.AttemptState {
	_, res, _ := la.graded()
	return model.AttemptState{AttemptID: la.attempt.ID.String(), Snapshot: snap, Result: res}
}

// Apply forwards one command to the attempt's runner. Commands that the
// session ignores still succeed and return the unchanged state.
func (s *AttemptService) Apply(ctx context.Context, attemptID uuid.UUID, learnerID int, cmd runner.Command) (*model.AttemptState, error) {
	if !cmd.Action.Valid() {
		return nil, ErrInvalidAction
	}
	la, err := s.running(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}

	rep, err := la.runner.Do(ctx, cmd)
	if err != nil {
		if errors.Is(err, runner.ErrStopped) {
			return nil, ErrAttemptClosed
		}
		return nil, err
	}

	state := s.stateOf(la, rep.Snapshot)
	if cmd.Action != runner.ActionSnapshot {
		la.broadcast(StreamEvent{Type: StreamState, Snapshot: &rep.Snapshot, Result: state.Result})
	}
	return &state, nil
}

// mirror queues the full state of the question a command touched. It runs
// on the runner goroutine, so mirror writes land in command order.
func (s *AttemptService) mirror(la *liveAttempt, cmd runner.Command, snap assessment.Snapshot) {
	if cmd.Question < 0 || cmd.Question >= len(la.questions) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	ev := &model.AnswerEvent{
		AttemptID:     la.attempt.ID.String(),
		QuestionIndex: cmd.Question,
		Option:        -1,
		At:            s.now(),
	}
	if opt, ok := snap.Answers[cmd.Question]; ok {
		ev.Option = opt
	}
	for _, i := range snap.Flagged {
		if i == cmd.Question {
			ev.Flagged = true
			break
		}
	}
	if err := s.sink.AnswerChanged(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("attempt_id", ev.AttemptID).Int("question", ev.QuestionIndex).Msg("Failed to mirror answer")
	}
}

// State returns the current view of an attempt. Submitted attempts that are
// no longer in memory are rebuilt from storage.
func (s *AttemptService) State(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.AttemptState, error) {
	st, err := s.Apply(ctx, attemptID, learnerID, runner.Command{Action: runner.ActionSnapshot})
	if !errors.Is(err, ErrAttemptSubmitted) {
		return st, err
	}
	sub, res, err := s.closedSubmission(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}
	return &model.AttemptState{AttemptID: attemptID.String(), Snapshot: sub.Snapshot(), Result: res}, nil
}

// Paper returns the attempt's questions without answers, in paper order,
// so a reloaded page can render them again.
func (s *AttemptService) Paper(ctx context.Context, attemptID uuid.UUID, learnerID int) ([]model.QuestionForLearner, error) {
	la, a, err := s.lookup(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}
	if la != nil {
		return model.ForLearner(la.questions), nil
	}
	exam, err := s.exams.GetBySlug(ctx, a.ExamSlug)
	if err != nil {
		return nil, err
	}
	questions, err := s.exams.Questions(ctx, exam, a.QuestionIDs)
	if err != nil {
		return nil, err
	}
	return model.ForLearner(questions), nil
}

// Submit ends the attempt now.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.AttemptState, error) {
	st, err := s.Apply(ctx, attemptID, learnerID, runner.Command{Action: runner.ActionSubmit})
	if errors.Is(err, ErrAttemptSubmitted) {
		return s.State(ctx, attemptID, learnerID)
	}
	return st, err
}

// Result returns the score of a submitted attempt.
func (s *AttemptService) Result(ctx context.Context, attemptID uuid.UUID, learnerID int) (*assessment.Result, error) {
	la, a, err := s.lookup(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}
	if la != nil {
		if _, res, _ := la.graded(); res != nil {
			return res, nil
		}
		return nil, ErrAttemptInProgress
	}
	return s.storedResult(ctx, a)
}

func (s *AttemptService) storedResult(ctx context.Context, a *model.Attempt) (*assessment.Result, error) {
	switch a.Status {
	case model.AttemptStatusAbandoned:
		// A retake right after submitting abandons the row before the
		// result worker has written it.
		cached, err := s.sink.CachedResult(ctx, a.ID.String())
		if err != nil || cached == nil {
			return nil, ErrAttemptClosed
		}
		return cached, nil
	case model.AttemptStatusSubmitted:
		if a.Result != nil {
			return a.Result, nil
		}
	}
	cached, err := s.sink.CachedResult(ctx, a.ID.String())
	if err != nil {
		return nil, fmt.Errorf("cached result: %w", err)
	}
	if cached == nil {
		return nil, ErrAttemptInProgress
	}
	return cached, nil
}

// closedSubmission rebuilds a scored attempt that is not held in memory.
func (s *AttemptService) closedSubmission(ctx context.Context, attemptID uuid.UUID, learnerID int) (*assessment.Submission, *assessment.Result, error) {
	la, a, err := s.lookup(ctx, attemptID, learnerID)
	if err != nil {
		return nil, nil, err
	}
	if la != nil {
		sub, res, _ := la.graded()
		if sub == nil {
			return nil, nil, ErrAttemptInProgress
		}
		return sub, res, nil
	}

	res, err := s.storedResult(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	exam, err := s.exams.GetBySlug(ctx, a.ExamSlug)
	if err != nil {
		return nil, nil, err
	}
	questions, err := s.exams.Questions(ctx, exam, a.QuestionIDs)
	if err != nil {
		return nil, nil, err
	}
	answers, flagged, err := s.savedAnswers(ctx, a.ID)
	if err != nil {
		return nil, nil, err
	}
	sub, err := assessment.Reopen(questions, answers, flagged, res.Forced)
	if err != nil {
		return nil, nil, err
	}
	return sub, res, nil
}

// Review lists a submitted attempt's questions matching filter, with the
// chosen and correct options.
func (s *AttemptService) Review(ctx context.Context, attemptID uuid.UUID, learnerID int, filter assessment.Filter) (*model.ReviewResponse, error) {
	sub, res, err := s.closedSubmission(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}

	counts := make(map[assessment.Filter]int, 5)
	for _, f := range []assessment.Filter{
		assessment.FilterAll, assessment.FilterCorrect, assessment.FilterIncorrect,
		assessment.FilterUnanswered, assessment.FilterFlagged,
	} {
		counts[f] = len(assessment.FilterBy(sub, f))
	}

	idx := assessment.FilterBy(sub, filter)
	items := make([]model.ReviewItem, 0, len(idx))
	for _, i := range idx {
		q, _ := sub.Question(i)
		item := model.ReviewItem{
			Index:         i,
			ID:            q.ID,
			Prompt:        q.Prompt,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Explanation:   q.Explanation,
			Outcome:       sub.Outcome(i),
			Flagged:       sub.IsFlagged(i),
		}
		if opt, ok := sub.Answer(i); ok {
			item.Chosen = &opt
		}
		items = append(items, item)
	}

	return &model.ReviewResponse{
		AttemptID: attemptID.String(),
		Filter:    filter,
		Counts:    counts,
		Result:    *res,
		Items:     items,
	}, nil
}

// History lists the learner's attempts, newest first.
func (s *AttemptService) History(ctx context.Context, learnerID, page, perPage int) ([]model.Attempt, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	attempts, total, err := s.store.ListByLearner(ctx, learnerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, response.NewPagination(page, perPage, total), nil
}

// Subscribe streams tick, state and graded events of a live attempt.
// The returned cancel func must be called to release the subscription.
func (s *AttemptService) Subscribe(ctx context.Context, attemptID uuid.UUID, learnerID int) (<-chan StreamEvent, func(), error) {
	la, err := s.running(ctx, attemptID, learnerID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan StreamEvent, 16)
	la.mu.Lock()
	la.watchers[ch] = struct{}{}
	la.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			la.mu.Lock()
			delete(la.watchers, ch)
			la.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Reap releases runners of attempts that were submitted longer than the
// idle TTL ago, and of runners that exited on their own.
func (s *AttemptService) Reap() int {
	now := s.now()
	var stale []*liveAttempt

	s.mu.Lock()
	for id, la := range s.live {
		_, res, at := la.graded()
		exited := false
		select {
		case <-la.runner.Done():
			exited = true
		default:
		}
		if exited || (res != nil && now.Sub(at) >= s.cfg.AttemptIdleTTL) {
			stale = append(stale, la)
			delete(s.live, id)
			key := activeKey{la.attempt.LearnerID, la.attempt.ExamSlug}
			if s.active[key] == id {
				delete(s.active, key)
			}
		}
	}
	s.mu.Unlock()

	for _, la := range stale {
		la.runner.Stop()
		metrics.LiveRunners.Dec()
	}
	if len(stale) > 0 {
		s.log.Debug().Int("count", len(stale)).Msg("Idle attempts released")
	}
	return len(stale)
}

// RunReaper calls Reap every interval until ctx is done. Call in a goroutine.
func (s *AttemptService) RunReaper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Reap()
		}
	}
}

// Shutdown stops every live runner.
func (s *AttemptService) Shutdown() {
	s.mu.Lock()
	all := make([]*liveAttempt, 0, len(s.live))
	for id, la := range s.live {
		all = append(all, la)
		delete(s.live, id)
	}
	s.active = make(map[activeKey]uuid.UUID)
	s.mu.Unlock()

	for _, la := range all {
		la.runner.Stop()
		metrics.LiveRunners.Dec()
	}
	s.log.Info().Int("count", len(all)).Msg("Live attempts stopped")
}
