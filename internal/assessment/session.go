// Package assessment implements the timed multiple-choice exam engine:
// session state, scoring, review filtering and question sampling.
//
// A Session is not safe for concurrent use. Callers serialize every
// mutation onto one goroutine (see internal/runner).
package assessment

import (
	"errors"
	"sort"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
)

var (
	ErrNoQuestions     = errors.New("session needs at least one question")
	ErrInvalidDuration = errors.New("session duration must be positive")
)

// Session is one attempt at a fixed list of questions.
//
// Every operation on an InProgress session is a pure state transition.
// Calls that arrive in the wrong state or with an out-of-range question
// index are ignored rather than reported, so a stray late event can never
// break a running exam.
type Session struct {
	questions        []Question
	selected         map[int]int
	flagged          map[int]struct{}
	currentIndex     int
	remainingSeconds int
	status           Status
	forced           bool
}

// Start creates an InProgress session over questions with the given duration.
// The question slice is copied; later changes by the caller are not observed.
func Start(questions []Question, durationSeconds int) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if durationSeconds <= 0 {
		return nil, ErrInvalidDuration
	}

	qs := make([]Question, len(questions))
	copy(qs, questions)

	return &Session{
		questions:        qs,
		selected:         make(map[int]int),
		flagged:          make(map[int]struct{}),
		remainingSeconds: durationSeconds,
		status:           StatusInProgress,
	}, nil
}

// Resume rebuilds an InProgress session from saved state, for example after
// a process restart. Invalid answers and flags are dropped. A session whose
// time has already run out comes back submitted.
func Resume(questions []Question, remainingSeconds int, answers map[int]int, flagged []int) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	qs := make([]Question, len(questions))
	copy(qs, questions)

	s := &Session{
		questions:        qs,
		selected:         make(map[int]int, len(answers)),
		flagged:          make(map[int]struct{}, len(flagged)),
		remainingSeconds: remainingSeconds,
		status:           StatusInProgress,
	}
	for q, opt := range answers {
		s.SelectAnswer(q, opt)
	}
	for _, i := range flagged {
		if s.inRange(i) {
			s.flagged[i] = struct{}{}
		}
	}
	if remainingSeconds <= 0 {
		s.remainingSeconds = 0
		s.forced = true
		s.Submit()
	}
	return s, nil
}

// Reopen rebuilds the submission of an attempt that was already scored,
// so it can be reviewed after the live session is gone.
func Reopen(questions []Question, answers map[int]int, flagged []int, forced bool) (*Submission, error) {
	s, err := Resume(questions, 1, answers, flagged)
	if err != nil {
		return nil, err
	}
	s.remainingSeconds = 0
	s.Submit()
	s.forced = forced
	sub, _ := s.Submission()
	return sub, nil
}

func (s *Session) inProgress() bool {
	return s != nil && s.status == StatusInProgress
}

func (s *Session) inRange(i int) bool {
	return i >= 0 && i < len(s.questions)
}

// SelectAnswer records opt as the answer to question q, replacing any earlier choice.
func (s *Session) SelectAnswer(q, opt int) {
	if !s.inProgress() || !s.inRange(q) {
		return
	}
	if !s.questions[q].ValidOption(opt) {
		return
	}
	s.selected[q] = opt
}

// ClearAnswer removes the answer to question q.
func (s *Session) ClearAnswer(q int) {
	if !s.inProgress() || !s.inRange(q) {
		return
	}
	delete(s.selected, q)
}

// GoTo moves to question i, clamped to the valid range.
func (s *Session) GoTo(i int) {
	if !s.inProgress() {
		return
	}
	if i < 0 {
		i = 0
	}
	if last := len(s.questions) - 1; i > last {
		i = last
	}
	s.currentIndex = i
}

// Next moves forward one question, stopping at the last.
func (s *Session) Next() { s.GoTo(s.currentIndex + 1) }

// Previous moves back one question, stopping at the first.
func (s *Session) Previous() { s.GoTo(s.currentIndex - 1) }

// ToggleFlag marks or unmarks question i for later review.
func (s *Session) ToggleFlag(i int) {
	if !s.inProgress() || !s.inRange(i) {
		return
	}
	if _, ok := s.flagged[i]; ok {
		delete(s.flagged, i)
		return
	}
	s.flagged[i] = struct{}{}
}

// NextFlagged jumps to the first flagged question after the current one,
// wrapping around to the lowest flagged index.
func (s *Session) NextFlagged() {
	if !s.inProgress() || len(s.flagged) == 0 {
		return
	}
	flagged := s.FlaggedIndices()
	for _, i := range flagged {
		if i > s.currentIndex {
			s.currentIndex = i
			return
		}
	}
	s.currentIndex = flagged[0]
}

// Tick advances the clock by one second. It returns true when this tick
// ran the clock out and forced the submission.
func (s *Session) Tick() bool {
	if !s.inProgress() || s.remainingSeconds <= 0 {
		return false
	}
	s.remainingSeconds--
	if s.remainingSeconds == 0 {
		s.forced = true
		s.Submit()
		return true
	}
	return false
}

// Submit freezes the session. Repeated calls are no-ops.
func (s *Session) Submit() {
	if !s.inProgress() {
		return
	}
	s.status = StatusSubmitted
}

// Status returns the lifecycle state. A nil session has not started.
func (s *Session) Status() Status {
	if s == nil {
		return StatusNotStarted
	}
	return s.status
}

func (s *Session) CurrentIndex() int { return s.currentIndex }
func (s *Session) RemainingSeconds() int { return s.remainingSeconds }
func (s *Session) Len() int { return len(s.questions) }

// Question returns the i-th question and whether i is in range.
func (s *Session) Question(i int) (Question, bool) {
	if !s.inRange(i) {
		return Question{}, false
	}
	return s.questions[i], true
}

// Answer returns the selected option for question i.
func (s *Session) Answer(i int) (int, bool) {
	opt, ok := s.selected[i]
	return opt, ok
}

// IsFlagged reports whether question i is flagged.
func (s *Session) IsFlagged(i int) bool {
	_, ok := s.flagged[i]
	return ok
}

// FlaggedIndices returns the flagged question indices in ascending order.
func (s *Session) FlaggedIndices() []int {
	out := make([]int, 0, len(s.flagged))
	for i := range s.flagged {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Stats summarises answer progress.
type Stats struct {
	Answered   int `json:"answered"`
	Unanswered int `json:"unanswered"`
	Flagged    int `json:"flagged"`
}

func (s *Session) Stats() Stats {
	return Stats{
		Answered:   len(s.selected),
		Unanswered: len(s.questions) - len(s.selected),
		Flagged:    len(s.flagged),
	}
}

// Progress returns the answered share as a whole percentage, rounded down.
func (s *Session) Progress() int {
	if len(s.questions) == 0 {
		return 0
	}
	return len(s.selected) * 100 / len(s.questions)
}

// Submission returns the read-only view of a submitted session.
// The second result is false while the session is still running.
func (s *Session) Submission() (*Submission, bool) {
	if s == nil || s.status != StatusSubmitted {
		return nil, false
	}
	return &Submission{session: s}, true
}

// Snapshot is a serializable copy of the session state.
type Snapshot struct {
	Status           Status      `json:"status"`
	CurrentIndex     int         `json:"current_index"`
	RemainingSeconds int         `json:"remaining_seconds"`
	Clock            string      `json:"clock"`
	Answers          map[int]int `json:"answers"`
	Flagged          []int       `json:"flagged"`
	Stats            Stats       `json:"stats"`
	Progress         int         `json:"progress"`
	Forced           bool        `json:"forced"`
}

func (s *Session) Snapshot() Snapshot {
	answers := make(map[int]int, len(s.selected))
	for q, opt := range s.selected {
		answers[q] = opt
	}
	return Snapshot{
		Status:           s.status,
		CurrentIndex:     s.currentIndex,
		RemainingSeconds: s.remainingSeconds,
		Clock:            FormatClock(s.remainingSeconds),
		Answers:          answers,
		Flagged:          s.FlaggedIndices(),
		Stats:            s.Stats(),
		Progress:         s.Progress(),
		Forced:           s.forced,
	}
}

// Submission is a submitted session. Only the scorer and the review filter
// accept it, so neither can run against an exam still in progress.
type Submission struct {
	session *Session
}

func (sub *Submission) Len() int { return sub.session.Len() }
func (sub *Submission) Question(i int) (Question, bool) { return sub.session.Question(i) }
func (sub *Submission) Answer(i int) (int, bool) { return sub.session.Answer(i) }
func (sub *Submission) IsFlagged(i int) bool { return sub.session.IsFlagged(i) }
func (sub *Submission) Forced() bool { return sub.session.forced }
func (sub *Submission) RemainingSeconds() int { return sub.session.remainingSeconds }
func (sub *Submission) Snapshot() Snapshot { return sub.session.Snapshot() }
