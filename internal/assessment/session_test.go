package assessment

import (
	"errors"
	"reflect"
	"testing"
)

func threeQuestions() []Question {
	return []Question{
		{ID: "q1", Prompt: "Which regulation covers initial verification?", Options: []string{"411.3.3", "643.1", "314.1"}, CorrectOption: 1},
		{ID: "q2", Prompt: "Minimum IR for a 230V circuit?", Options: []string{"1 MΩ", "0.5 MΩ", "2 MΩ"}, CorrectOption: 0},
		{ID: "q3", Prompt: "Max Zs for a B32?", Options: []string{"0.72Ω", "2.30Ω", "1.37Ω"}, CorrectOption: 2},
	}
}

func mustStart(t *testing.T, qs []Question, seconds int) *Session {
	t.Helper()
	s, err := Start(qs, seconds)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestStart(t *testing.T) {
	s := mustStart(t, threeQuestions(), 60)

	if s.Status() != StatusInProgress {
		t.Errorf("status = %s, want %s", s.Status(), StatusInProgress)
	}
	if s.CurrentIndex() != 0 {
		t.Errorf("current index = %d, want 0", s.CurrentIndex())
	}
	if s.RemainingSeconds() != 60 {
		t.Errorf("remaining = %d, want 60", s.RemainingSeconds())
	}
	if st := s.Stats(); st != (Stats{Answered: 0, Unanswered: 3, Flagged: 0}) {
		t.Errorf("stats = %+v", st)
	}
}

func TestStartRejectsBadInput(t *testing.T) {
	if _, err := Start(nil, 60); !errors.Is(err, ErrNoQuestions) {
		t.Errorf("empty questions: err = %v, want ErrNoQuestions", err)
	}
	if _, err := Start(threeQuestions(), 0); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("zero duration: err = %v, want ErrInvalidDuration", err)
	}
}

func TestNilSessionIsNotStarted(t *testing.T) {
	var s *Session
	if s.Status() != StatusNotStarted {
		t.Errorf("status = %s, want %s", s.Status(), StatusNotStarted)
	}
	if _, ok := s.Submission(); ok {
		t.Error("nil session must not produce a submission")
	}
}

func TestSelectAnswerLastWriteWins(t *testing.T) {
	s := mustStart(t, threeQuestions(), 60)

	s.SelectAnswer(0, 2)
	s.SelectAnswer(0, 1)

	if got, ok := s.Answer(0); !ok || got != 1 {
		t.Errorf("answer = %d,%v want 1,true", got, ok)
	}
	if s.Stats().Answered != 1 {
		t.Errorf("answered = %d, want 1", s.Stats().Answered)
	}
}

func TestSelectAnswerIgnoresInvalidIndices(t *testing.T) {
	tests := []struct {
		name string
		q    int
		opt  int
	}{
		{"negative question", -1, 0},
		{"question past end", 3, 0},
		{"negative option", 0, -1},
		{"option past end", 0, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := mustStart(t, threeQuestions(), 60)
			s.SelectAnswer(tc.q, tc.opt)
			if n := len(s.Snapshot().Answers); n != 0 {
				t.Errorf("answers recorded = %d, want 0", n)
			}
		})
	}
}

func TestNavigationClamps(t *testing.T) {
	s := mustStart(t, threeQuestions(), 60)

	s.Previous()
	if s.CurrentIndex() != 0 {
		t.Errorf("previous at start: index = %d, want 0", s.CurrentIndex())
	}

	s.GoTo(99)
	if s.CurrentIndex() != 2 {
		t.Errorf("goto 99: index = %d, want 2", s.CurrentIndex())
	}

	s.Next()
	if s.CurrentIndex() != 2 {
		t.Errorf("next at end: index = %d, want 2", s.CurrentIndex())
	}

	s.GoTo(-5)
	if s.CurrentIndex() != 0 {
		t.Errorf("goto -5: index = %d, want 0", s.CurrentIndex())
	}

	s.Next()
	if s.CurrentIndex() != 1 {
		t.Errorf("next: index = %d, want 1", s.CurrentIndex())
	}
}

func TestToggleFlagAndNextFlagged(t *testing.T) {
	s := mustStart(t, threeQuestions(), 60)

	s.NextFlagged()
	if s.CurrentIndex() != 0 {
		t.Fatalf("next flagged without flags moved to %d", s.CurrentIndex())
	}

	s.ToggleFlag(2)
	s.ToggleFlag(0)
	s.ToggleFlag(1)
	s.ToggleFlag(1)
	s.ToggleFlag(7)

	if got := s.FlaggedIndices(); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("flagged = %v, want [0 2]", got)
	}

	s.NextFlagged()
	if s.CurrentIndex() != 2 {
		t.Errorf("next flagged from 0 = %d, want 2", s.CurrentIndex())
	}
	s.NextFlagged()
	if s.CurrentIndex() != 0 {
		t.Errorf("next flagged wraps to %d, want 0", s.CurrentIndex())
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	s := mustStart(t, threeQuestions(), 60)
	s.SelectAnswer(0, 1)
	s.ToggleFlag(1)

	s.Submit()
	once := s.Snapshot()
	s.Submit()
	twice := s.Snapshot()

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second submit changed state:\n%+v\n%+v", once, twice)
	}
	if s.Status() != StatusSubmitted {
		t.Errorf("status = %s, want %s", s.Status(), StatusSubmitted)
	}
}

func TestNoMutationAfterSubmit(t *testing.T) {
	s := mustStart(t, threeQuestions(), 60)
	s.SelectAnswer(0, 1)
	s.GoTo(1)
	s.ToggleFlag(1)
	s.Submit()

	before := s.Snapshot()

	s.SelectAnswer(0, 0)
	s.SelectAnswer(2, 2)
	s.ClearAnswer(0)
	s.ToggleFlag(1)
	s.ToggleFlag(2)
	s.GoTo(2)
	s.Next()
	s.Previous()
	s.NextFlagged()
	if s.Tick() {
		t.Error("tick after submit reported a forced submission")
	}

	if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("submitted session mutated:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestTickForcesSubmitAtZero(t *testing.T) {
	s := mustStart(t, threeQuestions(), 1)

	if !s.Tick() {
		t.Fatal("final tick did not report forced submission")
	}
	if s.Status() != StatusSubmitted {
		t.Errorf("status = %s, want %s", s.Status(), StatusSubmitted)
	}
	if s.RemainingSeconds() != 0 {
		t.Errorf("remaining = %d, want 0", s.RemainingSeconds())
	}
	if s.Tick() {
		t.Error("forced submission reported twice")
	}
	sub, ok := s.Submission()
	if !ok || !sub.Forced() {
		t.Error("submission should be marked forced")
	}
}

func TestTickAfterManualSubmitIsNoop(t *testing.T) {
	s := mustStart(t, threeQuestions(), 5)
	s.Tick()
	s.Submit()
	s.Tick()

	if s.RemainingSeconds() != 4 {
		t.Errorf("remaining = %d, want 4", s.RemainingSeconds())
	}
	sub, _ := s.Submission()
	if sub.Forced() {
		t.Error("manual submission marked forced")
	}
}

func TestResume(t *testing.T) {
	s, err := Resume(threeQuestions(), 30, map[int]int{0: 1, 1: 9, 5: 0}, []int{2, 8})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if s.Status() != StatusInProgress {
		t.Errorf("status = %s", s.Status())
	}
	if got := s.Snapshot().Answers; !reflect.DeepEqual(got, map[int]int{0: 1}) {
		t.Errorf("answers = %v, want map[0:1]", got)
	}
	if got := s.FlaggedIndices(); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("flagged = %v, want [2]", got)
	}

	expired, err := Resume(threeQuestions(), -4, nil, nil)
	if err != nil {
		t.Fatalf("Resume expired: %v", err)
	}
	if expired.Status() != StatusSubmitted || expired.RemainingSeconds() != 0 {
		t.Errorf("expired resume = %s/%d, want SUBMITTED/0", expired.Status(), expired.RemainingSeconds())
	}
}

func TestProgress(t *testing.T) {
	s := mustStart(t, threeQuestions(), 60)
	s.SelectAnswer(0, 0)
	if got := s.Progress(); got != 33 {
		t.Errorf("progress = %d, want 33", got)
	}
}

func TestValidateAll(t *testing.T) {
	tests := []struct {
		name string
		qs   []Question
		want error
	}{
		{"valid", threeQuestions(), nil},
		{"missing id", []Question{{Options: []string{"a", "b"}}}, ErrQuestionID},
		{"one option", []Question{{ID: "x", Options: []string{"a"}}}, ErrTooFewOptions},
		{"correct out of range", []Question{{ID: "x", Options: []string{"a", "b"}, CorrectOption: 2}}, ErrCorrectOutRange},
		{"duplicate", []Question{{ID: "x", Options: []string{"a", "b"}}, {ID: "x", Options: []string{"a", "b"}}}, ErrDuplicateID},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAll(tc.qs)
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestReopen(t *testing.T) {
	sub, err := Reopen(threeQuestions(), map[int]int{0: 1, 2: 9}, []int{1}, false)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Forced() {
		t.Error("reopened manual submission reported forced")
	}
	if _, ok := sub.Answer(2); ok {
		t.Error("out-of-range option survived reopen")
	}
	if !sub.IsFlagged(1) {
		t.Error("flag lost on reopen")
	}
	if sub.Snapshot().Status != StatusSubmitted {
		t.Errorf("status = %s", sub.Snapshot().Status)
	}

	forced, _ := Reopen(threeQuestions(), nil, nil, true)
	if !forced.Forced() {
		t.Error("forced flag not kept")
	}
}
