package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/assessment"
	"github.com/stemsi/mockexam-backend/internal/model"
)

type memQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *memQueue) Name() string { return "test_queue" }

func (q *memQueue) Pop(ctx context.Context, _ time.Duration) (string, error) {
	return q.TryPop(ctx)
}

func (q *memQueue) TryPop(context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", ErrEmpty
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, nil
}

func (q *memQueue) Push(_ context.Context, payload string) error {
	q.mu.Lock()
	q.items = append(q.items, payload)
	q.mu.Unlock()
	return nil
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func push(t *testing.T, q *memQueue, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	_ = q.Push(context.Background(), string(raw))
}

type fakeAnswers struct {
	fail  bool
	saved []model.AnswerEvent
}

func (f *fakeAnswers) UpsertAnswer(_ context.Context, ev *model.AnswerEvent) error {
	if f.fail {
		return errors.New("db down")
	}
	f.saved = append(f.saved, *ev)
	return nil
}

func TestAnswerWorkerPersists(t *testing.T) {
	q := &memQueue{}
	repo := &fakeAnswers{}
	w := NewAnswerWorker(q, repo, zerolog.Nop())

	push(t, q, model.AnswerEvent{AttemptID: "a1", QuestionIndex: 2, Option: 1})
	_ = q.Push(context.Background(), "not json")
	push(t, q, model.AnswerEvent{AttemptID: "a1", QuestionIndex: 3, Option: -1, Flagged: true})

	for i := 0; i < 3; i++ {
		w.processNext(context.Background())
	}
	if len(repo.saved) != 2 {
		t.Fatalf("saved %d answers, want 2", len(repo.saved))
	}
	if got := repo.saved[1]; got.QuestionIndex != 3 || got.Option != -1 || !got.Flagged {
		t.Errorf("second answer = %+v", got)
	}
}

func TestAnswerWorkerRequeuesOnFailure(t *testing.T) {
	q := &memQueue{}
	w := NewAnswerWorker(q, &fakeAnswers{fail: true}, zerolog.Nop())
	w.retryDelay = time.Millisecond

	push(t, q, model.AnswerEvent{AttemptID: "a1", QuestionIndex: 0, Option: 0})
	w.processNext(context.Background())
	if q.len() != 1 {
		t.Errorf("queue length = %d, want the answer requeued", q.len())
	}
}

func TestAnswerWorkerDrainsOnShutdown(t *testing.T) {
	q := &memQueue{}
	repo := &fakeAnswers{}
	w := NewAnswerWorker(q, repo, zerolog.Nop())
	for i := 0; i < 4; i++ {
		push(t, q, model.AnswerEvent{AttemptID: "a1", QuestionIndex: i, Option: i})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Start(ctx)

	if len(repo.saved) != 4 || q.len() != 0 {
		t.Errorf("saved %d, %d left in queue", len(repo.saved), q.len())
	}
}

type fakeResults struct {
	batchErr error
	failID   string
	batches  int
	single   []string
}

func (f *fakeResults) CompleteBatch(_ context.Context, batch []*model.ResultEvent) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	f.batches++
	return nil
}

func (f *fakeResults) Complete(_ context.Context, ev *model.ResultEvent) error {
	if ev.AttemptID == f.failID {
		return errors.New("row locked")
	}
	f.single = append(f.single, ev.AttemptID)
	return nil
}

func resultEvent(id string) *model.ResultEvent {
	return &model.ResultEvent{
		AttemptID:  id,
		LearnerID:  1,
		ExamSlug:   "aws-ccp",
		Result:     assessment.Result{Correct: 1, Total: 2, Percentage: 50, Verdict: assessment.VerdictFail},
		FinishedAt: time.Now(),
	}
}

func TestResultWorkerFallback(t *testing.T) {
	tests := []struct {
		name        string
		repo        *fakeResults
		wantBatches int
		wantSingle  int
		wantQueued  int
	}{
		{"batch succeeds", &fakeResults{}, 1, 0, 0},
		{"batch fails", &fakeResults{batchErr: errors.New("deadlock")}, 0, 3, 0},
		{"one row fails", &fakeResults{batchErr: errors.New("deadlock"), failID: "b"}, 0, 2, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := &memQueue{}
			w := NewResultWorker(q, tc.repo, nil, zerolog.Nop())
			w.flushSafe(context.Background(), []*model.ResultEvent{resultEvent("a"), resultEvent("b"), resultEvent("c")})

			if tc.repo.batches != tc.wantBatches || len(tc.repo.single) != tc.wantSingle || q.len() != tc.wantQueued {
				t.Errorf("batches=%d single=%d queued=%d", tc.repo.batches, len(tc.repo.single), q.len())
			}
		})
	}
}

func TestResultWorkerFlushesOnShutdown(t *testing.T) {
	q := &memQueue{}
	repo := &fakeResults{}
	w := NewResultWorker(q, repo, nil, zerolog.Nop())

	push(t, q, resultEvent("a"))
	push(t, q, model.ResultEvent{AttemptID: "no-result"})
	push(t, q, resultEvent("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Start(ctx)

	if repo.batches != 1 || q.len() != 0 {
		t.Errorf("batches=%d queued=%d", repo.batches, q.len())
	}
}
