package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/metrics"
	"github.com/stemsi/mockexam-backend/internal/model"
)

// AnswerWriter persists one question's state.
type AnswerWriter interface {
	UpsertAnswer(ctx context.Context, ev *model.AnswerEvent) error
}

// AnswerWorker consumes the answers queue and upserts each change into
// attempt_answers.
type AnswerWorker struct {
	queue      Queue
	repo       AnswerWriter
	log        zerolog.Logger
	poll       time.Duration
	retryDelay time.Duration
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(queue Queue, repo AnswerWriter, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		queue:      queue,
		repo:       repo,
		log:        log.With().Str("component", "answer_worker").Logger(),
		poll:       time.Second,
		retryDelay: 5 * time.Second,
	}
}

// Start runs until ctx is cancelled, then drains what is left. Call in a
// goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	raw, err := w.queue.Pop(ctx, w.poll)
	if err != nil {
		if !errors.Is(err, ErrEmpty) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Pop error")
		}
		return
	}

	var ev model.AnswerEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.repo.UpsertAnswer(ctx, &ev); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", ev.AttemptID).
			Int("question_index", ev.QuestionIndex).
			Msg("Persist error, retrying")
		w.requeue(ctx, raw)
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
}

func (w *AnswerWorker) requeue(ctx context.Context, raw string) {
	metrics.QueueRequeues.WithLabelValues(w.queue.Name()).Inc()
	if err := w.queue.Push(context.WithoutCancel(ctx), raw); err != nil {
		w.log.Error().Err(err).Msg("Requeue failed, answer lost from queue")
	}
}

// drain persists everything still queued before shutdown.
func (w *AnswerWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.queue.TryPop(ctx)
		if err != nil {
			break
		}

		var ev model.AnswerEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.repo.UpsertAnswer(ctx, &ev); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.requeue(ctx, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
