package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/metrics"
	"github.com/stemsi/mockexam-backend/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second

	// PersistedMirrorTTL is how long the autosave mirror lingers once the
	// result is in PostgreSQL.
	PersistedMirrorTTL = time.Hour
)

// ResultWriter persists scored attempts.
type ResultWriter interface {
	Complete(ctx context.Context, ev *model.ResultEvent) error
	CompleteBatch(ctx context.Context, batch []*model.ResultEvent) error
}

// ResultWorker consumes the results queue and marks attempts submitted in
// batches.
type ResultWorker struct {
	queue Queue
	repo  ResultWriter
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewResultWorker creates a new ResultWorker. rdb may be nil, in which case
// the autosave mirror is left to its own expiry.
func NewResultWorker(queue Queue, repo ResultWriter, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		queue: queue,
		repo:  repo,
		rdb:   rdb,
		log:   log.With().Str("component", "result_worker").Logger(),
	}
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.ResultEvent, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			batch = w.drain(context.Background(), batch)
			w.flushSafe(context.Background(), batch)
			return

		default:
			raw, err := w.queue.Pop(ctx, ResultPollTimeout)
			if err != nil {
				if !errors.Is(err, ErrEmpty) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("Pop error")
				}
				continue
			}

			if ev, ok := w.decode(raw); ok {
				batch = append(batch, ev)
			}
		}
	}
}

func (w *ResultWorker) decode(raw string) (*model.ResultEvent, bool) {
	var ev model.ResultEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		w.log.Error().Err(err).Msg("Invalid JSON payload")
		return nil, false
	}
	if ev.AttemptID == "" || ev.Result.Total == 0 {
		w.log.Error().Str("attempt_id", ev.AttemptID).Msg("Result payload without a result")
		return nil, false
	}
	return &ev, true
}

func (w *ResultWorker) drain(ctx context.Context, batch []*model.ResultEvent) []*model.ResultEvent {
	for {
		raw, err := w.queue.TryPop(ctx)
		if err != nil {
			return batch
		}
		if ev, ok := w.decode(raw); ok {
			batch = append(batch, ev)
		}
	}
}

// flushSafe writes batch in one statement, falling back to one update per
// result and requeueing whatever still fails.
func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.ResultEvent) {
	if len(batch) == 0 {
		return
	}

	if err := w.repo.CompleteBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("size", len(batch)).Msg("Batch result update failed, using fallback")

		done := make([]*model.ResultEvent, 0, len(batch))
		for _, ev := range batch {
			if err := w.repo.Complete(ctx, ev); err != nil {
				w.log.Error().Err(err).Str("attempt_id", ev.AttemptID).Msg("Complete failed, requeueing")
				raw, _ := json.Marshal(ev)
				metrics.QueueRequeues.WithLabelValues(w.queue.Name()).Inc()
				if err := w.queue.Push(context.WithoutCancel(ctx), string(raw)); err != nil {
					w.log.Error().Err(err).Str("attempt_id", ev.AttemptID).Msg("Requeue failed")
				}
				continue
			}
			done = append(done, ev)
		}
		w.shortenMirror(ctx, done)
		return
	}

	w.shortenMirror(ctx, batch)
}

func (w *ResultWorker) shortenMirror(ctx context.Context, batch []*model.ResultEvent) {
	if w.rdb == nil || len(batch) == 0 {
		return
	}
	pipe := w.rdb.Pipeline()
	for _, ev := range batch {
		pipe.Expire(ctx, config.CacheKey.AttemptAnswersKey(ev.AttemptID), PersistedMirrorTTL)
		pipe.Expire(ctx, config.CacheKey.AttemptFlagsKey(ev.AttemptID), PersistedMirrorTTL)
		pipe.Expire(ctx, config.CacheKey.AttemptResultKey(ev.AttemptID), PersistedMirrorTTL)
	}
	if _, err := pipe.Exec(context.WithoutCancel(ctx)); err != nil {
		w.log.Warn().Err(err).Msg("Failed to shorten mirror expiry")
	}
}
