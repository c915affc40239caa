package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/mockexam-backend/internal/assessment"
	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/model"
)

// MirrorTTL bounds how long autosaved state outlives its attempt.
const MirrorTTL = 24 * time.Hour

// RedisAttemptSink keeps answers in a hash and flags in a set per attempt,
// and pushes every change onto the persistence queues.
type RedisAttemptSink struct {
	rdb *redis.Client
}

// NewRedisAttemptSink creates a new RedisAttemptSink.
func NewRedisAttemptSink(rdb *redis.Client) *RedisAttemptSink {
	return &RedisAttemptSink{rdb: rdb}
}

func (k *RedisAttemptSink) AnswerChanged(ctx context.Context, ev *model.AnswerEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	answersKey := config.CacheKey.AttemptAnswersKey(ev.AttemptID)
	flagsKey := config.CacheKey.AttemptFlagsKey(ev.AttemptID)
	field := strconv.Itoa(ev.QuestionIndex)

	pipe := k.rdb.TxPipeline()
	if ev.Option >= 0 {
		pipe.HSet(ctx, answersKey, field, ev.Option)
	} else {
		pipe.HDel(ctx, answersKey, field)
	}
	if ev.Flagged {
		pipe.SAdd(ctx, flagsKey, field)
	} else {
		pipe.SRem(ctx, flagsKey, field)
	}
	pipe.Expire(ctx, answersKey, MirrorTTL)
	pipe.Expire(ctx, flagsKey, MirrorTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror answer: %w", err)
	}
	return nil
}

func (k *RedisAttemptSink) Submitted(ctx context.Context, ev *model.ResultEvent) error {
	res, err := json.Marshal(ev.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal result event: %w", err)
	}

	pipe := k.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.AttemptResultKey(ev.AttemptID), res, MirrorTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue result: %w", err)
	}
	return nil
}

func (k *RedisAttemptSink) Restore(ctx context.Context, attemptID string) (map[int]int, []int, bool, error) {
	pipe := k.rdb.Pipeline()
	answersCmd := pipe.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID))
	flagsCmd := pipe.SMembers(ctx, config.CacheKey.AttemptFlagsKey(attemptID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, false, fmt.Errorf("restore answers: %w", err)
	}

	rawAnswers := answersCmd.Val()
	rawFlags := flagsCmd.Val()
	if len(rawAnswers) == 0 && len(rawFlags) == 0 {
		return nil, nil, false, nil
	}

	answers := make(map[int]int, len(rawAnswers))
	for field, val := range rawAnswers {
		q, err1 := strconv.Atoi(field)
		opt, err2 := strconv.Atoi(val)
		if err1 != nil || err2 != nil {
			continue
		}
		answers[q] = opt
	}
	flagged := make([]int, 0, len(rawFlags))
	for _, m := range rawFlags {
		if q, err := strconv.Atoi(m); err == nil {
			flagged = append(flagged, q)
		}
	}
	sort.Ints(flagged)
	return answers, flagged, true, nil
}

func (k *RedisAttemptSink) CachedResult(ctx context.Context, attemptID string) (*assessment.Result, error) {
	raw, err := k.rdb.Get(ctx, config.CacheKey.AttemptResultKey(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res assessment.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, nil
}
