package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/config"
)

// Preference is what a learner's widget remembers between page loads.
type Preference struct {
	Enabled   bool  `json:"enabled"`
	Dismissed bool  `json:"dismissed"`
	Side      Side  `json:"side"`
	Position  Point `json:"position"`
}

// DefaultPreference is used when nothing has been stored yet.
var DefaultPreference = Preference{Enabled: true, Side: SideRight}

// Store persists preferences per learner.
type Store interface {
	Get(ctx context.Context, learnerID int) (Preference, error)
	Set(ctx context.Context, learnerID int, p Preference) error
}

// RedisStore keeps preferences as JSON strings without expiry.
type RedisStore struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisStore(rdb *redis.Client, log zerolog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, log: log.With().Str("component", "widget_store").Logger()}
}

func (s *RedisStore) Get(ctx context.Context, learnerID int) (Preference, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.WidgetPreferenceKey(learnerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultPreference, nil
	}
	if err != nil {
		return Preference{}, fmt.Errorf("get widget preference: %w", err)
	}
	p, err := decodePreference(raw)
	if err != nil {
		// The next Set overwrites the bad value.
		s.log.Warn().Err(err).Int("learner_id", learnerID).Msg("Corrupt widget preference, using default")
		return DefaultPreference, nil
	}
	return p, nil
}

func decodePreference(raw []byte) (Preference, error) {
	var p Preference
	if err := json.Unmarshal(raw, &p); err != nil {
		return Preference{}, fmt.Errorf("decode widget preference: %w", err)
	}
	return p, nil
}

func (s *RedisStore) Set(ctx context.Context, learnerID int, p Preference) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal widget preference: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.WidgetPreferenceKey(learnerID), raw, 0).Err(); err != nil {
		return fmt.Errorf("set widget preference: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[int]Preference
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[int]Preference)}
}

func (s *MemoryStore) Get(_ context.Context, learnerID int) (Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.m[learnerID]; ok {
		return p, nil
	}
	return DefaultPreference, nil
}

func (s *MemoryStore) Set(_ context.Context, learnerID int, p Preference) error {
	s.mu.Lock()
	s.m[learnerID] = p
	s.mu.Unlock()
	return nil
}
