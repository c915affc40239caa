package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/metrics"
	"github.com/stemsi/mockexam-backend/internal/model"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoActiveSession    = errors.New("no active session")
	ErrSessionInvalidated = errors.New("session invalidated")
)

// Claims extends JWT standard claims with the learner ID.
type Claims struct {
	jwt.RegisteredClaims
	LearnerID int `json:"learner_id"`
}

// LearnerFinder looks learners up for login.
type LearnerFinder interface {
	GetByEmail(ctx context.Context, email string) (*model.Learner, error)
	GetByID(ctx context.Context, id int) (*model.Learner, error)
}

// AuthService handles learner login, JWTs and single-device sessions.
type AuthService struct {
	cfg      *config.Config
	rdb      *redis.Client
	learners LearnerFinder
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, learners LearnerFinder) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, learners: learners}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login verifies credentials and issues a token. A new login replaces the
// learner's previous session, so only the latest device stays signed in.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.LearnerLoginResponse, error) {
	learner, err := s.learners.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.LoginAttempts.WithLabelValues("unknown").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find learner: %w", err)
	}
	if err := s.CheckPassword(learner.PasswordHash, password); err != nil {
		metrics.LoginAttempts.WithLabelValues("bad_password").Inc()
		return nil, err
	}

	token, err := s.GenerateToken(ctx, learner.ID)
	if err != nil {
		return nil, err
	}
	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	return &model.LearnerLoginResponse{Token: token, Learner: *learner}, nil
}

// Me returns the learner behind a validated token.
func (s *AuthService) Me(ctx context.Context, learnerID int) (*model.Learner, error) {
	return s.learners.GetByID(ctx, learnerID)
}

// GenerateToken creates a JWT and registers its ID as the active session.
func (s *AuthService) GenerateToken(ctx context.Context, learnerID int) (string, error) {
	jti := uuid.New().String()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(learnerID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		LearnerID: learnerID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if err := s.rdb.Set(ctx, config.CacheKey.LearnerSessionKey(learnerID), jti, s.cfg.JWTExpiry).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.LearnerID == 0 {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ValidateSession checks that the token's JTI matches the active session.
func (s *AuthService) ValidateSession(ctx context.Context, learnerID int, jti string) error {
	stored, err := s.rdb.Get(ctx, config.CacheKey.LearnerSessionKey(learnerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoActiveSession
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return ErrSessionInvalidated
	}
	return nil
}

// Logout removes the learner's session.
func (s *AuthService) Logout(ctx context.Context, learnerID int) error {
	return s.rdb.Del(ctx, config.CacheKey.LearnerSessionKey(learnerID)).Err()
}
