package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/handler"
	"github.com/stemsi/mockexam-backend/internal/metrics"
	"github.com/stemsi/mockexam-backend/internal/middleware"
	"github.com/stemsi/mockexam-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Exam    *handler.ExamHandler
	Attempt *handler.AttemptHandler
	Widget  *handler.WidgetHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the rate limiters' background sweeps.
func SetupRouter(
	ctx context.Context,
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	// promhttp negotiates its own compression.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality: middleware.DefaultBrotliConfig.Quality,
		Skipper: middleware.SkipPaths("/metrics"),
	}))

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(ctx, 30, time.Minute)
	authAPI := router.Group("/api/v1/auth")
	{
		authAPI.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)

		authed := authAPI.Group("",
			middleware.RequireLearnerJWT(auth),
			middleware.CheckSingleDeviceSession(auth),
		)
		authed.POST("/logout", handlers.Auth.Logout)
		authed.GET("/me", handlers.Auth.Me)
	}

	// ─── 2. Catalogue (JWT + Single Device) ────────────────────────────
	examAPI := router.Group("/api/v1/exams")
	examAPI.Use(
		middleware.RequireLearnerJWT(auth),
		middleware.CheckSingleDeviceSession(auth),
		middleware.CacheControl(60),
	)
	{
		examAPI.GET("", handlers.Exam.ListExams)
		examAPI.GET("/:slug", handlers.Exam.GetExam)
	}

	// ─── 3. Learner Group (JWT + Single Device) ────────────────────────
	// Actions arrive every few seconds per learner while answering.
	actionLimiter := middleware.NewRateLimiter(ctx, 120, time.Minute)
	learnerAPI := router.Group("/api/v1/learner")
	learnerAPI.Use(
		middleware.RequireLearnerJWT(auth),
		middleware.CheckSingleDeviceSession(auth),
		middleware.NoStore(),
	)
	{
		learnerAPI.POST("/exams/:slug/attempts", handlers.Attempt.StartAttempt)
		learnerAPI.GET("/attempts", handlers.Attempt.ListAttempts)
		learnerAPI.GET("/attempts/:id", handlers.Attempt.GetState)
		learnerAPI.GET("/attempts/:id/paper", handlers.Attempt.GetPaper)
		learnerAPI.POST("/attempts/:id/actions", actionLimiter.Middleware(), handlers.Attempt.PostAction)
		learnerAPI.POST("/attempts/:id/submit", handlers.Attempt.SubmitAttempt)
		learnerAPI.GET("/attempts/:id/result", handlers.Attempt.GetResult)
		learnerAPI.GET("/attempts/:id/review", handlers.Attempt.GetReview)

		learnerAPI.GET("/widget", handlers.Widget.GetWidget)
		learnerAPI.PUT("/widget", handlers.Widget.UpdateWidget)
		learnerAPI.POST("/widget/events", handlers.Widget.PostWidgetEvent)
	}

	// ─── 4. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireLearnerJWT(auth),
		middleware.CheckSingleDeviceSession(auth),
	)
	{
		ws.GET("/attempts/:id/stream", handlers.WS.AttemptStream)
	}

	return router
}
