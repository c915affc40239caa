package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// QueueDepth reports how many payloads wait in a worker queue.
type QueueDepth func(ctx context.Context) (int64, error)

// SystemHandler reports liveness, dependency health and runtime stats.
type SystemHandler struct {
	checks    map[string]HealthCheck
	queues    map[string]QueueDepth
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(checks map[string]HealthCheck, queues map[string]QueueDepth, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		queues:    queues,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	Checks     map[string]string `json:"checks"`
	Queues     map[string]int64  `json:"queues,omitempty"`
	Goroutines int               `json:"goroutines"`
	HeapAlloc  uint64            `json:"heap_alloc"`
	GoVersion  string            `json:"go_version"`
}

// Health godoc
// GET /health
// Returns 503 when any dependency is down so load balancers stop routing here.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Checks:     make(map[string]string, len(h.checks)),
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("check", name).Msg("Health check failed")
			report.Checks[name] = "down"
			report.Status = "degraded"
			continue
		}
		report.Checks[name] = "up"
	}
	if len(h.queues) > 0 {
		report.Queues = make(map[string]int64, len(h.queues))
		for name, depth := range h.queues {
			if n, err := depth(ctx); err == nil {
				report.Queues[name] = n
			}
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	report.HeapAlloc = mem.HeapAlloc

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
