package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/config"
	"github.com/stemsi/exstem-runtime/internal/response"
	"github.com/stemsi/exstem-runtime/internal/service"
)

const healthTimeout = 2 * time.Second

// SystemHandler reports process health and the snapshot archive backlog.
type SystemHandler struct {
	rdb       *redis.Client // nil with the in-memory snapshot store
	sessions  *service.SessionService
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, sessions *service.SessionService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthStatus struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	ActiveSessions int    `json:"active_sessions"`
	Goroutines     int    `json:"goroutines"`
	GoVersion      string `json:"go_version"`

	// Snapshot archive, absent with the in-memory store.
	Redis         string `json:"redis,omitempty"`
	SnapshotQueue *int64 `json:"snapshot_queue,omitempty"`
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	st := healthStatus{
		Status:         "ok",
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
		ActiveSessions: h.sessions.Active(),
		Goroutines:     runtime.NumGoroutine(),
		GoVersion:      runtime.Version(),
	}

	if h.rdb != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		// ── Redis & archive queue (pipelined) ──
		pipe := h.rdb.Pipeline()
		pingCmd := pipe.Ping(ctx)
		queueCmd := pipe.LLen(ctx, config.WorkerKey.PersistSnapshotsQueue)
		pipe.Exec(ctx)

		if err := pingCmd.Err(); err != nil {
			h.log.Warn().Err(err).Msg("Redis health check failed")
			st.Status = "degraded"
			st.Redis = "down"
		} else {
			st.Redis = "up"
			if n, err := queueCmd.Result(); err == nil {
				st.SnapshotQueue = &n
			}
		}
	}

	code := http.StatusOK
	if st.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	response.Success(c, code, st)
}
