// Package metrics exposes the runtime's Prometheus collectors.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stemsi/exstem-runtime/internal/model"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	ActiveSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exam_sessions_active",
			Help: "Mounted exam sessions",
		},
		[]string{"mode"},
	)

	PoolItems = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exam_session_pool_items",
			Help:    "Items in freshly built session pools",
			Buckets: prometheus.LinearBuckets(0, 10, 10),
		},
		[]string{"mode"},
	)

	DroppedExercises = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_session_dropped_exercises_total",
			Help: "Exercises left out of a pool because their detail could not be fetched",
		},
		[]string{"mode"},
	)

	SnapshotWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_session_snapshot_writes_total",
			Help: "Session snapshot flushes by result",
		},
		[]string{"result"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_session_submissions_total",
			Help: "Finished submissions by trigger and pipeline outcome",
		},
		[]string{"mode", "trigger", "outcome"},
	)

	Exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_session_exits_total",
			Help: "Sessions abandoned through exit",
		},
		[]string{"mode"},
	)

	WSMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_session_ws_messages_total",
			Help: "WebSocket messages by action and direction",
		},
		[]string{"type", "direction"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter, RequestDuration,
			ActiveSessions, PoolItems, DroppedExercises,
			SnapshotWrites, Submissions, Exits, WSMessages,
		)
	})
}

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus exposition format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Recorder feeds session runtime events into the collectors.
type Recorder struct{}

func (Recorder) PoolBuilt(mode model.Mode, items, dropped int) {
	PoolItems.WithLabelValues(string(mode)).Observe(float64(items))
	if dropped > 0 {
		DroppedExercises.WithLabelValues(string(mode)).Add(float64(dropped))
	}
}

func (Recorder) SnapshotFlushed(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SnapshotWrites.WithLabelValues(result).Inc()
}

func (Recorder) Submitted(res *model.SessionResult) {
	Submissions.WithLabelValues(string(res.Mode), string(res.Trigger), string(res.Outcome)).Inc()
}

func (Recorder) Exited(mode model.Mode) {
	Exits.WithLabelValues(string(mode)).Inc()
}
