package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stemsi/exstem-runtime/internal/model"
)

func TestRecorder(t *testing.T) {
	var r Recorder

	before := testutil.ToFloat64(SnapshotWrites.WithLabelValues("error"))
	r.SnapshotFlushed(errors.New("down"))
	if got := testutil.ToFloat64(SnapshotWrites.WithLabelValues("error")); got != before+1 {
		t.Fatalf("snapshot errors = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(DroppedExercises.WithLabelValues("exam"))
	r.PoolBuilt(model.ModeExam, 10, 2)
	if got := testutil.ToFloat64(DroppedExercises.WithLabelValues("exam")); got != before+2 {
		t.Fatalf("dropped = %v, want %v", got, before+2)
	}

	before = testutil.ToFloat64(Submissions.WithLabelValues("exam", "expiry", "degraded"))
	r.Submitted(&model.SessionResult{Mode: model.ModeExam, Trigger: model.TriggerExpiry, Outcome: model.PipelineDegraded})
	if got := testutil.ToFloat64(Submissions.WithLabelValues("exam", "expiry", "degraded")); got != before+1 {
		t.Fatalf("submissions = %v", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Init()
	Init()

	r := gin.New()
	r.Use(Middleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/health", "200")); got < 1 {
		t.Fatalf("request counter = %v", got)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
}
