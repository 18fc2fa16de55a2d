package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { Fail(c, http.StatusConflict, ErrSessionActive) })

	supplied := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", supplied)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != supplied {
		t.Fatalf("X-Request-ID = %q, want %q", got, supplied)
	}
	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Metadata.RequestID != supplied {
		t.Errorf("metadata request id = %q", body.Metadata.RequestID)
	}
	if body.Error == nil || body.Error.Code != ErrSessionActive || body.Error.Message != GetMessage(ErrSessionActive) {
		t.Errorf("error body = %+v", body.Error)
	}

	// Anything that is not a UUID is replaced.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "<script>")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got == "<script>" {
		t.Fatal("unsafe request id echoed")
	} else if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("generated id %q is not a UUID", got)
	}
}
