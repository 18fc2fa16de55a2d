//go:build e2e
// +build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/stemsi/exstem-runtime/internal/config"
	"github.com/stemsi/exstem-runtime/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080"
	defaultExamID  = "e2e-exam"
)

var (
	baseURL string
	examID  string
	token   string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = strings.TrimRight(getenv("BASE_URL", defaultBaseURL), "/")
	examID = getenv("E2E_EXAM_ID", defaultExamID)

	auth := service.NewAuthService(config.Load())
	var err error
	token, err = auth.IssueCandidateToken(fmt.Sprintf("e2e-%d", time.Now().UnixNano()), time.Hour)
	if err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func request(t *testing.T, method, path string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(method, baseURL+path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if msg["event"] == "error" && event != "error" {
			t.Fatalf("server error: %v", msg)
		}
		if msg["event"] == event {
			return msg
		}
	}
}

func TestHealth(t *testing.T) {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	path := fmt.Sprintf("/api/v1/sessions/%s/simulator", examID)
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/v1/sessions/" + examID + "/simulator/stream?token=" + token

	// 1. Mount and answer the first question, then drop the connection.
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	state := readEvent(t, conn, "state")["session"].(map[string]any)
	items := state["items"].([]any)
	if len(items) == 0 {
		t.Fatal("empty pool")
	}
	conn.WriteJSON(map[string]any{"action": "toggle_flag", "index": 0})
	readEvent(t, conn, "state")
	conn.Close()

	// 2. The snapshot survives the unmount.
	deadline := time.Now().Add(10 * time.Second)
	for {
		code, body := request(t, http.MethodGet, path)
		if code == http.StatusOK && body["data"].(map[string]any)["mounted"] == false {
			if body["data"].(map[string]any)["resumable"] != true {
				t.Fatalf("snapshot not resumable: %v", body)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session did not unmount: %d %v", code, body)
		}
		time.Sleep(100 * time.Millisecond)
	}

	// 3. Remount restores the same pool, then submit.
	conn, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("redial: %v", err)
	}
	defer conn.Close()
	state = readEvent(t, conn, "state")["session"].(map[string]any)
	if len(state["items"].([]any)) != len(items) {
		t.Fatal("restored pool differs")
	}
	if flagged := state["flagged_indices"].([]any); len(flagged) != 1 {
		t.Fatalf("flags not restored: %v", flagged)
	}

	conn.WriteJSON(map[string]any{"action": "submit"})
	result := readEvent(t, conn, "result")["result"].(map[string]any)
	t.Logf("outcome=%v status=%v", result["outcome"], result["status"])

	// 4. Submission clears the snapshot.
	if code, _ := request(t, http.MethodGet, path); code != http.StatusNotFound {
		t.Fatalf("snapshot still present after submit: %d", code)
	}
}
