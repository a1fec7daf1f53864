package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tutu-network/rivals/internal/app/game"
	"github.com/tutu-network/rivals/internal/app/rival"
	"github.com/tutu-network/rivals/internal/domain"
	"github.com/tutu-network/rivals/internal/health"
	"github.com/tutu-network/rivals/internal/infra/narrator"
	"github.com/tutu-network/rivals/internal/infra/sqlite"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	srv   *httptest.Server
	eng   *game.Engine
	db    *sqlite.DB
	clock *fixedClock
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}

	clock := &fixedClock{t: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	cfg := game.DefaultConfig()
	cfg.Key = "ash"
	cfg.Location = time.UTC
	cfg.Debounce = 20 * time.Millisecond
	cfg.Clock = clock.Now

	eng := game.New(cfg, db, narrator.Static{}, rival.NewSimulator(1), log.New(io.Discard, "", 0))
	if err := eng.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = eng.Run(ctx)
		close(done)
	}()

	s := NewServer(eng)
	s.SetHistory(func(ctx context.Context, limit int) ([]domain.DailySummary, error) {
		return db.SummaryHistory(ctx, "ash", limit)
	})
	checker := health.NewChecker(db, eng.Retries, dir)
	checker.RunOnce(context.Background())
	s.SetHealth(checker)
	s.EnableMetrics()

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
		_ = db.Close()
	})
	return &testEnv{srv: ts, eng: eng, db: db, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, e.srv.URL+path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func errorType(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	s, _ := e["type"].(string)
	return s
}

// ─── Health & Version ───────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestServer(t)
	code, body := env.do(t, "GET", "/health", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if checks, _ := body["checks"].([]interface{}); len(checks) != 3 {
		t.Errorf("checks = %v, want 3 entries", body["checks"])
	}
}

func TestVersion(t *testing.T) {
	env := newTestServer(t)
	code, body := env.do(t, "GET", "/api/version", "")
	if code != http.StatusOK || body["version"] != "dev" {
		t.Errorf("got %d %v", code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)
	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "rivals_player_xp") {
		t.Error("/metrics should expose rivals_player_xp")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestServer(t)
	req, _ := http.NewRequest("OPTIONS", env.srv.URL+"/api/state", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

// ─── State ──────────────────────────────────────────────────────────────────

func TestState(t *testing.T) {
	env := newTestServer(t)
	code, body := env.do(t, "GET", "/api/state", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["today"] != "2025-07-01" {
		t.Errorf("today = %v", body["today"])
	}
	player := body["player"].(map[string]interface{})
	if player["name"] != "Ash" || player["level"].(float64) != 1 {
		t.Errorf("player = %v", player)
	}
	if tasks := body["tasks"].([]interface{}); len(tasks) != 6 {
		t.Errorf("tasks = %d, want 6", len(tasks))
	}
	if body["unread"].(float64) != 1 {
		t.Errorf("unread = %v, want the welcome notification", body["unread"])
	}
	if body["summary_pending"] != false {
		t.Error("no summary expected on day one")
	}
}

func TestReconcile(t *testing.T) {
	env := newTestServer(t)
	code, body := env.do(t, "POST", "/api/reconcile", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d: %v", code, body)
	}
	if body["path"] != "idle>post_processing>idle" {
		t.Errorf("path = %v", body["path"])
	}
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

func TestCompleteTask(t *testing.T) {
	env := newTestServer(t)

	code, body := env.do(t, "POST", "/api/tasks/task-2/complete", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d: %v", code, body)
	}
	v := body["verdict"].(map[string]interface{})
	if v["passed"] != true || v["awarded_xp"].(float64) != 10 {
		t.Errorf("verdict = %v", v)
	}

	env.clock.Advance(5 * time.Second)
	code, body = env.do(t, "POST", "/api/tasks/task-2/complete", "")
	if code != http.StatusConflict {
		t.Errorf("second completion = %d, want 409", code)
	}

	code, _ = env.do(t, "POST", "/api/tasks/task-99/complete", "")
	if code != http.StatusNotFound {
		t.Errorf("unknown task = %d, want 404", code)
	}
}

func TestCompleteTask_AntiCheat(t *testing.T) {
	env := newTestServer(t)

	code, _ := env.do(t, "POST", "/api/tasks/task-3/start", "")
	if code != http.StatusOK {
		t.Fatalf("start = %d", code)
	}
	code, _ = env.do(t, "POST", "/api/tasks/task-3/start", "")
	if code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", code)
	}
	code, _ = env.do(t, "POST", "/api/tasks/task-2/start", "")
	if code != http.StatusUnprocessableEntity {
		t.Errorf("starting an unlocked task = %d, want 422", code)
	}

	env.clock.Advance(3 * time.Second)
	code, body := env.do(t, "POST", "/api/tasks/task-3/complete", "")
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", code)
	}
	if errorType(body) != "anti_cheat" {
		t.Errorf("error type = %q, want anti_cheat", errorType(body))
	}
	msg := body["error"].(map[string]interface{})["message"].(string)
	if !strings.HasPrefix(msg, "Completion blocked: Attempted to complete a 60s task") {
		t.Errorf("message = %q", msg)
	}
	if env.eng.Snapshot().Player.XP != 0 {
		t.Error("a blocked completion must not award XP")
	}
}

func TestAddTask(t *testing.T) {
	env := newTestServer(t)

	code, body := env.do(t, "POST", "/api/tasks", `{"name":"Stretch","difficulty":"medium","duration":30}`)
	if code != http.StatusCreated {
		t.Fatalf("status = %d: %v", code, body)
	}
	if body["is_time_locked"] != true || body["difficulty"] != "Medium" {
		t.Errorf("task = %v", body)
	}

	code, _ = env.do(t, "POST", "/api/tasks", `{"name":"Nap","difficulty":"legendary"}`)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("bad difficulty = %d, want 422", code)
	}
	code, _ = env.do(t, "POST", "/api/tasks", `{`)
	if code != http.StatusBadRequest {
		t.Errorf("bad body = %d, want 400", code)
	}
}

// ─── Summary ────────────────────────────────────────────────────────────────

func TestSummary_Lifecycle(t *testing.T) {
	env := newTestServer(t)

	code, _ := env.do(t, "GET", "/api/summary", "")
	if code != http.StatusNotFound {
		t.Errorf("no summary yet: status = %d, want 404", code)
	}

	env.clock.Advance(24 * time.Hour)
	code, body := env.do(t, "POST", "/api/reconcile", "")
	if code != http.StatusOK {
		t.Fatalf("reconcile = %d: %v", code, body)
	}
	if path, _ := body["path"].(string); !strings.Contains(path, "summary_pending") {
		t.Errorf("path = %q, want a day close", path)
	}

	code, body = env.do(t, "GET", "/api/summary", "")
	if code != http.StatusOK || body["date"] != "2025-07-01" {
		t.Fatalf("summary = %d %v", code, body)
	}

	code, _ = env.do(t, "POST", "/api/summary/2025-06-30/ack", "")
	if code != http.StatusConflict {
		t.Errorf("wrong date ack = %d, want 409", code)
	}
	code, _ = env.do(t, "POST", "/api/summary/not-a-date/ack", "")
	if code != http.StatusBadRequest {
		t.Errorf("bad date ack = %d, want 400", code)
	}

	code, body = env.do(t, "POST", "/api/summary/2025-07-01/ack", "")
	if code != http.StatusOK || body["date"] != "2025-07-01" {
		t.Fatalf("ack = %d %v", code, body)
	}
	code, _ = env.do(t, "POST", "/api/summary/2025-07-01/ack", "")
	if code != http.StatusNotFound {
		t.Errorf("second ack = %d, want 404", code)
	}

	code, body = env.do(t, "GET", "/api/summary/history?limit=5", "")
	if code != http.StatusOK {
		t.Fatalf("history = %d", code)
	}
	if list := body["summaries"].([]interface{}); len(list) != 1 {
		t.Errorf("history = %v, want one summary", list)
	}
	code, _ = env.do(t, "GET", "/api/summary/history?limit=0", "")
	if code != http.StatusBadRequest {
		t.Errorf("limit=0 = %d, want 400", code)
	}
}

// ─── Notifications ──────────────────────────────────────────────────────────

func TestMarkNotificationsRead(t *testing.T) {
	env := newTestServer(t)

	code, body := env.do(t, "POST", "/api/notifications/read", `{"id":"missing"}`)
	if code != http.StatusOK || body["marked"].(float64) != 0 {
		t.Errorf("unknown id = %d %v", code, body)
	}
	code, body = env.do(t, "POST", "/api/notifications/read", "")
	if code != http.StatusOK || body["marked"].(float64) != 1 {
		t.Errorf("mark all = %d %v", code, body)
	}
	if n := env.eng.Snapshot().UnreadCount(); n != 0 {
		t.Errorf("unread = %d after marking all", n)
	}
}

// ─── Error mapping ──────────────────────────────────────────────────────────

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrTaskNotFound, 404},
		{domain.ErrSummaryNotFound, 404},
		{domain.ErrTaskCompleted, 409},
		{domain.ErrSummaryMismatch, 409},
		{fmt.Errorf("wrap: %w", domain.ErrDayNotClosed), 409},
		{domain.ErrInvalidDifficulty, 422},
		{domain.ErrTaskNotTimeLocked, 422},
		{domain.ErrEngineStopped, 503},
		{context.DeadlineExceeded, 504},
		{io.ErrUnexpectedEOF, 500},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
