package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/slidesmith/slidesmith/config"
	"github.com/slidesmith/slidesmith/internal/agents"
	"github.com/slidesmith/slidesmith/internal/corpus"
	"github.com/slidesmith/slidesmith/internal/events"
	"github.com/slidesmith/slidesmith/internal/pipeline"
	"github.com/slidesmith/slidesmith/internal/preview"
	"github.com/slidesmith/slidesmith/internal/store"
	"github.com/slidesmith/slidesmith/provider"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	artifacts := t.TempDir()

	cfg := &config.Config{}
	cfg.General.ArtifactsDir = artifacts
	cfg.Events.MaxPerRun = 500

	st, err := store.Open(context.Background(), config.CheckpointConfig{
		Backend:    "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "checkpoints.db"),
	}, quiet)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ix, err := corpus.Load("", quiet)
	if err != nil {
		t.Fatalf("corpus: %v", err)
	}
	ev := events.NewStore(cfg.Events.MaxPerRun, nil, quiet)
	ag := agents.New(provider.NewMock(), ix, artifacts, quiet)
	pv := preview.NewWorker(config.PreviewConfig{Enabled: false}, artifacts, quiet)
	ctrl := pipeline.NewController(st, ev, pipeline.DefaultPhases(ag), pv, quiet)

	return New(cfg, st, ev, ctrl)
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var payload map[string]any
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	}
	return rec, payload
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t)
	rec, _ := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestCreateSession(t *testing.T) {
	e := newTestServer(t)
	rec, payload := doJSON(t, e, http.MethodPost, "/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sessions: %d %s", rec.Code, rec.Body.String())
	}
	if id, _ := payload["session_id"].(string); id == "" {
		t.Fatalf("no session id: %v", payload)
	}
}

func TestRunRequiresUserInput(t *testing.T) {
	e := newTestServer(t)
	rec, payload := doJSON(t, e, http.MethodPost, "/run", `{"session_id":"s"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user_input: %d", rec.Code)
	}
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "user_input") {
		t.Fatalf("error body: %v", payload)
	}
}

func TestRunAutoApproveCompletes(t *testing.T) {
	e := newTestServer(t)
	rec, payload := doJSON(t, e, http.MethodPost, "/run",
		`{"user_input":"Benefits of renewable energy for cities","auto_approve":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: %d %s", rec.Code, rec.Body.String())
	}
	if payload["status"] != "completed" {
		t.Fatalf("status: %v", payload)
	}
	if payload["output_path"] == nil || payload["output_path"] == "" {
		t.Fatalf("no output path: %v", payload)
	}

	runID := int64(payload["run_id"].(float64))
	rec, status := doJSON(t, e, http.MethodGet, "/status/"+strconv.FormatInt(runID, 10), "")
	if rec.Code != http.StatusOK || status["status"] != "completed" {
		t.Fatalf("status endpoint: %d %v", rec.Code, status)
	}

	req := httptest.NewRequest(http.MethodGet, "/artifact/"+strconv.FormatInt(runID, 10), nil)
	art := httptest.NewRecorder()
	e.ServeHTTP(art, req)
	if art.Code != http.StatusOK {
		t.Fatalf("artifact: %d %s", art.Code, art.Body.String())
	}
	if art.Body.Len() == 0 {
		t.Fatalf("empty artifact body")
	}
}

func TestRunDefaultsToGatedApproval(t *testing.T) {
	e := newTestServer(t)
	rec, payload := doJSON(t, e, http.MethodPost, "/run",
		`{"user_input":"Benefits of renewable energy for cities"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: %d %s", rec.Code, rec.Body.String())
	}
	if payload["status"] != "waiting_for_approval" || payload["waiting_for_phase"] != "outline" {
		t.Fatalf("default gating not applied: %v", payload)
	}

	runID := int64(payload["run_id"].(float64))
	rec, resumed := doJSON(t, e, http.MethodPost, "/runs/"+strconv.FormatInt(runID, 10)+"/approve",
		`{"auto_approve":true,"notes":"approved via test"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", rec.Code, rec.Body.String())
	}
	if resumed["status"] != "completed" {
		t.Fatalf("resume did not complete: %v", resumed)
	}
}

func TestApproveUnknownRunIs404(t *testing.T) {
	e := newTestServer(t)
	rec, _ := doJSON(t, e, http.MethodPost, "/runs/9999/approve", `{"auto_approve":true}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("approve unknown: %d", rec.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	e := newTestServer(t)
	rec, _ := doJSON(t, e, http.MethodGet, "/runs/9999/events", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("events unknown run: %d", rec.Code)
	}

	_, payload := doJSON(t, e, http.MethodPost, "/run",
		`{"user_input":"topic","auto_approve":true}`)
	runID := strconv.FormatInt(int64(payload["run_id"].(float64)), 10)

	rec, evResp := doJSON(t, e, http.MethodGet, "/runs/"+runID+"/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("events: %d %s", rec.Code, rec.Body.String())
	}
	list, _ := evResp["events"].([]any)
	if len(list) == 0 {
		t.Fatalf("no events: %v", evResp)
	}
	first, _ := list[0].(map[string]any)
	if first["event_type"] != "run_started" {
		t.Fatalf("first event: %v", first)
	}
	cursor, _ := evResp["cursor"].(string)
	if cursor == "" {
		t.Fatalf("missing cursor: %v", evResp)
	}

	rec, after := doJSON(t, e, http.MethodGet, "/runs/"+runID+"/events?since_ts="+cursor, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("events since: %d", rec.Code)
	}
	if tail, _ := after["events"].([]any); len(tail) != 0 {
		t.Fatalf("cursor did not exclude seen events: %v", tail)
	}
}

func TestStreamOnceEmitsHeartbeat(t *testing.T) {
	e := newTestServer(t)
	_, payload := doJSON(t, e, http.MethodPost, "/run",
		`{"user_input":"topic","auto_approve":true}`)
	runID := strconv.FormatInt(int64(payload["run_id"].(float64)), 10)

	req := httptest.NewRequest(http.MethodGet, "/runs/"+runID+"/events/stream?once=true", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("stream: %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type: %s", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"run_started"`) || !strings.Contains(body, `"heartbeat"`) {
		t.Fatalf("stream body missing events: %s", body)
	}
	for _, line := range strings.Split(body, "\n") {
		if line != "" && !strings.HasPrefix(line, "data: ") {
			t.Fatalf("non-SSE line: %q", line)
		}
	}
}

func TestArtifactPathContainment(t *testing.T) {
	e := newTestServer(t)
	rec, _ := doJSON(t, e, http.MethodGet, "/artifact/9999", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("artifact unknown run: %d", rec.Code)
	}
}
