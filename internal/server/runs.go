package server

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/slidesmith/slidesmith/config"
	"github.com/slidesmith/slidesmith/internal/events"
	"github.com/slidesmith/slidesmith/internal/pipeline"
	"github.com/slidesmith/slidesmith/internal/state"
	"github.com/slidesmith/slidesmith/internal/store"
)

// defaultApprovalPhases gates every audit-eligible phase when the request
// does not say otherwise. Omitting the field is a request for supervision,
// not for a fully automatic run.
var defaultApprovalPhases = []string{state.PhaseOutline, state.PhaseResearch, state.PhaseDesign}

type RunsHandler struct {
	cfg    *config.Config
	store  *store.Store
	events *events.Store
	ctrl   *pipeline.Controller
	logger *log.Logger

	// recently driven runs, consulted before the store on status reads
	mu       sync.Mutex
	statuses map[int64]runStatusResponse
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

type runRequest struct {
	UserInput       string    `json:"user_input"`
	SessionID       string    `json:"session_id"`
	EducationalMode bool      `json:"educational_mode"`
	TemplateName    string    `json:"template_name"`
	AutoApprove     bool      `json:"auto_approve"`
	ApprovalPhases  *[]string `json:"approval_phases"`
	Notes           string    `json:"notes"`
}

type approveRequest struct {
	AutoApprove    bool      `json:"auto_approve"`
	ApprovalPhases *[]string `json:"approval_phases"`
	Notes          string    `json:"notes"`
}

type runStatusResponse struct {
	RunID            int64    `json:"run_id"`
	SessionID        string   `json:"session_id"`
	Status           string   `json:"status"`
	CurrentPhase     string   `json:"current_phase"`
	WaitingForPhase  string   `json:"waiting_for_phase,omitempty"`
	ApprovalRequired bool     `json:"approval_required"`
	ApprovalStatus   string   `json:"approval_status"`
	OutputPath       string   `json:"output_path,omitempty"`
	Errors           []string `json:"errors,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	UpdatedAt        string   `json:"updated_at"`
}

type eventsResponse struct {
	RunID  int64          `json:"run_id"`
	Events []events.Event `json:"events"`
	Cursor string         `json:"cursor,omitempty"`
}

func NewRunsHandler(cfg *config.Config, st *store.Store, ev *events.Store, ctrl *pipeline.Controller) *RunsHandler {
	return &RunsHandler{
		cfg:      cfg,
		store:    st,
		events:   ev,
		ctrl:     ctrl,
		logger:   log.New(log.Writer(), "[RUNS] ", log.LstdFlags),
		statuses: make(map[int64]runStatusResponse),
	}
}

func (h *RunsHandler) Register(e *echo.Echo) {
	e.POST("/sessions", h.createSession)
	e.POST("/run", h.run)
	e.GET("/status/:run_id", h.status)
	e.GET("/runs", h.list)
	e.GET("/runs/:run_id", h.details)
	e.GET("/runs/:run_id/logs", h.logs)
	e.POST("/runs/:run_id/approve", h.approve)
	e.GET("/runs/:run_id/events", h.listEvents)
	e.GET("/runs/:run_id/events/stream", h.streamEvents)
	e.GET("/artifact/:run_id", h.artifact)
}

func (h *RunsHandler) createSession(c echo.Context) error {
	return c.JSON(http.StatusOK, sessionResponse{SessionID: uuid.NewString()})
}

// run drives a full pipeline run within the request, returning the final or
// paused snapshot. Clients watch progress over /events/stream in parallel.
func (h *RunsHandler) run(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.UserInput) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_input is required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	st := state.New(req.UserInput, req.SessionID)
	st.EducationalMode = req.EducationalMode
	st.TemplateName = req.TemplateName

	opts := pipeline.Options{
		AutoApprove:    req.AutoApprove,
		ApprovalPhases: defaultApprovalPhases,
		ApprovalNotes:  req.Notes,
	}
	if req.ApprovalPhases != nil {
		opts.ApprovalPhases = *req.ApprovalPhases
	}

	st, err := h.ctrl.Run(c.Request().Context(), st, opts)
	if err != nil {
		if st != nil && st.RunID != 0 {
			h.cacheStatus(st)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := h.cacheStatus(st)
	return c.JSON(http.StatusOK, resp)
}

func (h *RunsHandler) status(c echo.Context) error {
	runID, err := parseRunID(c)
	if err != nil {
		return err
	}
	h.mu.Lock()
	resp, ok := h.statuses[runID]
	h.mu.Unlock()
	if ok {
		return c.JSON(http.StatusOK, resp)
	}

	rec, found, err := h.store.GetRunDetails(c.Request().Context(), runID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, statusFromRecord(rec))
}

func (h *RunsHandler) list(c echo.Context) error {
	limit := 20
	if v := strings.TrimSpace(c.QueryParam("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := h.store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.RunRecord{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *RunsHandler) details(c echo.Context) error {
	runID, err := parseRunID(c)
	if err != nil {
		return err
	}
	rec, ok, err := h.store.GetRunDetails(c.Request().Context(), runID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *RunsHandler) logs(c echo.Context) error {
	runID, err := parseRunID(c)
	if err != nil {
		return err
	}
	if _, ok, err := h.store.GetRunDetails(c.Request().Context(), runID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	} else if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	items, err := h.store.ListLogs(c.Request().Context(), runID, 200)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.LogRecord{}
	}
	return c.JSON(http.StatusOK, items)
}

// approve resumes a paused run. Later gates stay active unless the request
// auto-approves them.
func (h *RunsHandler) approve(c echo.Context) error {
	runID, err := parseRunID(c)
	if err != nil {
		return err
	}
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	opts := pipeline.Options{
		AutoApprove:    req.AutoApprove,
		ApprovalPhases: defaultApprovalPhases,
		ApprovalNotes:  req.Notes,
	}
	if req.ApprovalPhases != nil {
		opts.ApprovalPhases = *req.ApprovalPhases
	}

	st, rerr := h.ctrl.Resume(c.Request().Context(), runID, opts)
	if rerr != nil {
		if errors.Is(rerr, pipeline.ErrNotResumable) {
			return echo.NewHTTPError(http.StatusNotFound, rerr.Error())
		}
		if st != nil && st.RunID != 0 {
			h.cacheStatus(st)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, rerr.Error())
	}
	return c.JSON(http.StatusOK, h.cacheStatus(st))
}

func (h *RunsHandler) listEvents(c echo.Context) error {
	runID, err := parseRunID(c)
	if err != nil {
		return err
	}
	if !h.events.Known(runID) {
		if _, ok, serr := h.store.GetRunDetails(c.Request().Context(), runID); serr != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, serr.Error())
		} else if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
	}
	list := h.events.List(runID, c.QueryParam("since_ts"))
	resp := eventsResponse{RunID: runID, Events: list}
	if len(list) > 0 {
		resp.Cursor = list[len(list)-1].TS
	}
	if resp.Events == nil {
		resp.Events = []events.Event{}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *RunsHandler) artifact(c echo.Context) error {
	runID, err := parseRunID(c)
	if err != nil {
		return err
	}
	rec, ok, err := h.store.GetRunDetails(c.Request().Context(), runID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok || rec.OutputPath == "" {
		return echo.NewHTTPError(http.StatusNotFound, "artifact not found")
	}

	artifactsDir, err := filepath.Abs(h.cfg.General.ArtifactsDir)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	path, err := filepath.Abs(rec.OutputPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if path != artifactsDir && !strings.HasPrefix(path, artifactsDir+string(os.PathSeparator)) {
		return echo.NewHTTPError(http.StatusForbidden, "artifact outside artifacts directory")
	}
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "artifact file missing")
	}
	return c.File(path)
}

func (h *RunsHandler) cacheStatus(st *state.RunState) runStatusResponse {
	resp := runStatusResponse{
		RunID:            st.RunID,
		SessionID:        st.SessionID,
		Status:           st.WorkflowStatus,
		CurrentPhase:     st.CurrentPhase,
		WaitingForPhase:  st.WaitingForPhase,
		ApprovalRequired: st.ApprovalRequired,
		ApprovalStatus:   st.ApprovalStatus,
		OutputPath:       st.PPTXPath,
		Errors:           st.Errors,
		Warnings:         st.Warnings,
		UpdatedAt:        st.UpdatedAt,
	}
	h.mu.Lock()
	h.statuses[st.RunID] = resp
	h.mu.Unlock()
	return resp
}

func statusFromRecord(rec store.RunRecord) runStatusResponse {
	return runStatusResponse{
		RunID:            rec.ID,
		SessionID:        rec.SessionID,
		Status:           rec.Status,
		CurrentPhase:     rec.WorkflowPhase,
		ApprovalRequired: rec.ApprovalRequired,
		ApprovalStatus:   rec.ApprovalStatus,
		OutputPath:       rec.OutputPath,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func parseRunID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("run_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid run_id")
	}
	return id, nil
}
