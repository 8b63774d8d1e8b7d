package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/ahrdadan/uicheck/internal/queue"
	"github.com/ahrdadan/uicheck/internal/runner"
	"github.com/ahrdadan/uicheck/internal/suites"
)

const maxRunTimeout = 30 * time.Minute

// RunQueue is the part of queue.Manager the run endpoints use
type RunQueue interface {
	Submit(run *queue.Run) (*queue.Run, bool, error)
	Get(runID string) (*queue.Run, error)
	List() []*queue.Run
	Cancel(runID string) (*queue.Run, error)
	Subscribe(runID string) <-chan queue.Event
	Unsubscribe(runID string, ch <-chan queue.Event)
}

// RunCreated is returned when a run is accepted
type RunCreated struct {
	RunID     string          `json:"run_id"`
	Status    queue.RunStatus `json:"status"`
	StatusURL string          `json:"status_url"`
	ResultURL string          `json:"result_url"`
	Events    EventURLs       `json:"events"`
}

// EventURLs points at the two event streams of a run
type EventURLs struct {
	SSE       string `json:"sse_url"`
	WebSocket string `json:"ws_url"`
}

// RunResult is the outcome of a finished run
type RunResult struct {
	RunID  string          `json:"run_id"`
	Status queue.RunStatus `json:"status"`
	Report *runner.Report  `json:"report,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RunSummary is one entry of the run list
type RunSummary struct {
	RunID     string          `json:"run_id"`
	Status    queue.RunStatus `json:"status"`
	Fixture   string          `json:"fixture,omitempty"`
	Test      string          `json:"test,omitempty"`
	Progress  queue.Progress  `json:"progress"`
	CreatedAt time.Time       `json:"created_at"`
}

// RunHandler handles queued runs
type RunHandler struct {
	queue    RunQueue
	registry *suites.Registry
	config   RouteConfig
}

// NewRunHandler creates a run handler
func NewRunHandler(q RunQueue, registry *suites.Registry, config RouteConfig) *RunHandler {
	return &RunHandler{
		queue:    q,
		registry: registry,
		config:   config,
	}
}

// CreateRun validates and enqueues a run. The X-Idempotency-Key header
// overrides the body's key.
// POST /uicheck/runs
func (h *RunHandler) CreateRun(c *fiber.Ctx) error {
	var req queue.RunRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validate(req); err != nil {
		return err
	}

	if key := c.Get("X-Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}
	h.applyLimits(&req)

	run, duplicate, err := h.queue.Submit(queue.NewRun(req))
	if err != nil {
		log.Printf("Failed to enqueue run: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("Failed to enqueue run: %v", err))
	}
	if duplicate {
		c.Set("X-Idempotency-Hit", "true")
	}

	return c.Status(fiber.StatusAccepted).JSON(Response{
		Success: true,
		Data:    h.created(run),
	})
}

func (h *RunHandler) validate(req queue.RunRequest) error {
	if req.Timeout < 0 || req.TestTimeout < 0 || req.ResultTTL < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "timeouts must not be negative")
	}
	if req.Fixture == "" {
		if req.Test != "" {
			return fiber.NewError(fiber.StatusBadRequest, "fixture is required when test is set")
		}
		return nil
	}

	f, err := h.registry.Get(req.Fixture)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if req.Test != "" {
		if _, err := f.Lookup(req.Test); err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
	}
	return nil
}

// applyLimits fills server defaults and caps what a caller may ask for.
func (h *RunHandler) applyLimits(req *queue.RunRequest) {
	if req.Retry == nil {
		req.Retry = &queue.RetryPolicy{MaxRetries: h.config.MaxRetries}
	}
	req.Retry.MaxRetries = max(0, min(req.Retry.MaxRetries, h.config.MaxRetries))
	if req.ResultTTL == 0 && h.config.ResultTTL > 0 {
		req.ResultTTL = int(h.config.ResultTTL.Seconds())
	}
	req.Timeout = min(req.Timeout, int(maxRunTimeout.Seconds()))
	req.TestTimeout = min(req.TestTimeout, int(maxTestTimeout.Seconds()))
}

func (h *RunHandler) created(run *queue.Run) RunCreated {
	base := h.config.BaseURL
	return RunCreated{
		RunID:     run.ID,
		Status:    run.Status,
		StatusURL: fmt.Sprintf("%s/uicheck/runs/%s", base, run.ID),
		ResultURL: fmt.Sprintf("%s/uicheck/runs/%s/result", base, run.ID),
		Events: EventURLs{
			SSE:       fmt.Sprintf("%s/uicheck/runs/%s/events", base, run.ID),
			WebSocket: fmt.Sprintf("%s/uicheck/ws?run_id=%s", wsBase(base), url.QueryEscape(run.ID)),
		},
	}
}

func wsBase(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return base
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// ListRuns lists stored runs, oldest first
// GET /uicheck/runs
func (h *RunHandler) ListRuns(c *fiber.Ctx) error {
	runs := h.queue.List()
	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunSummary{
			RunID:     run.ID,
			Status:    run.Status,
			Fixture:   run.Request.Fixture,
			Test:      run.Request.Test,
			Progress:  run.Progress,
			CreatedAt: run.CreatedAt,
		})
	}
	return c.JSON(Response{Success: true, Data: out})
}

// GetRun returns the full state of a run
// GET /uicheck/runs/:run_id
func (h *RunHandler) GetRun(c *fiber.Ctx) error {
	run, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(Response{Success: true, Data: run})
}

// GetRunResult returns the report of a finished run. Unfinished runs
// answer 202 with their status.
// GET /uicheck/runs/:run_id/result
func (h *RunHandler) GetRunResult(c *fiber.Ctx) error {
	run, err := h.lookup(c)
	if err != nil {
		return err
	}

	res := RunResult{RunID: run.ID, Status: run.Status, Report: run.Report, Error: run.Error}
	if !run.Status.IsTerminal() {
		return c.Status(fiber.StatusAccepted).JSON(Response{Success: true, Data: res})
	}
	return c.JSON(Response{Success: true, Data: res})
}

// CancelRun cancels a queued or running run
// POST /uicheck/runs/:run_id/cancel
func (h *RunHandler) CancelRun(c *fiber.Ctx) error {
	if _, err := h.lookup(c); err != nil {
		return err
	}

	run, err := h.queue.Cancel(c.Params("run_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}

	return c.JSON(Response{
		Success: true,
		Data:    fiber.Map{"run_id": run.ID, "status": run.Status},
	})
}

// StreamEvents streams run events as server-sent events until the run
// reaches a terminal status.
// GET /uicheck/runs/:run_id/events
func (h *RunHandler) StreamEvents(c *fiber.Ctx) error {
	run, err := h.lookup(c)
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	run, events := h.follow(run)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if events != nil {
			defer h.queue.Unsubscribe(run.ID, events)
		}

		if writeSSE(w, queue.EventOf(run)) != nil || events == nil {
			return
		}
		for event := range events {
			if writeSSE(w, event) != nil || event.Status.IsTerminal() {
				return
			}
		}
	})

	return nil
}

// follow subscribes to an unfinished run and re-reads it, so a transition
// emitted before the subscription is still reflected in the returned
// snapshot. The channel is nil when the run is already terminal.
func (h *RunHandler) follow(run *queue.Run) (*queue.Run, <-chan queue.Event) {
	if run.Status.IsTerminal() {
		return run, nil
	}

	events := h.queue.Subscribe(run.ID)
	latest, err := h.queue.Get(run.ID)
	if err != nil {
		h.queue.Unsubscribe(run.ID, events)
		return run, nil
	}
	if latest.Status.IsTerminal() {
		h.queue.Unsubscribe(run.ID, events)
		return latest, nil
	}
	return latest, events
}

func writeSSE(w *bufio.Writer, event queue.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Status, data); err != nil {
		return err
	}
	return w.Flush()
}

// HandleWebSocket sends run events over a WebSocket and closes it once
// the run is finished.
// GET /uicheck/ws?run_id=
func (h *RunHandler) HandleWebSocket(c *websocket.Conn) {
	defer c.Close()

	runID := c.Query("run_id")
	if runID == "" {
		_ = c.WriteJSON(Response{Error: "run_id is required"})
		return
	}

	run, err := h.queue.Get(runID)
	if err != nil {
		_ = c.WriteJSON(Response{Error: err.Error()})
		return
	}

	run, events := h.follow(run)
	if events != nil {
		defer h.queue.Unsubscribe(runID, events)
	}

	if err := c.WriteJSON(queue.EventOf(run)); err != nil {
		return
	}
	if events == nil {
		if run.Status.IsTerminal() {
			closeFinished(c, run.Status)
		}
		return
	}

	for event := range events {
		if err := c.WriteJSON(event); err != nil {
			return
		}
		if event.Status.IsTerminal() {
			closeFinished(c, event.Status)
			return
		}
	}
}

func closeFinished(c *websocket.Conn, status queue.RunStatus) {
	_ = c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(status)))
}

func (h *RunHandler) lookup(c *fiber.Ctx) (*queue.Run, error) {
	runID := c.Params("run_id")
	if runID == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Run ID is required")
	}

	run, err := h.queue.Get(runID)
	switch {
	case errors.Is(err, queue.ErrRunExpired):
		return nil, fiber.NewError(fiber.StatusGone, err.Error())
	case err != nil:
		return nil, fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return run, nil
}
