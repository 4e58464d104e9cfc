package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackzampolin/papertrail/internal/history"
	"github.com/jackzampolin/papertrail/internal/paperless"
)

// EnginePaperless names the server-side reprocess engine in events and
// summaries.
const EnginePaperless = "paperless_internal"

// ActionReprocess is the pipeline event action recorded for bulk reprocess.
const ActionReprocess = "paperless_reprocess"

// API is the document service surface the engine drives.
type API interface {
	Reprocess(ctx context.Context, ids []int) (any, error)
	TaskState(ctx context.Context, taskID string) (state, detail string, err error)
	Get(ctx context.Context, id int) (paperless.Document, error)
}

// Config holds the polling cadence. Intervals are injectable so tests can
// run the full state machine without wall-clock waits.
type Config struct {
	TaskPollInterval time.Duration
	DiffPollInterval time.Duration
	DiffMaxWait      time.Duration
}

func DefaultConfig() Config {
	return Config{
		TaskPollInterval: 2 * time.Second,
		DiffPollInterval: 5 * time.Second,
		DiffMaxWait:      600 * time.Second,
	}
}

// Event is one per-document pipeline event emitted during finalization.
type Event struct {
	DocID  int
	Title  string
	Action string
	Engine string
	Status string
	Note   string
}

// Result summarizes a completed run. Success+Failed always equals the
// number of requested documents, and Rows carries one entry per document.
type Result struct {
	Rows           []history.Row
	Success        int
	Failed         int
	AcceptedNoTask int
	ObservedDiff   int
	NoObservedDiff int
}

// Engine reconciles a submitted batch to terminal per-document outcomes.
type Engine struct {
	api     API
	cfg     Config
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	onEvent func(Event)
}

type Option func(*Engine)

// WithSleep replaces the interval wait, letting tests drive the poll loops
// instantly.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithEventHook registers a callback invoked once per document during
// finalization.
func WithEventHook(fn func(Event)) Option {
	return func(e *Engine) { e.onEvent = fn }
}

func New(api API, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.TaskPollInterval <= 0 {
		cfg.TaskPollInterval = DefaultConfig().TaskPollInterval
	}
	if cfg.DiffPollInterval <= 0 {
		cfg.DiffPollInterval = DefaultConfig().DiffPollInterval
	}
	if cfg.DiffMaxWait <= 0 {
		cfg.DiffMaxWait = DefaultConfig().DiffMaxWait
	}
	e := &Engine{
		api:    api,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type outcome struct {
	status string // pending, success, failed
	detail string
	taskID string
}

type submittedTask struct {
	docID  int
	taskID string
}

// Run submits every document for reprocessing and reconciles each to a
// terminal outcome. Cancelling ctx stops the run early; documents that
// never reached a terminal state are finalized as failed with a detail
// naming the phase they were stopped in. Every requested document gets
// exactly one history row.
func (e *Engine) Run(ctx context.Context, docs []paperless.Document, runTS string) Result {
	order := make([]int, 0, len(docs))
	baselines := make(map[int]paperless.Snapshot, len(docs))
	titles := make(map[int]string, len(docs))
	results := make(map[int]*outcome, len(docs))
	for _, d := range docs {
		order = append(order, d.ID)
		baselines[d.ID] = d.Snapshot()
		titles[d.ID] = d.Title
		results[d.ID] = &outcome{status: "pending", detail: "not_submitted"}
	}

	noTaskBaselines := e.submit(ctx, order, baselines, results)
	e.pollTasks(ctx, order, results)

	var res Result
	res.AcceptedNoTask = len(noTaskBaselines)
	if len(noTaskBaselines) > 0 {
		observed, noDiff, stopped := e.observeDiffs(ctx, noTaskBaselines)
		res.ObservedDiff = len(observed)
		res.NoObservedDiff = len(noDiff)
		for _, id := range observed {
			results[id] = &outcome{status: "success", detail: "observed_change_via_diff"}
		}
		for _, id := range noDiff {
			results[id] = &outcome{status: "success", detail: "accepted_no_observed_diff"}
		}
		for _, id := range stopped {
			results[id] = &outcome{status: "failed", detail: "stopped_before_diff_observation"}
		}
	}

	e.finalize(ctx, order, titles, baselines, results, runTS, &res)
	return res
}

// submit posts each document individually and classifies the response:
// a task id to poll, a bare acceptance queued for diff observation, or a
// submission failure. Returns the baselines of bare acceptances.
func (e *Engine) submit(ctx context.Context, order []int, baselines map[int]paperless.Snapshot, results map[int]*outcome) map[int]paperless.Snapshot {
	noTask := make(map[int]paperless.Snapshot)
	hintLogged := false

	for _, id := range order {
		if ctx.Err() != nil {
			e.logger.Warn("submission loop stopped", "remaining", remainingPending(order, results))
			break
		}
		e.logger.Info("submitting reprocess", "id", id)

		payload, err := e.api.Reprocess(ctx, []int{id})
		if err != nil {
			results[id] = &outcome{status: "failed", detail: fmt.Sprintf("submit_error=%v", err)}
			e.logger.Error("submit failed", "id", id, "error", err)
			continue
		}

		taskIDs := ExtractTaskIDs(payload)
		if len(taskIDs) == 0 {
			if bareAcceptance(payload) {
				noTask[id] = baselines[id]
				results[id] = &outcome{status: "pending", detail: "accepted_by_api_no_task_id"}
				if !hintLogged {
					e.logger.Info("server accepts reprocess jobs without exposing task ids, falling back to diff observation")
					hintLogged = true
				}
				e.logger.Info("accepted without task id", "id", id)
			} else {
				results[id] = &outcome{status: "failed", detail: fmt.Sprintf("no_task_id_payload=%v", payload)}
				e.logger.Error("no task id in submission response", "id", id, "payload", payload)
			}
			continue
		}
		if len(taskIDs) > 1 {
			e.logger.Warn("multiple task ids returned, tracking first only", "id", id, "task_ids", strings.Join(taskIDs, ","))
		}
		results[id] = &outcome{status: "pending", detail: "task_id=" + taskIDs[0], taskID: taskIDs[0]}
		e.logger.Info("task assigned", "id", id, "task_id", taskIDs[0])
	}
	return noTask
}

// bareAcceptance reports whether the response is the {"result":"OK"} shape
// some server versions return for bulk reprocess.
func bareAcceptance(payload any) bool {
	obj, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	result, _ := obj["result"].(string)
	return strings.ToUpper(strings.TrimSpace(result)) == "OK"
}

// pollTasks waits each submitted task to a terminal state in submission
// order. A cancelled ctx leaves the rest pending for finalization.
func (e *Engine) pollTasks(ctx context.Context, order []int, results map[int]*outcome) {
	for _, id := range order {
		oc := results[id]
		if oc.taskID == "" || oc.status != "pending" {
			continue
		}
		if ctx.Err() != nil {
			e.logger.Warn("task poll loop stopped")
			return
		}
		state, detail := e.pollTaskUntilTerminal(ctx, oc.taskID)
		if ctx.Err() != nil {
			return
		}
		if classifyTaskState(state) == taskSuccess {
			text := "task_state=" + state
			if detail != "" {
				text += ", " + detail
			}
			results[id] = &outcome{status: "success", detail: text}
			e.logger.Info("task succeeded", "id", id, "state", state)
		} else {
			text := "task_state=" + state
			if detail != "" {
				text += ", detail=" + detail
			}
			results[id] = &outcome{status: "failed", detail: text}
			e.logger.Error("task failed", "id", id, "state", state, "detail", detail)
		}
	}
}

// pollTaskUntilTerminal polls one task until it leaves pending. A fetch
// error counts as a terminal failure rather than stalling the batch.
func (e *Engine) pollTaskUntilTerminal(ctx context.Context, taskID string) (string, string) {
	for {
		if ctx.Err() != nil {
			return "ABORTED", "Stopped by user"
		}
		state, detail, err := e.api.TaskState(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return "ABORTED", "Stopped by user"
			}
			return "ERROR", fmt.Sprintf("poll_error=%v", err)
		}
		if classifyTaskState(state) != taskPending {
			return state, detail
		}
		if err := e.sleep(ctx, e.cfg.TaskPollInterval); err != nil {
			return "ABORTED", "Stopped by user"
		}
	}
}

// observeDiffs polls the live documents of bare acceptances, comparing each
// against its baseline snapshot. A document leaves the pending set on the
// first observed field change. The wait window is bounded; what remains at
// the ceiling is treated as accepted without an observable diff.
func (e *Engine) observeDiffs(ctx context.Context, baselines map[int]paperless.Snapshot) (observed, noDiff, stopped []int) {
	pending := make(map[int]paperless.Snapshot, len(baselines))
	for id, snap := range baselines {
		pending[id] = snap
	}

	e.logger.Info("starting diff observation for acceptances without task ids", "count", len(pending))

	var elapsed time.Duration
	for len(pending) > 0 && ctx.Err() == nil && elapsed < e.cfg.DiffMaxWait {
		for _, id := range sortedSnapshotIDs(pending) {
			if ctx.Err() != nil {
				break
			}
			before := pending[id]
			doc, err := e.api.Get(ctx, id)
			if err != nil {
				e.logger.Warn("diff poll fetch failed", "id", id, "error", err)
				continue
			}
			changes := before.Diff(doc.Snapshot())
			if len(changes) == 0 {
				continue
			}
			observed = append(observed, id)
			delete(pending, id)
			e.logger.Info("observed change via diff", "id", id, "changes", renderChanges(changes))
		}
		if len(pending) > 0 && ctx.Err() == nil {
			if err := e.sleep(ctx, e.cfg.DiffPollInterval); err != nil {
				break
			}
			elapsed += e.cfg.DiffPollInterval
		}
	}

	remaining := sortedSnapshotIDs(pending)
	if ctx.Err() != nil {
		for _, id := range remaining {
			e.logger.Error("stopped before diff observation", "id", id)
		}
		return observed, nil, remaining
	}
	for _, id := range remaining {
		e.logger.Info("accepted by API, no observable diff in wait window", "id", id)
	}
	return observed, remaining, nil
}

// finalize forces every remaining pending document to a failure, refetches
// each document for its post-run state, and emits exactly one history row
// per requested document.
func (e *Engine) finalize(ctx context.Context, order []int, titles map[int]string, baselines map[int]paperless.Snapshot, results map[int]*outcome, runTS string, res *Result) {
	for _, id := range order {
		oc := results[id]
		if oc.status != "pending" {
			continue
		}
		if ctx.Err() != nil {
			results[id] = &outcome{status: "failed", detail: "stopped_before_completion"}
			e.logger.Error("stopped before completion", "id", id)
		} else {
			results[id] = &outcome{status: "failed", detail: "incomplete_without_terminal_status"}
			e.logger.Error("incomplete without terminal status", "id", id)
		}
	}

	// The post-run snapshot is wanted even after user cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	for _, id := range order {
		oc := results[id]
		preLen := baselines[id].ContentLength
		title := titles[id]
		postLen := preLen
		detail := oc.detail

		latest, err := e.api.Get(fetchCtx, id)
		if err != nil {
			if detail != "" {
				detail += fmt.Sprintf(" | post_fetch_error=%v", err)
			} else {
				detail = fmt.Sprintf("post_fetch_error=%v", err)
			}
			e.logger.Warn("post-run snapshot fetch failed", "id", id, "error", err)
		} else {
			if latest.Title != "" {
				title = latest.Title
			}
			postLen = latest.ContentLength
		}

		status := "failed"
		if oc.status == "success" {
			status = "success"
		}
		res.Rows = append(res.Rows, history.Row{
			RunTS:             runTS,
			ID:                id,
			Title:             title,
			PreContentLength:  preLen,
			PostContentLength: postLen,
			ContentDelta:      postLen - preLen,
			Status:            status,
			Detail:            detail,
			Source:            history.SourceBulkReprocess,
		})
		if status == "success" {
			res.Success++
		} else {
			res.Failed++
		}
		if e.onEvent != nil {
			e.onEvent(Event{
				DocID:  id,
				Title:  title,
				Action: ActionReprocess,
				Engine: EnginePaperless,
				Status: status,
				Note:   detail,
			})
		}
	}

	e.logger.Info("run summary",
		"success", res.Success, "failed", res.Failed, "total", len(order),
		"accepted_without_task_id", res.AcceptedNoTask,
		"observed_diff", res.ObservedDiff, "no_observed_diff", res.NoObservedDiff)
}

func renderChanges(changes []paperless.FieldChange) string {
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("%s %s -> %s", c.Field, c.Old, c.New))
	}
	return strings.Join(parts, "; ")
}

func remainingPending(order []int, results map[int]*outcome) int {
	n := 0
	for _, id := range order {
		if results[id].status == "pending" && results[id].detail == "not_submitted" {
			n++
		}
	}
	return n
}

func sortedSnapshotIDs(m map[int]paperless.Snapshot) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
