package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/papertrail/internal/paperless"
)

const testTaskID = "1b4e28ba-2fa1-11d2-883f-0016d3cca427"

type fakeAPI struct {
	mu         sync.Mutex
	reprocess  func(id int) (any, error)
	taskStates map[string][]taskStateResp
	taskCalls  []string
	get        func(id int, call int) (paperless.Document, error)
	getCalls   map[int]int
}

type taskStateResp struct {
	state  string
	detail string
	err    error
}

func (f *fakeAPI) Reprocess(_ context.Context, ids []int) (any, error) {
	return f.reprocess(ids[0])
}

func (f *fakeAPI) TaskState(_ context.Context, taskID string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskCalls = append(f.taskCalls, taskID)
	queue := f.taskStates[taskID]
	if len(queue) == 0 {
		return "PENDING", "", nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.taskStates[taskID] = queue[1:]
	}
	return resp.state, resp.detail, resp.err
}

func (f *fakeAPI) Get(_ context.Context, id int) (paperless.Document, error) {
	f.mu.Lock()
	if f.getCalls == nil {
		f.getCalls = make(map[int]int)
	}
	f.getCalls[id]++
	call := f.getCalls[id]
	f.mu.Unlock()
	return f.get(id, call)
}

func testEngine(api API, cfg Config) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(api, cfg, logger, WithSleep(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
}

func fastConfig() Config {
	return Config{
		TaskPollInterval: time.Millisecond,
		DiffPollInterval: time.Millisecond,
		DiffMaxWait:      3 * time.Millisecond,
	}
}

func baselineDoc(id, contentLength int, title string) paperless.Document {
	return paperless.Document{ID: id, Title: title, ContentLength: contentLength, Modified: "2026-08-01T00:00:00Z"}
}

func TestRunTaskSuccess(t *testing.T) {
	doc := baselineDoc(7, 100, "report")
	api := &fakeAPI{
		reprocess: func(int) (any, error) {
			return map[string]any{"task_id": testTaskID}, nil
		},
		taskStates: map[string][]taskStateResp{
			testTaskID: {{state: "STARTED"}, {state: "SUCCESS", detail: "result=done"}},
		},
		get: func(int, int) (paperless.Document, error) {
			after := doc
			after.ContentLength = 450
			return after, nil
		},
	}

	res := testEngine(api, fastConfig()).Run(context.Background(), []paperless.Document{doc}, "2026-08-30_120000")
	if res.Success != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v, want 1 success", res)
	}
	row := res.Rows[0]
	if row.Status != "success" {
		t.Errorf("Status = %q, want success", row.Status)
	}
	if !strings.HasPrefix(row.Detail, "task_state=SUCCESS") {
		t.Errorf("Detail = %q, want task_state=SUCCESS prefix", row.Detail)
	}
	if row.PreContentLength != 100 || row.PostContentLength != 450 || row.ContentDelta != 350 {
		t.Errorf("content accounting wrong: %+v", row)
	}
}

func TestRunMixedTaskFailureAndDiffObservation(t *testing.T) {
	doc101 := baselineDoc(101, 10, "fails")
	doc102 := baselineDoc(102, 20, "accepted bare")
	api := &fakeAPI{
		reprocess: func(id int) (any, error) {
			if id == 101 {
				return map[string]any{"task_id": testTaskID}, nil
			}
			return map[string]any{"result": "OK"}, nil
		},
		taskStates: map[string][]taskStateResp{
			testTaskID: {{state: "FAILURE", detail: "traceback=boom"}},
		},
		get: func(id int, call int) (paperless.Document, error) {
			if id == 102 && call >= 2 {
				after := doc102
				after.ContentLength = 900
				return after, nil
			}
			if id == 101 {
				return doc101, nil
			}
			return doc102, nil
		},
	}

	res := testEngine(api, fastConfig()).Run(context.Background(), []paperless.Document{doc101, doc102}, "2026-08-30_120000")
	if res.Success != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v, want 1 success 1 failed", res)
	}
	if res.AcceptedNoTask != 1 || res.ObservedDiff != 1 {
		t.Errorf("no-task accounting = %+v", res)
	}

	byID := make(map[int]int)
	for i, row := range res.Rows {
		byID[row.ID] = i
	}
	failed := res.Rows[byID[101]]
	if failed.Status != "failed" || !strings.HasPrefix(failed.Detail, "task_state=FAILURE") {
		t.Errorf("doc 101 = %+v, want task_state=FAILURE failure", failed)
	}
	observed := res.Rows[byID[102]]
	if observed.Status != "success" || observed.Detail != "observed_change_via_diff" {
		t.Errorf("doc 102 = %+v, want observed_change_via_diff success", observed)
	}
}

func TestRunBareAcceptanceNoDiffIsSuccess(t *testing.T) {
	doc := baselineDoc(5, 40, "quiet")
	api := &fakeAPI{
		reprocess: func(int) (any, error) {
			return map[string]any{"result": "OK"}, nil
		},
		get: func(int, int) (paperless.Document, error) {
			return doc, nil
		},
	}

	res := testEngine(api, fastConfig()).Run(context.Background(), []paperless.Document{doc}, "2026-08-30_120000")
	if res.Success != 1 {
		t.Fatalf("result = %+v, want success at diff ceiling", res)
	}
	if res.Rows[0].Detail != "accepted_no_observed_diff" {
		t.Errorf("Detail = %q, want accepted_no_observed_diff", res.Rows[0].Detail)
	}
	if res.NoObservedDiff != 1 {
		t.Errorf("NoObservedDiff = %d, want 1", res.NoObservedDiff)
	}
}

func TestRunSubmitError(t *testing.T) {
	doc := baselineDoc(9, 30, "rejected")
	api := &fakeAPI{
		reprocess: func(int) (any, error) {
			return nil, errors.New("503 from server")
		},
		get: func(int, int) (paperless.Document, error) {
			return doc, nil
		},
	}

	res := testEngine(api, fastConfig()).Run(context.Background(), []paperless.Document{doc}, "2026-08-30_120000")
	if res.Failed != 1 {
		t.Fatalf("result = %+v, want 1 failed", res)
	}
	if !strings.HasPrefix(res.Rows[0].Detail, "submit_error=") {
		t.Errorf("Detail = %q, want submit_error prefix", res.Rows[0].Detail)
	}
}

func TestRunUnrecognizedPayloadFails(t *testing.T) {
	doc := baselineDoc(3, 30, "odd server")
	api := &fakeAPI{
		reprocess: func(int) (any, error) {
			return map[string]any{"result": "QUEUED"}, nil
		},
		get: func(int, int) (paperless.Document, error) {
			return doc, nil
		},
	}

	res := testEngine(api, fastConfig()).Run(context.Background(), []paperless.Document{doc}, "2026-08-30_120000")
	if res.Failed != 1 {
		t.Fatalf("result = %+v, want 1 failed", res)
	}
	if !strings.HasPrefix(res.Rows[0].Detail, "no_task_id_payload=") {
		t.Errorf("Detail = %q, want no_task_id_payload prefix", res.Rows[0].Detail)
	}
}

func TestRunCancelledBeforeSubmission(t *testing.T) {
	docs := []paperless.Document{baselineDoc(1, 10, "a"), baselineDoc(2, 20, "b")}
	api := &fakeAPI{
		reprocess: func(int) (any, error) {
			t.Fatal("Reprocess called after cancellation")
			return nil, nil
		},
		get: func(id int, _ int) (paperless.Document, error) {
			after := baselineDoc(id, id*100, "refetched")
			return after, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := testEngine(api, fastConfig()).Run(ctx, docs, "2026-08-30_120000")
	if res.Success != 0 || res.Failed != 2 {
		t.Fatalf("result = %+v, want 2 failed", res)
	}
	if len(res.Rows) != len(docs) {
		t.Fatalf("len(Rows) = %d, want one row per requested doc", len(res.Rows))
	}
	for _, row := range res.Rows {
		if row.Detail != "stopped_before_completion" {
			t.Errorf("doc %d Detail = %q, want stopped_before_completion", row.ID, row.Detail)
		}
		// The refetch outlives the cancelled run context.
		if row.PostContentLength != row.ID*100 {
			t.Errorf("doc %d PostContentLength = %d, want post-stop snapshot %d",
				row.ID, row.PostContentLength, row.ID*100)
		}
		if row.Title != "refetched" {
			t.Errorf("doc %d Title = %q, want refetched title", row.ID, row.Title)
		}
	}
}

func TestRunRefetchFailureKeepsTerminalStatus(t *testing.T) {
	doc := baselineDoc(6, 25, "flaky fetch")
	api := &fakeAPI{
		reprocess: func(int) (any, error) {
			return map[string]any{"task_id": testTaskID}, nil
		},
		taskStates: map[string][]taskStateResp{
			testTaskID: {{state: "SUCCESS"}},
		},
		get: func(int, int) (paperless.Document, error) {
			return paperless.Document{}, errors.New("502 from server")
		},
	}

	res := testEngine(api, fastConfig()).Run(context.Background(), []paperless.Document{doc}, "2026-08-30_120000")
	if res.Success != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v, want refetch failure to keep success", res)
	}
	row := res.Rows[0]
	if !strings.HasPrefix(row.Detail, "task_state=SUCCESS") || !strings.Contains(row.Detail, "post_fetch_error=") {
		t.Errorf("Detail = %q, want task_state=SUCCESS with post_fetch_error appended", row.Detail)
	}
	if row.PostContentLength != 25 || row.ContentDelta != 0 {
		t.Errorf("content accounting = %+v, want pre length retained", row)
	}
}

func TestRunPollsTasksInSubmissionOrder(t *testing.T) {
	const otherTaskID = "9b2e11aa-2fa1-11d2-883f-0016d3cca427"
	// Batch order is not ascending by id; polling must follow it anyway.
	docs := []paperless.Document{baselineDoc(9, 10, "first"), baselineDoc(3, 50, "second")}
	api := &fakeAPI{
		reprocess: func(id int) (any, error) {
			if id == 9 {
				return map[string]any{"task_id": testTaskID}, nil
			}
			return map[string]any{"task_id": otherTaskID}, nil
		},
		taskStates: map[string][]taskStateResp{
			testTaskID:  {{state: "SUCCESS"}},
			otherTaskID: {{state: "SUCCESS"}},
		},
		get: func(id int, _ int) (paperless.Document, error) {
			for _, d := range docs {
				if d.ID == id {
					return d, nil
				}
			}
			return paperless.Document{}, errors.New("unknown id")
		},
	}

	res := testEngine(api, fastConfig()).Run(context.Background(), docs, "2026-08-30_120000")
	if res.Success != 2 {
		t.Fatalf("result = %+v, want 2 success", res)
	}
	if len(api.taskCalls) != 2 || api.taskCalls[0] != testTaskID || api.taskCalls[1] != otherTaskID {
		t.Errorf("taskCalls = %v, want doc 9's task polled before doc 3's", api.taskCalls)
	}
}

func TestRunCancelledDuringDiffObservation(t *testing.T) {
	doc := baselineDoc(4, 40, "interrupted")
	ctx, cancel := context.WithCancel(context.Background())
	api := &fakeAPI{
		reprocess: func(int) (any, error) {
			return map[string]any{"result": "OK"}, nil
		},
		get: func(_ int, call int) (paperless.Document, error) {
			if call == 1 {
				cancel()
			}
			return doc, nil
		},
	}

	res := testEngine(api, Config{
		TaskPollInterval: time.Millisecond,
		DiffPollInterval: time.Millisecond,
		DiffMaxWait:      time.Hour,
	}).Run(ctx, []paperless.Document{doc}, "2026-08-30_120000")

	if res.Failed != 1 {
		t.Fatalf("result = %+v, want 1 failed", res)
	}
	if !strings.HasPrefix(res.Rows[0].Detail, "stopped_before_diff_observation") {
		t.Errorf("Detail = %q, want stopped_before_diff_observation", res.Rows[0].Detail)
	}
}

func TestRunEmitsEvents(t *testing.T) {
	doc := baselineDoc(8, 15, "evented")
	api := &fakeAPI{
		reprocess: func(int) (any, error) {
			return map[string]any{"task_id": testTaskID}, nil
		},
		taskStates: map[string][]taskStateResp{
			testTaskID: {{state: "SUCCESS"}},
		},
		get: func(int, int) (paperless.Document, error) {
			return doc, nil
		},
	}

	var events []Event
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := New(api, fastConfig(), logger,
		WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		WithEventHook(func(ev Event) { events = append(events, ev) }))

	engine.Run(context.Background(), []paperless.Document{doc}, "2026-08-30_120000")
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.DocID != 8 || ev.Action != ActionReprocess || ev.Engine != EnginePaperless || ev.Status != "success" {
		t.Errorf("event = %+v", ev)
	}
}
