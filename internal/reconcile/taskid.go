// Package reconcile drives a bulk reprocess run to per-document outcomes:
// submission, task polling, diff observation for servers that accept jobs
// without task ids, and finalization against the live document state.
package reconcile

import (
	"strings"

	"github.com/google/uuid"
)

// taskIDKeys are the payload keys checked for task ids before falling back
// to a deep scan of every value.
var taskIDKeys = []string{"task_id", "task_ids", "id", "task", "uuid"}

// ExtractTaskIDs pulls UUID-shaped task ids out of an arbitrary submission
// response, deduplicated in discovery order. Known keys are visited first
// so a well-formed response wins over incidental UUIDs elsewhere in the
// payload.
func ExtractTaskIDs(payload any) []string {
	var found []string
	collectTaskIDs(payload, &found)

	seen := make(map[string]bool, len(found))
	dedup := found[:0]
	for _, id := range found {
		if seen[id] {
			continue
		}
		seen[id] = true
		dedup = append(dedup, id)
	}
	return dedup
}

func collectTaskIDs(obj any, found *[]string) {
	switch v := obj.(type) {
	case string:
		candidate := strings.TrimSpace(v)
		if isUUID(candidate) {
			*found = append(*found, candidate)
		}
	case []any:
		for _, item := range v {
			collectTaskIDs(item, found)
		}
	case map[string]any:
		for _, key := range taskIDKeys {
			if val, ok := v[key]; ok {
				collectTaskIDs(val, found)
			}
		}
		for _, val := range v {
			collectTaskIDs(val, found)
		}
	}
}

// isUUID accepts only the canonical hyphenated form.
func isUUID(s string) bool {
	return len(s) == 36 && uuid.Validate(s) == nil
}

// taskClass buckets a raw task state string.
type taskClass int

const (
	taskPending taskClass = iota
	taskSuccess
	taskFailure
)

var (
	successStates = map[string]bool{
		"SUCCESS": true, "SUCCEEDED": true, "DONE": true,
		"COMPLETED": true, "COMPLETE": true, "FINISHED": true,
	}
	failureStates = map[string]bool{
		"FAILURE": true, "FAILED": true, "ERROR": true,
		"REVOKED": true, "CANCELED": true, "CANCELLED": true,
	}
)

// classifyTaskState maps a raw state token to success, failure or pending.
// Unknown tokens stay pending so the poll loop keeps waiting.
func classifyTaskState(raw string) taskClass {
	state := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case successStates[state]:
		return taskSuccess
	case failureStates[state]:
		return taskFailure
	default:
		return taskPending
	}
}
