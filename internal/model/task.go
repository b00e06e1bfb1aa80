package model

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// TaskStatus is the lifecycle state of a queued task. The numeric values are
// persisted and must not be renumbered.
type TaskStatus int

const (
	TaskStatusNotStarted TaskStatus = 0
	TaskStatusStarted    TaskStatus = 1
	TaskStatusDone       TaskStatus = 2
	TaskStatusFailed     TaskStatus = 3
)

var taskStatusNames = map[TaskStatus]string{
	TaskStatusNotStarted: "not_started",
	TaskStatusStarted:    "started",
	TaskStatusDone:       "done",
	TaskStatusFailed:     "failed",
}

func (s TaskStatus) String() string {
	if name, ok := taskStatusNames[s]; ok {
		return name
	}
	return "TaskStatus(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether no further transition is expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// ParseTaskStatus accepts a status name ("done") or its number ("2").
func ParseTaskStatus(v string) (TaskStatus, error) {
	for s, name := range taskStatusNames {
		if name == v {
			return s, nil
		}
	}
	if n, err := strconv.Atoi(v); err == nil {
		if _, ok := taskStatusNames[TaskStatus(n)]; ok {
			return TaskStatus(n), nil
		}
	}
	return 0, eris.Errorf("model: unknown task status %q", v)
}

// TaskTypeArrowLine builds an arrow-line layer from a job payload.
const TaskTypeArrowLine = "arrow_line"

// Task is a unit of deferred work. Payload is the task's JSON input and is
// stored as given.
type Task struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	PackageName string          `json:"package_name,omitempty"`
	Status      TaskStatus      `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	Result      *TaskResult     `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TaskResult summarizes a finished arrow-line task.
type TaskResult struct {
	Features   int             `json:"features"`
	ArrowHeads int             `json:"arrow_heads"`
	Polyline   string          `json:"polyline"`
	GeoJSON    json.RawMessage `json:"geojson,omitempty"`
}

// ArrowHead is a stored arrow-head marker of a finished task.
type ArrowHead struct {
	TaskID  string  `json:"task_id"`
	Seq     int     `json:"seq"`
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	Bearing float64 `json:"bearing"`
}
