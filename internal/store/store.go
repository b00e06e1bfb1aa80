// Package store persists queued arrow-line tasks and the layers they produce.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/arrowline/internal/arrowline"
	"github.com/sells-group/arrowline/internal/model"
)

// ErrTaskNotFound is returned when no task has the requested id.
var ErrTaskNotFound = eris.New("task not found")

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	Status      *model.TaskStatus `json:"status,omitempty"`
	Type        string            `json:"type,omitempty"`
	PackageName string            `json:"package_name,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Offset      int               `json:"offset,omitempty"`
}

// NewTask describes a task to enqueue.
type NewTask struct {
	Type        string
	PackageName string
	Payload     []byte
}

// Store defines the persistence interface for the task queue.
type Store interface {
	// Tasks
	CreateTask(ctx context.Context, task NewTask) (*model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus) error
	// ClaimTask moves a not-started task to started and reports whether this
	// caller won it.
	ClaimTask(ctx context.Context, id string) (bool, error)
	CompleteTask(ctx context.Context, id string, layer *arrowline.Layer) error
	FailTask(ctx context.Context, id string, reason string) error
	// RequeueStale moves started tasks last updated before the cutoff back
	// to not started and returns how many were moved.
	RequeueStale(ctx context.Context, before time.Time) (int64, error)

	// Layers
	ListArrowHeads(ctx context.Context, taskID string) ([]model.ArrowHead, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
