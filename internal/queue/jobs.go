// Package queue defines the background tasks exchanged between the API and
// the worker through asynq.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// ReconcileTask sweeps the object store for uploads missing from the
	// catalog.
	ReconcileTask = "catalog:reconcile"
)

// ReconcilePayload tells the worker what to do with orphans it finds.
type ReconcilePayload struct {
	Mode        string `json:"mode"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// Enqueuer is the subset of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewReconcileTask builds the task for payload.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ReconcileTask, data, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// EnqueueReconcile enqueues a sweep. At most one sweep is queued at a time.
func EnqueueReconcile(ctx context.Context, client Enqueuer, payload ReconcilePayload) (string, error) {
	task, err := NewReconcileTask(payload)
	if err != nil {
		return "", err
	}
	info, err := client.EnqueueContext(ctx, task, asynq.Unique(time.Minute))
	if err != nil {
		return "", fmt.Errorf("enqueue reconcile task: %w", err)
	}
	return info.ID, nil
}

// DecodeReconcile reads the payload of a reconcile task.
func DecodeReconcile(task *asynq.Task) (ReconcilePayload, error) {
	var payload ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
