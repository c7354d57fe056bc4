package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestEnqueueReconcile(t *testing.T) {
	client := &fakeClient{}
	id, err := EnqueueReconcile(context.Background(), client, ReconcilePayload{Mode: "publish", RequestedBy: "ops"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)
	require.Len(t, client.tasks, 1)
	assert.Equal(t, ReconcileTask, client.tasks[0].Type())

	payload, err := DecodeReconcile(client.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, ReconcilePayload{Mode: "publish", RequestedBy: "ops"}, payload)
}

func TestEnqueueReconcileWrapsClientError(t *testing.T) {
	boom := errors.New("redis down")
	_, err := EnqueueReconcile(context.Background(), &fakeClient{err: boom}, ReconcilePayload{})
	assert.ErrorIs(t, err, boom)
}

func TestDecodeReconcileRejectsGarbage(t *testing.T) {
	_, err := DecodeReconcile(asynq.NewTask(ReconcileTask, []byte("{")))
	assert.Error(t, err)
}
