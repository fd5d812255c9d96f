package elastiq

import (
	"github.com/oklog/ulid/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Execution statuses recorded in the journal, in lifecycle order.
const (
	StatusSubmitted = "submitted"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Task is a named unit of work dispatched through the Mux. The payload
// is opaque to the service; only the registered handler interprets it.
type Task struct {
	ID      string `msgpack:"id"`
	Type    string `msgpack:"type"`
	Payload []byte `msgpack:"payload"`
}

func NewTask(taskType string, payload []byte) *Task {
	return &Task{
		ID:      ulid.Make().String(),
		Type:    taskType,
		Payload: payload,
	}
}

// Marshal packs the task for journal storage.
func (t *Task) Marshal() ([]byte, error) {
	return msgpack.Marshal(t)
}

// UnmarshalTask unpacks a task previously packed with Marshal.
func UnmarshalTask(raw []byte) (*Task, error) {
	var t Task
	if err := msgpack.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
