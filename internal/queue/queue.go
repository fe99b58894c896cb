// Package queue carries "outbox row ready" notifications from the API
// process to drain workers. Notifications are hints: the outbox table is the
// source of truth and workers also sweep it for due rows, so a lost or
// duplicated notification never loses or double-sends a message.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Job points a worker at one outbox row.
type Job struct {
	WorkspaceID string `json:"workspace_id"`
	OutboxID    string `json:"outbox_id"`
}

// Handler processes one Job. Its error is logged by the consumer; the job
// is not redelivered.
type Handler func(ctx context.Context, job Job) error

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("queue closed")

func encode(j Job) ([]byte, error) { return json.Marshal(j) }

func decode(b []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return Job{}, err
	}
	if strings.TrimSpace(j.WorkspaceID) == "" || strings.TrimSpace(j.OutboxID) == "" {
		return Job{}, errors.New("job missing workspace or outbox id")
	}
	return j, nil
}
