// Package models holds the plain record types shared between the engine's
// durable mirror and its storage backends.
package models

import "time"

// JobSnapshot is a point-in-time copy of a committed job entry, written to
// the mirror after a transaction that touched it commits. It carries enough
// state to rebuild operator-facing history; it is never read back into the
// engine itself.
type JobSnapshot struct {
	Key            string            `json:"key"`
	Queue          string            `json:"queue"`
	State          string            `json:"state"`
	InvocationData string            `json:"invocation_data"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpireAt       time.Time         `json:"expire_at,omitempty"`
	FetchedAt      time.Time         `json:"fetched_at,omitempty"`
	StateHistory   []StateTransition `json:"state_history"`
}

// StateTransition records one job state change for snapshot history.
type StateTransition struct {
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Data      string    `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueSnapshot captures the depth and head of a single named queue at the
// moment a transaction touching it committed.
type QueueSnapshot struct {
	Name      string    `json:"name"`
	Length    int       `json:"length"`
	HeadKey   string    `json:"head_key,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServerSnapshot records a background-process heartbeat for operator
// visibility into which workers were alive at a given time.
type ServerSnapshot struct {
	ID          string    `json:"id"`
	Queues      []string  `json:"queues"`
	WorkerCount int       `json:"worker_count"`
	StartedAt   time.Time `json:"started_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}
