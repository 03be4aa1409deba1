package model

import "time"

// Component names the subsystem that swallowed a failure.
type Component string

const (
	ComponentBus          Component = "bus"
	ComponentWorker       Component = "worker"
	ComponentScoring      Component = "scoring"
	ComponentNotification Component = "notification"
	ComponentRegistry     Component = "registry"
	ComponentExport       Component = "export"
	ComponentIngress      Component = "ingress"
)

// Failure is a queryable record of work that was dropped or only partially applied.
type Failure struct {
	ID         string         `json:"id"`
	Component  Component      `json:"component"`
	EventName  string         `json:"event_name,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	JobID      string         `json:"job_id,omitempty"`
	Attempts   int            `json:"attempts,omitempty"`
	Reason     string         `json:"reason"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
