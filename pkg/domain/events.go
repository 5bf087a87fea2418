package domain

import (
	"context"
	"time"
)

// NodeEvent reports that a node was dispatched.
type NodeEvent struct {
	Timestamp time.Time `json:"timestamp"`
	ProgramID string    `json:"program_id"`
	NodeID    string    `json:"node_id"`
	NodeType  NodeType  `json:"node_type"`
	Handler   string    `json:"handler"`
}

// APICallEvent reports an outbound call made by an api node.
type APICallEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Hostname  string        `json:"hostname"`
	Status    int           `json:"status,omitempty"`
	Duration  time.Duration `json:"duration"`
	Throttled bool          `json:"throttled,omitempty"`
	Err       error         `json:"-"`
}

// TurnEvent reports the outcome of a turn.
type TurnEvent struct {
	Timestamp time.Time `json:"timestamp"`
	VersionID string    `json:"version_id"`
	Steps     int       `json:"steps"`
	Ended     bool      `json:"ended"`
	Err       error     `json:"-"`
}

// LifecycleHooks defines callbacks for runtime observability.
type LifecycleHooks struct {
	OnNodeEnter func(context.Context, *NodeEvent)
	OnAPICall   func(context.Context, *APICallEvent)
	OnTurnEnd   func(context.Context, *TurnEvent)
}
