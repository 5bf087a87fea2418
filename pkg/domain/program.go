package domain

import (
	"encoding/json"
	"fmt"
)

// CommandType selects how a command moves the stack.
type CommandType string

const (
	// CommandJump unwinds the stack to the frame owning the command and jumps to Next.
	CommandJump CommandType = "jump"
	// CommandPush enters ProgramID on top of the current stack.
	CommandPush CommandType = "push"
)

// Command is a global intent listener active while its program is on the stack.
type Command struct {
	Type      CommandType `json:"type"`
	Event     Event       `json:"event"`
	Next      string      `json:"next,omitempty"`
	ProgramID string      `json:"programId,omitempty"`
}

// Program is a read-only dialog graph. It never mutates after load.
type Program struct {
	ID        string           `json:"id"`
	StartID   string           `json:"startId"`
	Nodes     map[string]*Node `json:"nodes"`
	Commands  []Command        `json:"commands,omitempty"`
	Variables []string         `json:"variables,omitempty"`
}

// GetNode returns the node with the given id. An unknown id yields (nil, false).
func (p *Program) GetNode(id string) (*Node, bool) {
	if p == nil || id == "" {
		return nil, false
	}
	n, ok := p.Nodes[id]
	return n, ok
}

// UnmarshalJSON fills missing node ids from their map keys.
func (p *Program) UnmarshalJSON(data []byte) error {
	type alias Program
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for id, n := range raw.Nodes {
		if n == nil {
			return fmt.Errorf("program %s: node %s is null", raw.ID, id)
		}
		if n.ID == "" {
			n.ID = id
		}
		if n.ID != id {
			return fmt.Errorf("program %s: node key %s does not match id %s", raw.ID, id, n.ID)
		}
	}
	*p = Program(raw)
	return nil
}

// Prototype bundles the language configuration of a version.
type Prototype struct {
	Model   PrototypeModel `json:"model"`
	Locales []string       `json:"locales,omitempty"`
	Plan    string         `json:"plan,omitempty"`
}

// Locale returns the primary locale, defaulting to en-US.
func (p Prototype) Locale() string {
	if len(p.Locales) == 0 || p.Locales[0] == "" {
		return "en-US"
	}
	return p.Locales[0]
}

// Version is a published snapshot of a project: its root program and language model.
type Version struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"projectId"`
	RootProgramID string    `json:"rootProgramId"`
	Variables     []string  `json:"variables,omitempty"`
	Prototype     Prototype `json:"prototype"`
}
