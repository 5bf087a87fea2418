package runtime

import (
	"encoding/json"

	"github.com/aretw0/parley/pkg/domain"
)

// Frame is the activation record of one program invocation.
type Frame struct {
	programID string
	nodeID    string
	variables *Store
	storage   *Store
	commands  []domain.Command
}

// NewFrame enters program at its start node. Declared program variables start at 0.
func NewFrame(program *domain.Program) *Frame {
	vars := NewStore(nil)
	for _, name := range program.Variables {
		vars.Set(name, json.Number("0"))
	}
	return &Frame{
		programID: program.ID,
		nodeID:    program.StartID,
		variables: vars,
		storage:   NewStore(nil),
		commands:  append([]domain.Command(nil), program.Commands...),
	}
}

// FrameFromState rebuilds a frame from its persisted shape.
func FrameFromState(fs domain.FrameState) *Frame {
	return &Frame{
		programID: fs.ProgramID,
		nodeID:    fs.NodeID,
		variables: NewStore(domain.DeepCopyMap(fs.Variables)),
		storage:   NewStore(domain.DeepCopyMap(fs.Storage)),
		commands:  append([]domain.Command(nil), fs.Commands...),
	}
}

// State returns the persisted shape of the frame.
func (f *Frame) State() domain.FrameState {
	fs := domain.FrameState{
		ProgramID: f.programID,
		NodeID:    f.nodeID,
		Variables: f.variables.Snapshot(),
	}
	if f.storage.Len() > 0 {
		fs.Storage = f.storage.Snapshot()
	}
	if len(f.commands) > 0 {
		fs.Commands = append([]domain.Command(nil), f.commands...)
	}
	return fs
}

func (f *Frame) ProgramID() string { return f.programID }

func (f *Frame) NodeID() string { return f.nodeID }

// SetNodeID moves the frame. An empty id marks the end of the program path.
func (f *Frame) SetNodeID(id string) { f.nodeID = id }

// Variables returns the frame-local variables.
func (f *Frame) Variables() *Store { return f.variables }

// Storage returns per-frame bookkeeping such as no-match counters.
func (f *Frame) Storage() *Store { return f.storage }

// Commands returns the commands active while this frame is on the stack.
func (f *Frame) Commands() []domain.Command { return f.commands }
