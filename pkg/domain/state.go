package domain

import (
	"bytes"
	"encoding/json"
)

// Variables is a flat key/value object. Numbers are kept as json.Number so that
// decoding and re-encoding produce identical bytes.
type Variables map[string]any

// UnmarshalJSON decodes the object preserving number literals.
func (v *Variables) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*v = m
	return nil
}

// Clone returns a deep copy.
func (v Variables) Clone() Variables {
	if v == nil {
		return nil
	}
	return Variables(DeepCopyMap(v))
}

// FrameState is the persisted shape of one stack frame.
type FrameState struct {
	ProgramID string    `json:"programID"`
	NodeID    string    `json:"nodeID"`
	Variables Variables `json:"variables"`
	Storage   Variables `json:"storage,omitempty"`
	Commands  []Command `json:"commands,omitempty"`
}

// State is the persisted shape of a session, exchanged with the session store.
type State struct {
	Stack     []FrameState `json:"stack"`
	Variables Variables    `json:"variables"`
	Storage   Variables    `json:"storage,omitempty"`
}

// NewState creates the state of a fresh session positioned at the start of a program.
func NewState(programID, startNodeID string, variables Variables) *State {
	if variables == nil {
		variables = Variables{}
	}
	return &State{
		Stack: []FrameState{{
			ProgramID: programID,
			NodeID:    startNodeID,
			Variables: Variables{},
		}},
		Variables: variables,
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := &State{
		Variables: s.Variables.Clone(),
		Storage:   s.Storage.Clone(),
	}
	if s.Stack != nil {
		c.Stack = make([]FrameState, len(s.Stack))
		for i, f := range s.Stack {
			c.Stack[i] = FrameState{
				ProgramID: f.ProgramID,
				NodeID:    f.NodeID,
				Variables: f.Variables.Clone(),
				Storage:   f.Storage.Clone(),
				Commands:  append([]Command(nil), f.Commands...),
			}
			if f.Commands == nil {
				c.Stack[i].Commands = nil
			}
		}
	}
	return c
}

// DecodeState parses a persisted state.
func DecodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
