package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrVersionNotFound is returned by data APIs when a version does not exist.
var ErrVersionNotFound = errors.New("version not found")

// ErrProgramNotFound is returned by data APIs when a program does not exist.
var ErrProgramNotFound = errors.New("program not found")

// ErrNodeNotFound marks a reference to a node id the program does not contain.
var ErrNodeNotFound = errors.New("node not found")

// ErrNoHandler marks a node that no registered handler accepts.
var ErrNoHandler = errors.New("no handler accepts node")

// ErrLoopOverflow is returned when a turn dispatches too many nodes without suspending.
var ErrLoopOverflow = errors.New("node traversal limit exceeded")

// ErrStackOverflow is returned when nested program invocations exceed the depth limit.
var ErrStackOverflow = errors.New("stack depth limit exceeded")

// ProgramFaultError reports a malformed program detected while executing a turn.
// It is distinct from a normal suspension and always terminates the turn.
type ProgramFaultError struct {
	ProgramID string
	NodeID    string
	Err       error
}

func (e *ProgramFaultError) Error() string {
	return fmt.Sprintf("program %q node %q: %v", e.ProgramID, e.NodeID, e.Err)
}

func (e *ProgramFaultError) Unwrap() error {
	return e.Err
}

// IsProgramFault reports whether err is (or wraps) a structural program fault.
func IsProgramFault(err error) bool {
	var fault *ProgramFaultError
	return errors.As(err, &fault)
}
