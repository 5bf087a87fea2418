package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/parley/internal/validator"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
)

// Builder manages the program construction.
type Builder struct {
	program *domain.Program
	nodes   map[string]*NodeBuilder
}

// New creates a builder for the program programID. The start node defaults to "start".
func New(programID string) *Builder {
	return &Builder{
		program: &domain.Program{ID: programID, StartID: "start"},
		nodes:   make(map[string]*NodeBuilder),
	}
}

// StartAt changes the start node of the program.
func (b *Builder) StartAt(nodeID string) *Builder {
	b.program.StartID = nodeID
	return b
}

// Variables declares program variables. They start at 0 when the program is entered.
func (b *Builder) Variables(names ...string) *Builder {
	b.program.Variables = append(b.program.Variables, names...)
	return b
}

// Jump adds a command that, while the program is on the stack, unwinds to it and jumps to
// target when intent is recognized.
func (b *Builder) Jump(intent, target string, mappings ...domain.SlotMapping) *Builder {
	b.program.Commands = append(b.program.Commands, domain.Command{
		Type:  domain.CommandJump,
		Event: intentEvent(intent, mappings),
		Next:  target,
	})
	return b
}

// Push adds a command that enters programID on top of the stack when intent is recognized.
func (b *Builder) Push(intent, programID string, mappings ...domain.SlotMapping) *Builder {
	b.program.Commands = append(b.program.Commands, domain.Command{
		Type:      domain.CommandPush,
		Event:     intentEvent(intent, mappings),
		ProgramID: programID,
	})
	return b
}

// Add creates a new node in the program.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{node: &domain.Node{ID: id}}
	b.nodes[id] = nb
	return nb
}

// Build assembles the program and checks its graph. Only error-level findings fail the
// build: unreachable nodes are allowed.
func (b *Builder) Build() (*domain.Program, error) {
	p := &domain.Program{
		ID:        b.program.ID,
		StartID:   b.program.StartID,
		Nodes:     make(map[string]*domain.Node, len(b.nodes)),
		Commands:  append([]domain.Command(nil), b.program.Commands...),
		Variables: append([]string(nil), b.program.Variables...),
	}
	for id, nb := range b.nodes {
		n := *nb.node
		p.Nodes[id] = &n
	}

	var errs []error
	for _, issue := range validator.ValidateProgram(p, nil) {
		if issue.Severity == validator.SeverityError {
			errs = append(errs, errors.New(issue.String()))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid program %s: %w", p.ID, errors.Join(errs...))
	}
	return p, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *domain.Program {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

// Project serves version and programs from memory. Every program entered by a flow node
// or a push command must be among programs, and so must the root program.
func Project(version *domain.Version, programs ...*domain.Program) (*memory.DataAPI, error) {
	known := make(map[string]bool, len(programs))
	for _, p := range programs {
		known[p.ID] = true
	}
	var errs []error
	for _, issue := range validator.ValidateVersion(version, func(id string) bool { return known[id] }) {
		if issue.Severity == validator.SeverityError {
			errs = append(errs, errors.New(issue.String()))
		}
	}
	for _, p := range programs {
		for _, issue := range validator.ValidateProgram(p, func(id string) bool { return known[id] }) {
			if issue.Severity == validator.SeverityError {
				errs = append(errs, errors.New(issue.String()))
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid project: %w", errors.Join(errs...))
	}
	return memory.NewDataAPI(version, programs...), nil
}

func intentEvent(intent string, mappings []domain.SlotMapping) domain.Event {
	return domain.Event{Type: domain.RequestIntent, Intent: intent, Mappings: mappings}
}
