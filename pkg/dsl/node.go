package dsl

import "github.com/aretw0/parley/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node. The first type-setting call
// (Start, Speak, Interaction...) decides the node type.
type NodeBuilder struct {
	node *domain.Node
}

// Start marks the node as the entry point of the program.
func (n *NodeBuilder) Start() *NodeBuilder {
	n.node.Type = domain.NodeStart
	return n
}

// Speak emits one of messages, picked at random on each visit (soft step).
func (n *NodeBuilder) Speak(messages ...string) *NodeBuilder {
	n.node.Type = domain.NodeSpeak
	n.node.Speak = &domain.SpeakData{Messages: messages}
	return n
}

// Interaction makes the node wait for input and route on the events added with On and
// OnEvent (hard step).
func (n *NodeBuilder) Interaction() *NodeBuilder {
	n.node.Type = domain.NodeInteraction
	return n
}

// On routes intent to target, copying entities into variables through mappings.
func (n *NodeBuilder) On(intent, target string, mappings ...domain.SlotMapping) *NodeBuilder {
	n.node.Interactions = append(n.node.Interactions, domain.Interaction{
		Event:  intentEvent(intent, mappings),
		NextID: target,
	})
	return n
}

// OnEvent routes requests of a non-intent type (a button or custom action) to target.
func (n *NodeBuilder) OnEvent(requestType domain.RequestType, target string) *NodeBuilder {
	n.node.Interactions = append(n.node.Interactions, domain.Interaction{
		Event:  domain.Event{Type: requestType},
		NextID: target,
	})
	return n
}

// Choice is like On but also offers the interaction to the user as a labelled choice.
func (n *NodeBuilder) Choice(label, intent, target string) *NodeBuilder {
	n.node.Interactions = append(n.node.Interactions, domain.Interaction{
		Event:  intentEvent(intent, nil),
		NextID: target,
		Label:  label,
	})
	return n
}

// Intent makes the node wait for a single intent.
func (n *NodeBuilder) Intent(name string, mappings ...domain.SlotMapping) *NodeBuilder {
	n.node.Type = domain.NodeIntent
	n.node.Intent = &domain.IntentBinding{Name: name, Mappings: mappings}
	return n
}

// Capture stores the next user query into variable.
func (n *NodeBuilder) Capture(variable string) *NodeBuilder {
	n.node.Type = domain.NodeCapture
	n.node.Capture = &domain.CaptureData{Variable: variable}
	return n
}

// Set assigns value to variable. Repeated calls add steps, applied in order.
func (n *NodeBuilder) Set(variable string, value any) *NodeBuilder {
	n.node.Type = domain.NodeSet
	n.node.Set = append(n.node.Set, domain.SetStep{Variable: variable, Value: value})
	return n
}

// If adds a branch taken when variable compares to value with operator. Branches are
// tried in order; Go sets the path taken when none is satisfied.
func (n *NodeBuilder) If(variable, operator string, value any, target string) *NodeBuilder {
	n.node.Type = domain.NodeIf
	if n.node.If == nil {
		n.node.If = &domain.IfData{}
	}
	n.node.If.Branches = append(n.node.If.Branches, domain.Branch{
		Condition: domain.Condition{Variable: variable, Operator: operator, Value: value},
		NextID:    target,
	})
	return n
}

// API performs an outbound call described by data.
func (n *NodeBuilder) API(data domain.APIActionData) *NodeBuilder {
	n.node.Type = domain.NodeAPI
	n.node.API = &data
	return n
}

// Flow enters programID, returning to Go's target once it exits.
func (n *NodeBuilder) Flow(programID string) *NodeBuilder {
	n.node.Type = domain.NodeFlow
	n.node.Flow = &domain.FlowData{ProgramID: programID}
	return n
}

// Exit returns from the current program.
func (n *NodeBuilder) Exit() *NodeBuilder {
	n.node.Type = domain.NodeExit
	return n
}

// Generative speaks a completion of the AI model.
func (n *NodeBuilder) Generative(params domain.AIParams) *NodeBuilder {
	n.node.Type = domain.NodeGenerative
	n.node.Generative = &params
	return n
}

// NoMatch configures what an input node does with a request none of its events match:
// reprompt with prompts, or go to target once prompts are exhausted.
func (n *NodeBuilder) NoMatch(target string, prompts ...string) *NodeBuilder {
	if n.node.NoMatch == nil {
		n.node.NoMatch = &domain.NoMatch{}
	}
	n.node.NoMatch.NodeID = target
	n.node.NoMatch.Prompts = append(n.node.NoMatch.Prompts, prompts...)
	return n
}

// Go sets the default successor.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.node.Next = target
	return n
}

// Build returns a copy of the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	return *n.node
}
