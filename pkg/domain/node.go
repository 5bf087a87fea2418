package domain

// NodeType is the tag of the closed node variant set.
type NodeType string

const (
	// NodeStart is the entry point of a program; it continues immediately.
	NodeStart NodeType = "start"
	// NodeSpeak emits a message and continues (soft step).
	NodeSpeak NodeType = "speak"
	// NodeInteraction waits for user input and routes on ordered interactions (hard step).
	NodeInteraction NodeType = "interaction"
	// NodeIntent waits for a single bound intent.
	NodeIntent NodeType = "intent"
	// NodeCapture waits for input and stores the raw query into a variable.
	NodeCapture NodeType = "capture"
	// NodeSet assigns variables.
	NodeSet NodeType = "set"
	// NodeIf branches on variable conditions.
	NodeIf NodeType = "if"
	// NodeAPI performs an outbound HTTP call and maps the response into variables.
	NodeAPI NodeType = "api"
	// NodeFlow enters a sub-program, pushing a new frame.
	NodeFlow NodeType = "flow"
	// NodeExit returns from the current program, popping its frame.
	NodeExit NodeType = "exit"
	// NodeGenerative asks the AI model for a completion and speaks it.
	NodeGenerative NodeType = "generative"
)

// Node is a vertex of a dialog program. Type selects which of the variant fields is meaningful.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`

	// Next is the default successor. Empty means the path ends here.
	Next string `json:"next,omitempty"`

	Speak        *SpeakData     `json:"speak,omitempty"`
	Interactions []Interaction  `json:"interactions,omitempty"`
	Intent       *IntentBinding `json:"intent,omitempty"`
	Capture      *CaptureData   `json:"capture,omitempty"`
	Set          []SetStep      `json:"set,omitempty"`
	If           *IfData        `json:"if,omitempty"`
	API          *APIActionData `json:"api,omitempty"`
	Flow         *FlowData      `json:"flow,omitempty"`
	Generative   *AIParams      `json:"generative,omitempty"`
	NoMatch      *NoMatch       `json:"noMatch,omitempty"`
}

// HasInteractions reports whether the node routes on ordered interactions.
func (n *Node) HasInteractions() bool {
	return len(n.Interactions) > 0
}

// BoundIntent returns the single intent bound to the node, if any.
func (n *Node) BoundIntent() (string, bool) {
	if n.Intent == nil || n.Intent.Name == "" {
		return "", false
	}
	return n.Intent.Name, true
}

// SpeakData holds message variants; one is picked per visit.
type SpeakData struct {
	Messages []string `json:"messages"`
}

// SlotMapping copies an entity value into a variable.
type SlotMapping struct {
	Slot     string `json:"slot"`
	Variable string `json:"variable"`
}

// Event describes what an interaction or command listens for.
// Intent events match intent requests by name; any other type matches requests of that type.
type Event struct {
	Type     RequestType   `json:"type"`
	Intent   string        `json:"intent,omitempty"`
	Mappings []SlotMapping `json:"mappings,omitempty"`
}

// Interaction binds an event to a transition.
type Interaction struct {
	Event  Event  `json:"event"`
	NextID string `json:"nextId,omitempty"`
	// Label is shown to the user as a choice, when set.
	Label string `json:"label,omitempty"`
}

// IntentBinding binds a node to a single intent.
type IntentBinding struct {
	Name     string        `json:"name"`
	Mappings []SlotMapping `json:"mappings,omitempty"`
}

// CaptureData stores the user query into a variable.
type CaptureData struct {
	Variable string `json:"variable"`
}

// SetStep assigns Value to Variable. String values are interpolated with {variable} references.
type SetStep struct {
	Variable string `json:"variable"`
	Value    any    `json:"value"`
}

// Condition compares a variable with a value.
type Condition struct {
	Variable string `json:"variable"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// Branch is one arm of an if node.
type Branch struct {
	Condition Condition `json:"condition"`
	NextID    string    `json:"nextId,omitempty"`
}

// IfData holds ordered branches; the first satisfied branch wins, otherwise Node.Next.
type IfData struct {
	Branches []Branch `json:"branches"`
}

// FlowData names the program entered by a flow node.
type FlowData struct {
	ProgramID string `json:"programId"`
}

// NoMatch configures what an input node does when the request matches none of its events.
type NoMatch struct {
	Prompts    []string  `json:"prompts,omitempty"`
	NodeID     string    `json:"nodeId,omitempty"`
	Generative *AIParams `json:"generative,omitempty"`
}

// AIParams configures a call to a generative model.
type AIParams struct {
	Model       string  `json:"model,omitempty"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	// Variable optionally receives the generated text.
	Variable string `json:"variable,omitempty"`
}
