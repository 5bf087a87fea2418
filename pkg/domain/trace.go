package domain

// TraceType tags an output event of a turn.
type TraceType string

const (
	TraceSpeak      TraceType = "speak"
	TraceChoice     TraceType = "choice"
	TraceDebug      TraceType = "debug"
	TracePath       TraceType = "path"
	TraceEnd        TraceType = "end"
	TraceGenerative TraceType = "generative"
)

// Trace is an output event produced while executing a turn.
type Trace struct {
	Type    TraceType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// SpeakPayload is the payload of a speak trace.
type SpeakPayload struct {
	Message string `json:"message"`
}

// Choice is one suggested reply.
type Choice struct {
	Name string `json:"name"`
}

// ChoicePayload is the payload of a choice trace.
type ChoicePayload struct {
	Choices []Choice `json:"choices"`
}

// DebugPayload is the payload of a debug trace.
type DebugPayload struct {
	Message string   `json:"message"`
	Type    NodeType `json:"type,omitempty"`
}

// PathPayload reports which path a node followed.
type PathPayload struct {
	Path string `json:"path"`
}
