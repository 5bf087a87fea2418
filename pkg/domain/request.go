package domain

import (
	"encoding/json"
	"fmt"
)

// RequestType tags the kind of inbound event.
type RequestType string

const (
	RequestIntent RequestType = "intent"
	RequestText   RequestType = "text"
	RequestLaunch RequestType = "launch"
)

// Reserved intent names.
const (
	// NoneIntent is produced when nothing in the model matches the user input.
	NoneIntent = "None"
	// EmptyIntent is produced for an empty text request.
	EmptyIntent = "_empty"
)

// IntentName identifies the intent of an IntentPayload.
type IntentName struct {
	Name string `json:"name"`
}

// Entity is a filled slot value.
type Entity struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// IntentPayload is the structured result of classification.
type IntentPayload struct {
	Query    string     `json:"query"`
	Intent   IntentName `json:"intent"`
	Entities []Entity   `json:"entities"`
}

// Entity returns the value of the named entity.
func (p *IntentPayload) Entity(name string) (string, bool) {
	for _, e := range p.Entities {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// Request is an inbound user event. Text requests carry Text, intent requests carry Payload.
// Other request types (button events, custom actions) carry only their Type and optional Data.
type Request struct {
	Type    RequestType
	Text    string
	Payload *IntentPayload
	Data    map[string]any
}

// NewIntentRequest builds an intent request. Entities are a set keyed by name:
// a later entity with the same name replaces the value of an earlier one.
func NewIntentRequest(query, intent string, entities ...Entity) *Request {
	deduped := make([]Entity, 0, len(entities))
	index := make(map[string]int, len(entities))
	for _, e := range entities {
		if i, ok := index[e.Name]; ok {
			deduped[i].Value = e.Value
			continue
		}
		index[e.Name] = len(deduped)
		deduped = append(deduped, e)
	}
	return &Request{
		Type: RequestIntent,
		Payload: &IntentPayload{
			Query:    query,
			Intent:   IntentName{Name: intent},
			Entities: deduped,
		},
	}
}

// NewTextRequest builds a raw text request.
func NewTextRequest(text string) *Request {
	return &Request{Type: RequestText, Text: text}
}

// NoneIntentRequest is the fallback produced when matching fails.
func NoneIntentRequest(query string) *Request {
	return NewIntentRequest(query, NoneIntent)
}

// IsIntent reports whether the request carries an intent payload.
func (r *Request) IsIntent() bool {
	return r != nil && r.Type == RequestIntent && r.Payload != nil
}

// IntentName returns the intent name, or "" for non-intent requests.
func (r *Request) IntentName() string {
	if !r.IsIntent() {
		return ""
	}
	return r.Payload.Intent.Name
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Payload != nil {
		p := *r.Payload
		p.Entities = append([]Entity(nil), r.Payload.Entities...)
		c.Payload = &p
	}
	if r.Data != nil {
		c.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			c.Data[k] = v
		}
	}
	return &c
}

type rawRequest struct {
	Type    RequestType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON encodes the request as {type, payload}.
func (r Request) MarshalJSON() ([]byte, error) {
	var payload any
	switch r.Type {
	case RequestText:
		payload = r.Text
	case RequestIntent:
		if r.Payload != nil {
			payload = r.Payload
		}
	default:
		if r.Data != nil {
			payload = r.Data
		}
	}
	out := struct {
		Type    RequestType `json:"type"`
		Payload any         `json:"payload,omitempty"`
	}{Type: r.Type, Payload: payload}
	return json.Marshal(out)
}

// UnmarshalJSON decodes {type, payload} into the matching request shape.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw rawRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Request{Type: raw.Type}
	if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		return nil
	}

	switch raw.Type {
	case RequestText:
		if err := json.Unmarshal(raw.Payload, &r.Text); err != nil {
			return fmt.Errorf("text request payload: %w", err)
		}
	case RequestIntent:
		var p IntentPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("intent request payload: %w", err)
		}
		r.Payload = &p
	default:
		var d map[string]any
		if err := json.Unmarshal(raw.Payload, &d); err != nil {
			return fmt.Errorf("%s request payload: %w", raw.Type, err)
		}
		r.Data = d
	}
	return nil
}
