package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// APIMethod is the HTTP method of an api node.
type APIMethod string

const (
	MethodGet    APIMethod = "GET"
	MethodPost   APIMethod = "POST"
	MethodPut    APIMethod = "PUT"
	MethodPatch  APIMethod = "PATCH"
	MethodDelete APIMethod = "DELETE"
)

// APIBodyType selects how the body of an api node is encoded.
type APIBodyType string

const (
	BodyRawInput   APIBodyType = "rawInput"
	BodyFormData   APIBodyType = "formData"
	BodyURLEncoded APIBodyType = "urlEncoded"
	BodyKeyValue   APIBodyType = "keyValue"
)

// KeyValue is an authored key/value pair. Pairs with a blank key are ignored.
type KeyValue struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// APIMapping copies the value found at Path into the variable Var.
type APIMapping struct {
	Path string `json:"path"`
	Var  string `json:"var"`
}

// APIBody is the authored body of an api node: a list of pairs, an object, or a plain string.
type APIBody struct {
	Pairs  []KeyValue
	Object map[string]any
	Text   *string
}

// IsZero reports whether no body was authored.
func (b APIBody) IsZero() bool {
	return b.Pairs == nil && b.Object == nil && b.Text == nil
}

// MarshalJSON encodes whichever representation is set.
func (b APIBody) MarshalJSON() ([]byte, error) {
	switch {
	case b.Text != nil:
		return json.Marshal(*b.Text)
	case b.Object != nil:
		return json.Marshal(b.Object)
	case b.Pairs != nil:
		return json.Marshal(b.Pairs)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts an array of pairs, an object or a string.
func (b *APIBody) UnmarshalJSON(data []byte) error {
	*b = APIBody{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		b.Text = &s
	case '[':
		if err := json.Unmarshal(trimmed, &b.Pairs); err != nil {
			return fmt.Errorf("api body pairs: %w", err)
		}
	case '{':
		if err := json.Unmarshal(trimmed, &b.Object); err != nil {
			return fmt.Errorf("api body object: %w", err)
		}
	default:
		return fmt.Errorf("unsupported api body: %s", trimmed)
	}
	return nil
}

// APIActionData is the configuration of an api node.
type APIActionData struct {
	Method   APIMethod    `json:"method"`
	URL      string       `json:"url"`
	BodyType APIBodyType  `json:"bodyInputType,omitempty"`
	Headers  []KeyValue   `json:"headers,omitempty"`
	Params   []KeyValue   `json:"params,omitempty"`
	Body     APIBody      `json:"body,omitempty"`
	Content  string       `json:"content,omitempty"`
	Mappings []APIMapping `json:"mappings,omitempty"`

	// SuccessID is followed after a completed call (any status code).
	SuccessID string `json:"successId,omitempty"`
	// FailID is followed when the call could not be made (validation or connectivity).
	FailID string `json:"failId,omitempty"`
}
