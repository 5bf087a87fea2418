package domain

import (
	"regexp"
	"strings"
)

// SlotTypeCustom marks a slot whose values come from an explicit list of samples.
const SlotTypeCustom = "custom"

// SlotRef matches slot references embedded in utterances and prompts: {{[name].id}}.
var SlotRef = regexp.MustCompile(`\{\{\[(\w{1,32})\]\.(\w{1,32})\}\}`)

// PrototypeModel is the language model of a project version.
// It is immutable for the lifetime of a conversation project.
type PrototypeModel struct {
	Slots   []Slot   `json:"slots"`
	Intents []Intent `json:"intents"`
}

// SlotType names the kind of values a slot accepts.
type SlotType struct {
	Value string `json:"value,omitempty"`
}

// Slot is an entity type declared by the project.
type Slot struct {
	Key    string   `json:"key"`
	Name   string   `json:"name"`
	Type   SlotType `json:"type"`
	Inputs []string `json:"inputs"`
}

// IsCustom reports whether the slot only accepts its declared samples.
func (s Slot) IsCustom() bool {
	return strings.EqualFold(s.Type.Value, SlotTypeCustom)
}

// IntentInput is one utterance sample of an intent.
type IntentInput struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// SlotDialog holds the follow-up prompts used while filling a slot.
type SlotDialog struct {
	Prompt []IntentInput `json:"prompt,omitempty"`
}

// IntentSlot references a Slot by key and marks whether the intent requires it.
type IntentSlot struct {
	ID       string     `json:"id"`
	Required bool       `json:"required,omitempty"`
	Dialog   SlotDialog `json:"dialog,omitempty"`
}

// Intent is a user goal recognized by the language model.
type Intent struct {
	Key    string        `json:"key,omitempty"`
	Name   string        `json:"name"`
	Slots  []IntentSlot  `json:"slots,omitempty"`
	Inputs []IntentInput `json:"inputs"`
}

// SlotByKey finds a slot by its key.
func (m *PrototypeModel) SlotByKey(key string) (Slot, bool) {
	for _, s := range m.Slots {
		if s.Key == key {
			return s, true
		}
	}
	return Slot{}, false
}

// SlotNameByID resolves the name of the slot with the given key.
func (m *PrototypeModel) SlotNameByID(id string) (string, bool) {
	s, ok := m.SlotByKey(id)
	if !ok {
		return "", false
	}
	return s.Name, true
}

// IntentByName finds an intent by name.
func (m *PrototypeModel) IntentByName(name string) (Intent, bool) {
	for _, in := range m.Intents {
		if in.Name == name {
			return in, true
		}
	}
	return Intent{}, false
}

// UtteranceWithSlotNames rewrites slot references in text to {name} placeholders,
// resolving names by slot id and keeping the embedded name for unknown ids.
func (m *PrototypeModel) UtteranceWithSlotNames(text string) string {
	return SlotRef.ReplaceAllStringFunc(text, func(ref string) string {
		sub := SlotRef.FindStringSubmatch(ref)
		if name, ok := m.SlotNameByID(sub[2]); ok {
			return "{" + name + "}"
		}
		return "{" + sub[1] + "}"
	})
}
