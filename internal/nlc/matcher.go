// Package nlc matches free text against the utterance samples of a language model,
// producing an intent and the slot values captured from the text.
package nlc

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrDuplicateSlotType is returned when a slot type name is registered twice.
	ErrDuplicateSlotType = errors.New("slot type already registered")
	// ErrDuplicateIntent is returned when an intent name is registered twice.
	ErrDuplicateIntent = errors.New("intent already registered")
	// ErrUnknownSlotType is returned when an intent or utterance references an unregistered type.
	ErrUnknownSlotType = errors.New("unknown slot type")
	// ErrNoUtterances is returned when an intent has no usable samples.
	ErrNoUtterances = errors.New("intent has no utterances")
)

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// SlotType constrains the text a slot can capture. A type without values accepts any text.
type SlotType struct {
	Name   string
	Values []string
}

func (t SlotType) pattern() string {
	if len(t.Values) == 0 {
		return `(.+?)`
	}
	values := append([]string(nil), t.Values...)
	// Longer values first so "extra large" wins over "large".
	sort.SliceStable(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })
	alts := make([]string, len(values))
	for i, v := range values {
		alts[i] = literal(v)
	}
	return "(" + strings.Join(alts, "|") + ")"
}

// canonical maps captured text back to the declared value it matched.
func (t SlotType) canonical(text string) string {
	norm := normalize(text)
	for _, v := range t.Values {
		if strings.EqualFold(normalize(v), norm) {
			return v
		}
	}
	return norm
}

func (t SlotType) accepts(text string) (string, bool) {
	norm := normalize(text)
	if norm == "" {
		return "", false
	}
	if len(t.Values) == 0 {
		return norm, true
	}
	for _, v := range t.Values {
		if strings.EqualFold(normalize(v), norm) {
			return v, true
		}
	}
	return "", false
}

// IntentSlot declares a slot of an intent.
type IntentSlot struct {
	Name     string
	Type     string
	Required bool
}

// Slot is a captured slot value.
type Slot struct {
	Name  string
	Value string
}

// Fulfillment is the result of matching: the intent and its slots captured so far.
type Fulfillment struct {
	Intent string
	Slots  []Slot
}

// Value returns the captured value of the named slot.
func (f *Fulfillment) Value(name string) (string, bool) {
	for _, s := range f.Slots {
		if s.Name == name {
			return s.Value, true
		}
	}
	return "", false
}

func (f *Fulfillment) set(name, value string) {
	for i := range f.Slots {
		if f.Slots[i].Name == name {
			f.Slots[i].Value = value
			return
		}
	}
	f.Slots = append(f.Slots, Slot{Name: name, Value: value})
}

type utterance struct {
	re    *regexp.Regexp
	slots []string
}

type intent struct {
	name       string
	slots      []IntentSlot
	utterances []utterance
}

func (in *intent) slot(name string) (IntentSlot, bool) {
	for _, s := range in.slots {
		if s.Name == name {
			return s, true
		}
	}
	return IntentSlot{}, false
}

// Matcher holds registered slot types and intents. Intents are tried in registration
// order and the first whole-utterance match wins. A Matcher is safe for concurrent
// use once registration is complete.
type Matcher struct {
	types   map[string]SlotType
	intents []*intent
	byName  map[string]*intent
}

// NewMatcher returns an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		types:  make(map[string]SlotType),
		byName: make(map[string]*intent),
	}
}

// AddSlotType registers a slot type.
func (m *Matcher) AddSlotType(t SlotType) error {
	if t.Name == "" {
		return errors.New("slot type name is empty")
	}
	if _, ok := m.types[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSlotType, t.Name)
	}
	m.types[t.Name] = t
	return nil
}

// RegisterIntent compiles the utterances of an intent. Utterances reference slots by
// name with {name} placeholders. The intent is not registered if any utterance fails.
func (m *Matcher) RegisterIntent(name string, slots []IntentSlot, utterances []string) error {
	if _, ok := m.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIntent, name)
	}
	in := &intent{name: name, slots: slots}
	for _, s := range slots {
		if _, ok := m.types[s.Type]; !ok {
			return fmt.Errorf("intent %s slot %s: %w: %s", name, s.Name, ErrUnknownSlotType, s.Type)
		}
	}
	for _, u := range utterances {
		if strings.TrimSpace(u) == "" {
			continue
		}
		compiled, err := m.compile(in, u)
		if err != nil {
			return fmt.Errorf("intent %s: %w", name, err)
		}
		in.utterances = append(in.utterances, compiled)
	}
	if len(in.utterances) == 0 {
		return fmt.Errorf("%w: %s", ErrNoUtterances, name)
	}
	m.intents = append(m.intents, in)
	m.byName[name] = in
	return nil
}

func (m *Matcher) compile(in *intent, text string) (utterance, error) {
	var (
		b     strings.Builder
		slots []string
		last  int
	)
	b.WriteString(`(?i)^`)
	for _, loc := range placeholder.FindAllStringSubmatchIndex(text, -1) {
		name := text[loc[2]:loc[3]]
		s, ok := in.slot(name)
		if !ok {
			return utterance{}, fmt.Errorf("utterance %q: %w: %s", text, ErrUnknownSlotType, name)
		}
		b.WriteString(segment(text[last:loc[0]]))
		b.WriteString(m.types[s.Type].pattern())
		slots = append(slots, name)
		last = loc[1]
	}
	b.WriteString(segment(text[last:]))
	b.WriteString(`$`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return utterance{}, fmt.Errorf("utterance %q: %w", text, err)
	}
	return utterance{re: re, slots: slots}, nil
}

// HandleCommand matches a query against every registered intent.
func (m *Matcher) HandleCommand(query string) (*Fulfillment, bool) {
	q := normalize(query)
	if q == "" {
		return nil, false
	}
	for _, in := range m.intents {
		if f, ok := m.match(in, q); ok {
			return f, true
		}
	}
	return nil, false
}

// HandleDialog continues filling the slots of a prior fulfillment. The query is first
// matched against the prior intent's utterances; otherwise it fills the first missing
// required slot whose type accepts the whole query.
func (m *Matcher) HandleDialog(prior Fulfillment, query string) (*Fulfillment, bool) {
	in, ok := m.byName[prior.Intent]
	if !ok {
		return nil, false
	}
	out := &Fulfillment{Intent: prior.Intent, Slots: append([]Slot(nil), prior.Slots...)}
	q := normalize(query)
	if q == "" {
		return nil, false
	}

	if f, ok := m.match(in, q); ok {
		for _, s := range f.Slots {
			out.set(s.Name, s.Value)
		}
		return out, true
	}

	for _, name := range m.Missing(prior) {
		s, _ := in.slot(name)
		if value, ok := m.types[s.Type].accepts(q); ok {
			out.set(name, value)
			return out, true
		}
	}
	return nil, false
}

// Missing lists the required slots of the fulfillment's intent that have no value yet.
func (m *Matcher) Missing(f Fulfillment) []string {
	in, ok := m.byName[f.Intent]
	if !ok {
		return nil
	}
	var out []string
	for _, s := range in.slots {
		if v, ok := f.Value(s.Name); s.Required && (!ok || v == "") {
			out = append(out, s.Name)
		}
	}
	return out
}

// HasIntent reports whether an intent with the given name is registered.
func (m *Matcher) HasIntent(name string) bool {
	_, ok := m.byName[name]
	return ok
}

func (m *Matcher) match(in *intent, q string) (*Fulfillment, bool) {
	for _, u := range in.utterances {
		sub := u.re.FindStringSubmatch(q)
		if sub == nil {
			continue
		}
		f := &Fulfillment{Intent: in.name}
		for i, name := range u.slots {
			s, _ := in.slot(name)
			f.set(name, m.types[s.Type].canonical(sub[i+1]))
		}
		return f, true
	}
	return nil, false
}

// segment turns literal utterance text into a pattern with flexible whitespace.
func segment(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	if startsWithSpace(text) {
		b.WriteString(`\s+`)
	}
	b.WriteString(literal(text))
	if trimmed := strings.TrimSpace(text); trimmed != "" && endsWithSpace(text) {
		b.WriteString(`\s+`)
	}
	return b.String()
}

func literal(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(fields, `\s+`)
}

func startsWithSpace(s string) bool { return s != strings.TrimLeft(s, " \t\n") }

func endsWithSpace(s string) bool { return s != strings.TrimRight(s, " \t\n") }

// normalize trims, collapses whitespace and drops trailing sentence punctuation.
func normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(strings.TrimRight(s, ".!?"))
}
