package nlc

import (
	"log/slog"
	"strings"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// CreateMatcher builds a matcher from a language model: slot types, model intents, then the
// built-in intents of the locale. Entries that fail to register are logged and skipped.
func CreateMatcher(model *domain.PrototypeModel, locale string, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := NewMatcher()
	if model != nil {
		registerSlots(m, model, logger)
		registerIntents(m, model, logger)
	}
	registerBuiltins(m, locale, logger)
	return m
}

func registerSlots(m *Matcher, model *domain.PrototypeModel, logger *slog.Logger) {
	for _, slot := range model.Slots {
		t := SlotType{Name: slot.Name}
		if slot.IsCustom() {
			for _, input := range slot.Inputs {
				for _, v := range strings.Split(input, ",") {
					if v = strings.TrimSpace(v); v != "" {
						t.Values = append(t.Values, v)
					}
				}
			}
			if len(t.Values) == 0 {
				logger.Debug("nlc: unable to register slot", "slot", slot.Name, "err", "custom slot has no values")
				continue
			}
		}
		if err := m.AddSlotType(t); err != nil {
			logger.Debug("nlc: unable to register slot", "slot", slot.Name, "err", err)
		}
	}
}

func registerIntents(m *Matcher, model *domain.PrototypeModel, logger *slog.Logger) {
	for _, in := range model.Intents {
		samples := make([]string, 0, len(in.Inputs))
		for _, input := range in.Inputs {
			if s := strings.TrimSpace(model.UtteranceWithSlotNames(input.Text)); s != "" {
				samples = append(samples, s)
			}
		}
		var slots []IntentSlot
		for _, is := range in.Slots {
			slot, ok := model.SlotByKey(is.ID)
			if !ok {
				continue
			}
			slots = append(slots, IntentSlot{Name: slot.Name, Type: slot.Name, Required: is.Required})
		}
		if err := m.RegisterIntent(in.Name, slots, samples); err != nil {
			logger.Debug("nlc: unable to register intent", "intent", in.Name, "err", err)
		}
	}
}

func registerBuiltins(m *Matcher, locale string, logger *slog.Logger) {
	builtins, err := BuiltinIntents(locale)
	if err != nil {
		logger.Debug("nlc: unable to load built-in intents", "err", err)
		return
	}
	for _, b := range builtins {
		if err := m.RegisterIntent(b.Name, nil, b.Samples); err != nil {
			logger.Debug("nlc: unable to register built-in intent", "intent", b.Name, "err", err)
		}
	}
}

// Command classifies a query, returning the None intent when nothing matches.
func (m *Matcher) Command(query string) *domain.Request {
	f, ok := m.HandleCommand(query)
	return toRequest(f, ok, query)
}

// Dialog resolves a reply to a slot prompt against the partially filled prior request,
// returning the None intent when the reply fills nothing.
func (m *Matcher) Dialog(query string, prior *domain.Request) *domain.Request {
	if !prior.IsIntent() {
		return domain.NoneIntentRequest(query)
	}
	fulfillment := Fulfillment{Intent: prior.IntentName()}
	for _, e := range prior.Payload.Entities {
		fulfillment.Slots = append(fulfillment.Slots, Slot{Name: e.Name, Value: e.Value})
	}
	f, ok := m.HandleDialog(fulfillment, query)
	return toRequest(f, ok, query)
}

// HandleCommand builds a matcher for the model and classifies query.
func HandleCommand(query string, model *domain.PrototypeModel, locale string, logger *slog.Logger) *domain.Request {
	return CreateMatcher(model, locale, logger).Command(query)
}

// HandleDialog builds a matcher for the model and resolves query against the prior request.
func HandleDialog(query string, model *domain.PrototypeModel, locale string, prior *domain.Request, logger *slog.Logger) *domain.Request {
	return CreateMatcher(model, locale, logger).Dialog(query, prior)
}

// toRequest keeps only slots with a value.
func toRequest(f *Fulfillment, ok bool, query string) *domain.Request {
	if !ok || f == nil {
		return domain.NoneIntentRequest(query)
	}
	entities := make([]domain.Entity, 0, len(f.Slots))
	for _, s := range f.Slots {
		if s.Value != "" {
			entities = append(entities, domain.Entity{Name: s.Name, Value: s.Value})
		}
	}
	return domain.NewIntentRequest(query, f.Intent, entities...)
}
