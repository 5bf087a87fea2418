package nlc

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// BuiltinIntent is a locale-independent intent registered for every project.
type BuiltinIntent struct {
	Name    string   `yaml:"name"`
	Samples []string `yaml:"samples"`
}

//go:embed builtins.yaml
var builtinsYAML []byte

var (
	builtinsOnce sync.Once
	builtins     map[string][]BuiltinIntent
	builtinsErr  error
)

func loadBuiltins() (map[string][]BuiltinIntent, error) {
	builtinsOnce.Do(func() {
		if err := yaml.Unmarshal(builtinsYAML, &builtins); err != nil {
			builtinsErr = fmt.Errorf("failed to parse built-in intents: %w", err)
		}
	})
	return builtins, builtinsErr
}

// BuiltinIntents returns the built-in intents for the language of locale
// (its first two letters), falling back to English.
func BuiltinIntents(locale string) ([]BuiltinIntent, error) {
	table, err := loadBuiltins()
	if err != nil {
		return nil, err
	}
	lang := strings.ToLower(locale)
	if len(lang) > 2 {
		lang = lang[:2]
	}
	if intents, ok := table[lang]; ok {
		return intents, nil
	}
	return table["en"], nil
}
