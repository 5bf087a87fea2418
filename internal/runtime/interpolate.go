package runtime

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var variableRef = regexp.MustCompile(`\{(\w{1,64})\}`)

// Interpolate replaces {name} references with values from vars.
// Unknown names are left untouched.
func Interpolate(text string, vars *Store) string {
	if text == "" || vars.Len() == 0 {
		return text
	}
	return variableRef.ReplaceAllStringFunc(text, func(ref string) string {
		name := ref[1 : len(ref)-1]
		v, ok := vars.Get(name)
		if !ok {
			return ref
		}
		return Stringify(v)
	})
}

// Stringify renders a variable value for text output.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
