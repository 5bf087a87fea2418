package apicall

import (
	"math/rand/v2"
	"reflect"
	"strconv"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// RandomSegment is the path segment selecting a uniformly random array element.
const RandomSegment = "{random}"

// ToPath splits a property path such as `a.b[0]["c.d"]` into its segments.
func ToPath(path string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '.':
			flush()
		case '[':
			flush()
			end := strings.IndexByte(path[i+1:], ']')
			if end < 0 {
				cur.WriteString(path[i:])
				i = len(path)
				continue
			}
			seg := path[i+1 : i+1+end]
			if len(seg) >= 2 && (seg[0] == '"' || seg[0] == '\'') && seg[len(seg)-1] == seg[0] {
				seg = seg[1 : len(seg)-1]
			}
			out = append(out, seg)
			i += end + 1
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return out
}

// GetVariableAtJSONPath walks data along path. A {random} segment picks a random
// element of the array at that position. The bool reports whether the path exists.
func GetVariableAtJSONPath(data any, path string) (any, bool) {
	cur := data
	for _, seg := range ToPath(path) {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// ResolveVariableMapping resolves each mapping against data. Mappings with no target
// variable or whose path does not exist produce no entry.
func ResolveVariableMapping(mappings []domain.APIMapping, data any) map[string]any {
	out := make(map[string]any, len(mappings))
	for _, m := range mappings {
		if m.Var == "" {
			continue
		}
		if v, ok := GetVariableAtJSONPath(data, m.Path); ok {
			out[m.Var] = v
		}
	}
	return out
}

func step(cur any, seg string) (any, bool) {
	if strings.EqualFold(seg, RandomSegment) {
		n := length(cur)
		if n <= 0 {
			return nil, false
		}
		return index(cur, rand.IntN(n))
	}
	switch v := cur.(type) {
	case map[string]any:
		val, ok := v[seg]
		return val, ok
	case domain.Variables:
		val, ok := v[seg]
		return val, ok
	case map[string]string:
		val, ok := v[seg]
		return val, ok
	}
	if length(cur) >= 0 {
		i, err := strconv.Atoi(seg)
		if err != nil {
			return nil, false
		}
		return index(cur, i)
	}
	return nil, false
}

// length returns the length of an array value, or -1 when cur is not an array.
func length(cur any) int {
	if cur == nil {
		return -1
	}
	if arr, ok := cur.([]any); ok {
		return len(arr)
	}
	rv := reflect.ValueOf(cur)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len()
	}
	return -1
}

func index(cur any, i int) (any, bool) {
	if arr, ok := cur.([]any); ok {
		if i < 0 || i >= len(arr) {
			return nil, false
		}
		return arr[i], true
	}
	rv := reflect.ValueOf(cur)
	if i < 0 || i >= rv.Len() {
		return nil, false
	}
	return rv.Index(i).Interface(), true
}
