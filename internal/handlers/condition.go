package handlers

import (
	"context"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
)

// Condition operators understood by if nodes.
const (
	OpEquals      = "=="
	OpNotEquals   = "!="
	OpGreater     = ">"
	OpGreaterOrEq = ">="
	OpLess        = "<"
	OpLessOrEq    = "<="
	OpContains    = "contains"
	OpHasValue    = "has_value"
	OpIsEmpty     = "is_empty"
)

// IfHandler follows the first branch whose condition holds, otherwise Next.
type IfHandler struct{}

func (IfHandler) Name() string { return "if" }

func (IfHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return node.Type == domain.NodeIf && node.If != nil
}

func (IfHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	for i, b := range node.If.Branches {
		if Evaluate(b.Condition, vars) {
			rt.Debug("condition "+itoa(i+1)+" matched", node.Type)
			return rt.Follow(b.NextID), nil
		}
	}
	rt.Debug("no condition matched, following else path", node.Type)
	return rt.Follow(node.Next), nil
}

// Evaluate checks a condition against vars. String operands are interpolated.
// Unknown operators evaluate to false.
func Evaluate(c domain.Condition, vars *runtime.Store) bool {
	left, _ := vars.Get(c.Variable)
	right := c.Value
	if s, ok := right.(string); ok {
		right = runtime.Interpolate(s, vars)
	}

	switch strings.ToLower(c.Operator) {
	case OpEquals, "is", "equals":
		return equal(left, right)
	case OpNotEquals, "is_not":
		return !equal(left, right)
	case OpGreater, OpGreaterOrEq, OpLess, OpLessOrEq:
		l, lok := toFloat(left)
		r, rok := toFloat(right)
		if !lok || !rok {
			return false
		}
		switch c.Operator {
		case OpGreater:
			return l > r
		case OpGreaterOrEq:
			return l >= r
		case OpLess:
			return l < r
		default:
			return l <= r
		}
	case OpContains:
		return strings.Contains(strings.ToLower(runtime.Stringify(left)), strings.ToLower(runtime.Stringify(right)))
	case OpHasValue:
		return !isEmpty(left)
	case OpIsEmpty:
		return isEmpty(left)
	default:
		return false
	}
}

func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
	}
	return reflect.DeepEqual(a, b) || (a != nil && b != nil && runtime.Stringify(a) == runtime.Stringify(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
