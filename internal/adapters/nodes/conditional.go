package nodes

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/tidwall/gjson"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
	"github.com/eleven-am/chainflow/internal/xjson"
)

// ConditionalHandler evaluates a single comparison. It never calls an
// adapter and never prunes traversal; the engine schedules every out-edge.
type ConditionalHandler struct{}

func NewConditionalHandler() *ConditionalHandler {
	return &ConditionalHandler{}
}

func (h *ConditionalHandler) NodeType() domain.NodeType {
	return domain.NodeTypeConditionalLogic
}

func (h *ConditionalHandler) Execute(ctx context.Context, req *ports.NodeRequest) (*domain.NodeResult, error) {
	cfg := req.Node.Config

	variable := stringValue(cfg, "variable")
	operator := stringValue(cfg, "operator")
	value, hasValue := cfg["value"]
	if variable == "" || operator == "" || !hasValue {
		return domain.Failed("Conditional configuration incomplete"), nil
	}

	variableValue, found := resolveVariable(variable, req.Context, req.Input)
	if !found {
		return domain.Failed(fmt.Sprintf("Variable %q not found", variable)), nil
	}

	conditionMet, err := compare(variableValue, operator, value)
	if err != nil {
		return domain.Failed(err.Error()), nil
	}

	return domain.Succeeded(map[string]interface{}{
		"conditionMet":  conditionMet,
		"variable":      variable,
		"variableValue": variableValue,
		"operator":      operator,
		"value":         value,
	}), nil
}

// resolveVariable looks in the run variables first, then in the upstream
// output, then treats the name as a dotted path over both.
func resolveVariable(name string, execCtx *domain.ExecutionContext, input interface{}) (interface{}, bool) {
	if execCtx != nil {
		if v, ok := execCtx.Get(name); ok && v != nil {
			return v, true
		}
	}

	if m, ok := input.(map[string]interface{}); ok {
		if v, ok := m[name]; ok && v != nil {
			return v, true
		}
	}

	if execCtx != nil && len(execCtx.Variables) > 0 {
		if v, ok := lookupPath(execCtx.Variables, name); ok {
			return v, true
		}
	}
	if input != nil {
		if v, ok := lookupPath(input, name); ok {
			return v, true
		}
	}
	return nil, false
}

func lookupPath(source interface{}, path string) (interface{}, bool) {
	data, err := xjson.Marshal(source)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(data, path)
	if !result.Exists() || result.Type == gjson.Null {
		return nil, false
	}
	return result.Value(), true
}

func compare(left interface{}, operator string, right interface{}) (bool, error) {
	switch operator {
	case ">", "<", ">=", "<=":
		return order(left, operator, right), nil
	case "==":
		return looselyEqual(left, right), nil
	case "!=":
		return !looselyEqual(left, right), nil
	default:
		return false, errors.New("Unknown operator: " + operator)
	}
}

// order compares numerically when both sides are numeric, lexically when
// both are strings, and is false otherwise.
func order(left interface{}, operator string, right interface{}) bool {
	if l, ok := toNumber(left); ok {
		if r, ok := toNumber(right); ok {
			switch operator {
			case ">":
				return l > r
			case "<":
				return l < r
			case ">=":
				return l >= r
			default:
				return l <= r
			}
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch operator {
		case ">":
			return ls > rs
		case "<":
			return ls < rs
		case ">=":
			return ls >= rs
		default:
			return ls <= rs
		}
	}
	return false
}

func looselyEqual(left, right interface{}) bool {
	if l, ok := toNumber(left); ok {
		if r, ok := toNumber(right); ok {
			return l == r
		}
	}
	lb, lok := left.(bool)
	rb, rok := right.(bool)
	if lok && rok {
		return lb == rb
	}
	if isScalar(left) && isScalar(right) {
		return fmt.Sprint(left) == fmt.Sprint(right)
	}
	return reflect.DeepEqual(left, right)
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case string, bool, float64, int, int64:
		return true
	}
	return false
}
