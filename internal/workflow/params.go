package workflow

import (
	"encoding/json"
	"fmt"
)

// ParamKind tags the closed set of value kinds a task parameter may carry.
type ParamKind int

const (
	KindString ParamKind = iota
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k ParamKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// ParamValue is a tagged union over the closed set of parameter kinds, so
// executors can validate inputs without reflection over arbitrary types.
type ParamValue struct {
	Kind ParamKind
	Str  string
	Num  float64
	Bool bool
	List []ParamValue
	Map  map[string]ParamValue
}

// Params is a task parameter map.
type Params map[string]ParamValue

func String(s string) ParamValue  { return ParamValue{Kind: KindString, Str: s} }
func Number(n float64) ParamValue { return ParamValue{Kind: KindNumber, Num: n} }
func Bool(b bool) ParamValue      { return ParamValue{Kind: KindBool, Bool: b} }
func List(vs ...ParamValue) ParamValue {
	return ParamValue{Kind: KindList, List: vs}
}
func Map(m map[string]ParamValue) ParamValue {
	return ParamValue{Kind: KindMap, Map: m}
}

// FromAny converts a decoded JSON/YAML value into a ParamValue. Values
// outside the closed kind set are rejected.
func FromAny(v any) (ParamValue, error) {
	switch x := v.(type) {
	case nil:
		return String(""), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return ParamValue{}, fmt.Errorf("parameter number %q: %w", x.String(), err)
		}
		return Number(f), nil
	case []any:
		list := make([]ParamValue, 0, len(x))
		for _, item := range x {
			pv, err := FromAny(item)
			if err != nil {
				return ParamValue{}, err
			}
			list = append(list, pv)
		}
		return ParamValue{Kind: KindList, List: list}, nil
	case map[string]any:
		m := make(map[string]ParamValue, len(x))
		for k, item := range x {
			pv, err := FromAny(item)
			if err != nil {
				return ParamValue{}, err
			}
			m[k] = pv
		}
		return ParamValue{Kind: KindMap, Map: m}, nil
	default:
		return ParamValue{}, fmt.Errorf("unsupported parameter type %T", v)
	}
}

// ParamsFromAny converts a plain map into Params, rejecting unsupported
// value types.
func ParamsFromAny(in map[string]any) (Params, error) {
	if in == nil {
		return nil, nil
	}
	out := make(Params, len(in))
	for k, v := range in {
		pv, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = pv
	}
	return out, nil
}

// Plain returns the untagged representation, used at the agent-invocation
// boundary where the payload is serialized.
func (v ParamValue) Plain() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindList:
		out := make([]any, 0, len(v.List))
		for _, item := range v.List {
			out = append(out, item.Plain())
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, item := range v.Map {
			out[k] = item.Plain()
		}
		return out
	default:
		return nil
	}
}

// Plain converts the whole parameter map to its untagged form.
func (p Params) Plain() map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Plain()
	}
	return out
}

// MarshalJSON encodes the value as its plain JSON representation.
func (v ParamValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Plain())
}

// UnmarshalJSON decodes any JSON value into the tagged union.
func (v *ParamValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pv, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = pv
	return nil
}
