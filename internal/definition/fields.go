package definition

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// object is a decoded document mapping. Accessors take the canonical field
// name first followed by its accepted aliases.
type object map[string]any

func asObject(v any) (object, bool) {
	switch m := v.(type) {
	case map[string]any:
		return object(m), true
	case object:
		return m, true
	case map[any]any:
		out := make(object, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func (o object) lookup(keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := o[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (o object) has(keys ...string) bool {
	_, ok := o.lookup(keys...)
	return ok
}

// str returns a trimmed string. Numbers are formatted so numeric ids work.
func (o object) str(keys ...string) string {
	v, ok := o.lookup(keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case int, int64, float64:
		if n, ok := toInt(s); ok {
			return strconv.Itoa(n)
		}
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// integer returns the value and whether it was present. err is set when the
// field is present but not an integer.
func (o object) integer(keys ...string) (n int, present bool, err error) {
	v, ok := o.lookup(keys...)
	if !ok {
		return 0, false, nil
	}
	n, ok = toInt(v)
	if !ok {
		return 0, true, fmt.Errorf("%q is not an integer", fmt.Sprint(v))
	}
	return n, true, nil
}

func (o object) boolean(def bool, keys ...string) (bool, error) {
	v, ok := o.lookup(keys...)
	if !ok {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return def, fmt.Errorf("%q is not a boolean", b)
		}
		return parsed, nil
	default:
		return def, fmt.Errorf("%v is not a boolean", v)
	}
}

func (o object) child(keys ...string) (object, bool) {
	v, ok := o.lookup(keys...)
	if !ok {
		return nil, false
	}
	return asObject(v)
}

func (o object) list(keys ...string) ([]any, bool) {
	v, ok := o.lookup(keys...)
	if !ok {
		return nil, false
	}
	items, ok := v.([]any)
	return items, ok
}

// stringList accepts either a list of strings or a single string.
func (o object) stringList(keys ...string) []string {
	v, ok := o.lookup(keys...)
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case string:
		if t := strings.TrimSpace(s); t != "" {
			return []string{t}
		}
		return nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if t := strings.TrimSpace(fmt.Sprint(item)); t != "" {
				out = append(out, t)
			}
		}
		return out
	default:
		return nil
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
