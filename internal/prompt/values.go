package prompt

import "fmt"

// Values binds field names to concrete values for one execution step.
type Values map[string]any

// Clone returns a shallow copy. Field values are treated as immutable by
// convention; traces and demonstrations copy the map, not the values.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Has reports whether the field is bound to a non-nil value.
func (v Values) Has(name string) bool {
	val, ok := v[name]
	return ok && val != nil
}

// String returns the value rendered as a string, or "" when unbound.
func (v Values) String(name string) string {
	val, ok := v[name]
	if !ok || val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", val)
}
