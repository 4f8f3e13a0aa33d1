package keys

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Filters is the filter set attached to a list query. Supported value
// shapes: string, bool, integer, float, arrays of those, and nested filter
// maps. Anything else is rejected at the boundary rather than coerced into
// an unstable key.
type Filters map[string]any

// Canonicalize renders the filter set into a deterministic string: object
// keys sorted, array values sorted, fixed scalar formatting. Cache
// correctness depends on this: two logically equal filter sets must
// serialize identically.
func Canonicalize(f Filters) (string, error) {
	return canonicalizeMap(map[string]any(f))
}

func canonicalizeMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		encoded, err := canonicalizeValue(m[name])
		if err != nil {
			return "", fmt.Errorf("filter %q: %w", name, err)
		}
		b.WriteString(quote(name))
		b.WriteByte(':')
		b.WriteString(encoded)
	}
	b.WriteByte('}')
	return b.String(), nil
}

func canonicalizeValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return quote(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float32:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	case []string:
		elems := make([]any, len(val))
		for i, s := range val {
			elems[i] = s
		}
		return canonicalizeArray(elems)
	case []any:
		return canonicalizeArray(val)
	case map[string]any:
		return canonicalizeMap(val)
	case Filters:
		return canonicalizeMap(map[string]any(val))
	default:
		return "", fmt.Errorf("unsupported filter value type %T", v)
	}
}

// canonicalizeArray sorts elements by their encoded form so that [a,b] and
// [b,a] key identically. Array elements must be scalars.
func canonicalizeArray(elems []any) (string, error) {
	encoded := make([]string, len(elems))
	for i, elem := range elems {
		switch elem.(type) {
		case []any, []string, map[string]any, Filters:
			return "", fmt.Errorf("unsupported nested value in filter array: %T", elem)
		}
		enc, err := canonicalizeValue(elem)
		if err != nil {
			return "", err
		}
		encoded[i] = enc
	}
	sort.Strings(encoded)
	return "[" + strings.Join(encoded, ",") + "]", nil
}

// formatFloat rejects NaN and infinities, which have no stable JSON form.
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite filter value %v", f)
	}
	// Integral floats format as integers so 1 and 1.0 key identically.
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

func quote(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}
