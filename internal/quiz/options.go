package quiz

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// NormalizeOptions turns an options value into an ordered list of strings.
// Lists keep their order. Maps must be keyed by the indexes 0..n-1 (as ints or
// decimal strings) and are returned in index order. Anything else, including a
// list or map holding a non-scalar, normalises to an empty list.
func NormalizeOptions(v any) []string {
	switch opts := v.(type) {
	case []string:
		return append([]string{}, opts...)
	case []any:
		out := make([]string, 0, len(opts))
		for _, o := range opts {
			s, ok := scalarString(o)
			if !ok {
				return []string{}
			}
			out = append(out, s)
		}
		return out
	case map[string]any:
		indexed := make(map[int]any, len(opts))
		for k, o := range opts {
			i, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				return []string{}
			}
			indexed[i] = o
		}
		return fromIndexed(indexed)
	case map[string]string:
		indexed := make(map[int]any, len(opts))
		for k, o := range opts {
			i, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				return []string{}
			}
			indexed[i] = o
		}
		return fromIndexed(indexed)
	case map[int]string:
		indexed := make(map[int]any, len(opts))
		for k, o := range opts {
			indexed[k] = o
		}
		return fromIndexed(indexed)
	}
	return []string{}
}

func fromIndexed(indexed map[int]any) []string {
	keys := make([]int, 0, len(indexed))
	for k := range indexed {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]string, 0, len(keys))
	for i, k := range keys {
		if k != i {
			return []string{}
		}
		s, ok := scalarString(indexed[k])
		if !ok {
			return []string{}
		}
		out = append(out, s)
	}
	return out
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}
