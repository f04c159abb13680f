package connectors

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/soochol/minizaps/internal/zaps"
)

// RenderTemplate replaces every {{key}} in the strings of data with the
// string form of ectx[key]. Maps and lists are walked recursively; other
// values are returned unchanged. Keys are applied in sorted order so output
// is deterministic.
func RenderTemplate(data any, ectx zaps.ExecutionContext) any {
	if len(ectx) == 0 {
		return data
	}
	keys := make([]string, 0, len(ectx))
	for k := range ectx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", stringify(ectx[k]))
	}
	return render(data, pairs)
}

func render(data any, pairs []string) any {
	switch v := data.(type) {
	case string:
		// Sequential replacement: a substituted value may itself contain a
		// later placeholder.
		for i := 0; i < len(pairs); i += 2 {
			v = strings.ReplaceAll(v, pairs[i], pairs[i+1])
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = render(item, pairs)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = render(item, pairs)
		}
		return out
	}
	return data
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any, []any, zaps.ExecutionContext:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
