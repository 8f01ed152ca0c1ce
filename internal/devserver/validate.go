package devserver

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/JakeFAU/scrapectl/internal/filters"
)

// percentKeys are bounded to [0, 100].
var percentKeys = map[string]bool{
	"er_from":     true,
	"er_to":       true,
	"male_from":   true,
	"female_from": true,
}

// ValidationError lists every rejected filter key with its reason.
type ValidationError struct {
	Problems map[string]string
}

func (e *ValidationError) Error() string {
	keys := lo.Keys(e.Problems)
	sort.Strings(keys)
	return fmt.Sprintf("invalid filters: %v", keys)
}

// validateFilters checks raw against the filter catalog. Unknown keys are
// rejected, as is any value of the wrong shape.
func validateFilters(raw map[string]json.RawMessage) (map[string]any, error) {
	problems := map[string]string{}
	out := make(map[string]any, len(raw))
	for key, msg := range raw {
		field, ok := filters.Lookup(key)
		if !ok {
			problems[key] = "extra fields not permitted"
			continue
		}
		v, err := decodeField(field, msg)
		if err != nil {
			problems[key] = err.Error()
			continue
		}
		out[key] = v
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return out, nil
}

func decodeField(field filters.Field, msg json.RawMessage) (any, error) {
	switch field.Kind {
	case filters.KindInt:
		var n int
		if err := json.Unmarshal(msg, &n); err != nil {
			return nil, fmt.Errorf("value is not a valid integer")
		}
		if n < 0 {
			return nil, fmt.Errorf("ensure this value is greater than or equal to 0")
		}
		if percentKeys[field.Key] && n > 100 {
			return nil, fmt.Errorf("ensure this value is less than or equal to 100")
		}
		return n, nil
	case filters.KindDecimal:
		var f float64
		if err := json.Unmarshal(msg, &f); err != nil || math.IsNaN(f) {
			return nil, fmt.Errorf("value is not a valid number")
		}
		if f < 0 || (percentKeys[field.Key] && f > 100) {
			return nil, fmt.Errorf("ensure this value is between 0 and 100")
		}
		return f, nil
	case filters.KindText, filters.KindChoice:
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, fmt.Errorf("value is not a valid string")
		}
		if len(field.Options) > 0 && !lo.Contains(field.Options, s) {
			return nil, fmt.Errorf("value must be one of %v", field.Options)
		}
		return s, nil
	case filters.KindLines, filters.KindSet:
		var list []string
		if err := json.Unmarshal(msg, &list); err != nil {
			return nil, fmt.Errorf("value is not a valid list of strings")
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported field kind %q", field.Kind)
	}
}
