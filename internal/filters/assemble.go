// Package filters turns sparse operator input into the filter payload sent
// to the remote job.
package filters

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Form holds raw operator input. Every value is a string and may be blank.
type Form struct {
	Values     map[string]string `json:"values"`
	Categories []string          `json:"categories"`
}

// Payload maps filter keys to typed values. A missing key means "no filter".
type Payload map[string]any

// Assemble converts form into a payload. Blank values and values that fail
// to parse are omitted; unknown keys are ignored.
func Assemble(form Form) Payload {
	payload := Payload{}
	for key, raw := range form.Values {
		field, ok := byKey[key]
		if !ok || field.Kind == KindSet {
			continue
		}
		if v, ok := convert(field, raw); ok {
			payload[key] = v
		}
	}
	if cats := normalizeCategories(form.Categories); len(cats) > 0 {
		payload[KeyCategories] = cats
	}
	return payload
}

// Unparsable lists catalog keys whose value was non-blank but dropped by
// Assemble, sorted by key.
func Unparsable(form Form) []string {
	keys := lo.Filter(lo.Keys(form.Values), func(key string, _ int) bool {
		field, ok := byKey[key]
		if !ok || field.Kind == KindSet {
			return false
		}
		if strings.TrimSpace(form.Values[key]) == "" {
			return false
		}
		_, ok = convert(field, form.Values[key])
		return !ok
	})
	sort.Strings(keys)
	return keys
}

// Keys returns the payload keys in sorted order.
func (p Payload) Keys() []string {
	keys := lo.Keys(p)
	sort.Strings(keys)
	return keys
}

func convert(field Field, raw string) (any, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, false
	}
	switch field.Kind {
	case KindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, false
		}
		return n, true
	case KindDecimal:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	case KindLines:
		links := splitLines(value)
		if len(links) == 0 {
			return nil, false
		}
		return links, true
	default:
		return value, true
	}
}

func splitLines(text string) []string {
	return trimmedNonBlank(strings.Split(text, "\n"))
}

func trimmedNonBlank(in []string) []string {
	return lo.FilterMap(in, func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
}

func normalizeCategories(in []string) []string {
	cats := lo.Uniq(trimmedNonBlank(in))
	sort.Strings(cats)
	return cats
}
