package filters

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FormFromFile loads a form from a YAML, JSON or TOML file whose top-level
// keys are filter keys. List values (links, categories) may be written as
// arrays; a scalar categories value is a comma separated list.
func FormFromFile(path string) (Form, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Form{}, fmt.Errorf("read form file: %w", err)
	}
	form := Form{Values: map[string]string{}}
	for _, key := range v.AllKeys() {
		switch key {
		case KeyCategories:
			if _, ok := v.Get(key).([]any); ok {
				form.Categories = v.GetStringSlice(key)
			} else {
				form.Categories = strings.Split(v.GetString(key), ",")
			}
		case KeyLinks:
			if _, ok := v.Get(key).([]any); ok {
				form.Values[key] = strings.Join(v.GetStringSlice(key), "\n")
			} else {
				form.Values[key] = v.GetString(key)
			}
		default:
			form.Values[key] = v.GetString(key)
		}
	}
	return form, nil
}

// ParseAssignments merges key=value pairs into form. A repeated links key
// appends a line; categories accepts a comma separated list.
func ParseAssignments(form Form, assignments []string) (Form, error) {
	out := Form{
		Values:     make(map[string]string, len(form.Values)+len(assignments)),
		Categories: append([]string(nil), form.Categories...),
	}
	for k, v := range form.Values {
		out.Values[k] = v
	}
	for _, raw := range assignments {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return Form{}, fmt.Errorf("filter %q must be key=value", raw)
		}
		if _, known := byKey[key]; !known {
			return Form{}, fmt.Errorf("unknown filter key %q", key)
		}
		switch key {
		case KeyCategories:
			out.Categories = append(out.Categories, strings.Split(value, ",")...)
		case KeyLinks:
			if prev := out.Values[key]; prev != "" {
				value = prev + "\n" + value
			}
			out.Values[key] = value
		default:
			out.Values[key] = value
		}
	}
	return out, nil
}
