package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// absentText is how an absent field is written into a query.
const absentText = "None"

// ConfigError reports input that cannot be embedded into a query. It is
// raised before any oracle call.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: field %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RenderValue converts a field value to query text. Strings are embedded
// verbatim, absent values become None, anything else is serialized as JSON.
func RenderValue(field string, v any) (string, error) {
	if isAbsent(v) {
		return absentText, nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", &ConfigError{Field: field, Err: err}
	}
	return string(data), nil
}

func isAbsent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return len(strings.TrimSpace(string(t))) == 0
	default:
		return false
	}
}
