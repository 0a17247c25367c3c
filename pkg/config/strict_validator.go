package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field    string
	Message  string
	Severity ValidationSeverity
}

// StrictValidationResult contains validation errors from strict
// unmarshaling of a configuration document.
type StrictValidationResult struct {
	UnknownFields []FieldError
	TypeErrors    []FieldError
}

// Valid returns true if there are no validation errors.
func (r *StrictValidationResult) Valid() bool {
	return len(r.UnknownFields) == 0 && len(r.TypeErrors) == 0
}

// FormatErrors returns a human-readable error message.
func (r *StrictValidationResult) FormatErrors() string {
	if r.Valid() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation errors:\n")
	for _, f := range r.UnknownFields {
		sb.WriteString(fmt.Sprintf("  unknown field %s: %s\n", f.Field, f.Message))
	}
	for _, f := range r.TypeErrors {
		sb.WriteString(fmt.Sprintf("  type error %s: %s\n", f.Field, f.Message))
	}
	return sb.String()
}

// ValidateConfigStructure strict-decodes rawMap into target itself
// (ErrorUnused set), catching typos and unknown fields before the config
// is used. target is a pointer to the struct shape expected (e.g.
// &AgentFile{} or &ServerConfig{}); it is filled by the decode.
func ValidateConfigStructure(rawMap map[string]interface{}, target interface{}) (*StrictValidationResult, error) {
	result := &StrictValidationResult{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		ErrorUnused:      true,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(rawMap); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "has invalid keys:") || strings.Contains(errStr, "invalid keys") {
			result.UnknownFields = append(result.UnknownFields, FieldError{
				Field: "unknown", Message: errStr, Severity: SeverityError,
			})
		} else {
			result.TypeErrors = append(result.TypeErrors, FieldError{
				Field: "unknown", Message: errStr, Severity: SeverityError,
			})
		}
	}

	return result, nil
}
