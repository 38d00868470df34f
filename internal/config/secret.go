package config

import (
	"encoding/json"
	"log/slog"
)

// Secret wraps a sensitive value so it cannot leak through logging or
// serialization. Only the first three characters survive formatting.
type Secret string

// Value returns the raw secret for use in requests.
func (s Secret) Value() string { return string(s) }

// String renders a masked form of the secret.
func (s Secret) String() string {
	if len(s) <= 3 {
		return "***"
	}
	return string(s[:3]) + "***"
}

// LogValue masks the secret when logged through slog.
func (s Secret) LogValue() slog.Value { return slog.StringValue(s.String()) }

// MarshalJSON serializes the masked form, never the raw value.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// MarshalYAML serializes the masked form, never the raw value.
func (s Secret) MarshalYAML() (any, error) { return s.String(), nil }
