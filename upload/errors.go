package upload

import (
	"fmt"
	"strings"
)

// ValidationError reports invalid caller input: a missing category, a nil
// file, or an entity without a resolvable identifier. These are surfaced
// immediately and are never worth retrying.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// ConfigurationError reports an unresolvable executor or missing/invalid
// backend configuration. It is fatal at operation start.
type ConfigurationError struct {
	Subject string
	Reason  string
	Known   []string // registered executor keys, when resolution fails
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Reason)
	if len(e.Known) > 0 {
		msg += fmt.Sprintf(" (known executors: %s)", strings.Join(e.Known, ", "))
	}
	return msg
}

// SecurityError reports a location that resolves outside the configured
// storage root. It is never silently corrected or truncated into range.
type SecurityError struct {
	Location string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security violation: location %q escapes the storage root", e.Location)
}

// NotFoundError reports a read against an unknown location, distinguished
// from generic I/O failure.
type NotFoundError struct {
	Location string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Location)
}
