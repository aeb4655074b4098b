package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Assignment binds a user to one variant of an experiment for its whole lifetime.
type Assignment struct {
	ExperimentID string
	UserID       string
	Variant      string
	AssignedAt   time.Time
}

// Event is one tracked user action. Events are append-only.
type Event struct {
	ID           string
	ExperimentID string
	UserID       string
	Variant      string
	EventType    string
	EventValue   float64
	SessionID    *string
	Metadata     Metadata
	CreatedAt    time.Time
}

// Metadata is free-form string key/value context attached to an event.
type Metadata map[string]string

// Validate rejects empty keys.
func (m Metadata) Validate() error {
	for k := range m {
		if strings.TrimSpace(k) == "" {
			return NewValidationError("metadata", "keys must not be empty")
		}
	}
	return nil
}

// Encode serializes metadata; empty metadata encodes to "{}".
func (m Metadata) Encode() (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

// DecodeMetadata parses the stored JSON form.
func DecodeMetadata(s string) (Metadata, error) {
	if s == "" {
		return Metadata{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return Metadata(m), nil
}

// ParseMetadata parses "k=v,k2=v2" pairs from the command line.
func ParseMetadata(pairs []string) (Metadata, error) {
	m := Metadata{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, NewValidationError("metadata", fmt.Sprintf("expected key=value, got %q", p))
		}
		m[strings.TrimSpace(k)] = v
	}
	return m, m.Validate()
}

// Feature is the external feature-flag record an experiment can be linked to.
type Feature struct {
	ID           string
	Name         string
	Enabled      bool
	IsExperiment bool
	ExperimentID *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
