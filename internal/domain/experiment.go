package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of an experiment.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
)

// ControlVariant is the conventional name of the baseline arm.
const ControlVariant = "control"

// DefaultSignificanceThreshold is applied when an experiment is created without one.
const DefaultSignificanceThreshold = 0.95

// ParseStatus converts a raw string into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDraft, StatusRunning, StatusPaused, StatusStopped, StatusCompleted:
		return st, nil
	}
	return "", NewValidationError("status", fmt.Sprintf("unknown status %q", s))
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusCompleted
}

// Experiment is an A/B test definition together with its lifecycle state.
type Experiment struct {
	ID                      string
	Name                    string
	Description             *string
	Hypothesis              *string
	SuccessMetric           string
	TrafficSplit            TrafficSplit
	MinimumSampleSize       int64
	SignificanceThreshold   float64
	TestDurationDays        int64
	BaselineRate            *float64
	MinimumDetectableEffect *float64
	Status                  Status
	WinnerVariant           *string
	ConfidenceLevel         *float64
	StartedAt               *time.Time
	EndedAt                 *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Alpha is the false-positive rate implied by the significance threshold.
func (e *Experiment) Alpha() float64 {
	return 1 - e.SignificanceThreshold
}

// Validate checks the configuration fields that must hold on create and update.
func (e *Experiment) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return NewValidationError("name", "must not be empty")
	}
	if strings.TrimSpace(e.SuccessMetric) == "" {
		return NewValidationError("success_metric", "must not be empty")
	}
	if err := e.TrafficSplit.Validate(); err != nil {
		return err
	}
	if e.MinimumSampleSize < 1 {
		return NewValidationError("minimum_sample_size", "must be at least 1")
	}
	if e.SignificanceThreshold <= 0 || e.SignificanceThreshold >= 1 {
		return NewValidationError("significance_threshold", "must be between 0 and 1 (exclusive)")
	}
	if e.TestDurationDays < 0 {
		return NewValidationError("test_duration_days", "must not be negative")
	}
	if e.BaselineRate != nil && (*e.BaselineRate <= 0 || *e.BaselineRate >= 1) {
		return NewValidationError("baseline_rate", "must be between 0 and 1 (exclusive)")
	}
	if e.MinimumDetectableEffect != nil && *e.MinimumDetectableEffect == 0 {
		return NewValidationError("minimum_detectable_effect", "must not be zero")
	}
	return nil
}

// Start moves a draft (or already running) experiment to running.
func (e *Experiment) Start(now time.Time) error {
	switch e.Status {
	case StatusRunning:
		return nil
	case StatusDraft:
		e.Status = StatusRunning
		if e.StartedAt == nil {
			e.StartedAt = &now
		}
		e.UpdatedAt = now
		return nil
	}
	return invalidTransition(e.Status, StatusRunning)
}

// Pause suspends a running experiment.
func (e *Experiment) Pause(now time.Time) error {
	if e.Status != StatusRunning {
		return invalidTransition(e.Status, StatusPaused)
	}
	e.Status = StatusPaused
	e.UpdatedAt = now
	return nil
}

// Resume restarts a paused experiment.
func (e *Experiment) Resume(now time.Time) error {
	if e.Status != StatusPaused {
		return invalidTransition(e.Status, StatusRunning)
	}
	e.Status = StatusRunning
	e.UpdatedAt = now
	return nil
}

// Stop ends any non-terminal experiment.
func (e *Experiment) Stop(now time.Time) error {
	if e.Status.Terminal() {
		return invalidTransition(e.Status, StatusStopped)
	}
	e.Status = StatusStopped
	e.EndedAt = &now
	e.UpdatedAt = now
	return nil
}

// Complete records a winner and closes a running or paused experiment.
func (e *Experiment) Complete(now time.Time, winner string, confidence float64) error {
	if e.Status != StatusRunning && e.Status != StatusPaused {
		return invalidTransition(e.Status, StatusCompleted)
	}
	if !e.TrafficSplit.Has(winner) {
		return NewValidationError("winner_variant", fmt.Sprintf("unknown variant %q", winner))
	}
	e.Status = StatusCompleted
	e.WinnerVariant = &winner
	e.ConfidenceLevel = &confidence
	e.EndedAt = &now
	e.UpdatedAt = now
	return nil
}

// SplitEditable reports whether a manual traffic split update is allowed.
func (e *Experiment) SplitEditable() bool {
	return e.Status == StatusDraft || e.Status == StatusPaused
}

// Control returns the baseline variant: "control" when present, else the first by name.
func (e *Experiment) Control() string {
	if e.TrafficSplit.Has(ControlVariant) {
		return ControlVariant
	}
	names := e.TrafficSplit.Variants()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func invalidTransition(from, to Status) error {
	return &ValidationError{
		Field:   "status",
		Message: fmt.Sprintf("cannot move from %s to %s", from, to),
		Err:     ErrInvalidTransition,
	}
}

// TrafficSplit maps variant names to integer percentages summing to 100.
type TrafficSplit map[string]int

// ParseTrafficSplit parses "control=50,variant_a=50".
func ParseTrafficSplit(s string) (TrafficSplit, error) {
	split := TrafficSplit{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, pct, ok := strings.Cut(part, "=")
		if !ok {
			return nil, NewValidationError("traffic_split", fmt.Sprintf("expected name=percentage, got %q", part))
		}
		var v int
		if _, err := fmt.Sscanf(strings.TrimSpace(pct), "%d", &v); err != nil {
			return nil, NewValidationError("traffic_split", fmt.Sprintf("invalid percentage %q", pct))
		}
		split[strings.TrimSpace(name)] = v
	}
	return split, split.Validate()
}

// EvenSplit divides 100 across variants, giving remainders to the first names.
func EvenSplit(variants []string) TrafficSplit {
	sorted := append([]string(nil), variants...)
	sort.Strings(sorted)
	split := make(TrafficSplit, len(sorted))
	if len(sorted) == 0 {
		return split
	}
	base, rem := 100/len(sorted), 100%len(sorted)
	for i, v := range sorted {
		split[v] = base
		if i < rem {
			split[v]++
		}
	}
	return split
}

// Validate enforces at least two named variants with percentages summing to 100.
func (t TrafficSplit) Validate() error {
	if len(t) < 2 {
		return NewValidationError("traffic_split", "at least two variants are required")
	}
	sum := 0
	for name, pct := range t {
		if strings.TrimSpace(name) == "" {
			return NewValidationError("traffic_split", "variant names must not be empty")
		}
		if pct < 0 || pct > 100 {
			return NewValidationError("traffic_split", fmt.Sprintf("percentage for %q must be within 0..100", name))
		}
		sum += pct
	}
	if sum != 100 {
		return NewValidationError("traffic_split", fmt.Sprintf("percentages must sum to 100, got %d", sum))
	}
	return nil
}

// Has reports whether variant is part of the split.
func (t TrafficSplit) Has(variant string) bool {
	_, ok := t[variant]
	return ok
}

// Variants returns the variant names in stable (sorted) order.
func (t TrafficSplit) Variants() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bucket maps a value in [0,100) onto the variant owning that cumulative range.
// Zero-percentage variants never receive traffic.
func (t TrafficSplit) Bucket(bucket int) string {
	cumulative := 0
	names := t.Variants()
	for _, name := range names {
		cumulative += t[name]
		if bucket < cumulative {
			return name
		}
	}
	return names[len(names)-1]
}

// String renders the split as "a=50,b=50".
func (t TrafficSplit) String() string {
	parts := make([]string, 0, len(t))
	for _, name := range t.Variants() {
		parts = append(parts, fmt.Sprintf("%s=%d", name, t[name]))
	}
	return strings.Join(parts, ",")
}

// Encode serializes the split with sorted keys so round trips are byte-identical.
func (t TrafficSplit) Encode() (string, error) {
	b, err := json.Marshal(map[string]int(t))
	if err != nil {
		return "", fmt.Errorf("failed to encode traffic split: %w", err)
	}
	return string(b), nil
}

// DecodeTrafficSplit parses the stored JSON form.
func DecodeTrafficSplit(s string) (TrafficSplit, error) {
	var m map[string]int
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to decode traffic split: %w", err)
	}
	return TrafficSplit(m), nil
}
