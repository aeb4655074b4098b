package domain

import "time"

// VariantAggregate holds the raw counts for one variant, read from the logs.
type VariantAggregate struct {
	Variant     string
	TotalUsers  int64
	Conversions int64
	TotalValue  float64
}

// VariantStatistics is the derived statistics snapshot for one variant.
// It is always recomputable from assignments and events.
type VariantStatistics struct {
	ExperimentID            string
	Variant                 string
	IsControl               bool
	TotalUsers              int64
	Conversions             int64
	TotalValue              float64
	ConversionRate          float64
	ConfidenceIntervalLower float64
	ConfidenceIntervalUpper float64
	StatisticalSignificance bool
	PValue                  *float64
	ZScore                  *float64
	RelativeLift            *float64
	ProbabilityBest         float64
	ExpectedLoss            float64
	CredibleIntervalLower   float64
	CredibleIntervalUpper   float64
	HasData                 bool
	CalculatedAt            time.Time
}

// SequentialBound is the interim-analysis stopping rule state.
type SequentialBound struct {
	PlannedSampleSize int64
	ObservedUsers     int64
	Fraction          float64
	BaseAlpha         float64
	AdjustedAlpha     float64
	StopForEfficacy   bool
	StopForFutility   bool
}

// ExperimentStatistics bundles the per-variant rows with the sequential analysis.
type ExperimentStatistics struct {
	ExperimentID string
	Control      string
	Variants     []VariantStatistics
	Sequential   SequentialBound
	CalculatedAt time.Time
}

// Variant returns the row for name, or nil.
func (s *ExperimentStatistics) Variant(name string) *VariantStatistics {
	for i := range s.Variants {
		if s.Variants[i].Variant == name {
			return &s.Variants[i]
		}
	}
	return nil
}

// MinPValue returns the smallest treatment p-value, or nil when none is defined.
func (s *ExperimentStatistics) MinPValue() *float64 {
	var lowest *float64
	for _, v := range s.Variants {
		if v.PValue == nil {
			continue
		}
		if lowest == nil || *v.PValue < *lowest {
			p := *v.PValue
			lowest = &p
		}
	}
	return lowest
}

// Winner is the outcome of the decision policy.
type Winner struct {
	Variant        string
	ConversionRate float64
	PValue         float64
	Confidence     float64
}

// DecisionAction is what the decision policy recommends.
type DecisionAction string

const (
	DecisionContinue        DecisionAction = "continue"
	DecisionWinner          DecisionAction = "winner"
	DecisionStopForEfficacy DecisionAction = "stop_for_efficacy"
	DecisionStopForFutility DecisionAction = "stop_for_futility"
)

// Decision is the recommendation for a running experiment.
type Decision struct {
	ExperimentID      string
	Action            DecisionAction
	Winner            *Winner
	Sequential        SequentialBound
	MinimumSampleSize int64
	SmallestArm       int64
	Reason            string
}
