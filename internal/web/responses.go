package web

import (
	"time"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/experiment"
	"github.com/emiliopalmerini/abacus/internal/stats"
)

type experimentResponse struct {
	ID                      string              `json:"id"`
	Name                    string              `json:"name"`
	Description             *string             `json:"description,omitempty"`
	Hypothesis              *string             `json:"hypothesis,omitempty"`
	SuccessMetric           string              `json:"success_metric"`
	TrafficSplit            domain.TrafficSplit `json:"traffic_split"`
	Control                 string              `json:"control"`
	MinimumSampleSize       int64               `json:"minimum_sample_size"`
	SignificanceThreshold   float64             `json:"significance_threshold"`
	TestDurationDays        int64               `json:"test_duration_days"`
	BaselineRate            *float64            `json:"baseline_rate,omitempty"`
	MinimumDetectableEffect *float64            `json:"minimum_detectable_effect,omitempty"`
	PlannedSampleSize       int64               `json:"planned_sample_size"`
	Status                  domain.Status       `json:"status"`
	WinnerVariant           *string             `json:"winner_variant,omitempty"`
	ConfidenceLevel         *float64            `json:"confidence_level,omitempty"`
	StartedAt               *time.Time          `json:"started_at,omitempty"`
	EndedAt                 *time.Time          `json:"ended_at,omitempty"`
	CreatedAt               time.Time           `json:"created_at"`
	UpdatedAt               time.Time           `json:"updated_at"`
}

func toExperimentResponse(e *domain.Experiment) experimentResponse {
	return experimentResponse{
		ID:                      e.ID,
		Name:                    e.Name,
		Description:             e.Description,
		Hypothesis:              e.Hypothesis,
		SuccessMetric:           e.SuccessMetric,
		TrafficSplit:            e.TrafficSplit,
		Control:                 e.Control(),
		MinimumSampleSize:       e.MinimumSampleSize,
		SignificanceThreshold:   e.SignificanceThreshold,
		TestDurationDays:        e.TestDurationDays,
		BaselineRate:            e.BaselineRate,
		MinimumDetectableEffect: e.MinimumDetectableEffect,
		PlannedSampleSize:       experiment.PlannedSampleSize(e),
		Status:                  e.Status,
		WinnerVariant:           e.WinnerVariant,
		ConfidenceLevel:         e.ConfidenceLevel,
		StartedAt:               e.StartedAt,
		EndedAt:                 e.EndedAt,
		CreatedAt:               e.CreatedAt,
		UpdatedAt:               e.UpdatedAt,
	}
}

type assignmentResponse struct {
	ExperimentID string    `json:"experiment_id"`
	UserID       string    `json:"user_id"`
	Variant      string    `json:"variant"`
	AssignedAt   time.Time `json:"assigned_at"`
}

type eventResponse struct {
	ID           string          `json:"id"`
	ExperimentID string          `json:"experiment_id"`
	UserID       string          `json:"user_id"`
	Variant      string          `json:"variant"`
	EventType    string          `json:"event_type"`
	EventValue   float64         `json:"event_value"`
	SessionID    *string         `json:"session_id,omitempty"`
	Metadata     domain.Metadata `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toEventResponse(e *domain.Event) eventResponse {
	return eventResponse{
		ID:           e.ID,
		ExperimentID: e.ExperimentID,
		UserID:       e.UserID,
		Variant:      e.Variant,
		EventType:    e.EventType,
		EventValue:   e.EventValue,
		SessionID:    e.SessionID,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
}

type variantStatisticsResponse struct {
	Variant                 string    `json:"variant"`
	IsControl               bool      `json:"is_control"`
	HasData                 bool      `json:"has_data"`
	TotalUsers              int64     `json:"total_users"`
	Conversions             int64     `json:"conversions"`
	TotalValue              float64   `json:"total_value"`
	ConversionRate          float64   `json:"conversion_rate"`
	ConfidenceIntervalLower float64   `json:"confidence_interval_lower"`
	ConfidenceIntervalUpper float64   `json:"confidence_interval_upper"`
	StatisticalSignificance bool      `json:"statistical_significance"`
	PValue                  *float64  `json:"p_value,omitempty"`
	ZScore                  *float64  `json:"z_score,omitempty"`
	RelativeLift            *float64  `json:"relative_lift,omitempty"`
	ProbabilityBest         float64   `json:"probability_best"`
	ExpectedLoss            float64   `json:"expected_loss"`
	CredibleIntervalLower   float64   `json:"credible_interval_lower"`
	CredibleIntervalUpper   float64   `json:"credible_interval_upper"`
	CalculatedAt            time.Time `json:"calculated_at"`
}

type sequentialResponse struct {
	PlannedSampleSize int64   `json:"planned_sample_size"`
	ObservedUsers     int64   `json:"observed_users"`
	Fraction          float64 `json:"fraction"`
	BaseAlpha         float64 `json:"base_alpha"`
	AdjustedAlpha     float64 `json:"adjusted_alpha"`
	StopForEfficacy   bool    `json:"stop_for_efficacy"`
	StopForFutility   bool    `json:"stop_for_futility"`
}

func toSequentialResponse(b domain.SequentialBound) sequentialResponse {
	return sequentialResponse(b)
}

type statisticsResponse struct {
	ExperimentID string                      `json:"experiment_id"`
	Control      string                      `json:"control"`
	Variants     []variantStatisticsResponse `json:"variants"`
	Sequential   *sequentialResponse         `json:"sequential,omitempty"`
	CalculatedAt time.Time                   `json:"calculated_at"`
}

// toStatisticsResponse omits the sequential block for stored snapshots, which
// do not carry it.
func toStatisticsResponse(s *domain.ExperimentStatistics, withSequential bool) statisticsResponse {
	resp := statisticsResponse{
		ExperimentID: s.ExperimentID,
		Control:      s.Control,
		Variants:     make([]variantStatisticsResponse, 0, len(s.Variants)),
		CalculatedAt: s.CalculatedAt,
	}
	for _, v := range s.Variants {
		resp.Variants = append(resp.Variants, variantStatisticsResponse{
			Variant:                 v.Variant,
			IsControl:               v.IsControl,
			HasData:                 v.HasData,
			TotalUsers:              v.TotalUsers,
			Conversions:             v.Conversions,
			TotalValue:              v.TotalValue,
			ConversionRate:          v.ConversionRate,
			ConfidenceIntervalLower: v.ConfidenceIntervalLower,
			ConfidenceIntervalUpper: v.ConfidenceIntervalUpper,
			StatisticalSignificance: v.StatisticalSignificance,
			PValue:                  v.PValue,
			ZScore:                  v.ZScore,
			RelativeLift:            v.RelativeLift,
			ProbabilityBest:         v.ProbabilityBest,
			ExpectedLoss:            v.ExpectedLoss,
			CredibleIntervalLower:   v.CredibleIntervalLower,
			CredibleIntervalUpper:   v.CredibleIntervalUpper,
			CalculatedAt:            v.CalculatedAt,
		})
	}
	if withSequential {
		seq := toSequentialResponse(s.Sequential)
		resp.Sequential = &seq
	}
	return resp
}

type winnerResponse struct {
	Variant        string  `json:"variant"`
	ConversionRate float64 `json:"conversion_rate"`
	PValue         float64 `json:"p_value"`
	Confidence     float64 `json:"confidence"`
}

func toWinnerResponse(w *domain.Winner) *winnerResponse {
	if w == nil {
		return nil
	}
	return &winnerResponse{
		Variant:        w.Variant,
		ConversionRate: w.ConversionRate,
		PValue:         w.PValue,
		Confidence:     w.Confidence,
	}
}

type decisionResponse struct {
	ExperimentID      string                `json:"experiment_id"`
	Action            domain.DecisionAction `json:"action"`
	Winner            *winnerResponse       `json:"winner,omitempty"`
	Sequential        sequentialResponse    `json:"sequential"`
	MinimumSampleSize int64                 `json:"minimum_sample_size"`
	SmallestArm       int64                 `json:"smallest_arm"`
	Reason            string                `json:"reason"`
}

func toDecisionResponse(d *domain.Decision) decisionResponse {
	return decisionResponse{
		ExperimentID:      d.ExperimentID,
		Action:            d.Action,
		Winner:            toWinnerResponse(d.Winner),
		Sequential:        toSequentialResponse(d.Sequential),
		MinimumSampleSize: d.MinimumSampleSize,
		SmallestArm:       d.SmallestArm,
		Reason:            d.Reason,
	}
}

type rebalanceResponse struct {
	ExperimentID string              `json:"experiment_id"`
	Rates        map[string]float64  `json:"rates"`
	Previous     domain.TrafficSplit `json:"previous"`
	Proposed     domain.TrafficSplit `json:"proposed"`
	Applied      bool                `json:"applied"`
}

func toRebalanceResponse(r *experiment.Rebalance) rebalanceResponse {
	return rebalanceResponse{
		ExperimentID: r.ExperimentID,
		Rates:        r.Rates,
		Previous:     r.Previous,
		Proposed:     r.Proposed,
		Applied:      r.Applied,
	}
}

type sampleSizeResponse struct {
	PerArm        int64   `json:"per_arm"`
	Total         int64   `json:"total"`
	Arms          int     `json:"arms"`
	AdjustedAlpha float64 `json:"adjusted_alpha"`
	ZAlpha        float64 `json:"z_alpha"`
	ZBeta         float64 `json:"z_beta"`
	BaselineRate  float64 `json:"baseline_rate"`
	TargetRate    float64 `json:"target_rate"`
}

func toSampleSizeResponse(p stats.SampleSizePlan, arms int) sampleSizeResponse {
	return sampleSizeResponse{
		PerArm:        p.PerArm,
		Total:         p.ForArms(arms),
		Arms:          arms,
		AdjustedAlpha: p.AdjustedAlpha,
		ZAlpha:        p.ZAlpha,
		ZBeta:         p.ZBeta,
		BaselineRate:  p.BaselineRate,
		TargetRate:    p.TargetRate,
	}
}

type featureResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Enabled      bool      `json:"enabled"`
	IsExperiment bool      `json:"is_experiment"`
	ExperimentID *string   `json:"experiment_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toFeatureResponse(f *domain.Feature) featureResponse {
	return featureResponse{
		ID:           f.ID,
		Name:         f.Name,
		Enabled:      f.Enabled,
		IsExperiment: f.IsExperiment,
		ExperimentID: f.ExperimentID,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}
