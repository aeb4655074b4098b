package experiment

import (
	"context"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

type nopMetrics struct{}

func (nopMetrics) RecordAssignment(context.Context, string, string, bool) {}
func (nopMetrics) RecordEvent(context.Context, string, string, string, float64) {}
func (nopMetrics) RecordStatistics(context.Context, *domain.ExperimentStatistics) {}
func (nopMetrics) Close(context.Context) error { return nil }
