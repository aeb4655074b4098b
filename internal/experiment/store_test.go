package experiment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/logger"
)

// memStore is an in-memory implementation of every persistence port with the
// same semantics as the libsql adapters.
type memStore struct {
	mu          sync.Mutex
	experiments map[string]domain.Experiment
	assignments map[string]domain.Assignment
	events      []domain.Event
	statistics  map[string][]domain.VariantStatistics
	features    map[string]domain.Feature
}

func newMemStore() *memStore {
	return &memStore{
		experiments: map[string]domain.Experiment{},
		assignments: map[string]domain.Assignment{},
		statistics:  map[string][]domain.VariantStatistics{},
		features:    map[string]domain.Feature{},
	}
}

func (m *memStore) stores() Stores {
	return Stores{
		Experiments: memExperiments{m},
		Assignments: memAssignments{m},
		Events:      memEvents{m},
		Statistics:  memStatistics{m},
		Features:    memFeatures{m},
	}
}

func copyExperiment(e domain.Experiment) *domain.Experiment {
	split := make(domain.TrafficSplit, len(e.TrafficSplit))
	for k, v := range e.TrafficSplit {
		split[k] = v
	}
	e.TrafficSplit = split
	return &e
}

type memExperiments struct{ m *memStore }

func (r memExperiments) Create(_ context.Context, e *domain.Experiment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.experiments[e.ID] = *copyExperiment(*e)
	return nil
}

func (r memExperiments) GetByID(_ context.Context, id string) (*domain.Experiment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.experiments[id]
	if !ok {
		return nil, nil
	}
	return copyExperiment(e), nil
}

func (r memExperiments) GetByName(_ context.Context, name string) (*domain.Experiment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.experiments {
		if e.Name == name {
			return copyExperiment(e), nil
		}
	}
	return nil, nil
}

func (r memExperiments) List(_ context.Context, status *domain.Status) ([]*domain.Experiment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.Experiment
	for _, e := range r.m.experiments {
		if status == nil || e.Status == *status {
			out = append(out, copyExperiment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memExperiments) Update(_ context.Context, e *domain.Experiment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.experiments[e.ID] = *copyExperiment(*e)
	return nil
}

func (r memExperiments) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.experiments, id)
	for k, a := range r.m.assignments {
		if a.ExperimentID == id {
			delete(r.m.assignments, k)
		}
	}
	delete(r.m.statistics, id)
	return nil
}

type memAssignments struct{ m *memStore }

func assignmentKey(experimentID, userID string) string {
	return experimentID + "/" + userID
}

func (r memAssignments) Get(_ context.Context, experimentID, userID string) (*domain.Assignment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.assignments[assignmentKey(experimentID, userID)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r memAssignments) InsertIfAbsent(_ context.Context, a *domain.Assignment) (*domain.Assignment, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := assignmentKey(a.ExperimentID, a.UserID)
	if existing, ok := r.m.assignments[key]; ok {
		return &existing, false, nil
	}
	r.m.assignments[key] = *a
	stored := *a
	return &stored, true, nil
}

func (r memAssignments) CountByVariant(_ context.Context, experimentID string) (map[string]int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := map[string]int64{}
	for _, a := range r.m.assignments {
		if a.ExperimentID == experimentID {
			out[a.Variant]++
		}
	}
	return out, nil
}

type memEvents struct{ m *memStore }

func (r memEvents) Append(_ context.Context, ev *domain.Event) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.events = append(r.m.events, *ev)
	return nil
}

func (r memEvents) ListByExperiment(_ context.Context, experimentID string, limit int) ([]*domain.Event, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.Event
	for i := len(r.m.events) - 1; i >= 0; i-- {
		if ev := r.m.events[i]; ev.ExperimentID == experimentID {
			out = append(out, &ev)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memEvents) ConversionsByVariant(_ context.Context, experimentID, eventType string) (map[string]domain.VariantAggregate, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	seen := map[string]bool{}
	out := map[string]domain.VariantAggregate{}
	for _, ev := range r.m.events {
		if ev.ExperimentID != experimentID || ev.EventType != eventType {
			continue
		}
		a, ok := r.m.assignments[assignmentKey(experimentID, ev.UserID)]
		if !ok || a.Variant != ev.Variant {
			continue
		}
		agg := out[a.Variant]
		agg.Variant = a.Variant
		agg.TotalValue += ev.EventValue
		if !seen[ev.UserID] {
			seen[ev.UserID] = true
			agg.Conversions++
		}
		out[a.Variant] = agg
	}
	return out, nil
}

type memStatistics struct{ m *memStore }

func (r memStatistics) Replace(_ context.Context, experimentID string, rows []domain.VariantStatistics) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.statistics[experimentID] = append([]domain.VariantStatistics(nil), rows...)
	return nil
}

func (r memStatistics) ListByExperiment(_ context.Context, experimentID string) ([]domain.VariantStatistics, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return append([]domain.VariantStatistics(nil), r.m.statistics[experimentID]...), nil
}

func (r memStatistics) DeleteByExperiment(_ context.Context, experimentID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.statistics, experimentID)
	return nil
}

type memFeatures struct{ m *memStore }

func (r memFeatures) Create(_ context.Context, f *domain.Feature) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.features[f.ID] = *f
	return nil
}

func (r memFeatures) GetByID(_ context.Context, id string) (*domain.Feature, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.features[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (r memFeatures) GetByName(_ context.Context, name string) (*domain.Feature, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, f := range r.m.features {
		if f.Name == name {
			return &f, nil
		}
	}
	return nil, nil
}

func (r memFeatures) List(_ context.Context) ([]*domain.Feature, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.Feature
	for _, f := range r.m.features {
		f := f
		out = append(out, &f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memFeatures) SetExperiment(_ context.Context, featureID string, experimentID *string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.features[featureID]
	if !ok {
		return nil
	}
	f.ExperimentID = experimentID
	f.IsExperiment = experimentID != nil
	r.m.features[featureID] = f
	return nil
}

// seedArm assigns users to variant and records a success event for the first
// conversions of them.
func (m *memStore) seedArm(experimentID, metric, variant string, users, conversions int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < users; i++ {
		user := fmt.Sprintf("%s-%d", variant, i)
		m.assignments[assignmentKey(experimentID, user)] = domain.Assignment{
			ExperimentID: experimentID, UserID: user, Variant: variant, AssignedAt: testNow,
		}
		if i < conversions {
			m.events = append(m.events, domain.Event{
				ID: fmt.Sprintf("ev-%s", user), ExperimentID: experimentID, UserID: user,
				Variant: variant, EventType: metric, EventValue: 1, CreatedAt: testNow,
			})
		}
	}
}

var testNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newTestServices(t *testing.T) (*Services, *memStore) {
	t.Helper()
	store := newMemStore()
	return New(store.stores(), Options{
		Logger:          logger.Discard(),
		Now:             func() time.Time { return testNow },
		MonteCarloDraws: 4000,
	}), store
}

func floatPtr(v float64) *float64 { return &v }

func createRunning(t *testing.T, svc *Services, name string, split domain.TrafficSplit, minSample int64) *domain.Experiment {
	t.Helper()
	ctx := context.Background()
	e, err := svc.Registry.Create(ctx, CreateInput{
		Name:              name,
		SuccessMetric:     "purchase",
		TrafficSplit:      split,
		MinimumSampleSize: minSample,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e, err = svc.Registry.Start(ctx, e.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return e
}
