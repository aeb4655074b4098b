package turso

import (
	"database/sql"

	"github.com/emiliopalmerini/abacus/internal/ports"
)

// Repositories holds all turso repository implementations as port interfaces.
type Repositories struct {
	Experiments ports.ExperimentRepository
	Assignments ports.AssignmentRepository
	Events      ports.EventRepository
	Statistics  ports.StatisticsRepository
	Features    ports.FeatureRepository
}

// NewRepositories creates all turso repository implementations from a database connection.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Experiments: NewExperimentRepository(db),
		Assignments: NewAssignmentRepository(db),
		Events:      NewEventRepository(db),
		Statistics:  NewStatisticsRepository(db),
		Features:    NewFeatureRepository(db),
	}
}
