package driven

import (
	"context"
	"errors"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// ErrTeamNotFound indicates the requested team does not exist.
var ErrTeamNotFound = errors.New("team not found")

// TeamStore defines the driven port for team persistence.
// Upsert replaces the team's repository membership.
type TeamStore interface {
	Upsert(ctx context.Context, team model.Team) error
	Get(ctx context.Context, id string) (*model.Team, error)
	ListAll(ctx context.Context) ([]model.Team, error)
}
