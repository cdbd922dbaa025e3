package orchestrator

import (
	"sort"

	"github.com/irisorch/iris/internal/transport"
)

// TeamStatus is one row of the Teams() listing: a configured team plus its
// current awake/asleep state as observed in the pool.
type TeamStatus struct {
	Name        string
	Description string
	Color       string
	Awake       bool
}

// IsAwake reports whether a live, non-stopped process exists for
// (fromTeam, toTeam).
func (o *Orchestrator) IsAwake(fromTeam, toTeam string) bool {
	tr, ok := o.pool.GetTransport(fromTeam, toTeam)
	return ok && tr.Status() != transport.StatusStopped
}

// Teams lists every configured team with its external-caller awake status,
// sorted by name for stable output.
func (o *Orchestrator) Teams() []TeamStatus {
	out := make([]TeamStatus, 0, len(o.teams))
	for name, team := range o.teams {
		out = append(out, TeamStatus{
			Name:        name,
			Description: team.Description,
			Color:       team.Color,
			Awake:       o.IsAwake(externalTeam, name),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Report aggregates Session Store and Process Pool statistics for a
// dashboard-style status view.
type Report struct {
	TotalSessions    int
	ActiveSessions   int
	ArchivedSessions int
	TotalMessages    int
	PoolSize         int
	QueueDepth       int
}

// Report composes a Report snapshot from the session store and pool.
func (o *Orchestrator) Report() (*Report, error) {
	stats, err := o.sessions.Store().GetStats()
	if err != nil {
		return nil, err
	}
	return &Report{
		TotalSessions:    stats.Total,
		ActiveSessions:   stats.Active,
		ArchivedSessions: stats.Archived,
		TotalMessages:    stats.TotalMessages,
		PoolSize:         o.pool.Size(),
		QueueDepth:       o.queue.Len(),
	}, nil
}
