// Package sessionmgr implements the Session Manager: creation, lookup, and
// deletion of sessions, coordinated with the agent's own on-disk session
// file.
package sessionmgr

import (
	"context"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/irisorch/iris/internal/config"
	"github.com/irisorch/iris/internal/eventbus"
	"github.com/irisorch/iris/internal/ierrors"
	"github.com/irisorch/iris/internal/logger"
	"github.com/irisorch/iris/internal/pathutil"
	"github.com/irisorch/iris/internal/sessionstore"
	"github.com/irisorch/iris/internal/transport"
)

// externalTeam is the caller identity used for the implicit (external, team)
// session established for every configured team at startup.
const externalTeam = "external"

// EventPublisher is the narrow interface the manager needs from the event
// bus; satisfied by both the real NATS-backed bus and its no-op stand-in.
type EventPublisher interface {
	Publish(subject string, payload map[string]interface{})
}

// Manager owns the Session Store and coordinates each session's on-disk
// transcript file, which is created by the agent itself.
type Manager struct {
	store  *sessionstore.Store
	teams  map[string]*config.Team
	events EventPublisher
	logger *logger.Logger

	// ping materializes the agent's on-disk session file for a freshly
	// allocated session id. It is a field rather than a direct call to
	// transport.Ping so tests can substitute a fake without spawning a real
	// agent process.
	ping func(ctx context.Context, cfg transport.Config, sessionID string) error
}

// New creates a Session Manager over the given store and team configuration.
func New(store *sessionstore.Store, teams map[string]*config.Team, events EventPublisher, log *logger.Logger) *Manager {
	return &Manager{
		store:  store,
		teams:  teams,
		events: events,
		logger: log.WithFields(zap.String("component", "session-manager")),
		ping:   transport.Ping,
	}
}

// Initialize ensures an (external, team) session exists for every configured
// team, creating one where absent.
func (m *Manager) Initialize(ctx context.Context) error {
	for name := range m.teams {
		if _, err := m.GetOrCreateSession(ctx, externalTeam, name); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCreateSession returns the existing session row for (fromTeam,toTeam),
// or creates one: generating a UUID v4, inserting the store row, and then
// asking the agent to materialize its session file. If the agent call fails
// after the row exists, the row is deleted before the error is surfaced.
func (m *Manager) GetOrCreateSession(ctx context.Context, fromTeam, toTeam string) (*sessionstore.Session, error) {
	if err := pathutil.ValidateTeamName(toTeam); err != nil {
		return nil, err
	}
	team, ok := m.teams[toTeam]
	if !ok {
		return nil, ierrors.TeamNotFound(toTeam)
	}

	existing, err := m.store.GetByTeamPair(fromTeam, toTeam)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sessionID := uuid.New().String()
	sess, err := m.store.Create(fromTeam, toTeam, sessionID)
	if err != nil {
		return nil, err
	}

	if err := m.ping(ctx, transportConfig(team), sessionID); err != nil {
		if delErr := m.store.Delete(sessionID); delErr != nil {
			m.logger.Error("failed to roll back session row after ping failure", zap.Error(delErr))
		}
		return nil, err
	}

	if m.events != nil {
		m.events.Publish(eventbus.SubjectSessionCreated, map[string]interface{}{
			"fromTeam":  fromTeam,
			"toTeam":    toTeam,
			"sessionId": sessionID,
		})
	}

	return sess, nil
}

// DeleteSession removes the store row and, when requested, the agent's
// on-disk transcript file.
func (m *Manager) DeleteSession(sess *sessionstore.Session, alsoDeleteFile bool) error {
	if err := m.store.Delete(sess.SessionID); err != nil {
		return err
	}
	if !alsoDeleteFile {
		return nil
	}
	team, ok := m.teams[sess.ToTeam]
	if !ok {
		return nil
	}
	path, err := pathutil.SessionFilePath(config.Home(), team.Path, sess.SessionID)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove agent session file", zap.String("path", path), zap.Error(err))
	}
	return nil
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// SetPing overrides how the manager materializes a new session's on-disk
// file. Exposed for tests that need to substitute a fake instead of
// spawning a real agent process.
func (m *Manager) SetPing(f func(ctx context.Context, cfg transport.Config, sessionID string) error) {
	m.ping = f
}

// Store returns the underlying Session Store, for callers (the
// Orchestrator's status queries, reboot/compact flows) that need direct
// access to operations the Manager does not wrap.
func (m *Manager) Store() *sessionstore.Store {
	return m.store
}

func transportConfig(team *config.Team) transport.Config {
	return transport.Config{
		TeamName:        team.Name,
		WorkDir:         team.Path,
		Remote:          team.Remote,
		ClaudePath:      team.ClaudePath,
		SkipPermissions: team.SkipPermissions,
		AllowedTools:    team.AllowedTools,
		DisallowedTools: team.DisallowedTools,
	}
}
