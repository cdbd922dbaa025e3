package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/irisorch/iris/internal/eventbus"
	"github.com/irisorch/iris/internal/ierrors"
	"github.com/irisorch/iris/internal/pathutil"
	"github.com/irisorch/iris/internal/pool"
	"github.com/irisorch/iris/internal/sessionstore"
	"github.com/irisorch/iris/internal/transport"
)

// Wake ensures a session and a running process exist for every named team,
// sequentially and idempotently.
func (o *Orchestrator) Wake(ctx context.Context, teams []string) error {
	for _, name := range teams {
		if err := pathutil.ValidateTeamName(name); err != nil {
			return err
		}
		team, ok := o.teams[name]
		if !ok {
			return ierrors.TeamNotFound(name)
		}
		session, err := o.sessions.GetOrCreateSession(ctx, externalTeam, name)
		if err != nil {
			return err
		}
		if _, err := o.pool.GetOrCreateProcess(ctx, name, session.SessionID, externalTeam); err != nil {
			return err
		}
		o.logger.Info("woke team", zap.String("team", team.Name))
	}
	return nil
}

// SleepResult reports the outcome of a Sleep call.
type SleepResult struct {
	AlreadyAsleep bool
	LostMessages  int
}

// Sleep terminates the process for (external, team). It is idempotent:
// calling it when already asleep reports AlreadyAsleep without error. With
// force=false, sleeping a busy process raises ProcessBusy instead.
func (o *Orchestrator) Sleep(team string, force, clearCache bool) (*SleepResult, error) {
	if err := pathutil.ValidateTeamName(team); err != nil {
		return nil, err
	}
	poolKey := pool.PoolKey(externalTeam, team)

	tr, ok := o.pool.GetTransport(externalTeam, team)
	if !ok {
		return &SleepResult{AlreadyAsleep: true}, nil
	}

	lost := 0
	if tr.IsBusy() {
		if !force {
			return nil, ierrors.ProcessBusy(poolKey)
		}
		lost = 1
	}

	if err := o.pool.TerminateProcess(poolKey); err != nil {
		return nil, err
	}

	if clearCache {
		if sess, err := o.sessions.Store().GetByTeamPair(externalTeam, team); err == nil && sess != nil {
			o.cacheMgr.DeleteCache(sess.SessionID)
		}
	}

	return &SleepResult{LostMessages: lost}, nil
}

// Reboot terminates any existing process for the pair, deletes the session
// (including its on-disk file), and allocates a fresh one. Process
// termination errors are logged but never abort the cleanup.
func (o *Orchestrator) Reboot(ctx context.Context, fromTeam, toTeam string) (*sessionstore.Session, error) {
	if err := pathutil.ValidateTeamName(toTeam); err != nil {
		return nil, err
	}
	if fromTeam != "" {
		if err := pathutil.ValidateTeamName(fromTeam); err != nil {
			return nil, err
		}
	}
	if _, ok := o.teams[toTeam]; !ok {
		return nil, ierrors.TeamNotFound(toTeam)
	}

	poolKey := pool.PoolKey(fromTeam, toTeam)
	if err := o.pool.TerminateProcess(poolKey); err != nil {
		o.logger.Warn("failed to terminate process during reboot", zap.String("poolKey", poolKey), zap.Error(err))
	}

	existing, err := o.sessions.Store().GetByTeamPair(fromTeam, toTeam)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		o.cacheMgr.DeleteCache(existing.SessionID)
		if err := o.sessions.DeleteSession(existing, true); err != nil {
			return nil, err
		}
	}

	newSession, err := o.sessions.GetOrCreateSession(ctx, fromTeam, toTeam)
	if err != nil {
		return nil, err
	}
	o.publish(eventbus.SubjectSessionRebooted, map[string]interface{}{
		"fromTeam":  fromTeam,
		"toTeam":    toTeam,
		"sessionId": newSession.SessionID,
	})
	return newSession, nil
}

// Compact issues a one-shot "/compact" command against the existing
// session, retrying transient failures up to retries times. The session is
// marked compact_pending for the duration of the call.
func (o *Orchestrator) Compact(ctx context.Context, fromTeam, toTeam string, timeout time.Duration, retries int) error {
	team, ok := o.teams[toTeam]
	if !ok {
		return ierrors.TeamNotFound(toTeam)
	}

	session, err := o.sessions.Store().GetByTeamPair(fromTeam, toTeam)
	if err != nil {
		return err
	}
	if session == nil {
		return ierrors.SessionNotFound(pool.PoolKey(fromTeam, toTeam))
	}

	if err := o.sessions.Store().UpdateStatus(session.SessionID, sessionstore.StatusCompactPending); err != nil {
		return err
	}

	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		lastErr = transport.Compact(cctx, transportConfigFor(team), session.SessionID)
		if lastErr == nil {
			break
		}
		o.logger.Warn("compact attempt failed", zap.Int("attempt", attempt), zap.Error(lastErr))
	}

	if err := o.sessions.Store().UpdateStatus(session.SessionID, sessionstore.StatusActive); err != nil {
		o.logger.Error("failed to restore session status after compact", zap.Error(err))
	}
	return lastErr
}

// Cancel delivers a best-effort interrupt to the process for (fromTeam,
// toTeam), if one exists. The interrupt's effect on the agent is not
// guaranteed.
func (o *Orchestrator) Cancel(fromTeam, toTeam string) (found bool, err error) {
	tr, ok := o.pool.GetTransport(fromTeam, toTeam)
	if !ok {
		return false, nil
	}
	return true, tr.Cancel()
}

func (o *Orchestrator) publish(subject string, payload map[string]interface{}) {
	if o.events == nil {
		return
	}
	o.events.Publish(subject, payload)
}
