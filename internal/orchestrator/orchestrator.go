// Package orchestrator implements the state machine tying the Session
// Manager, Process Pool, and Async Queue together: it validates input,
// resolves or creates a session, obtains a process, enforces at-most-one
// in-flight request per process, and either awaits the reply synchronously
// or enqueues the request for asynchronous processing.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/irisorch/iris/internal/asyncqueue"
	"github.com/irisorch/iris/internal/cache"
	"github.com/irisorch/iris/internal/config"
	"github.com/irisorch/iris/internal/eventbus"
	"github.com/irisorch/iris/internal/ierrors"
	"github.com/irisorch/iris/internal/logger"
	"github.com/irisorch/iris/internal/pathutil"
	"github.com/irisorch/iris/internal/pool"
	"github.com/irisorch/iris/internal/sessionmgr"
	"github.com/irisorch/iris/internal/sessionstore"
	"github.com/irisorch/iris/internal/transport"
	"github.com/irisorch/iris/pkg/protocol"
)

// externalTeam is the caller identity used for teams woken, slept, or
// rebooted by an operator rather than by another team.
const externalTeam = "external"

// TellOptions configures one Tell call. Timeout is in milliseconds: -1
// forces async mode regardless of WaitForResponse, 0 means no bound.
type TellOptions struct {
	Timeout         int
	WaitForResponse bool
	ClearCache      bool
}

// DefaultTellOptions mirrors the documented defaults: wait synchronously,
// clearing prior cache entries before sending.
func DefaultTellOptions() TellOptions {
	return TellOptions{Timeout: 0, WaitForResponse: true, ClearCache: true}
}

// TellResult is the outcome of a Tell call: exactly one of Async, Busy, or
// Text is meaningful, matching the three branches of the state machine.
type TellResult struct {
	Async  bool
	TaskID string
	Busy   bool
	Text   string
}

// Orchestrator is the public operations surface: tell, wake, sleep, reboot,
// compact, cancel, and the read-only status queries.
type Orchestrator struct {
	teams    map[string]*config.Team
	sessions *sessionmgr.Manager
	pool     *pool.Pool
	cacheMgr *cache.Manager
	queue    *asyncqueue.Queue
	events   eventbus.Bus
	logger   *logger.Logger
}

// New constructs an Orchestrator and starts its Async Queue worker.
func New(teams map[string]*config.Team, sessions *sessionmgr.Manager, p *pool.Pool, cacheMgr *cache.Manager, events eventbus.Bus, queueSize int, log *logger.Logger) *Orchestrator {
	o := &Orchestrator{
		teams:    teams,
		sessions: sessions,
		pool:     p,
		cacheMgr: cacheMgr,
		events:   events,
		logger:   log.WithFields(zap.String("component", "orchestrator")),
	}
	o.queue = asyncqueue.New(queueSize, o.runAsyncTask, log)
	return o
}

// Close stops the Async Queue worker. It does not touch the pool or
// session manager, whose lifecycles the caller owns separately.
func (o *Orchestrator) Close() {
	o.queue.Stop()
}

// SessionStore exposes the underlying Session Store for read-only status
// queries (the HTTP surface's /sessions listing).
func (o *Orchestrator) SessionStore() *sessionstore.Store {
	return o.sessions.Store()
}

// CacheFor returns the Message Cache for a session, if one exists (the
// HTTP surface's /stream endpoint).
func (o *Orchestrator) CacheFor(sessionID string) (*cache.MessageCache, bool) {
	return o.cacheMgr.GetCache(sessionID)
}

// SessionFor resolves the session row for a team pair without creating one,
// for callers (the /stream endpoint) that must not side-effect a session
// into existence.
func (o *Orchestrator) SessionFor(fromTeam, toTeam string) (*sessionstore.Session, error) {
	return o.sessions.Store().GetByTeamPair(fromTeam, toTeam)
}

// Tell is the primary operation: validate, resolve the session, and either
// enqueue the tell for background processing or await its reply.
func (o *Orchestrator) Tell(ctx context.Context, fromTeam, toTeam, message string, opts TellOptions) (*TellResult, error) {
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
	if err := pathutil.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}

	session, err := o.sessions.GetOrCreateSession(ctx, fromTeam, toTeam)
	if err != nil {
		return nil, err
	}

	if !opts.WaitForResponse || opts.Timeout == -1 {
		taskID, err := o.queue.Enqueue(asyncqueue.Task{
			Type:     asyncqueue.TaskTypeTell,
			FromTeam: fromTeam,
			ToTeam:   toTeam,
			Content:  message,
			Timeout:  opts.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return &TellResult{Async: true, TaskID: taskID}, nil
	}

	return o.executeTellSync(ctx, fromTeam, toTeam, session, message, opts)
}

// executeTellSync obtains a process, sends the tell, and blocks until a
// result frame arrives, the timeout elapses, or the process exits.
func (o *Orchestrator) executeTellSync(ctx context.Context, fromTeam, toTeam string, session *sessionstore.Session, message string, opts TellOptions) (*TellResult, error) {
	mc := o.cacheMgr.GetOrCreateCache(session.SessionID, fromTeam, toTeam)
	if opts.ClearCache {
		if tr, ok := o.pool.GetTransport(fromTeam, toTeam); !ok || !tr.IsBusy() {
			mc.Clear()
		}
	}

	entry, err := o.pool.SendMessage(ctx, toTeam, session.SessionID, message, fromTeam)
	if err != nil {
		if ierrors.Is(err, ierrors.KindProcessBusy) {
			// At-most-one-concurrent-tell-per-process: the orchestrator
			// reports this as a logical busy reply rather than destroying
			// the in-flight request.
			return &TellResult{Busy: true}, nil
		}
		return nil, err
	}

	poolKey := pool.PoolKey(fromTeam, toTeam)

	var timeoutCh <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(time.Duration(opts.Timeout) * time.Millisecond)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	msgCh := entry.SubscribeMessages()
	for {
		select {
		case frame, ok := <-msgCh:
			if !ok {
				switch entry.Reason {
				case cache.ReasonProcessCrashed:
					return nil, ierrors.ProcessCrashed(poolKey, nil)
				case cache.ReasonResponseTimeout:
					return nil, ierrors.ResponseTimeout(poolKey)
				default:
					return nil, ierrors.Transport("cache entry closed without a result frame", nil)
				}
			}
			if frame.Type == protocol.FrameResult {
				if err := o.sessions.Store().IncrementMessageCount(session.SessionID, 1); err != nil {
					o.logger.Warn("failed to increment message count", zap.Error(err))
				}
				return &TellResult{Text: protocol.ResultText(frame)}, nil
			}
		case <-timeoutCh:
			entry.Terminate(cache.ReasonResponseTimeout)
			return nil, ierrors.ResponseTimeout(poolKey)
		case <-ctx.Done():
			entry.Terminate(cache.ReasonManualTermination)
			return nil, ierrors.Wrap(ctx.Err(), "tell canceled")
		}
	}
}

// runAsyncTask is the Async Queue's executor: it re-resolves the session
// (it may have changed since enqueue) and replays the synchronous tell
// path, logging the outcome instead of returning it.
func (o *Orchestrator) runAsyncTask(ctx context.Context, task asyncqueue.Task) {
	session, err := o.sessions.GetOrCreateSession(ctx, task.FromTeam, task.ToTeam)
	if err != nil {
		o.logger.Error("async tell failed to resolve session", zap.String("taskId", task.ID), zap.Error(err))
		return
	}

	opts := TellOptions{Timeout: task.Timeout, WaitForResponse: true, ClearCache: true}
	if opts.Timeout == -1 {
		opts.Timeout = 0
	}

	result, err := o.executeTellSync(ctx, task.FromTeam, task.ToTeam, session, task.Content, opts)
	if err != nil {
		o.logger.Error("async tell failed", zap.String("taskId", task.ID), zap.Error(err))
		return
	}
	if result.Busy {
		o.logger.Warn("async tell found process busy", zap.String("taskId", task.ID))
		return
	}
	o.logger.Info("async tell completed", zap.String("taskId", task.ID), zap.Int("replyBytes", len(result.Text)))
}

func transportConfigFor(team *config.Team) transport.Config {
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
