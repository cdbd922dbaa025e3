// Package pool implements the Process Pool: a bounded, LRU-evicting map of
// team-pair -> Transport, with health checks and graceful teardown.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/irisorch/iris/internal/cache"
	"github.com/irisorch/iris/internal/config"
	"github.com/irisorch/iris/internal/ierrors"
	"github.com/irisorch/iris/internal/logger"
	"github.com/irisorch/iris/internal/transport"
)

// EventPublisher is the narrow interface the pool needs from the event bus;
// satisfied by both the real NATS-backed bus and its no-op stand-in.
type EventPublisher interface {
	Publish(subject string, payload map[string]interface{})
}

// Pool is the bounded, LRU-evicting table of live Transports.
type Pool struct {
	mu           sync.Mutex
	teams        map[string]*config.Team
	maxProcesses int

	processes     map[string]transport.Transport
	sessionToPool map[string]string
	accessOrder   []string

	cacheMgr *cache.Manager
	events   EventPublisher
	logger   *logger.Logger

	// newTransport constructs the Transport for a freshly spawned process.
	// It is a field rather than a direct call to transport.New so tests can
	// substitute a fake transport without spawning a real subprocess.
	newTransport func(cfg transport.Config, log *logger.Logger) transport.Transport

	terminated bool
	stopHealth chan struct{}
	healthWg   sync.WaitGroup
}

// New constructs a Process Pool over the given teams and cache manager.
func New(teams map[string]*config.Team, maxProcesses int, cacheMgr *cache.Manager, events EventPublisher, log *logger.Logger) *Pool {
	return &Pool{
		teams:         teams,
		maxProcesses:  maxProcesses,
		processes:     make(map[string]transport.Transport),
		sessionToPool: make(map[string]string),
		cacheMgr:      cacheMgr,
		events:        events,
		logger:        log.WithFields(zap.String("component", "process-pool")),
		newTransport:  transport.New,
		stopHealth:    make(chan struct{}),
	}
}

// SetTransportFactory overrides how the pool constructs a Transport for a
// freshly spawned process. Exposed for tests that need to substitute a
// scripted fake instead of spawning a real agent subprocess.
func (p *Pool) SetTransportFactory(f func(cfg transport.Config, log *logger.Logger) transport.Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newTransport = f
}

// PoolKey computes the canonical "<fromTeam|external>-><toTeam>" key.
func PoolKey(fromTeam, toTeam string) string {
	if fromTeam == "" {
		fromTeam = "external"
	}
	return fmt.Sprintf("%s->%s", fromTeam, toTeam)
}

func (p *Pool) touch(key string) {
	for i, k := range p.accessOrder {
		if k == key {
			p.accessOrder = append(p.accessOrder[:i], p.accessOrder[i+1:]...)
			break
		}
	}
	p.accessOrder = append(p.accessOrder, key)
}

func (p *Pool) removeFromOrder(key string) {
	for i, k := range p.accessOrder {
		if k == key {
			p.accessOrder = append(p.accessOrder[:i], p.accessOrder[i+1:]...)
			return
		}
	}
}

// GetOrCreateProcess returns the live Transport for (fromTeam, teamName, sessionID),
// spawning a new one (evicting per LRU policy if the pool is at capacity)
// when none exists.
func (p *Pool) GetOrCreateProcess(ctx context.Context, teamName, sessionID, fromTeam string) (transport.Transport, error) {
	team, ok := p.teams[teamName]
	if !ok {
		return nil, ierrors.TeamNotFound(teamName)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated {
		return nil, ierrors.New(ierrors.KindTransport, "process pool has been terminated")
	}

	key := PoolKey(fromTeam, teamName)
	p.touch(key)

	if tr, ok := p.processes[key]; ok && tr.Status() != transport.StatusStopped {
		return tr, nil
	}

	if len(p.processes) >= p.maxProcesses {
		if err := p.evictLocked(); err != nil {
			return nil, err
		}
	}

	tr := p.newTransport(teamTransportConfig(team), p.logger)
	entryCache := p.cacheMgr.GetOrCreateCache(sessionID, fromTeam, teamName)
	spawnEntry := entryCache.CreateEntry(cache.KindSpawn, "ping")

	if err := tr.Spawn(ctx, sessionID, spawnEntry); err != nil {
		return nil, err
	}

	p.processes[key] = tr
	p.sessionToPool[sessionID] = key
	p.publish("iris.process.spawned", map[string]interface{}{"poolKey": key, "sessionId": sessionID})

	return tr, nil
}

// evictLocked removes the oldest IDLE transport, or — if none are IDLE —
// the least recently touched one. Caller must hold p.mu.
func (p *Pool) evictLocked() error {
	var victim string
	for _, key := range p.accessOrder {
		if tr, ok := p.processes[key]; ok && tr.Status() == transport.StatusIdle {
			victim = key
			break
		}
	}
	if victim == "" && len(p.accessOrder) > 0 {
		victim = p.accessOrder[0]
	}
	if victim == "" {
		return ierrors.ProcessPoolLimit(p.maxProcesses)
	}

	tr := p.processes[victim]
	delete(p.processes, victim)
	p.removeFromOrder(victim)
	for sid, k := range p.sessionToPool {
		if k == victim {
			delete(p.sessionToPool, sid)
		}
	}
	p.publish("iris.process.evicted", map[string]interface{}{"poolKey": victim})

	if tr != nil {
		go func() { _ = tr.Terminate() }()
	}
	return nil
}

// SendMessage obtains (or creates) the process for teamName/sessionID and
// initiates the tell; it does not await the reply — that is the
// Orchestrator's responsibility.
func (p *Pool) SendMessage(ctx context.Context, teamName, sessionID, message, fromTeam string) (*cache.Entry, error) {
	tr, err := p.GetOrCreateProcess(ctx, teamName, sessionID, fromTeam)
	if err != nil {
		return nil, err
	}
	mc := p.cacheMgr.GetOrCreateCache(sessionID, fromTeam, teamName)
	entry := mc.CreateEntry(cache.KindTell, message)
	if err := tr.ExecuteTell(entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// Size returns the number of live transports currently held by the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processes)
}

// GetTransport returns the live transport for a pool key, if any.
func (p *Pool) GetTransport(fromTeam, teamName string) (transport.Transport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tr, ok := p.processes[PoolKey(fromTeam, teamName)]
	return tr, ok
}

// TerminateProcess terminates and removes the transport for a pool key, if any.
func (p *Pool) TerminateProcess(poolKey string) error {
	p.mu.Lock()
	tr, ok := p.processes[poolKey]
	if ok {
		delete(p.processes, poolKey)
		p.removeFromOrder(poolKey)
		for sid, k := range p.sessionToPool {
			if k == poolKey {
				delete(p.sessionToPool, sid)
			}
		}
	}
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return tr.Terminate()
}

// TerminateAll terminates every live transport and marks the pool unusable.
func (p *Pool) TerminateAll() {
	p.mu.Lock()
	keys := make([]string, 0, len(p.processes))
	for k := range p.processes {
		keys = append(keys, k)
	}
	p.terminated = true
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_ = p.TerminateProcess(key)
		}(k)
	}
	wg.Wait()

	close(p.stopHealth)
	p.healthWg.Wait()
}

// StartHealthCheck runs the periodic health tick until TerminateAll is called.
func (p *Pool) StartHealthCheck(interval time.Duration) {
	p.healthWg.Add(1)
	go func() {
		defer p.healthWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.healthTick()
			case <-p.stopHealth:
				return
			}
		}
	}()
}

func (p *Pool) healthTick() {
	p.mu.Lock()
	var stale []string
	for key, tr := range p.processes {
		if tr.Status() == transport.StatusStopped {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		delete(p.processes, key)
		p.removeFromOrder(key)
		for sid, k := range p.sessionToPool {
			if k == key {
				delete(p.sessionToPool, sid)
			}
		}
	}
	size := len(p.processes)
	p.mu.Unlock()

	if len(stale) > 0 {
		p.logger.Info("health check removed stale processes", zap.Strings("poolKeys", stale))
	}
	p.logger.Debug("health check", zap.Int("pool_size", size))
	p.publish("iris.pool.health", map[string]interface{}{"poolSize": size, "removed": len(stale)})
}

func (p *Pool) publish(subject string, payload map[string]interface{}) {
	if p.events == nil {
		return
	}
	p.events.Publish(subject, payload)
}

func teamTransportConfig(team *config.Team) transport.Config {
	timeout := time.Duration(team.SessionInitTimeout) * time.Millisecond
	return transport.Config{
		TeamName:           team.Name,
		WorkDir:            team.Path,
		Remote:             team.Remote,
		ClaudePath:         team.ClaudePath,
		SkipPermissions:    team.SkipPermissions,
		AllowedTools:       team.AllowedTools,
		DisallowedTools:    team.DisallowedTools,
		SessionInitTimeout: timeout,
	}
}
