// Package eventbus publishes orchestrator lifecycle events — process
// spawned/evicted/crashed, session created/rebooted — onto a NATS subject
// space, degrading to a no-op when no broker URL is configured.
package eventbus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/irisorch/iris/internal/logger"
)

// Subjects used across the orchestrator. Handlers outside this module
// (a dashboard, an MCP bridge) subscribe to these directly against NATS.
const (
	SubjectProcessSpawned  = "iris.process.spawned"
	SubjectProcessEvicted  = "iris.process.evicted"
	SubjectProcessCrashed  = "iris.process.crashed"
	SubjectSessionCreated  = "iris.session.created"
	SubjectSessionRebooted = "iris.session.rebooted"
)

// Bus is the narrow publish interface the rest of the orchestrator depends
// on; both the NATS-backed and no-op implementations satisfy it.
type Bus interface {
	Publish(subject string, payload map[string]interface{})
	Close()
}

// natsBus publishes JSON-encoded payloads onto a live NATS connection.
type natsBus struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// Connect dials the given NATS URL. An empty url yields a no-op bus instead
// of an error, since the event bus is an optional collaborator.
func Connect(url string, log *logger.Logger) Bus {
	l := log.WithFields(zap.String("component", "event-bus"))
	if url == "" {
		l.Info("event bus disabled: no NATS url configured")
		return NoOp{}
	}

	conn, err := nats.Connect(url, nats.Timeout(5*time.Second), nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		l.Warn("failed to connect to NATS, falling back to no-op event bus", zap.String("url", url), zap.Error(err))
		return NoOp{}
	}
	l.Info("connected to NATS", zap.String("url", url))
	return &natsBus{conn: conn, logger: l}
}

func (b *natsBus) Publish(subject string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("failed to marshal event payload", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func (b *natsBus) Close() {
	b.conn.Close()
}

// NoOp is the degraded Bus used when no broker is configured or reachable.
type NoOp struct{}

func (NoOp) Publish(string, map[string]interface{}) {}
func (NoOp) Close()                                 {}
