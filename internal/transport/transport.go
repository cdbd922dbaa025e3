// Package transport implements the uniform handle over a local or
// SSH-remote agent subprocess: spawning it, writing framed JSON to its
// stdin, and demultiplexing newline-delimited JSON frames off its stdout
// into the Cache Entry that owns the current request.
package transport

import (
	"context"
	"time"

	"github.com/irisorch/iris/internal/cache"
)

// Status is the Transport's lifecycle state, as seen by the Process Pool.
type Status string

const (
	StatusStopped    Status = "STOPPED"
	StatusSpawning   Status = "SPAWNING"
	StatusIdle       Status = "IDLE"
	StatusProcessing Status = "PROCESSING"
	StatusTerminating Status = "TERMINATING"
)

// Metrics is the snapshot returned by GetMetrics.
type Metrics struct {
	Uptime            time.Duration
	MessagesProcessed int
	LastResponseAt    time.Time
}

// Config describes how to construct a Transport for one team.
type Config struct {
	TeamName           string
	WorkDir            string
	Remote             string // "ssh <opts> <host>" form; empty means local
	ClaudePath         string
	SkipPermissions    bool
	AllowedTools       []string
	DisallowedTools    []string
	SessionInitTimeout time.Duration
}

// Transport is the polymorphic handle over {local subprocess, remote
// subprocess via SSH}. Exactly one Transport backs one Process Pool key.
type Transport interface {
	// Spawn launches the agent, writes the spawn entry's tell string, and
	// resolves once the "system"/"init" frame arrives or timeout elapses.
	Spawn(ctx context.Context, sessionID string, entry *cache.Entry) error
	// ExecuteTell writes entry's tell string to a ready transport and moves
	// it to PROCESSING. It does not block for the reply.
	ExecuteTell(entry *cache.Entry) error
	// Terminate stops the subprocess, gracefully then forcefully. Idempotent.
	Terminate() error
	// Cancel delivers a best-effort interrupt byte to the agent's stdin.
	Cancel() error
	IsReady() bool
	IsBusy() bool
	GetMetrics() Metrics
	PID() int
	Status() Status
	SubscribeStatus() <-chan Status
	SubscribeErrors() <-chan error
}
