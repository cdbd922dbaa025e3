package transport

import (
	"context"

	"github.com/irisorch/iris/internal/ierrors"
	"github.com/irisorch/iris/pkg/protocol"
)

// Ping runs the agent to completion in --print mode against a freshly
// allocated session id, forcing the agent to create its own on-disk session
// file. It is used only by the Session Manager when establishing a new
// session; the long-lived Process Pool transport is a separate invocation.
func Ping(ctx context.Context, cfg Config, sessionID string) error {
	return runOnce(ctx, cfg, sessionID, "ping")
}

// Compact runs a one-shot "/compact" command against an existing session in
// --print mode, used by the Orchestrator's compact operation.
func Compact(ctx context.Context, cfg Config, sessionID string) error {
	return runOnce(ctx, cfg, sessionID, "/compact")
}

// runOnce spawns a short-lived agent invocation, writes a single tell frame
// to its stdin, and waits for it to exit.
func runOnce(ctx context.Context, cfg Config, sessionID, content string) error {
	cmd, err := buildCommand(sessionID, cfg)
	if err != nil {
		return ierrors.Transport("failed to build one-shot command", err)
	}

	frame, err := protocol.EncodeTell(content)
	if err != nil {
		return ierrors.Transport("failed to encode one-shot tell frame", err)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return ierrors.Transport("failed to attach one-shot stdin", err)
	}
	go func() {
		defer stdin.Close()
		_, _ = stdin.Write(frame)
	}()

	if err := cmd.Start(); err != nil {
		return ierrors.Transport("failed to start one-shot invocation", err)
	}
	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		if err != nil {
			return ierrors.Transport("agent one-shot invocation failed", err)
		}
		return nil
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-waitErr
		return ierrors.Transport("agent one-shot invocation canceled", ctx.Err())
	}
}
