package transport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/irisorch/iris/pkg/protocol"
)

// writeCaptureScript writes a shell script that behaves like a one-shot
// agent invocation: it ignores its argv and copies whatever it receives on
// stdin into a sibling "captured.jsonl" file, then exits cleanly.
func writeCaptureScript(t *testing.T) (scriptPath, capturedPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("capture script is a POSIX shell script")
	}
	dir := t.TempDir()
	scriptPath = filepath.Join(dir, "fake-agent.sh")
	capturedPath = filepath.Join(dir, "captured.jsonl")
	script := "#!/bin/sh\ncat > " + shellQuote(capturedPath) + "\n"
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))
	return scriptPath, capturedPath
}

// TestRunOnceWritesWireFormatTellFrame asserts that the one-shot invocation
// path (used by both Ping and Compact) writes a properly framed tell, not
// raw text, to the agent's stdin: the bytes it writes must round-trip
// through protocol.ParseFrame exactly like the long-lived transport's
// ExecuteTell path does.
func TestRunOnceWritesWireFormatTellFrame(t *testing.T) {
	script, captured := writeCaptureScript(t)

	cfg := Config{ClaudePath: script}
	require.NoError(t, os.Setenv("NODE_ENV", "test"))
	t.Cleanup(func() { _ = os.Unsetenv("NODE_ENV") })

	require.NoError(t, Ping(context.Background(), cfg, "session-123"))

	raw, err := os.ReadFile(captured)
	require.NoError(t, err)

	frame, err := protocol.ParseFrame(raw)
	require.NoError(t, err)
	require.Equal(t, protocol.FrameUser, frame.Type)

	var decoded struct {
		Message struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(frame.Data, &decoded))
	require.Equal(t, "user", decoded.Message.Role)
	require.Len(t, decoded.Message.Content, 1)
	require.Equal(t, "text", decoded.Message.Content[0].Type)
	require.Equal(t, "ping", decoded.Message.Content[0].Text)
}

// TestRunOnceCompactWritesSlashCompactAsTellText covers the Compact path,
// which sends the literal "/compact" as the tell text rather than "ping".
func TestRunOnceCompactWritesSlashCompactAsTellText(t *testing.T) {
	script, captured := writeCaptureScript(t)

	cfg := Config{ClaudePath: script}
	require.NoError(t, os.Setenv("NODE_ENV", "test"))
	t.Cleanup(func() { _ = os.Unsetenv("NODE_ENV") })

	require.NoError(t, Compact(context.Background(), cfg, "session-456"))

	raw, err := os.ReadFile(captured)
	require.NoError(t, err)

	want, err := protocol.EncodeTell("/compact")
	require.NoError(t, err)
	require.Equal(t, want, raw)
}
