package transport

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// buildArgs assembles the agent invocation: the executable followed by
// --resume <sessionId>, --print, --verbose, the stream-json format flags,
// the optional skip-permissions flag, and optional allow/deny tool lists.
// NODE_ENV=test skips --resume so tests don't depend on a real session file.
func buildArgs(sessionID string, cfg Config) []string {
	claude := cfg.ClaudePath
	if claude == "" {
		claude = "claude"
	}
	args := []string{claude}
	if os.Getenv("NODE_ENV") != "test" {
		args = append(args, "--resume", sessionID)
	}
	args = append(args,
		"--print",
		"--verbose",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
	)
	if cfg.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if len(cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(cfg.AllowedTools, ","))
	}
	if len(cfg.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(cfg.DisallowedTools, ","))
	}
	return args
}

// shellQuote wraps s in single quotes, escaping any embedded single quote,
// so it survives a remote shell's word-splitting unharmed.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// buildCommand constructs the exec.Cmd to run for this invocation: directly
// in the team's directory for a local transport, or prefixed with the
// team's "ssh <opts> <host>" string (with the agent's argv shell-escaped)
// for a remote one.
func buildCommand(sessionID string, cfg Config) (*exec.Cmd, error) {
	args := buildArgs(sessionID, cfg)

	if cfg.Remote == "" {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = cfg.WorkDir
		setProcGroup(cmd)
		return cmd, nil
	}

	remoteParts := strings.Fields(cfg.Remote)
	if len(remoteParts) == 0 {
		return nil, fmt.Errorf("transport: empty remote spec")
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	remoteCmd := fmt.Sprintf("cd %s && %s", shellQuote(cfg.WorkDir), strings.Join(quoted, " "))

	sshArgs := append(append([]string{}, remoteParts[1:]...), remoteCmd)
	cmd := exec.Command(remoteParts[0], sshArgs...)
	setProcGroup(cmd)
	return cmd, nil
}
