// Package pathutil implements the pure path-escaping and validation helpers
// shared by every component that touches team paths, team names, or session
// identifiers.
package pathutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/irisorch/iris/internal/ierrors"
)

var (
	teamNameRe = regexp.MustCompile(`^[A-Za-z0-9_\-@.]+$`)
	uuidV4Re   = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

	sensitivePrefixes = []string{"/etc/", "/usr/bin/", "/.ssh/", "/sys/", "/proc/"}
)

// EscapeProjectPath converts an absolute filesystem path into the flattened
// directory-name form the agent uses under its home, e.g. "/a/b/c" -> "-a-b-c".
func EscapeProjectPath(projectPath string) (string, error) {
	if !filepath.IsAbs(projectPath) {
		return "", ierrors.Validation("projectPath", "must be an absolute path")
	}
	return strings.ReplaceAll(projectPath, string(filepath.Separator), "-"), nil
}

// SessionFilePath returns the on-disk path of a session's transcript file,
// <agentHome>/projects/<escaped>/<sessionId>.jsonl.
func SessionFilePath(agentHome, projectPath, sessionID string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	escaped, err := EscapeProjectPath(projectPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(agentHome, "projects", escaped, sessionID+".jsonl"), nil
}

// ValidateTeamName enforces the team-name constraints: non-empty, <=100
// characters, matching [A-Za-z0-9_\-@.]+, and free of path separators.
func ValidateTeamName(name string) error {
	if name == "" {
		return ierrors.Validation("teamName", "must not be empty")
	}
	if len(name) > 100 {
		return ierrors.Validation("teamName", "must be at most 100 characters")
	}
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return ierrors.Validation("teamName", "must not contain path separators or \"..\"")
	}
	if !teamNameRe.MatchString(name) {
		return ierrors.Validation("teamName", "must match [A-Za-z0-9_\\-@.]+")
	}
	return nil
}

// ValidateSessionID enforces that sessionID is a canonical UUID v4.
func ValidateSessionID(sessionID string) error {
	if !uuidV4Re.MatchString(strings.ToLower(sessionID)) {
		return ierrors.Validation("sessionId", "must be a canonical UUID v4")
	}
	return nil
}

// ValidateProjectPath enforces that path is absolute, contains no ".."
// segment, resolves to a readable directory on the filesystem, and does not
// fall under a system-sensitive prefix.
func ValidateProjectPath(path string) error {
	if !filepath.IsAbs(path) {
		return ierrors.Validation("path", "must be an absolute path")
	}
	for _, seg := range strings.Split(path, string(filepath.Separator)) {
		if seg == ".." {
			return ierrors.Validation("path", "must not contain \"..\" segments")
		}
	}
	for _, prefix := range sensitivePrefixes {
		if strings.HasPrefix(path, prefix) {
			return ierrors.Validation("path", "must not fall under a system-sensitive prefix")
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return ierrors.Validation("path", "must resolve on the filesystem")
	}
	if !info.IsDir() {
		return ierrors.Validation("path", "must be a directory")
	}
	f, err := os.Open(path)
	if err != nil {
		return ierrors.Validation("path", "must be readable")
	}
	_ = f.Close()
	return nil
}

// ValidateTimeout enforces the documented timeout bounds. -1 (async mode) and
// 0 (no bound) are always valid; positive values must not exceed one hour.
func ValidateTimeout(timeoutMs int) error {
	if timeoutMs == -1 || timeoutMs == 0 {
		return nil
	}
	if timeoutMs < 0 || timeoutMs > 3_600_000 {
		return ierrors.Validation("timeout", "must be -1, 0, or between 1 and 3600000 ms")
	}
	return nil
}
