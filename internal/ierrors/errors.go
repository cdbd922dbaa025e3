// Package ierrors provides the uniform error kinds raised across the orchestrator core.
package ierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the documented error categories.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindTeamNotFound     Kind = "TEAM_NOT_FOUND"
	KindSessionNotFound  Kind = "SESSION_NOT_FOUND"
	KindProcessBusy      Kind = "PROCESS_BUSY"
	KindProcessPoolLimit Kind = "PROCESS_POOL_LIMIT"
	KindInitTimeout      Kind = "INIT_TIMEOUT"
	KindResponseTimeout  Kind = "RESPONSE_TIMEOUT"
	KindProcessCrashed   Kind = "PROCESS_CRASHED"
	KindConfiguration    Kind = "CONFIGURATION"
	KindTransport        Kind = "TRANSPORT"
	KindQueueFull        Kind = "QUEUE_FULL"
)

var httpStatusByKind = map[Kind]int{
	KindValidation:       http.StatusBadRequest,
	KindTeamNotFound:     http.StatusNotFound,
	KindSessionNotFound:  http.StatusNotFound,
	KindProcessBusy:      http.StatusConflict,
	KindProcessPoolLimit: http.StatusServiceUnavailable,
	KindInitTimeout:      http.StatusGatewayTimeout,
	KindResponseTimeout:  http.StatusGatewayTimeout,
	KindProcessCrashed:   http.StatusBadGateway,
	KindConfiguration:    http.StatusInternalServerError,
	KindTransport:        http.StatusBadGateway,
	KindQueueFull:        http.StatusServiceUnavailable,
}

// OrchestratorError is the typed error raised by every core component.
type OrchestratorError struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *OrchestratorError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *OrchestratorError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP-equivalent status for this error's kind.
func (e *OrchestratorError) HTTPStatus() int {
	if s, ok := httpStatusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *OrchestratorError {
	return &OrchestratorError{Kind: kind, Message: message}
}

func Validation(field, message string) *OrchestratorError {
	return &OrchestratorError{Kind: KindValidation, Message: message, Field: field}
}

func TeamNotFound(name string) *OrchestratorError {
	return &OrchestratorError{Kind: KindTeamNotFound, Message: fmt.Sprintf("team %q is not configured", name)}
}

func SessionNotFound(ref string) *OrchestratorError {
	return &OrchestratorError{Kind: KindSessionNotFound, Message: fmt.Sprintf("no session for %q", ref)}
}

func ProcessBusy(poolKey string) *OrchestratorError {
	return &OrchestratorError{Kind: KindProcessBusy, Message: fmt.Sprintf("process %q is already processing a tell", poolKey)}
}

func ProcessPoolLimit(max int) *OrchestratorError {
	return &OrchestratorError{Kind: KindProcessPoolLimit, Message: fmt.Sprintf("pool is at capacity (%d) and no process is evictable", max)}
}

func InitTimeout(poolKey string) *OrchestratorError {
	return &OrchestratorError{Kind: KindInitTimeout, Message: fmt.Sprintf("agent for %q did not emit init in time", poolKey)}
}

func ResponseTimeout(poolKey string) *OrchestratorError {
	return &OrchestratorError{Kind: KindResponseTimeout, Message: fmt.Sprintf("no result frame for %q before timeout", poolKey)}
}

func ProcessCrashed(poolKey string, err error) *OrchestratorError {
	return &OrchestratorError{Kind: KindProcessCrashed, Message: fmt.Sprintf("process %q exited unexpectedly", poolKey), Err: err}
}

func Configuration(message string) *OrchestratorError {
	return &OrchestratorError{Kind: KindConfiguration, Message: message}
}

func Transport(message string, err error) *OrchestratorError {
	return &OrchestratorError{Kind: KindTransport, Message: message, Err: err}
}

func QueueFull(depth int) *OrchestratorError {
	return &OrchestratorError{Kind: KindQueueFull, Message: fmt.Sprintf("async queue is at capacity (%d)", depth)}
}

// Wrap preserves the kind of an existing OrchestratorError, or wraps a plain
// error as a Transport failure.
func Wrap(err error, message string) *OrchestratorError {
	if err == nil {
		return nil
	}
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		return &OrchestratorError{Kind: oe.Kind, Message: fmt.Sprintf("%s: %s", message, oe.Message), Field: oe.Field, Err: err}
	}
	return &OrchestratorError{Kind: KindTransport, Message: message, Err: err}
}

// Is reports whether err is an OrchestratorError of the given kind.
func Is(err error, kind Kind) bool {
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}

// HTTPStatusOf returns the HTTP-equivalent status for any error.
func HTTPStatusOf(err error) int {
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		return oe.HTTPStatus()
	}
	return http.StatusInternalServerError
}
