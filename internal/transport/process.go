package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/irisorch/iris/internal/cache"
	"github.com/irisorch/iris/internal/ierrors"
	"github.com/irisorch/iris/internal/logger"
	"github.com/irisorch/iris/pkg/protocol"
)

const (
	terminateGrace   = 5 * time.Second
	stdoutSoftLimit  = 5 * 1024 * 1024
	stdoutInitialBuf = 64 * 1024
)

// processTransport is the concrete Transport: one live exec.Cmd, local or
// SSH-wrapped depending on how buildCommand constructed it, with a reader
// goroutine demultiplexing stdout frames into the active Cache Entry.
type processTransport struct {
	cfg    Config
	logger *logger.Logger

	mu          sync.Mutex
	status      Status
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	startedAt   time.Time
	pid         int
	activeEntry *cache.Entry

	messagesProcessed int
	lastResponseAt    time.Time

	statusSubs map[int]chan Status
	errSubs    map[int]chan error
	nextSubID  int

	opMu sync.Mutex // serializes Spawn/ExecuteTell/Terminate
}

// New constructs a Transport for the given team configuration. The local-vs-
// remote variant is selected once, at construction, from cfg.Remote.
func New(cfg Config, log *logger.Logger) Transport {
	return &processTransport{
		cfg:        cfg,
		logger:     log.WithFields(zap.String("component", "transport"), zap.String("team", cfg.TeamName)),
		status:     StatusStopped,
		statusSubs: make(map[int]chan Status),
		errSubs:    make(map[int]chan error),
	}
}

func (t *processTransport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *processTransport) IsReady() bool { return t.Status() == StatusIdle }
func (t *processTransport) IsBusy() bool  { return t.Status() == StatusProcessing }

func (t *processTransport) PID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pid
}

func (t *processTransport) GetMetrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	var uptime time.Duration
	if !t.startedAt.IsZero() {
		uptime = time.Since(t.startedAt)
	}
	return Metrics{
		Uptime:            uptime,
		MessagesProcessed: t.messagesProcessed,
		LastResponseAt:    t.lastResponseAt,
	}
}

func (t *processTransport) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	subs := make([]chan Status, 0, len(t.statusSubs))
	for _, ch := range t.statusSubs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (t *processTransport) SubscribeStatus() <-chan Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan Status, 4)
	ch <- t.status
	id := t.nextSubID
	t.nextSubID++
	t.statusSubs[id] = ch
	return ch
}

func (t *processTransport) SubscribeErrors() <-chan error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan error, 4)
	id := t.nextSubID
	t.nextSubID++
	t.errSubs[id] = ch
	return ch
}

func (t *processTransport) publishError(err error) {
	t.mu.Lock()
	subs := make([]chan error, 0, len(t.errSubs))
	for _, ch := range t.errSubs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- err:
		default:
		}
	}
}

// Spawn launches the subprocess, writes the spawn entry's tell string, and
// waits for the init frame or timeout.
func (t *processTransport) Spawn(ctx context.Context, sessionID string, entry *cache.Entry) error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.setStatus(StatusSpawning)

	cmd, err := buildCommand(sessionID, t.cfg)
	if err != nil {
		t.setStatus(StatusStopped)
		return ierrors.Transport("failed to build agent command", err)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.setStatus(StatusStopped)
		return ierrors.Transport("failed to create stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.setStatus(StatusStopped)
		return ierrors.Transport("failed to create stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.setStatus(StatusStopped)
		return ierrors.Transport("failed to create stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		t.setStatus(StatusStopped)
		return ierrors.Transport("failed to start agent process", err)
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.startedAt = time.Now().UTC()
	t.pid = cmd.Process.Pid
	t.activeEntry = entry
	t.mu.Unlock()

	initCh := make(chan struct{}, 1)
	go t.readStdout(stdout, initCh)
	go t.readStderr(stderr)
	go t.waitForExit()

	tell, err := protocol.EncodeTell(entry.TellString)
	if err != nil {
		t.setStatus(StatusStopped)
		return ierrors.Transport("failed to encode spawn tell", err)
	}
	if _, err := stdin.Write(tell); err != nil {
		t.setStatus(StatusStopped)
		return ierrors.Transport("failed to write spawn tell", err)
	}

	timeout := t.cfg.SessionInitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-initCh:
		t.setStatus(StatusIdle)
		return nil
	case <-time.After(timeout):
		t.logger.Warn("init timeout waiting for agent handshake")
		return ierrors.InitTimeout(t.cfg.TeamName)
	case <-ctx.Done():
		return ierrors.Transport("spawn canceled", ctx.Err())
	}
}

// ExecuteTell requires the transport be IDLE; it writes the framed tell and
// moves to PROCESSING. The entry is completed asynchronously by readStdout
// when a result frame arrives.
func (t *processTransport) ExecuteTell(entry *cache.Entry) error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	if t.Status() != StatusIdle {
		return ierrors.ProcessBusy(t.cfg.TeamName)
	}

	t.mu.Lock()
	stdin := t.stdin
	t.activeEntry = entry
	t.mu.Unlock()

	frame, err := protocol.EncodeTell(entry.TellString)
	if err != nil {
		return ierrors.Transport("failed to encode tell", err)
	}

	t.setStatus(StatusProcessing)
	if _, err := stdin.Write(frame); err != nil {
		t.setStatus(StatusIdle)
		return ierrors.Transport("failed to write tell", err)
	}
	return nil
}

// Cancel writes a single ASCII-27 (ESC) byte to the agent's stdin, per the
// documented best-effort interrupt convention.
func (t *processTransport) Cancel() error {
	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return ierrors.Transport("cannot cancel a transport with no stdin", nil)
	}
	_, err := stdin.Write([]byte{27})
	return err
}

// Terminate stops the subprocess gracefully, then forcefully after a grace
// period. It is idempotent.
func (t *processTransport) Terminate() error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	if t.Status() == StatusStopped {
		return nil
	}
	t.setStatus(StatusTerminating)

	t.mu.Lock()
	cmd := t.cmd
	pid := t.pid
	t.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		t.setStatus(StatusStopped)
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	_ = terminateProcessGroup(pid)
	select {
	case <-done:
	case <-time.After(terminateGrace):
		_ = killProcessGroup(pid)
		<-done
	}

	t.setStatus(StatusStopped)
	return nil
}

func (t *processTransport) waitForExit() {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd == nil {
		return
	}
	err := cmd.Wait()
	if t.Status() == StatusTerminating || t.Status() == StatusStopped {
		return
	}
	wasProcessing := t.Status() == StatusProcessing
	t.setStatus(StatusStopped)
	if wasProcessing {
		t.mu.Lock()
		entry := t.activeEntry
		t.mu.Unlock()
		if entry != nil {
			entry.Terminate(cache.ReasonProcessCrashed)
		}
	}
	t.publishError(ierrors.ProcessCrashed(t.cfg.TeamName, err))
}

// readStdout splits the agent's output on newlines, json-decodes each
// complete line, and appends successfully parsed frames to the active Cache
// Entry. Unparseable lines are logged at debug and dropped, per contract.
func (t *processTransport) readStdout(stdout io.ReadCloser, initCh chan<- struct{}) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, stdoutInitialBuf), stdoutSoftLimit)

	initSent := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		frame, err := protocol.ParseFrame(line)
		if err != nil {
			t.logger.Debug("unparseable agent output line", zap.ByteString("line", line))
			continue
		}
		t.handleFrame(frame, initCh, &initSent)
	}
}

func (t *processTransport) handleFrame(frame protocol.Frame, initCh chan<- struct{}, initSent *bool) {
	t.mu.Lock()
	entry := t.activeEntry
	t.mu.Unlock()
	if entry != nil {
		entry.AddMessage(frame)
	}

	if frame.IsInitFrame() && !*initSent {
		*initSent = true
		select {
		case initCh <- struct{}{}:
		default:
		}
	}

	if frame.Type == protocol.FrameResult {
		t.mu.Lock()
		t.messagesProcessed++
		t.lastResponseAt = time.Now().UTC()
		wasProcessing := t.status == StatusProcessing
		t.mu.Unlock()
		if wasProcessing {
			t.setStatus(StatusIdle)
		}
	}
}

func (t *processTransport) readStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, stdoutInitialBuf), stdoutSoftLimit)
	for scanner.Scan() {
		t.logger.Debug("agent stderr", zap.String("line", scanner.Text()))
	}
}
