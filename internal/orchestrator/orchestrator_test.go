package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisorch/iris/internal/cache"
	"github.com/irisorch/iris/internal/config"
	"github.com/irisorch/iris/internal/eventbus"
	"github.com/irisorch/iris/internal/ierrors"
	"github.com/irisorch/iris/internal/logger"
	"github.com/irisorch/iris/internal/pool"
	"github.com/irisorch/iris/internal/sessionmgr"
	"github.com/irisorch/iris/internal/sessionstore"
	"github.com/irisorch/iris/internal/transport"
	"github.com/irisorch/iris/pkg/protocol"
)

// scriptedTransport is a fake Transport whose replies are driven entirely by
// the test: Spawn always succeeds immediately, and ExecuteTell's outcome is
// controlled by the reply function installed on it.
type scriptedTransport struct {
	status transport.Status
	reply  func(entry *cache.Entry)
}

func (s *scriptedTransport) Spawn(ctx context.Context, sessionID string, entry *cache.Entry) error {
	s.status = transport.StatusIdle
	entry.Complete()
	return nil
}

func (s *scriptedTransport) ExecuteTell(entry *cache.Entry) error {
	if s.status != transport.StatusIdle {
		return ierrors.ProcessBusy("fake")
	}
	s.status = transport.StatusProcessing
	if s.reply != nil {
		go s.reply(entry)
	}
	return nil
}

func (s *scriptedTransport) Terminate() error        { s.status = transport.StatusStopped; return nil }
func (s *scriptedTransport) Cancel() error            { return nil }
func (s *scriptedTransport) IsReady() bool            { return s.status == transport.StatusIdle }
func (s *scriptedTransport) IsBusy() bool             { return s.status == transport.StatusProcessing }
func (s *scriptedTransport) GetMetrics() transport.Metrics { return transport.Metrics{} }
func (s *scriptedTransport) PID() int                 { return 1 }
func (s *scriptedTransport) Status() transport.Status { return s.status }
func (s *scriptedTransport) SubscribeStatus() <-chan transport.Status {
	ch := make(chan transport.Status, 1)
	ch <- s.status
	return ch
}
func (s *scriptedTransport) SubscribeErrors() <-chan error { return make(chan error) }

// repliesWithResult installs a reply function that finishes the entry with a
// result frame shortly after the tell is sent.
func repliesWithResult(text string) func(entry *cache.Entry) {
	return func(entry *cache.Entry) {
		time.Sleep(5 * time.Millisecond)
		data, _ := json.Marshal(map[string]string{"result": text})
		entry.AddMessage(protocol.Frame{Type: protocol.FrameResult, Data: data})
	}
}

// neverReplies installs no reply function, leaving the entry ACTIVE forever
// so a caller's timeout must fire.
func neverReplies() func(entry *cache.Entry) { return nil }

type testHarness struct {
	orch  *Orchestrator
	pool  *pool.Pool
	teams map[string]*config.Team
}

func newHarness(t *testing.T, reply func(entry *cache.Entry)) *testHarness {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	teams := map[string]*config.Team{
		"alpha": {Name: "alpha", Path: t.TempDir()},
	}

	store, err := sessionstore.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sessions := sessionmgr.New(store, teams, eventbus.NoOp{}, log)
	sessions.SetPing(func(context.Context, transport.Config, string) error { return nil })

	cacheMgr := cache.NewManager()
	p := pool.New(teams, 5, cacheMgr, eventbus.NoOp{}, log)
	p.SetTransportFactory(func(transport.Config, *logger.Logger) transport.Transport {
		return &scriptedTransport{status: transport.StatusStopped, reply: reply}
	})

	orch := New(teams, sessions, p, cacheMgr, eventbus.NoOp{}, 16, log)
	t.Cleanup(orch.Close)

	return &testHarness{orch: orch, pool: p, teams: teams}
}

func TestTellSyncReturnsResultText(t *testing.T) {
	h := newHarness(t, repliesWithResult("pong"))

	result, err := h.orch.Tell(context.Background(), "external", "alpha", "ping", DefaultTellOptions())
	require.NoError(t, err)
	assert.False(t, result.Async)
	assert.False(t, result.Busy)
	assert.Equal(t, "pong", result.Text)
}

func TestTellWithTimeoutMinusOneIsAsync(t *testing.T) {
	h := newHarness(t, repliesWithResult("pong"))

	opts := DefaultTellOptions()
	opts.Timeout = -1
	result, err := h.orch.Tell(context.Background(), "external", "alpha", "ping", opts)
	require.NoError(t, err)
	assert.True(t, result.Async)
	assert.NotEmpty(t, result.TaskID)
}

func TestTellRejectsUnknownTeam(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Tell(context.Background(), "external", "ghost", "ping", DefaultTellOptions())
	require.Error(t, err)
	assert.True(t, ierrors.Is(err, ierrors.KindTeamNotFound))
}

func TestTellTimesOutWhenNoResultFrameArrives(t *testing.T) {
	h := newHarness(t, neverReplies())

	opts := DefaultTellOptions()
	opts.Timeout = 20
	_, err := h.orch.Tell(context.Background(), "external", "alpha", "ping", opts)
	require.Error(t, err)
	assert.True(t, ierrors.Is(err, ierrors.KindResponseTimeout))
}

func TestTellReportsBusyWithoutError(t *testing.T) {
	h := newHarness(t, neverReplies())

	// First tell occupies the only transport, never completing.
	go func() {
		opts := DefaultTellOptions()
		opts.Timeout = 200
		_, _ = h.orch.Tell(context.Background(), "external", "alpha", "first", opts)
	}()
	time.Sleep(20 * time.Millisecond)

	result, err := h.orch.Tell(context.Background(), "external", "alpha", "second", DefaultTellOptions())
	require.NoError(t, err)
	assert.True(t, result.Busy)
}

func TestWakeThenTeamsReportsAwake(t *testing.T) {
	h := newHarness(t, repliesWithResult("pong"))

	require.NoError(t, h.orch.Wake(context.Background(), []string{"alpha"}))

	statuses := h.orch.Teams()
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Awake)
}

func TestSleepIsIdempotent(t *testing.T) {
	h := newHarness(t, repliesWithResult("pong"))

	first, err := h.orch.Sleep("alpha", false, false)
	require.NoError(t, err)
	assert.True(t, first.AlreadyAsleep)
}

func TestWakeThenSleepRoundTrip(t *testing.T) {
	h := newHarness(t, repliesWithResult("pong"))

	require.NoError(t, h.orch.Wake(context.Background(), []string{"alpha"}))
	result, err := h.orch.Sleep("alpha", false, true)
	require.NoError(t, err)
	assert.False(t, result.AlreadyAsleep)
	assert.False(t, h.orch.IsAwake("external", "alpha"))
}

func TestRebootAllocatesFreshSession(t *testing.T) {
	h := newHarness(t, repliesWithResult("pong"))

	first, err := h.orch.Tell(context.Background(), "external", "alpha", "hi", DefaultTellOptions())
	require.NoError(t, err)
	assert.Equal(t, "pong", first.Text)

	newSession, err := h.orch.Reboot(context.Background(), "external", "alpha")
	require.NoError(t, err)
	assert.NotEmpty(t, newSession.SessionID)
	assert.Equal(t, 0, newSession.MessageCount)
}

func TestCancelReportsNotFoundForUnwokenTeam(t *testing.T) {
	h := newHarness(t, nil)
	found, err := h.orch.Cancel("external", "alpha")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReportAggregatesPoolAndStoreStats(t *testing.T) {
	h := newHarness(t, repliesWithResult("pong"))
	require.NoError(t, h.orch.Wake(context.Background(), []string{"alpha"}))

	report, err := h.orch.Report()
	require.NoError(t, err)
	assert.Equal(t, 1, report.PoolSize)
	assert.GreaterOrEqual(t, report.TotalSessions, 1)
}
