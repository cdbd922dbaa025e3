package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisorch/iris/internal/cache"
	"github.com/irisorch/iris/internal/config"
	"github.com/irisorch/iris/internal/ierrors"
	"github.com/irisorch/iris/internal/logger"
	"github.com/irisorch/iris/internal/transport"
)

// fakeTransport is a scripted stand-in for a real agent subprocess, letting
// pool tests exercise LRU eviction and busy/idle transitions without
// spawning anything.
type fakeTransport struct {
	status transport.Status
	pid    int
}

func newFakeTransport(transport.Config, *logger.Logger) transport.Transport {
	return &fakeTransport{status: transport.StatusStopped}
}

func (f *fakeTransport) Spawn(ctx context.Context, sessionID string, entry *cache.Entry) error {
	f.status = transport.StatusIdle
	entry.Complete()
	return nil
}
func (f *fakeTransport) ExecuteTell(entry *cache.Entry) error {
	if f.status != transport.StatusIdle {
		return ierrors.ProcessBusy("fake")
	}
	f.status = transport.StatusProcessing
	return nil
}
func (f *fakeTransport) Terminate() error         { f.status = transport.StatusStopped; return nil }
func (f *fakeTransport) Cancel() error             { return nil }
func (f *fakeTransport) IsReady() bool             { return f.status == transport.StatusIdle }
func (f *fakeTransport) IsBusy() bool              { return f.status == transport.StatusProcessing }
func (f *fakeTransport) GetMetrics() transport.Metrics { return transport.Metrics{} }
func (f *fakeTransport) PID() int                  { return f.pid }
func (f *fakeTransport) Status() transport.Status  { return f.status }
func (f *fakeTransport) SubscribeStatus() <-chan transport.Status {
	ch := make(chan transport.Status, 1)
	ch <- f.status
	return ch
}
func (f *fakeTransport) SubscribeErrors() <-chan error { return make(chan error) }

func testPool(t *testing.T, maxProcesses int, teamNames ...string) *Pool {
	t.Helper()
	teams := make(map[string]*config.Team)
	for _, name := range teamNames {
		teams[name] = &config.Team{Name: name, Path: t.TempDir()}
	}
	log, err := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	p := New(teams, maxProcesses, cache.NewManager(), nil, log)
	p.newTransport = newFakeTransport
	return p
}

func TestGetOrCreateProcessReusesExisting(t *testing.T) {
	p := testPool(t, 2, "alpha")
	ctx := context.Background()

	first, err := p.GetOrCreateProcess(ctx, "alpha", "sess-1", "external")
	require.NoError(t, err)

	second, err := p.GetOrCreateProcess(ctx, "alpha", "sess-1", "external")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, p.Size())
}

func TestGetOrCreateProcessRejectsUnknownTeam(t *testing.T) {
	p := testPool(t, 2, "alpha")
	_, err := p.GetOrCreateProcess(context.Background(), "ghost", "sess-1", "external")
	require.Error(t, err)
	assert.True(t, ierrors.Is(err, ierrors.KindTeamNotFound))
}

func TestEvictionPrefersIdleOverBusy(t *testing.T) {
	p := testPool(t, 2, "alpha", "beta", "gamma")
	ctx := context.Background()

	_, err := p.GetOrCreateProcess(ctx, "alpha", "sess-alpha", "external")
	require.NoError(t, err)
	_, err = p.GetOrCreateProcess(ctx, "beta", "sess-beta", "external")
	require.NoError(t, err)

	// Mark alpha busy so eviction must skip it in favor of idle beta.
	alphaTr, _ := p.GetTransport("external", "alpha")
	require.NoError(t, alphaTr.ExecuteTell(cache.NewEntry(cache.KindTell, "hi")))

	_, err = p.GetOrCreateProcess(ctx, "gamma", "sess-gamma", "external")
	require.NoError(t, err)

	assert.Equal(t, 2, p.Size())
	_, stillHasAlpha := p.GetTransport("external", "alpha")
	assert.True(t, stillHasAlpha, "busy transport must survive eviction")
	_, hasBeta := p.GetTransport("external", "beta")
	assert.False(t, hasBeta, "idle transport should have been evicted")
}

func TestSendMessageReturnsEntryEvenOnBusyError(t *testing.T) {
	p := testPool(t, 2, "alpha")
	ctx := context.Background()

	_, err := p.GetOrCreateProcess(ctx, "alpha", "sess-1", "external")
	require.NoError(t, err)

	tr, _ := p.GetTransport("external", "alpha")
	require.NoError(t, tr.ExecuteTell(cache.NewEntry(cache.KindTell, "first")))

	entry, err := p.SendMessage(ctx, "alpha", "sess-1", "second", "external")
	require.Error(t, err)
	assert.True(t, ierrors.Is(err, ierrors.KindProcessBusy))
	assert.NotNil(t, entry)
}

func TestTerminateProcessRemovesFromPool(t *testing.T) {
	p := testPool(t, 2, "alpha")
	ctx := context.Background()
	_, err := p.GetOrCreateProcess(ctx, "alpha", "sess-1", "external")
	require.NoError(t, err)

	require.NoError(t, p.TerminateProcess(PoolKey("external", "alpha")))
	assert.Equal(t, 0, p.Size())
}

func TestPoolKeyDefaultsEmptyFromTeamToExternal(t *testing.T) {
	assert.Equal(t, "external->beta", PoolKey("", "beta"))
	assert.Equal(t, "alpha->beta", PoolKey("alpha", "beta"))
}
