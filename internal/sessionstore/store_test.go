package sessionstore

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisorch/iris/internal/ierrors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetByTeamPair(t *testing.T) {
	store := openTestStore(t)
	sessionID := uuid.New().String()

	sess, err := store.Create("alpha", "beta", sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, sess.SessionID)
	assert.Equal(t, StatusActive, sess.Status)

	found, err := store.GetByTeamPair("alpha", "beta")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, sessionID, found.SessionID)
}

func TestCreateRejectsDuplicateTeamPair(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Create("alpha", "beta", uuid.New().String())
	require.NoError(t, err)

	_, err = store.Create("alpha", "beta", uuid.New().String())
	require.Error(t, err)
	assert.True(t, ierrors.Is(err, ierrors.KindValidation))
}

func TestCreateRejectsDuplicateSessionID(t *testing.T) {
	store := openTestStore(t)
	sessionID := uuid.New().String()
	_, err := store.Create("alpha", "beta", sessionID)
	require.NoError(t, err)

	_, err = store.Create("alpha", "gamma", sessionID)
	require.Error(t, err)
}

func TestGetByTeamPairExcludesArchived(t *testing.T) {
	store := openTestStore(t)
	sessionID := uuid.New().String()
	_, err := store.Create("alpha", "beta", sessionID)
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(sessionID, StatusArchived))

	found, err := store.GetByTeamPair("alpha", "beta")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRebootCanRecreateAfterDeletion(t *testing.T) {
	store := openTestStore(t)
	first := uuid.New().String()
	_, err := store.Create("alpha", "beta", first)
	require.NoError(t, err)
	require.NoError(t, store.Delete(first))

	second := uuid.New().String()
	sess, err := store.Create("alpha", "beta", second)
	require.NoError(t, err)
	assert.Equal(t, second, sess.SessionID)
}

func TestIncrementMessageCountAndStats(t *testing.T) {
	store := openTestStore(t)
	sessionID := uuid.New().String()
	_, err := store.Create("alpha", "beta", sessionID)
	require.NoError(t, err)

	require.NoError(t, store.IncrementMessageCount(sessionID, 3))

	found, err := store.GetBySessionId(sessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, found.MessageCount)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 3, stats.TotalMessages)
}

func TestListFiltersByFromToAndStatus(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Create("alpha", "beta", uuid.New().String())
	require.NoError(t, err)
	_, err = store.Create("alpha", "gamma", uuid.New().String())
	require.NoError(t, err)

	sessions, err := store.List(Filters{FromTeam: "alpha", ToTeam: "beta"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "beta", sessions[0].ToTeam)

	all, err := store.List(Filters{FromTeam: "alpha"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
