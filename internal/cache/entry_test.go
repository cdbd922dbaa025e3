package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisorch/iris/pkg/protocol"
)

func resultFrame() protocol.Frame {
	return protocol.Frame{Type: protocol.FrameResult, Data: json.RawMessage(`{"result":"done"}`)}
}

func TestNewEntryStartsActive(t *testing.T) {
	e := NewEntry(KindTell, "hello")
	assert.Equal(t, StatusActive, e.Status())
	assert.Empty(t, e.Messages())
}

func TestAddMessageCompletesOnResultFrame(t *testing.T) {
	e := NewEntry(KindTell, "hello")
	e.AddMessage(resultFrame())
	assert.Equal(t, StatusCompleted, e.Status())
	assert.Len(t, e.Messages(), 1)
}

func TestAddMessageIsNoOpAfterTermination(t *testing.T) {
	e := NewEntry(KindTell, "hello")
	e.Terminate(ReasonManualTermination)
	e.AddMessage(protocol.Frame{Type: protocol.FrameAssistant})
	assert.Empty(t, e.Messages())
}

func TestTerminateIsIdempotent(t *testing.T) {
	e := NewEntry(KindTell, "hello")
	e.Terminate(ReasonResponseTimeout)
	e.Terminate(ReasonProcessCrashed)
	assert.Equal(t, ReasonResponseTimeout, e.Reason)
}

func TestSubscribeMessagesReplaysHistoryThenLive(t *testing.T) {
	e := NewEntry(KindTell, "hello")
	e.AddMessage(protocol.Frame{Type: protocol.FrameSystem})

	ch := e.SubscribeMessages()

	select {
	case f := <-ch:
		assert.Equal(t, protocol.FrameSystem, f.Type)
	case <-time.After(time.Second):
		t.Fatal("expected replayed frame")
	}

	e.AddMessage(resultFrame())

	select {
	case f := <-ch:
		assert.Equal(t, protocol.FrameResult, f.Type)
	case <-time.After(time.Second):
		t.Fatal("expected live frame")
	}

	_, ok := <-ch
	assert.False(t, ok, "channel should close once the entry completes")
}

func TestSubscribeMessagesAfterTerminalStateClosesImmediately(t *testing.T) {
	e := NewEntry(KindTell, "hello")
	e.AddMessage(protocol.Frame{Type: protocol.FrameSystem})
	e.Complete()

	ch := e.SubscribeMessages()
	frame, ok := <-ch
	require.True(t, ok, "replay should still deliver history")
	assert.Equal(t, protocol.FrameSystem, frame.Type)

	_, ok = <-ch
	assert.False(t, ok)
}

func TestSubscribeStatusYieldsCurrentThenTerminal(t *testing.T) {
	e := NewEntry(KindTell, "hello")
	ch := e.SubscribeStatus()
	assert.Equal(t, StatusActive, <-ch)

	e.Terminate(ReasonManualTermination)
	assert.Equal(t, StatusTerminated, <-ch)

	_, ok := <-ch
	assert.False(t, ok)
}
