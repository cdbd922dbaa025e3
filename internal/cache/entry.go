// Package cache implements the Cache Entry, Message Cache, and Cache Manager
// components: the per-request frame log, its replayable/current-value
// streams, and the per-session/per-process tables that own them.
package cache

import (
	"sync"
	"time"

	"github.com/irisorch/iris/pkg/protocol"
)

// EntryKind distinguishes the initial spawn handshake from an ordinary tell.
type EntryKind string

const (
	KindSpawn EntryKind = "SPAWN"
	KindTell  EntryKind = "TELL"
)

// Status is the lifecycle state of a Cache Entry.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusCompleted  Status = "COMPLETED"
	StatusTerminated Status = "TERMINATED"
)

// TerminationReason records why a non-completed entry was terminated.
type TerminationReason string

const (
	ReasonResponseTimeout    TerminationReason = "RESPONSE_TIMEOUT"
	ReasonProcessCrashed     TerminationReason = "PROCESS_CRASHED"
	ReasonManualTermination  TerminationReason = "MANUAL_TERMINATION"
)

// Entry accumulates the frames of a single request (or the initial spawn
// handshake) and fans them out to any number of subscribers without racing a
// fast reply: Subscribe always takes a snapshot of history under the same
// lock that registers the live channel.
type Entry struct {
	Kind          EntryKind
	TellString    string
	CreatedAt     time.Time
	CompletedAt   time.Time
	Reason        TerminationReason

	mu       sync.Mutex
	status   Status
	messages []protocol.Frame

	msgSubs    map[int]chan protocol.Frame
	statusSubs map[int]chan Status
	nextSubID  int
}

// NewEntry creates an ACTIVE entry for the given kind and initial tell text.
func NewEntry(kind EntryKind, tellString string) *Entry {
	return &Entry{
		Kind:       kind,
		TellString: tellString,
		CreatedAt:  time.Now().UTC(),
		status:     StatusActive,
		msgSubs:    make(map[int]chan protocol.Frame),
		statusSubs: make(map[int]chan Status),
	}
}

// Status returns the entry's current status.
func (e *Entry) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Messages returns a copy of the frames observed so far.
func (e *Entry) Messages() []protocol.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]protocol.Frame, len(e.messages))
	copy(out, e.messages)
	return out
}

// AddMessage appends a frame and publishes it to every messages$ subscriber.
// It is a silent no-op (aside from the caller's own debug log) when the
// entry is not ACTIVE.
func (e *Entry) AddMessage(f protocol.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusActive {
		return
	}
	e.messages = append(e.messages, f)
	for _, ch := range e.msgSubs {
		select {
		case ch <- f:
		default:
		}
	}
	if f.Type == protocol.FrameResult {
		e.completeLocked()
	}
}

// SubscribeMessages returns a channel that first replays every frame
// observed so far, in order, and then streams every subsequent frame. The
// channel is closed once the entry reaches a terminal state; a subscriber
// attached after termination still drains the full replayed history before
// the channel closes.
func (e *Entry) SubscribeMessages() <-chan protocol.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan protocol.Frame, len(e.messages)+16)
	for _, m := range e.messages {
		ch <- m
	}
	if e.status == StatusActive {
		id := e.nextSubID
		e.nextSubID++
		e.msgSubs[id] = ch
	} else {
		close(ch)
	}
	return ch
}

// SubscribeStatus returns a channel that immediately yields the current
// status and then every subsequent transition, closing after the terminal
// value has been delivered.
func (e *Entry) SubscribeStatus() <-chan Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Status, 4)
	ch <- e.status
	if e.status == StatusActive {
		id := e.nextSubID
		e.nextSubID++
		e.statusSubs[id] = ch
	} else {
		close(ch)
	}
	return ch
}

// Complete transitions ACTIVE -> COMPLETED and closes both streams.
func (e *Entry) Complete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completeLocked()
}

func (e *Entry) completeLocked() {
	if e.status != StatusActive {
		return
	}
	e.status = StatusCompleted
	e.CompletedAt = time.Now().UTC()
	e.closeAllLocked()
}

// Terminate transitions ACTIVE or COMPLETED -> TERMINATED and closes both
// streams. It is idempotent: terminating an already-terminated entry is a
// no-op.
func (e *Entry) Terminate(reason TerminationReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusTerminated {
		return
	}
	e.status = StatusTerminated
	e.Reason = reason
	e.CompletedAt = time.Now().UTC()
	e.closeAllLocked()
}

func (e *Entry) closeAllLocked() {
	for id, ch := range e.msgSubs {
		close(ch)
		delete(e.msgSubs, id)
	}
	for id, ch := range e.statusSubs {
		ch <- e.status
		close(ch)
		delete(e.statusSubs, id)
	}
}
