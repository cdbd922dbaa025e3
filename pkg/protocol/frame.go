// Package protocol defines the newline-delimited JSON wire protocol spoken
// between the orchestrator and an agent subprocess.
package protocol

import (
	"encoding/json"
	"time"
)

// FrameType discriminates the frames an agent may emit on its output stream.
type FrameType string

const (
	FrameSystem      FrameType = "system"
	FrameUser        FrameType = "user"
	FrameAssistant   FrameType = "assistant"
	FrameStreamEvent FrameType = "stream_event"
	FrameResult      FrameType = "result"
	FrameUnknown     FrameType = "unknown"
)

// Frame is one JSON object emitted by the agent on its output stream, or
// accepted by it on its input stream.
type Frame struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      FrameType       `json:"type"`
	Data      json.RawMessage `json:"data"`
}

// rawFrame mirrors the wire shape: the agent does not send a timestamp or a
// nested "data" envelope, it sends a flat object whose "type" field we pull
// out and whose remaining bytes become Data verbatim.
type rawFrame struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

// ParseFrame decodes one line of agent output into a Frame, tagging unknown
// types verbatim rather than rejecting them.
func ParseFrame(line []byte) (Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(line, &raw); err != nil {
		return Frame{}, err
	}
	ft := FrameType(raw.Type)
	switch ft {
	case FrameSystem, FrameUser, FrameAssistant, FrameStreamEvent, FrameResult:
	default:
		ft = FrameUnknown
	}
	data := make(json.RawMessage, len(line))
	copy(data, line)
	return Frame{Timestamp: time.Now().UTC(), Type: ft, Data: data}, nil
}

// IsInitFrame reports whether f is the "system"/"init" handshake frame that
// signals a freshly spawned transport has reached READY.
func (f Frame) IsInitFrame() bool {
	if f.Type != FrameSystem {
		return false
	}
	var raw rawFrame
	if err := json.Unmarshal(f.Data, &raw); err != nil {
		return false
	}
	return raw.Subtype == "init"
}

// textContent is the shape of a single content block in a user message.
type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type userMessage struct {
	Role    string        `json:"role"`
	Content []textContent `json:"content"`
}

// userFrame is the shape of every frame this system writes to the agent.
type userFrame struct {
	Type    FrameType   `json:"type"`
	Message userMessage `json:"message"`
}

// EncodeTell wraps a tell string as the single JSON frame, terminated by a
// newline, that this system writes to the agent's stdin.
func EncodeTell(text string) ([]byte, error) {
	frame := userFrame{
		Type: FrameUser,
		Message: userMessage{
			Role:    "user",
			Content: []textContent{{Type: "text", Text: text}},
		},
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ResultText extracts the best-effort human-readable text of a result frame.
func ResultText(f Frame) string {
	var payload struct {
		Text    string `json:"text"`
		Result  string `json:"result"`
		Subtype string `json:"subtype"`
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		return ""
	}
	if payload.Text != "" {
		return payload.Text
	}
	return payload.Result
}
