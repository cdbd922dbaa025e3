package api

import "time"

// TellRequest is the body of POST /teams/:fromTeam/:toTeam/tell.
type TellRequest struct {
	Message         string `json:"message" binding:"required"`
	Timeout         *int   `json:"timeout,omitempty"`
	WaitForResponse *bool  `json:"waitForResponse,omitempty"`
	ClearCache      *bool  `json:"clearCache,omitempty"`
}

// TellResponse is the body returned by the tell endpoint. Exactly one of
// TaskID, Busy, or Text is meaningful, matching orchestrator.TellResult.
type TellResponse struct {
	Async  bool   `json:"async"`
	TaskID string `json:"taskId,omitempty"`
	Busy   bool   `json:"busy,omitempty"`
	Text   string `json:"text,omitempty"`
}

// WakeRequest is the body of POST /teams/wake.
type WakeRequest struct {
	Teams []string `json:"teams" binding:"required"`
}

// SleepRequest is the body of POST /teams/:toTeam/sleep.
type SleepRequest struct {
	Force      bool `json:"force"`
	ClearCache bool `json:"clearCache"`
}

// SleepResponse is the body returned by the sleep endpoint.
type SleepResponse struct {
	AlreadyAsleep bool `json:"alreadyAsleep"`
	LostMessages  int  `json:"lostMessages"`
}

// CompactRequest is the body of POST /teams/:fromTeam/:toTeam/compact.
type CompactRequest struct {
	TimeoutMs int `json:"timeout,omitempty"`
	Retries   int `json:"retries,omitempty"`
}

// RebootResponse is the body returned by the reboot endpoint.
type RebootResponse struct {
	SessionID    string `json:"sessionId"`
	MessageCount int    `json:"messageCount"`
}

// CancelResponse is the body returned by the cancel endpoint.
type CancelResponse struct {
	Found bool `json:"found"`
}

// TeamResponse is one row of GET /teams.
type TeamResponse struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Awake       bool   `json:"awake"`
}

// SessionResponse is one row of GET /sessions.
type SessionResponse struct {
	SessionID    string    `json:"sessionId"`
	FromTeam     string    `json:"fromTeam"`
	ToTeam       string    `json:"toTeam"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	LastUsedAt   time.Time `json:"lastUsedAt"`
	MessageCount int       `json:"messageCount"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	PoolSize         int    `json:"poolSize"`
	QueueDepth       int    `json:"queueDepth"`
	TotalSessions    int    `json:"totalSessions"`
	ActiveSessions   int    `json:"activeSessions"`
	ArchivedSessions int    `json:"archivedSessions"`
	TotalMessages    int    `json:"totalMessages"`
}
