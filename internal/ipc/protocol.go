package ipc

import "time"

// Request is one control command sent to the running daemon.
type Request struct {
	Command string `json:"command"`
	// Channel scopes stop to one voice channel; empty means every session.
	Channel string `json:"channel,omitempty"`
}

// Response is the daemon's reply to one Request.
type Response struct {
	OK       bool            `json:"ok"`
	State    string          `json:"state,omitempty"`
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Sessions []SessionStatus `json:"sessions,omitempty"`
	Workers  []WorkerStatus  `json:"workers,omitempty"`
}

// SessionStatus describes one live session.
type SessionStatus struct {
	ID        string    `json:"id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	Channel   string    `json:"channel,omitempty"`
	Identity  string    `json:"identity"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Speakers  int       `json:"speakers"`
}

// WorkerStatus describes one recording identity.
type WorkerStatus struct {
	ID    string `json:"id"`
	Ready bool   `json:"ready"`
	Busy  int    `json:"busy"`
}
