package models

// SessionStatus is the wire-level status code for a Session (spec §6).
type SessionStatus int

const (
	SessionStarting SessionStatus = 0
	SessionActive   SessionStatus = 1
	SessionStopped  SessionStatus = 2
	SessionError    SessionStatus = 3
)

// MessageStatus is the wire-level status code for sendUserMessage results.
type MessageStatus int

const (
	MessageOK    MessageStatus = 0
	MessageError MessageStatus = 1
)

// ToolResultStatus is the wire-level status code for provideToolResult.
type ToolResultStatus int

const (
	ToolResultOK    ToolResultStatus = 0
	ToolResultError ToolResultStatus = 1
)
