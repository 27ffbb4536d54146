// Package events implements the synchronous, best-effort security event
// emitter (spec.md §4.8), in the shape of the teacher's AuditEvent/AuditSink
// pair but without its background dispatcher goroutine: emission here is
// a direct call on the calling goroutine, because spec.md requires
// synchronous, best-effort emission with no async buffering semantics.
package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Type enumerates the security events named in spec.md §4.8.
type Type string

const (
	LoginSuccess           Type = "LOGIN_SUCCESS"
	LoginFailed            Type = "LOGIN_FAILED"
	RegisterSuccess        Type = "REGISTER_SUCCESS"
	AccountLocked          Type = "ACCOUNT_LOCKED"
	AccountUnlocked        Type = "ACCOUNT_UNLOCKED"
	TokenRefreshSuccess    Type = "TOKEN_REFRESH_SUCCESS"
	TokenRefreshFailed     Type = "TOKEN_REFRESH_FAILED"
	TokenReuseDetected     Type = "TOKEN_REUSE_DETECTED"
	PasswordResetRequested Type = "PASSWORD_RESET_REQUESTED"
	PasswordResetSuccess   Type = "PASSWORD_RESET_SUCCESS"
	PasswordChanged        Type = "PASSWORD_CHANGED"
	OAuthLoginSuccess      Type = "OAUTH_LOGIN_SUCCESS"
	OAuthLoginFailed       Type = "OAUTH_LOGIN_FAILED"
	SessionCreated         Type = "SESSION_CREATED"
	SessionRevoked         Type = "SESSION_REVOKED"
	EmailVerificationSent  Type = "EMAIL_VERIFICATION_SENT"
	EmailVerified          Type = "EMAIL_VERIFIED"
)

// Event carries the fields spec.md §4.8 lists, all but Type/Timestamp
// optional depending on which operation emits it.
type Event struct {
	Type      Type      `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId,omitempty"`
	Email     string    `json:"email,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Sink is the emission destination. Emit must never block the caller for
// long and returns no error: emission failure never fails the triggering
// operation.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards every event. Useful as a default when no sink is
// configured.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink fans events into a buffered channel for an out-of-process
// consumer to drain; full buffers drop silently rather than block.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(_ context.Context, event Event) {
	select {
	case s.events <- event:
	default:
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

// JSONWriterSink writes newline-delimited JSON events to w.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	_ = enc.Encode(event)
}

// Emitter wraps a Sink and stamps Timestamp, matching the "synchronous,
// best-effort" contract: Emit never returns an error to the caller.
type Emitter struct {
	sink Sink
}

func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = NoOpSink{}
	}
	return &Emitter{sink: sink}
}

func (e *Emitter) Emit(ctx context.Context, ev Event) {
	ev.Timestamp = time.Now()
	e.sink.Emit(ctx, ev)
}
