package events

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestEmitterStampsTimestamp(t *testing.T) {
	sink := NewChannelSink(1)
	e := NewEmitter(sink)
	e.Emit(context.Background(), Event{Type: LoginSuccess, UserID: "u1"})
	got := <-sink.Events()
	if got.Timestamp.IsZero() {
		t.Fatalf("expected Emit to stamp a non-zero Timestamp")
	}
	if got.Type != LoginSuccess || got.UserID != "u1" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestChannelSinkDropsOnFullBuffer(t *testing.T) {
	sink := NewChannelSink(1)
	e := NewEmitter(sink)
	e.Emit(context.Background(), Event{Type: LoginSuccess})
	e.Emit(context.Background(), Event{Type: LoginFailed}) // buffer full, must not block
	got := <-sink.Events()
	if got.Type != LoginSuccess {
		t.Fatalf("expected the first event to survive, got %v", got.Type)
	}
}

func TestJSONWriterSinkEncodesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	e := NewEmitter(sink)
	e.Emit(context.Background(), Event{Type: RegisterSuccess, Email: "a@example.com"})

	var decoded Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got error: %v", err)
	}
	if decoded.Type != RegisterSuccess || decoded.Email != "a@example.com" {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

func TestNewEmitterDefaultsToNoOpSink(t *testing.T) {
	e := NewEmitter(nil)
	e.Emit(context.Background(), Event{Type: LoginSuccess}) // must not panic
}
