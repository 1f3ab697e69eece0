package envelope

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	before := time.Now().UTC()
	env := New("conversation:42", "message:new", []byte(`{"text":"hi"}`), "user-7")
	after := time.Now().UTC()

	if env.ID == "" {
		t.Fatal("expected a generated id")
	}
	if env.Channel != "conversation:42" {
		t.Errorf("expected channel conversation:42, got %s", env.Channel)
	}
	if env.Event != "message:new" {
		t.Errorf("expected event message:new, got %s", env.Event)
	}
	if env.Metadata.OriginID != "user-7" {
		t.Errorf("expected originId user-7, got %s", env.Metadata.OriginID)
	}
	ts := env.Metadata.Timestamp
	if ts.Before(before) || ts.After(after) {
		t.Errorf("timestamp %v outside [%v, %v]", ts, before, after)
	}
}

func TestNew_UniqueIDs(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		env := New("presence", "status", nil, "")
		if _, dup := seen[env.ID]; dup {
			t.Fatalf("duplicate id generated: %s", env.ID)
		}
		seen[env.ID] = struct{}{}
	}
}

func TestMarshalParse_RoundTrip(t *testing.T) {
	env := New("conversation:1", "message:new", []byte(`hello`), "user-1")

	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if parsed.ID != env.ID {
		t.Errorf("expected id %s, got %s", env.ID, parsed.ID)
	}
	if parsed.Channel != env.Channel {
		t.Errorf("expected channel %s, got %s", env.Channel, parsed.Channel)
	}
	if string(parsed.Payload) != "hello" {
		t.Errorf("expected payload hello, got %s", parsed.Payload)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}

func TestParse_MissingID(t *testing.T) {
	_, err := Parse([]byte(`{"channel":"presence","event":"status"}`))
	if err == nil {
		t.Error("expected error for missing id, got nil")
	}
}

func TestParse_MissingChannel(t *testing.T) {
	_, err := Parse([]byte(`{"id":"msg-1","event":"status"}`))
	if err == nil {
		t.Error("expected error for missing channel, got nil")
	}
}
