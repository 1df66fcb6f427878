package events

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{63, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection closed", errors.New("connection closed"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"handler error", errors.New("advice generation failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestEventRoundTrip(t *testing.T) {
	event := NewEvent(TransactionCreated, "1", "42", 2024, 2)
	if event.ID == "" {
		t.Fatal("event should be stamped with an id")
	}

	body, err := event.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := EventFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != TransactionCreated || got.UserID != "1" || got.TransactionID != "42" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Year != 2024 || got.Month != 2 {
		t.Fatalf("month reference lost: %+v", got)
	}
}

func TestEventFromJSONRejectsGarbage(t *testing.T) {
	if _, err := EventFromJSON([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
