package queue

import (
	"testing"
	"time"

	"github.com/seclist-labs/seclist-go/internal/domain"
)

func TestMessageValidate(t *testing.T) {
	base := Message{
		RunID:    "run-1",
		URL:      "https://github.com/acme/scanner",
		Priority: domain.PriorityMedium,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Message)
	}{
		{name: "missing run id", mutate: func(m *Message) { m.RunID = "" }},
		{name: "missing url", mutate: func(m *Message) { m.URL = "" }},
		{name: "bad priority", mutate: func(m *Message) { m.Priority = "urgent" }},
		{name: "empty priority", mutate: func(m *Message) { m.Priority = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := base
			tt.mutate(&msg)
			if err := msg.Validate(); err == nil {
				t.Fatalf("Validate() err=nil, want error")
			}
		})
	}
}

func TestComputeIntegritySHA256_Deterministic(t *testing.T) {
	msg := Message{
		OccurredAt: time.Unix(1700000000, 0).UTC(),
		RunID:      "run-1",
		URL:        "https://github.com/acme/scanner",
		Priority:   domain.PriorityHigh,
		RequestID:  "req-1",
	}
	payloadJSON := []byte(`{"upload":{"key":"readmes/acme/scanner/README.md"}}`)

	a, err := ComputeIntegritySHA256(msg, payloadJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(msg, payloadJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a != b {
		t.Fatalf("integrity mismatch: %q vs %q", a, b)
	}
}

func TestComputeIntegritySHA256_ChangesOnPayload(t *testing.T) {
	msg := Message{
		OccurredAt: time.Unix(1700000000, 0).UTC(),
		RunID:      "run-1",
		URL:        "https://github.com/acme/scanner",
		Priority:   domain.PriorityLow,
	}

	a, err := ComputeIntegritySHA256(msg, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(msg, []byte(`{"a":2}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a == b {
		t.Fatalf("expected integrity to differ")
	}
}
