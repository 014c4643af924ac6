// Package queue publishes enrichment-complete messages for downstream
// consumers. The implementation is a Postgres outbox with at-least-once
// delivery; drainers mark rows consumed in their own transaction.
package queue

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seclist-labs/seclist-go/internal/domain"
)

// Message is one enrichment-complete notification. Payload carries the
// storage keys and metrics of the run; it must never contain the
// summary text itself, consumers read that from the object store.
type Message struct {
	OccurredAt time.Time
	RunID      string
	URL        string
	Priority   domain.Priority
	RequestID  string
	Payload    any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return errors.New("RunID is required")
	}
	if strings.TrimSpace(m.URL) == "" {
		return errors.New("URL is required")
	}
	switch m.Priority {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh:
	default:
		return fmt.Errorf("unsupported priority: %q", m.Priority)
	}
	return nil
}

// Publisher abstracts the outbox so the pipeline controller can be
// tested against a fake.
type Publisher interface {
	Publish(ctx context.Context, msg Message) (string, error)
}

// Outbox writes messages to the enrichment_outbox table.
type Outbox struct {
	db QueryRower
}

func NewOutbox(db QueryRower) *Outbox {
	return &Outbox{db: db}
}

// Publish inserts the message and returns its generated message id.
func (o *Outbox) Publish(ctx context.Context, msg Message) (string, error) {
	if o == nil || o.db == nil {
		return "", errors.New("outbox is not initialized")
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	if err := msg.Validate(); err != nil {
		return "", err
	}

	payload := msg.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	integrity, err := ComputeIntegritySHA256(msg, payloadJSON)
	if err != nil {
		return "", err
	}

	var requestID sql.NullString
	if strings.TrimSpace(msg.RequestID) != "" {
		requestID = sql.NullString{String: strings.TrimSpace(msg.RequestID), Valid: true}
	}

	messageID := uuid.NewString()
	var stored string
	err = o.db.QueryRowContext(
		ctx,
		`INSERT INTO enrichment_outbox (
			message_id,
			occurred_at,
			run_id,
			url,
			priority,
			request_id,
			payload,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING message_id`,
		messageID,
		msg.OccurredAt.UTC(),
		strings.TrimSpace(msg.RunID),
		strings.TrimSpace(msg.URL),
		string(msg.Priority),
		requestID,
		payloadJSON,
		integrity,
	).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("insert outbox message: %w", err)
	}
	return stored, nil
}

func ComputeIntegritySHA256(msg Message, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt time.Time       `json:"occurred_at"`
		RunID      string          `json:"run_id"`
		URL        string          `json:"url"`
		Priority   string          `json:"priority"`
		RequestID  string          `json:"request_id,omitempty"`
		Payload    json.RawMessage `json:"payload"`
	}

	in := integrityInput{
		OccurredAt: msg.OccurredAt.UTC(),
		RunID:      strings.TrimSpace(msg.RunID),
		URL:        strings.TrimSpace(msg.URL),
		Priority:   string(msg.Priority),
		RequestID:  strings.TrimSpace(msg.RequestID),
		Payload:    payloadJSON,
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity input: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
