package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pibridge/pibridge/internal/outbox"
)

// DeliveryTimeout bounds each individual delivery attempt.
const DeliveryTimeout = 10 * time.Second

// Backend delivers a single queued operation to the remote system.
type Backend interface {
	Deliver(ctx context.Context, op outbox.Operation) error
}

// syncEnvelope is the wire format for POST {base}/api/v1/sync.
type syncEnvelope struct {
	OperationType string          `json:"operation_type"`
	DataType      string          `json:"data_type"`
	RecordID      int64           `json:"record_id"`
	Payload       json.RawMessage `json:"payload"`
	PiTimestamp   string          `json:"pi_timestamp"`
}

// HTTPBackend delivers operations over HTTP. Any non-200 response,
// timeout or transport error is a delivery failure; the engine treats
// them all as transient.
type HTTPBackend struct {
	baseURL string
	agentID string
	client  *http.Client
}

// NewHTTPBackend creates a backend client for the given base URL. The
// agent ID is sent as X-Pi-ID so the backend can attribute uploads.
func NewHTTPBackend(baseURL, agentID string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: baseURL,
		agentID: agentID,
		client: &http.Client{
			Timeout: DeliveryTimeout,
		},
	}
}

// Deliver posts one operation to the backend sync endpoint.
func (b *HTTPBackend) Deliver(ctx context.Context, op outbox.Operation) error {
	if b.baseURL == "" {
		return fmt.Errorf("backend URL not configured")
	}

	env := syncEnvelope{
		OperationType: op.OperationType,
		DataType:      string(op.DataType),
		RecordID:      op.RecordID,
		Payload:       op.Payload,
		PiTimestamp:   op.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("serialize sync envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/v1/sync", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pi-ID", b.agentID)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver operation %d: %w", op.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deliver operation %d: unexpected status %d", op.ID, resp.StatusCode)
	}
	return nil
}
