// Package warehouse ships pipeline rows to the downstream warehouse's HTTP
// ingest endpoint. Publishing is best-effort by contract: the pipeline
// captures errors on receipts instead of failing stages.
package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

var _ driven.WarehousePublisher = (*Publisher)(nil)

// DefaultTimeout bounds one publish request.
const DefaultTimeout = 60 * time.Second

// Config holds the warehouse endpoint settings.
type Config struct {
	// URL is the ingest endpoint. Rows are POSTed to <URL>/tables/<table>.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	Timeout time.Duration
}

// Publisher POSTs row batches as JSON.
type Publisher struct {
	cfg    Config
	client *http.Client
}

// publishRequest is the ingest payload.
type publishRequest struct {
	Table string           `json:"table"`
	Rows  []map[string]any `json:"rows"`
}

// NewPublisher creates the HTTP publisher.
func NewPublisher(cfg Config) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Publisher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Publish sends one batch and returns the endpoint's receipt.
func (p *Publisher) Publish(ctx context.Context, table string, rows []map[string]any) (map[string]any, error) {
	body, err := json.Marshal(publishRequest{Table: table, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/tables/"+table, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("publishing to %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if readErr != nil {
			payload = []byte("unreadable response")
		}
		return nil, fmt.Errorf("warehouse returned status %d: %s", resp.StatusCode, payload)
	}

	receipt := map[string]any{"status": resp.StatusCode}
	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
		for k, v := range parsed {
			receipt[k] = v
		}
	}
	return receipt, nil
}
