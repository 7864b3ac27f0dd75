// Package longterm is the HTTP client for the shared long-term memory
// service. Both operations are best-effort by contract: the memory service
// logs failures but never fails a local write on them.
package longterm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

var _ driven.LongTermMemory = (*Client)(nil)

// DefaultTimeout bounds one request.
const DefaultTimeout = 30 * time.Second

// Config holds the long-term memory endpoint settings.
type Config struct {
	// URL is the service base URL.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	Timeout time.Duration
}

// Client publishes and recalls memories over HTTP.
type Client struct {
	cfg    Config
	client *http.Client
}

// wireMemory is the service's memory representation.
type wireMemory struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Text       string         `json:"text"`
	Topics     []string       `json:"topics,omitempty"`
	Entities   []string       `json:"entities,omitempty"`
	SourceRefs map[string]any `json:"source_refs,omitempty"`
	Importance float64        `json:"importance"`
	Confidence float64        `json:"confidence"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewClient creates the long-term memory client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Publish ships one memory to the service.
func (c *Client) Publish(ctx context.Context, item *domain.MemoryItem) error {
	body, err := json.Marshal(toWire(item))
	if err != nil {
		return fmt.Errorf("encoding memory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/memories", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("publishing memory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("long-term store returned status %d: %s", resp.StatusCode, payload)
	}
	return nil
}

// Recall queries the service for matching memories.
func (c *Client) Recall(ctx context.Context, query string, limit int) ([]domain.MemoryItem, error) {
	endpoint := c.cfg.URL + "/memories?query=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recalling memories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("long-term store returned status %d: %s", resp.StatusCode, payload)
	}

	var rows []wireMemory
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding recall response: %w", err)
	}

	items := make([]domain.MemoryItem, len(rows))
	for i, row := range rows {
		items[i] = fromWire(row)
	}
	return items, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

func toWire(item *domain.MemoryItem) wireMemory {
	return wireMemory{
		ID:         item.ID,
		Type:       string(item.Type),
		Text:       item.Text,
		Topics:     item.Topics,
		Entities:   item.Entities,
		SourceRefs: item.SourceRefs,
		Importance: item.Importance,
		Confidence: item.Confidence,
		CreatedAt:  item.CreatedAt,
	}
}

func fromWire(row wireMemory) domain.MemoryItem {
	return domain.MemoryItem{
		ID:         row.ID,
		Type:       domain.MemoryType(row.Type),
		Text:       row.Text,
		Topics:     row.Topics,
		Entities:   row.Entities,
		SourceRefs: row.SourceRefs,
		Importance: row.Importance,
		Confidence: row.Confidence,
		CreatedAt:  row.CreatedAt,
	}
}
