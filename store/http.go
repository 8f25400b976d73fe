package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPStore implements Store against a JSON-over-HTTP site API.
type HTTPStore struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewHTTPStore creates a new HTTPStore for the site at baseURL.
// If client is nil, http.DefaultClient is used.
func NewHTTPStore(baseURL, token string, client *http.Client) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type findOneRequest struct {
	Filters []Filter `json:"filters"`
	Fields  []string `json:"fields"`
}

type findOneResponse struct {
	Data Record `json:"data"`
}

// DownloadAttachment returns the raw bytes of an attachment.
func (s *HTTPStore) DownloadAttachment(ctx context.Context, attachmentID int) ([]byte, error) {
	url := fmt.Sprintf("%s/attachments/%d", s.baseURL, attachmentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment %d: %w", attachmentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("attachment %d: %w", attachmentID, ErrNotFound)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store returned status %d for attachment %d", resp.StatusCode, attachmentID)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment %d: %w", attachmentID, err)
	}
	return data, nil
}

// FindOne returns the first matching entity or nil.
func (s *HTTPStore) FindOne(ctx context.Context, entityType string, filters []Filter, fields []string) (Record, error) {
	url := fmt.Sprintf("%s/entities/%s/find_one", s.baseURL, entityType)

	body, err := json.Marshal(findOneRequest{Filters: filters, Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", entityType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store returned status %d for %s query", resp.StatusCode, entityType)
	}

	var out findOneResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %s query response: %w", entityType, err)
	}

	return out.Data, nil
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}
