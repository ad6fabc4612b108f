// internal/clients/content_client.go
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ministrysite/internal/content"
)

// ContentClient reads events from the CMS content API.
type ContentClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewContentClient(baseURL, token string) *ContentClient {
	return &ContentClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ContentClient) EventBySlug(ctx context.Context, slug string) (*content.Event, error) {
	var event content.Event
	if err := c.get(ctx, fmt.Sprintf("%s/events/slug/%s", c.baseURL, url.PathEscape(slug)), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *ContentClient) EventByID(ctx context.Context, id string) (*content.Event, error) {
	var event content.Event
	if err := c.get(ctx, fmt.Sprintf("%s/events/%s", c.baseURL, url.PathEscape(id)), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *ContentClient) PastEventBySlug(ctx context.Context, slug string) (*content.PastEvent, error) {
	var past content.PastEvent
	if err := c.get(ctx, fmt.Sprintf("%s/past-events/slug/%s", c.baseURL, url.PathEscape(slug)), &past); err != nil {
		return nil, err
	}
	return &past, nil
}

func (c *ContentClient) PastEventByID(ctx context.Context, id string) (*content.PastEvent, error) {
	var past content.PastEvent
	if err := c.get(ctx, fmt.Sprintf("%s/past-events/%s", c.baseURL, url.PathEscape(id)), &past); err != nil {
		return nil, err
	}
	return &past, nil
}

func (c *ContentClient) get(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("content request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return content.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode content response: %w", err)
	}
	return nil
}
