// internal/clients/mail_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ministrysite/internal/mail"
)

// MailClient sends transactional email through the mail provider's HTTP API.
type MailClient struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

func NewMailClient(baseURL, apiKey, from string) *MailClient {
	return &MailClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *MailClient) Send(ctx context.Context, msg mail.Message) error {
	sendReq := struct {
		From    string         `json:"from"`
		To      []string       `json:"to"`
		Subject string         `json:"subject"`
		HTML    string         `json:"html,omitempty"`
		Tags    []string       `json:"tags,omitempty"`
		Data    map[string]any `json:"data,omitempty"`
	}{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Tags:    tags(msg.Type),
		Data:    msg.Data,
	}

	body, err := json.Marshal(sendReq)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

func tags(emailType string) []string {
	if emailType == "" {
		return nil
	}
	return []string{emailType}
}
