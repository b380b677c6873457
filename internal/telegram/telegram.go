// Package telegram is a minimal Bot API client: sendMessage, sendPhoto and
// getMe are all the notifier needs.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mkravets/newsdrop/internal/logger"
	"github.com/mkravets/newsdrop/internal/retry"
)

const (
	defaultBaseURL = "https://api.telegram.org"

	// Telegram caps photo captions at 1024 bytes.
	captionMaxBytes = 1024
)

type Client struct {
	token   string
	chatID  string
	baseURL string
	http    *http.Client
	retry   retry.Config
}

func NewClient(token, chatID string) *Client {
	return &Client{
		token:   token,
		chatID:  chatID,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry: retry.Config{
			MaxAttempts: 3,
			Delay:       time.Second,
			Backoff:     true,
		},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(token, chatID, baseURL string) *Client {
	c := NewClient(token, chatID)
	c.baseURL = baseURL
	return c
}

// SendMessage sends a plain text message to the configured chat.
func (c *Client) SendMessage(text string) error {
	return retry.Do(context.Background(), c.retry, func() error {
		return c.call("sendMessage", map[string]any{
			"chat_id":                  c.chatID,
			"text":                     text,
			"disable_web_page_preview": false,
		}, nil)
	})
}

// SendPhoto sends a photo by URL with a caption, trimmed to the API's byte
// cap on a rune boundary.
func (c *Client) SendPhoto(photoURL, caption string) error {
	return retry.Do(context.Background(), c.retry, func() error {
		return c.call("sendPhoto", map[string]any{
			"chat_id": c.chatID,
			"photo":   photoURL,
			"caption": TruncateCaption(caption),
		}, nil)
	})
}

// GetMe validates the bot token and returns the bot username.
func (c *Client) GetMe() (string, error) {
	var result struct {
		Username string `json:"username"`
	}
	if err := c.call("getMe", map[string]any{}, &result); err != nil {
		return "", err
	}
	return result.Username, nil
}

// call POSTs one Bot API method and checks both the HTTP status and the
// `ok` field of the response envelope.
func (c *Client) call(method string, payload map[string]any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	resp, err := c.http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s response: %w", method, err)
	}

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%s: bad response (status %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s: api error (status %d): %s", method, resp.StatusCode, envelope.Description)
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%s: decoding result: %w", method, err)
		}
	}
	return nil
}

// TruncateCaption trims a caption to the Telegram byte budget without
// splitting a multibyte rune.
func TruncateCaption(caption string) string {
	if len(caption) <= captionMaxBytes {
		return caption
	}
	b := []byte(caption)[:captionMaxBytes]
	// back off to a rune boundary
	for len(b) > 0 && b[len(b)-1]&0xC0 == 0x80 {
		b = b[:len(b)-1]
	}
	return string(b)
}
