// Package telegram talks to the Telegram Bot API: outbound messages, webhook
// registration and long polling.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suPer8Hu/remote-control/internal/bot"
)

const maxBody = 4 << 20

// APIError is a response with "ok": false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// entityError reports a Markdown message Telegram refused to render.
func entityError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(ae.Description), "can't parse entities")
}

type Client struct {
	BaseURL string
	Token   string
	// Timeout bounds every call except getUpdates, which adds its own poll timeout.
	Timeout time.Duration
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Timeout: 15 * time.Second,
		HTTP:    &http.Client{},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// SendMessage implements bot.Replier. Markdown that Telegram cannot parse is resent as
// plain text once.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, mode bot.ParseMode) error {
	err := c.sendMessage(ctx, chatID, text, mode)
	if err != nil && mode != bot.PlainText && entityError(err) {
		return c.sendMessage(ctx, chatID, text, bot.PlainText)
	}
	return err
}

func (c *Client) sendMessage(ctx context.Context, chatID int64, text string, mode bot.ParseMode) error {
	params := map[string]any{"chat_id": chatID, "text": text}
	if mode != bot.PlainText {
		params["parse_mode"] = string(mode)
	}
	return c.call(ctx, "sendMessage", params, nil, c.Timeout)
}

// SetWebhook points Telegram at hookURL. secret comes back in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, hookURL, secret string) error {
	params := map[string]any{
		"url":             hookURL,
		"allowed_updates": []string{"message"},
	}
	if secret != "" {
		params["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", params, nil, c.Timeout)
}

// DeleteWebhook is required before getUpdates works on a bot that had a webhook.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{}, nil, c.Timeout)
}

// GetUpdates long-polls for updates with id >= offset, waiting up to wait.
func (c *Client) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         int(wait / time.Second),
		"allowed_updates": []string{"message"},
	}
	var out []Update
	if err := c.call(ctx, "getUpdates", params, &out, c.Timeout+wait); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, out any, timeout time.Duration) error {
	if c.Token == "" {
		return errors.New("telegram: bot token is required")
	}
	b, err := json.Marshal(params)
	if err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.BaseURL, c.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		// *url.Error would print the token
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("telegram %s: read body: %w", method, err)
	}
	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("telegram %s: status %d: undecodable response", method, resp.StatusCode)
	}
	if !decoded.OK {
		code := decoded.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: decoded.Description}
	}
	if out != nil && len(decoded.Result) > 0 {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}
