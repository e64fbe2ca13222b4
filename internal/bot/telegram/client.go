// Package telegram is a minimal Bot API client covering the two calls
// the verification bot needs: sendMessage and getUpdates.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	dErrors "trivigil/pkg/domainerrors"
)

const DefaultAPIBase = "https://api.telegram.org"

// Client talks to one bot's method endpoints. The base URL is
// configurable so tests can point it at a local server.
type Client struct {
	http  *resty.Client
	token string
}

// New creates a client for the given bot token. timeout bounds a
// single API call and must exceed the long-poll timeout passed to
// GetUpdates.
func New(token, baseURL string, timeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "bot token is required")
	}
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c, token: token}, nil
}

// Send delivers text to a chat.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	var result sendMessageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{ChatID: chatID, Text: text}).
		SetResult(&result).
		SetError(&result).
		Post(c.method("sendMessage"))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "telegram sendMessage")
	}
	return c.apiError(resp, result.OK, result.Description)
}

// GetUpdates long-polls for message updates after offset. It returns
// an empty slice when the poll times out with nothing new.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var result getUpdatesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(getUpdatesRequest{
			Offset:         offset,
			Timeout:        int(timeout.Seconds()),
			AllowedUpdates: []string{"message"},
		}).
		SetResult(&result).
		SetError(&result).
		Post(c.method("getUpdates"))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "telegram getUpdates")
	}
	if err := c.apiError(resp, result.OK, result.Description); err != nil {
		return nil, err
	}
	return result.Result, nil
}

func (c *Client) method(name string) string {
	return fmt.Sprintf("/bot%s/%s", c.token, name)
}

func (c *Client) apiError(resp *resty.Response, ok bool, description string) error {
	if ok {
		return nil
	}
	if description == "" {
		description = resp.Status()
	}
	code := dErrors.CodeInternal
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		code = dErrors.CodeUnauthorized
	}
	return dErrors.New(code, fmt.Sprintf("telegram API: %s", description))
}
