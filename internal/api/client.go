// Package api is the REST client for the chat backend.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/concord-chat/relay/internal/errs"
	"github.com/concord-chat/relay/internal/models"
	"github.com/concord-chat/relay/internal/protocol"
)

// DefaultTimeout bounds every REST call
const DefaultTimeout = 10 * time.Second

const maxBodySize = 4 << 20 // 4MB

// Client talks to the backend's /api/v1 endpoints
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     zerolog.Logger
}

// NewClient creates a REST client rooted at baseURL (e.g. http://localhost:8080/api/v1)
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}

	// Accept websocket schemes for convenience
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("invalid api base url %q: unsupported scheme", baseURL)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{},
		timeout: timeout,
		log:     logger.With().Str("component", "api").Logger(),
	}, nil
}

// ListChannels fetches every channel (GET /channel/all)
func (c *Client) ListChannels(ctx context.Context) ([]models.Channel, error) {
	const op = "api.ListChannels"

	body, _, err := c.do(ctx, op, http.MethodGet, "/channel/all", nil, nil, "")
	if err != nil {
		return nil, err
	}

	channels, dropped, err := protocol.ParseChannelList(body)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		c.log.Warn().Int("dropped", dropped).Msg("Dropped channel records without id")
	}
	return channels, nil
}

// CreateChannel creates a channel (POST /channel/?name=) with the
// description as a text/plain body
func (c *Client) CreateChannel(ctx context.Context, name, description string) (models.Channel, error) {
	const op = "api.CreateChannel"

	query := url.Values{"name": {name}}
	body, _, err := c.do(ctx, op, http.MethodPost, "/channel/", query,
		strings.NewReader(description), "text/plain; charset=utf-8")
	if err != nil {
		return models.Channel{}, err
	}

	return protocol.ParseCreatedChannel(body, name, description)
}

// ListUsers fetches every user (GET /user/all)
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "api.ListUsers"

	body, _, err := c.do(ctx, op, http.MethodGet, "/user/all", nil, nil, "")
	if err != nil {
		return nil, err
	}

	users, dropped, err := protocol.ParseUserList(body)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		c.log.Warn().Int("dropped", dropped).Msg("Dropped user records without id")
	}
	return users, nil
}

// ProvisionUser registers the session identity (POST /user/). Only
// 201 Created counts as success.
func (c *Client) ProvisionUser(ctx context.Context, username, displayName string) (models.User, error) {
	const op = "api.ProvisionUser"

	query := url.Values{
		"username":    {username},
		"displayName": {displayName},
	}
	body, status, err := c.do(ctx, op, http.MethodPost, "/user/", query, nil, "")
	if err != nil {
		return models.User{}, errs.Status(errs.KindProvision, op, status, err)
	}
	if status != http.StatusCreated {
		return models.User{}, errs.Status(errs.KindProvision, op, status,
			fmt.Errorf("unexpected status %d", status))
	}

	user, err := protocol.ParseUser(body)
	if err != nil {
		return models.User{}, errs.E(errs.KindProvision, op, err)
	}
	return user, nil
}

// History fetches a channel's message history (GET /message/{id}/history).
// Messages are returned as the server delivers them, newest first.
func (c *Client) History(ctx context.Context, channelID string) ([]models.Message, error) {
	const op = "api.History"

	path := "/message/" + url.PathEscape(channelID) + "/history"
	body, _, err := c.do(ctx, op, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return nil, err
	}
	return protocol.ParseHistory(body)
}

// do performs one request under the client timeout and returns the body of
// a 2xx response. Failures are kinded: TimedOut for expired deadlines,
// Network for everything else.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, 0, errs.E(errs.KindNetwork, op, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, 0, errs.E(errs.KindTimedOut, op, err)
		}
		return nil, 0, errs.E(errs.KindNetwork, op, fmt.Errorf("failed to connect to server: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if isTimeout(err) {
			return nil, resp.StatusCode, errs.E(errs.KindTimedOut, op, err)
		}
		return nil, resp.StatusCode, errs.E(errs.KindNetwork, op, fmt.Errorf("failed to read response: %w", err))
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("REST call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, errs.Status(errs.KindNetwork, op, resp.StatusCode,
			fmt.Errorf("request failed: %s", strings.TrimSpace(string(data))))
	}
	return data, resp.StatusCode, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
