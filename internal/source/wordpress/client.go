package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wpsync/internal/domain"
)

const maxErrorBody = 2048

// Config holds WordPress REST client configuration.
type Config struct {
	BaseURL   string
	PerPage   int
	Timeout   time.Duration
	UserAgent string
	Username  string
	Password  string
	// AcceptServerErrorPayloads treats 5xx bodies as payloads.
	AcceptServerErrorPayloads bool
}

// Client fetches JSON resources from a WordPress REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	perPage    int
	userAgent  string
	username   string
	password   string
	accept5xx  bool
	logger     *slog.Logger
}

// New creates a new WordPress client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		perPage:   cfg.PerPage,
		userAgent: cfg.UserAgent,
		username:  cfg.Username,
		password:  cfg.Password,
		accept5xx: cfg.AcceptServerErrorPayloads,
		logger:    logger.With("component", "wordpress"),
	}
}

// Fetch retrieves path relative to the base URL. A non-nil page adds
// paging parameters. The decoded payload keeps numbers as json.Number.
func (c *Client) Fetch(ctx context.Context, path string, page *int) (any, error) {
	u := c.buildURL(path, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("fetched resource",
		"url", u,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if !c.accepted(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.APIResponseError{
			URL:        u,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{URL: u, Err: fmt.Errorf("read body: %w", err)}
	}

	payload, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", u, err)
	}

	return payload, nil
}

func (c *Client) accepted(status int) bool {
	if status >= 200 && status <= 299 {
		return true
	}
	return c.accept5xx && status >= 500 && status <= 599
}

func (c *Client) buildURL(path string, page *int) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if page == nil {
		return u
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(*page))
	if c.perPage > 0 {
		q.Set("per_page", strconv.Itoa(c.perPage))
	}
	return u + "?" + q.Encode()
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
