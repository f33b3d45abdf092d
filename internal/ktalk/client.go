// Package ktalk talks to the workspace chat backend's notification endpoint.
package ktalk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "roomwatch/pkg/logx"

	"roomwatch/internal/session"
)

const (
	DefaultCountPath      = "/api/notification-count"
	defaultRequestTimeout = 15 * time.Second

	// responses are tiny; anything bigger is not the payload we expect
	maxBodyBytes = 1 << 20
)

type Config struct {
	BaseURL        string
	CountPath      string
	RequestTimeout time.Duration
}

// Client fetches unread-room counts. It is safe for concurrent use; the
// per-session credentials travel with each call rather than living on the
// client.
type Client struct {
	baseURL   string
	countPath string
	http      *http.Client
	log       logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	path := strings.TrimSpace(cfg.CountPath)
	if path == "" {
		path = DefaultCountPath
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		countPath: path,
		http:      &http.Client{Timeout: timeout},
		log:       log,
	}
}

// SetTimeout replaces the request timeout. Used on config reload.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.http.Timeout = d
	}
}

// GetCount fetches the current unread summary for one session's credentials.
// It fails fast with ErrNotConfigured when token or referer is missing.
func (c *Client) GetCount(ctx context.Context, token, referer string) (session.Count, error) {
	token = strings.TrimSpace(token)
	referer = strings.TrimSpace(referer)
	if token == "" || referer == "" {
		return session.Count{}, ErrNotConfigured
	}

	base := c.baseURL
	if base == "" {
		base = strings.TrimRight(referer, "/")
	}
	url := base + c.countPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return session.Count{}, &NetworkError{Err: err}
	}
	req.Header.Set("Referer", referer)
	req.Header.Set("Origin", strings.TrimRight(referer, "/"))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return session.Count{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return session.Count{}, &NetworkError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return session.Count{}, &ProtocolError{Status: resp.StatusCode}
	}

	var cnt session.Count
	if err := json.Unmarshal(body, &cnt); err != nil {
		return session.Count{}, &ProtocolError{Status: resp.StatusCode, Detail: "bad payload: " + err.Error()}
	}
	if cnt.RoomsCount < 0 {
		return session.Count{}, &ProtocolError{Status: resp.StatusCode, Detail: fmt.Sprintf("negative rooms_count %d", cnt.RoomsCount)}
	}
	return cnt, nil
}
