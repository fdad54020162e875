package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

const serverTimeout = 15 * time.Second

type greencheckResponse struct {
	URL      string `json:"url"`
	Green    bool   `json:"green"`
	HostedBy string `json:"hosted_by"`
}

// Server looks the audited host up in a green hosting directory. It needs
// no browser.
type Server struct {
	endpoint string
	client   *http.Client
}

// NewServer builds the collector against a greencheck endpoint; the host
// is appended to it.
func NewServer(endpoint string, client *http.Client) *Server {
	if client == nil {
		client = http.DefaultClient
	}
	return &Server{endpoint: endpoint, client: client}
}

func (c *Server) ID() trace.CollectorID { return trace.CollectServer }

func (c *Server) Timeout() time.Duration { return serverTimeout }

// Collect always yields a block for a valid URL. A failed lookup is
// reported as Checked=false rather than as a collector failure.
func (c *Server) Collect(ctx context.Context, target orchestrator.Target) (trace.Block, error) {
	u, err := url.Parse(target.URL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("failed to parse host of %q", target.URL)
	}
	host := strings.ToLower(u.Hostname())
	out := &trace.ServerTraces{Host: host}

	if c.endpoint == "" {
		slog.Debug("Green hosting lookup disabled", "host", host)
		return out, nil
	}
	resp, err := c.lookup(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("Green hosting lookup failed", "host", host, "error", err)
		return out, nil
	}
	out.Checked = true
	out.Green = resp.Green
	out.HostedBy = resp.HostedBy
	return out, nil
}

func (c *Server) lookup(ctx context.Context, host string) (greencheckResponse, error) {
	endpoint := strings.TrimRight(c.endpoint, "/") + "/" + url.PathEscape(host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return greencheckResponse{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return greencheckResponse{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return greencheckResponse{}, fmt.Errorf("greencheck failed: status=%d", resp.StatusCode)
	}

	var out greencheckResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return greencheckResponse{}, fmt.Errorf("failed to decode greencheck response: %w", err)
	}
	return out, nil
}
