// Package client implements the glyph-service network interface over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pkt.systems/glyphd/api"
	"pkt.systems/glyphd/internal/core"
	"pkt.systems/glyphd/internal/loggingutil"
	"pkt.systems/glyphd/internal/svcfields"
	"pkt.systems/pslog"
)

// CorrelationHeader carries the per-request correlation ID.
const CorrelationHeader = "X-Glyphd-Correlation"

const (
	defaultTimeout      = 30 * time.Second
	maxErrorBodySnippet = 512
)

// Config configures a Client.
type Config struct {
	// Endpoint is the glyph service base URL, e.g. https://fonts.example.net.
	Endpoint string
	// HTTPClient overrides the default instrumented client when set.
	HTTPClient *http.Client
	// Timeout bounds each round trip when HTTPClient is not supplied.
	Timeout time.Duration
	// UserAgent overrides the default User-Agent header.
	UserAgent string
	// Logger receives request diagnostics. Nil discards.
	Logger pslog.Logger
}

// Client talks to a glyph service. It satisfies the manager's GlyphSource
// contract and is safe for concurrent use.
type Client struct {
	endpoint  string
	http      *http.Client
	userAgent string
	logger    pslog.Logger
}

// New validates cfg and returns a ready client.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("client: endpoint required")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid endpoint %q", cfg.Endpoint)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "glyphd-client"
	}
	return &Client{
		endpoint:  endpoint,
		http:      httpClient,
		userAgent: userAgent,
		logger:    svcfields.WithSubsystem(loggingutil.EnsureLogger(cfg.Logger), "glyphd.client"),
	}, nil
}

// FetchBase downloads the raw compact base for font.
func (c *Client) FetchBase(ctx context.Context, font core.FontIdentity) ([]byte, error) {
	target := c.endpoint + api.PathBase + "?" + url.Values{
		"family": {font.Family},
		"weight": {strconv.Itoa(font.Weight)},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("client: build base request: %w", err)
	}
	correlation := xid.New().String()
	c.decorate(req, correlation)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: fetch base: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("base", resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read base body: %w", err)
	}
	c.logger.Debug("base.fetched",
		"font", font.Key(),
		"bytes", len(raw),
		"duration_ms", time.Since(start).Milliseconds(),
		"correlation", correlation,
	)
	return raw, nil
}

// FetchGlyphs downloads a glyph bundle covering codepoints for font.
func (c *Client) FetchGlyphs(ctx context.Context, font core.FontIdentity, codepoints []rune) (*api.GlyphBundle, error) {
	payload := api.GlyphRequest{
		Family:     font.Family,
		Weight:     font.Weight,
		Codepoints: make([]uint32, len(codepoints)),
	}
	for i, code := range codepoints {
		payload.Codepoints[i] = uint32(code)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("client: encode glyph request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+api.PathGlyphs, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: build glyph request: %w", err)
	}
	correlation := xid.New().String()
	c.decorate(req, correlation)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: fetch glyphs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("glyphs", resp)
	}
	bundle := &api.GlyphBundle{}
	if err := json.NewDecoder(resp.Body).Decode(bundle); err != nil {
		return nil, fmt.Errorf("client: decode glyph bundle: %w", err)
	}
	if bundle.GlyphCount < 0 {
		return nil, fmt.Errorf("client: bundle declares negative glyph count %d", bundle.GlyphCount)
	}
	c.logger.Debug("glyphs.fetched",
		"font", font.Key(),
		"requested", len(codepoints),
		"delivered", bundle.GlyphCount,
		"duration_ms", time.Since(start).Milliseconds(),
		"correlation", correlation,
	)
	return bundle, nil
}

func (c *Client) decorate(req *http.Request, correlation string) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(CorrelationHeader, correlation)
}

func (c *Client) statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySnippet))
	detail := strings.TrimSpace(string(snippet))
	if detail == "" {
		return fmt.Errorf("client: %s request failed: %s", op, resp.Status)
	}
	return fmt.Errorf("client: %s request failed: %s: %s", op, resp.Status, detail)
}
