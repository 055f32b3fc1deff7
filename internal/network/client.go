// Package network fetches heightmap patches over HTTP and carries chunk sync
// messages over WebSocket.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/logger"
	"github.com/Faultbox/terrastream/pkg/formats"
)

// Fetch errors.
var (
	ErrFetch      = errors.New("heightmap fetch failed")
	ErrBadStatus  = errors.New("unexpected heightmap status")
	ErrBodyTooBig = errors.New("heightmap body too large")
)

// maxPatchBytes bounds a patch body.
const maxPatchBytes = formats.MaxPatchResolution * formats.MaxPatchResolution * 2

// PatchURL returns the URL of a chunk's patch. The file is named by row then
// column: row is cy, column is cx.
func PatchURL(host string, cx, cy int) string {
	return strings.TrimRight(host, "/") + "/" + formats.PatchFileName(cx, cy)
}

// HeightmapClient downloads raw heightmap patches.
type HeightmapClient struct {
	host    string
	http    *http.Client
	timeout time.Duration
	log     *zap.Logger
}

// NewHeightmapClient creates a client for a patch host. A zero timeout
// leaves the deadline to the caller's context.
func NewHeightmapClient(host string, timeout time.Duration, log *zap.Logger) *HeightmapClient {
	return &HeightmapClient{
		host:    host,
		http:    &http.Client{},
		timeout: timeout,
		log:     logger.OrNop(log),
	}
}

// Host returns the patch host.
func (c *HeightmapClient) Host() string { return c.host }

// Fetch downloads the raw patch for chunk (cx, cy). Every failure wraps
// ErrFetch.
func (c *HeightmapClient) Fetch(ctx context.Context, cx, cy int) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	url := PatchURL(c.host, cx, cy)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %w %d for %s", ErrFetch, ErrBadStatus, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPatchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrFetch, url, err)
	}
	if len(body) > maxPatchBytes {
		return nil, fmt.Errorf("%w: %w", ErrFetch, ErrBodyTooBig)
	}

	c.log.Debug("patch fetched",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(start)))
	return body, nil
}
