package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Version is reported in the probe User-Agent and by /healthz.
const Version = "0.1.0"

// DefaultProbeTimeout bounds a probe when the caller's context has no deadline.
const DefaultProbeTimeout = 5 * time.Second

// Outcome is the binary result of a probe.
type Outcome bool

const (
	Reachable   Outcome = true
	Unreachable Outcome = false
)

func (o Outcome) String() string {
	if o {
		return "reachable"
	}
	return "unreachable"
}

// ProbeResult is the outcome of a single probe attempt.
type ProbeResult struct {
	Outcome    Outcome
	StatusCode int
	Latency    time.Duration
	Error      string
}

// Prober performs one bounded-time reachability check.
type Prober interface {
	Probe(ctx context.Context, target string) ProbeResult
}

// HTTPProber issues a single GET. Any 2xx or 3xx response is reachable;
// everything else, including transport errors and timeouts, is unreachable.
type HTTPProber struct {
	Client *http.Client
}

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{Client: &http.Client{}}
}

func (p *HTTPProber) Probe(ctx context.Context, target string) ProbeResult {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultProbeTimeout)
		defer cancel()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return ProbeResult{Outcome: Unreachable, Error: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("User-Agent", "downwatch/"+Version)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return ProbeResult{
			Outcome: Unreachable,
			Latency: time.Since(start),
			Error:   fmt.Sprintf("request failed: %v", err),
		}
	}
	defer resp.Body.Close()
	// drain a little so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return ProbeResult{
			Outcome:    Unreachable,
			StatusCode: resp.StatusCode,
			Latency:    latency,
			Error:      fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	return ProbeResult{Outcome: Reachable, StatusCode: resp.StatusCode, Latency: latency}
}
