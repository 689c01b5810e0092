// Package health probes the backend services and folds the results into a
// single readiness report.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTimeout = 5 * time.Second
	healthPath     = "/health"
	maxDrainBytes  = 4 << 10
)

type Backend struct {
	Name    string
	BaseURL string
}

// CheckResult is the outcome of one probe. StatusCode is set whenever the backend
// answered; Error is set whenever the probe failed.
type CheckResult struct {
	Name       string `json:"name"`
	Healthy    bool   `json:"healthy"`
	StatusCode *int   `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Report is healthy iff every check is healthy. Checks keep the backend order.
type Report struct {
	Healthy bool
	Checks  []CheckResult
}

// StatusError is returned by Check for a non-2xx health response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("health check returned status %d", e.StatusCode)
}

type Prober struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewProber returns a prober using client (http.DefaultClient when nil) and a
// per-probe timeout (DefaultTimeout when <= 0).
func NewProber(client *http.Client, timeout time.Duration, logger zerolog.Logger) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{client: client, timeout: timeout, logger: logger}
}

// CheckAll probes every backend concurrently and returns once all probes have
// settled. A slow backend delays the report by at most its own timeout.
func (p *Prober) CheckAll(ctx context.Context, backends []Backend) Report {
	checks := make([]CheckResult, len(backends))

	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Add(1)
		go func(i int, b Backend) {
			defer wg.Done()
			checks[i] = p.Check(ctx, b)
		}(i, b)
	}
	wg.Wait()

	report := Report{Healthy: true, Checks: checks}
	for _, c := range checks {
		if !c.Healthy {
			report.Healthy = false
			break
		}
	}
	return report
}

// Check probes a single backend. It never returns an error; failures are
// captured in the result.
func (p *Prober) Check(ctx context.Context, b Backend) CheckResult {
	res := CheckResult{Name: b.Name}

	status, err := p.probe(ctx, b.BaseURL)
	if status != 0 {
		res.StatusCode = &status
	}
	if err != nil {
		res.Error = err.Error()
		p.logger.Warn().
			Str("backend", b.Name).
			Str("url", b.BaseURL).
			Err(err).
			Msg("Backend health check failed")
		return res
	}

	res.Healthy = true
	return res
}

func (p *Prober) probe(ctx context.Context, baseURL string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+healthPath, nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("health check timed out after %s", p.timeout)
		}
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Debug().Err(closeErr).Msg("Failed to close health check response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}
