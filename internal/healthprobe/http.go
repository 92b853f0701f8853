// Package healthprobe implements the HealthProber port (§4.1, §4.7): a
// single GET against a deployed instance's health endpoint, timed and
// classified into a model.HealthSample. Kept on net/http's client directly —
// no example repo reaches for a heavier HTTP client for a single-shot
// request with a hard timeout, so a third-party client would add nothing
// here (see DESIGN.md).
package healthprobe

import (
	"context"
	"io"
	"net/http"
	"time"

	"deployctl/internal/model"
)

// HTTP is a ports.HealthProber backed by net/http.
type HTTP struct {
	client *http.Client
}

func New() *HTTP {
	return &HTTP{client: &http.Client{}}
}

func (h *HTTP) Probe(ctx context.Context, url string, timeout time.Duration) model.HealthSample {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sample := model.HealthSample{Timestamp: time.Now()}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		sample.Error = err.Error()
		return sample
	}

	resp, err := h.client.Do(req)
	sample.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		sample.Error = err.Error()
		return sample
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	sample.StatusCode = resp.StatusCode
	sample.Healthy = resp.StatusCode >= 200 && resp.StatusCode < 300
	return sample
}
