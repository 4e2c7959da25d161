package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"boston-tracker/internal/engine"
)

// HTTPPusher sends snapshots and alerts to the trip API over HTTP.
type HTTPPusher struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPPusher(baseURL, token string) *HTTPPusher {
	return &HTTPPusher{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPPusher) PushSnapshot(ctx context.Context, snap engine.Snapshot) error {
	url := fmt.Sprintf("%s/trips/%s/metrics", p.baseURL, snap.TripID)
	return p.post(ctx, url, snap)
}

func (p *HTTPPusher) PushAlert(ctx context.Context, alert engine.Alert) error {
	url := fmt.Sprintf("%s/trips/%s/inactivity-alert", p.baseURL, alert.TripID)
	return p.post(ctx, url, alert)
}

// PushSample reports one raw fix so the backend can keep its own location
// history alongside the client's aggregates.
func (p *HTTPPusher) PushSample(ctx context.Context, tripID string, raw engine.RawSample) error {
	url := fmt.Sprintf("%s/trips/%s/samples", p.baseURL, tripID)
	return p.post(ctx, url, raw)
}

func (p *HTTPPusher) post(ctx context.Context, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusConflict {
		return ErrRemoteStopped
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return nil
}
