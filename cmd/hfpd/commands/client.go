package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/haivivi/hfpag/pkg/headset"
)

// apiClient talks to the HTTP API of a running daemon.
type apiClient struct {
	base *url.URL
	http *http.Client
}

func newAPIClient(base *url.URL) *apiClient {
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the service snapshot.
func (c *apiClient) Status(ctx context.Context) (headset.Snapshot, error) {
	var snap headset.Snapshot
	err := c.do(ctx, http.MethodGet, "/status", nil, &snap)
	return snap, err
}

// Do sends body (if any) as JSON and decodes an actionResult.
func (c *apiClient) Do(ctx context.Context, method, path string, body any) error {
	var res actionResult
	if err := c.do(ctx, method, path, body, &res); err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%s %s: %s", method, path, res.Error)
	}
	return nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reach daemon: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusConflict:
		// 409 carries an actionResult with ok=false.
	case resp.StatusCode >= 400:
		var res actionResult
		if json.NewDecoder(resp.Body).Decode(&res) == nil && res.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, res.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
