// Package merge is the boundary to the remote service that combines a
// session's audio and video after stop. The service does not exist yet; the
// orchestrator calls this interface so wiring it up later is a config change.
package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Request struct {
	SessionID string `json:"session_id"`
	MeetingID string `json:"meeting_id"`
	VideoPath string `json:"video_path"`
	AudioPath string `json:"audio_path"`
}

type Client interface {
	Merge(ctx context.Context, req Request) error
}

// Disabled is the no-op client used while no merge service is configured.
type Disabled struct{}

func (Disabled) Merge(ctx context.Context, req Request) error { return nil }

// HTTPClient posts merge requests to the configured merge service.
type HTTPClient struct {
	http *http.Client
	base string
}

func NewHTTPClient(base string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		http: &http.Client{Timeout: timeout},
		base: base,
	}
}

func (c *HTTPClient) Merge(ctx context.Context, mr Request) error {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(mr); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/merge", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("merge: %s: %s", resp.Status, string(b))
	}
	return nil
}
