package scanner

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"
)

// SnapshotSource polls a camera's still-image endpoint, as exposed by most IP
// cameras and phone webcam apps.
type SnapshotSource struct {
	url      string
	client   *http.Client
	interval time.Duration
	username string
	password string
	last     time.Time
}

func NewSnapshotSource(url string, interval time.Duration, client *http.Client) *SnapshotSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SnapshotSource{url: url, client: client, interval: interval}
}

// WithBasicAuth sets camera credentials.
func (s *SnapshotSource) WithBasicAuth(username, password string) *SnapshotSource {
	s.username, s.password = username, password
	return s
}

func (s *SnapshotSource) Next(ctx context.Context) (image.Image, error) {
	if wait := s.interval - time.Since(s.last); wait > 0 && !s.last.IsZero() {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	s.last = time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch frame: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrPermissionDenied
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("camera returned status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFrame, err)
	}
	return img, nil
}
