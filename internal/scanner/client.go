package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"eventpass/internal/model"
)

var (
	ErrInvalidToken     = errors.New("invalid code")
	ErrAlreadyCheckedIn = errors.New("already scanned")
	ErrUnauthorized     = errors.New("not authorized")
)

// Session is the operator's login, passed explicitly to whatever needs it.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.Token != "" && now.Before(s.ExpiresAt)
}

// Client talks to the eventpass API on behalf of a door station.
type Client struct {
	baseURL string
	http    *http.Client
	session *Session
}

func NewClient(baseURL string, httpClient *http.Client, session *Session) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, session: session}
}

// Login obtains an admin session.
func Login(ctx context.Context, baseURL string, httpClient *http.Client, username, password string) (*Session, error) {
	c := NewClient(baseURL, httpClient, nil)
	body, err := c.post(ctx, "/api/auth/login", map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	s := &Session{Token: gjson.GetBytes(body, "data.token").String()}
	if s.Token == "" {
		return nil, fmt.Errorf("login response carried no token")
	}
	s.ExpiresAt = gjson.GetBytes(body, "data.expiresAt").Time()
	return s, nil
}

func (c *Client) Validate(ctx context.Context, token string) (*model.Attendee, error) {
	body, err := c.post(ctx, "/api/registrations/validate", map[string]string{"token": token})
	if err != nil {
		return nil, err
	}
	var att model.Attendee
	if err := json.Unmarshal([]byte(gjson.GetBytes(body, "data").Raw), &att); err != nil {
		return nil, fmt.Errorf("failed to decode attendee: %w", err)
	}
	return &att, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.session != nil && c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	code := gjson.GetBytes(body, "error.code").String()
	switch code {
	case "INVALID_TOKEN":
		return nil, ErrInvalidToken
	case "ALREADY_CHECKED_IN":
		return nil, ErrAlreadyCheckedIn
	case "UNAUTHORIZED", "FORBIDDEN":
		return nil, ErrUnauthorized
	}
	desc := gjson.GetBytes(body, "error.desc").String()
	if desc == "" {
		desc = http.StatusText(resp.StatusCode)
	}
	return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, desc)
}
