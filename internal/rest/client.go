// Package rest consumes the backend's session and breakout-room endpoints.
// REST fetches establish and repair the baseline snapshot that socket events
// layer deltas on top of.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sanctuary-client/internal/auth"
	"sanctuary-client/internal/model"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

type Client struct {
	base  *url.URL
	http  *http.Client
	creds *auth.Store
	log   *slog.Logger
}

func NewClient(baseURL string, creds *auth.Store, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:  u,
		http:  &http.Client{Timeout: 15 * time.Second},
		creds: creds,
		log:   logger,
	}, nil
}

type errorBody struct {
	Error string `json:"error"`
}

// do runs one request with the auth headers attached. A 401 is surfaced as
// ErrUnauthorized and nothing more: clearing credentials is the owner's
// decision, a token refresh may be in flight elsewhere.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	target := *c.base
	target.Path = strings.TrimSuffix(target.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return err
	}
	for name, value := range c.creds.AuthHeaders() {
		req.Header.Set(name, value)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
		case http.StatusForbidden:
			return fmt.Errorf("%s %s: %w", method, path, ErrForbidden)
		case http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
		default:
			if eb.Error != "" {
				return fmt.Errorf("%s %s: %s", method, path, eb.Error)
			}
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

// Session fetches the session snapshot the permission resolver evaluates
// against.
func (c *Client) Session(ctx context.Context, sessionID string) (model.Session, error) {
	var resp struct {
		Session sessionDTO `json:"session"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID, nil, &resp); err != nil {
		return model.Session{}, err
	}
	return resp.Session.toModel(), nil
}

// ListRooms fetches the authoritative breakout-room snapshot.
func (c *Client) ListRooms(ctx context.Context, sessionID string) ([]model.BreakoutRoom, error) {
	var resp struct {
		Rooms []RoomDTO `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/breakout-rooms", nil, &resp); err != nil {
		return nil, err
	}
	rooms := make([]model.BreakoutRoom, 0, len(resp.Rooms))
	for _, r := range resp.Rooms {
		rooms = append(rooms, r.ToModel())
	}
	return rooms, nil
}

type CreateRoomBody struct {
	Name            string `json:"name"`
	Topic           string `json:"topic,omitempty"`
	MaxParticipants int    `json:"maxParticipants"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	FacilitatorID   string `json:"facilitatorId,omitempty"`
}

// CreateRoom is the REST fallback for room creation when the socket path is
// unavailable.
func (c *Client) CreateRoom(ctx context.Context, sessionID string, body CreateRoomBody) (model.BreakoutRoom, error) {
	var resp struct {
		Room RoomDTO `json:"room"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/breakout-rooms", body, &resp); err != nil {
		return model.BreakoutRoom{}, err
	}
	return resp.Room.ToModel(), nil
}

func (c *Client) LeaveRoom(ctx context.Context, sessionID, roomID string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/breakout-rooms/"+roomID+"/leave", struct{}{}, nil)
}

func (c *Client) CloseRoom(ctx context.Context, sessionID, roomID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+sessionID+"/breakout-rooms/"+roomID, nil, nil)
}

func (c *Client) AutoAssign(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/breakout-rooms/auto-assign", struct{}{}, nil)
}
