package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/protocol"
)

var ErrAPI = errors.New("chat api error")

// StatusError ответ сервера с кодом >= 400
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api error %d", e.Status)
	}
	return fmt.Sprintf("chat api error %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return domain.ErrAuth
	}
	return ErrAPI
}

// Client REST-клиент чата
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	logger zerolog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logging.Component(logger, "api"),
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp protocol.ErrorResponse
		_ = json.Unmarshal(respBody, &errResp)
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("request failed")
		return &StatusError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrAPI, path, err)
	}
	return nil
}

// GetOrCreateRoom идемпотентно возвращает комнату с собеседником
func (c *Client) GetOrCreateRoom(ctx context.Context, counterpartID string) (string, error) {
	var resp protocol.GetOrCreateRoomResponse
	req := protocol.GetOrCreateRoomRequest{TargetUserID: protocol.FlexID(counterpartID)}
	if err := c.doRequest(ctx, http.MethodPost, protocol.PathGetOrCreateRoom, req, &resp); err != nil {
		return "", err
	}
	if resp.RoomID == "" {
		return "", fmt.Errorf("%w: empty room_id", ErrAPI)
	}
	return resp.RoomID.String(), nil
}

// MyRooms список комнат текущего пользователя
func (c *Client) MyRooms(ctx context.Context) ([]domain.Room, error) {
	var resp []protocol.RoomDTO
	if err := c.doRequest(ctx, http.MethodGet, protocol.PathMyRooms, nil, &resp); err != nil {
		return nil, err
	}

	rooms := make([]domain.Room, 0, len(resp))
	for _, r := range resp {
		rooms = append(rooms, r.ToDomain())
	}
	return rooms, nil
}

// RoomHistory страница истории; before пустой для самой свежей
func (c *Client) RoomHistory(ctx context.Context, roomID, before string) ([]domain.Message, error) {
	path := protocol.RoomHistoryPath(roomID)
	if before != "" {
		path += "?" + url.Values{protocol.QueryBefore: {before}}.Encode()
	}

	var resp []protocol.MessageDTO
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, 0, len(resp))
	for _, m := range resp {
		msg := m.ToDomain(roomID)
		if err := msg.Validate(); err != nil {
			c.logger.Warn().Err(err).Str(logging.FieldMessageID, msg.ID).Msg("history entry skipped")
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (c *Client) MarkSeen(ctx context.Context, roomID string) error {
	return c.doRequest(ctx, http.MethodPatch, protocol.MarkSeenPath(roomID), nil, nil)
}
