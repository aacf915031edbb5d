// Package persistence is the HTTP client for the board API.
package persistence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

const maxErrorBody = 4 << 10

// Client implements the board persistence calls over the board API.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Unwrap maps the status code back to the domain error the server started from.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest:
		return domain.ErrInvalidChange
	case http.StatusConflict:
		return domain.ErrConcurrencyConflict
	}
	return nil
}

func (c *Client) QueryBoards(ctx context.Context, filter domain.BoardFilter) ([]domain.Board, error) {
	q := url.Values{}
	if filter.CreatedBy != "" {
		q.Set("createdBy", filter.CreatedBy)
	}
	if filter.Title != "" {
		q.Set("title", filter.Title)
	}
	var out []domain.Board
	if err := c.do(ctx, http.MethodGet, withQuery("/api/boards", q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBoard(ctx context.Context, id string, filter domain.TaskFilter) (*domain.Board, error) {
	q := url.Values{}
	if filter.Text != "" {
		q.Set("txt", filter.Text)
	}
	if len(filter.LabelIDs) > 0 {
		q.Set("labelIds", strings.Join(filter.LabelIDs, ","))
	}
	if len(filter.MemberIDs) > 0 {
		q.Set("memberIds", strings.Join(filter.MemberIDs, ","))
	}
	var out domain.Board
	if err := c.do(ctx, http.MethodGet, withQuery(boardPath(id), q), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveBoard creates the board when it has no id and replaces it otherwise.
func (c *Client) SaveBoard(ctx context.Context, b *domain.Board) (*domain.Board, error) {
	method, path := http.MethodPut, boardPath(b.ID)
	if b.ID == "" {
		method, path = http.MethodPost, "/api/boards"
	}
	var out domain.Board
	if err := c.do(ctx, method, path, b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveBoard(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, boardPath(id), nil, nil)
}

// UpdateBoard applies one change server side and returns the resulting board.
func (c *Client) UpdateBoard(ctx context.Context, boardID, groupID, taskID string, change domain.Change) (*domain.Board, error) {
	body := domain.ChangeRequest{GroupID: groupID, TaskID: taskID, Change: change}
	var out domain.Board
	if err := c.do(ctx, http.MethodPatch, boardPath(boardID)+"/change", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AppendActivity(ctx context.Context, req domain.ActivityRequest) error {
	return c.do(ctx, http.MethodPost, boardPath(req.BoardID)+"/activities", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func boardPath(id string) string {
	return "/api/boards/" + url.PathEscape(id)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
