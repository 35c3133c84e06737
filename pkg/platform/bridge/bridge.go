// Package bridge talks to a chat platform bridge service over HTTP.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"chatkat/pkg/platform"
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements platform.Client against the bridge endpoints.
type Client struct {
	base    string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
}

var _ platform.Client = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		http: &fasthttp.Client{
			Name:                "chatkat",
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// StatusError is a non-2xx bridge response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bridge status %d: %s", e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		bb := bytebufferpool.Get()
		defer bytebufferpool.Put(bb)
		if err := json.NewEncoder(bb).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(bb.B)
	}

	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return &StatusError{Status: status, Body: string(resp.Body())}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func esc(s string) string { return url.PathEscape(s) }

func (c *Client) Send(ctx context.Context, roomID, text string) error {
	return c.do(ctx, fasthttp.MethodPost, "/rooms/"+esc(roomID)+"/messages", map[string]string{"content": text}, nil)
}

func (c *Client) MessagesAfter(ctx context.Context, communityID, roomID string, after int64, limit int) ([]platform.MessageEvent, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(after, 10))
	q.Set("limit", strconv.Itoa(limit))
	path := "/communities/" + esc(communityID) + "/rooms/" + esc(roomID) + "/messages?" + q.Encode()
	var out struct {
		Messages []platform.MessageEvent `json:"messages"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) Mention(authorID string) string { return platform.Mention(authorID) }

func (c *Client) DisplayName(ctx context.Context, communityID, authorID string) (string, error) {
	var out struct {
		DisplayName string `json:"display_name"`
	}
	err := c.do(ctx, fasthttp.MethodGet, "/communities/"+esc(communityID)+"/members/"+esc(authorID), nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Status == fasthttp.StatusNotFound {
		return "", platform.ErrNotMember
	}
	if err != nil {
		return "", err
	}
	return out.DisplayName, nil
}

func (c *Client) Username(ctx context.Context, authorID string) (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/users/"+esc(authorID), nil, &out); err != nil {
		return "", err
	}
	return out.Username, nil
}

func (c *Client) CanSend(ctx context.Context, communityID, roomID string) (bool, error) {
	var out struct {
		Send bool `json:"send"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/communities/"+esc(communityID)+"/rooms/"+esc(roomID)+"/permissions", nil, &out); err != nil {
		return false, err
	}
	return out.Send, nil
}
