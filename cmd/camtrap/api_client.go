package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"camtrap/internal/region"
	"camtrap/internal/web"
)

// followSlack covers the daemon's long-poll window on /api/logs.
const followSlack = 35 * time.Second

type apiClient struct {
	base    string
	timeout time.Duration
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{base: base, timeout: timeout}
}

func (c *apiClient) Status() (web.StatusResponse, error) {
	var resp web.StatusResponse
	err := c.do(fiber.Get(c.base+"/api/status"), c.timeout, &resp)
	return resp, err
}

func (c *apiClient) Recenter(x, y int) (region.Region, error) {
	query := url.Values{}
	query.Set("x", strconv.Itoa(x))
	query.Set("y", strconv.Itoa(y))
	var resp region.Region
	err := c.do(fiber.Get(c.base+"/get_coord?"+query.Encode()), c.timeout, &resp)
	return resp, err
}

func (c *apiClient) Capture() error {
	return c.do(fiber.Post(c.base+"/api/capture"), c.timeout, nil)
}

func (c *apiClient) Logs(since uint64, limit int, follow bool) (web.LogsResponse, error) {
	query := url.Values{}
	if since > 0 {
		query.Set("since", strconv.FormatUint(since, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	timeout := c.timeout
	if follow {
		query.Set("follow", "true")
		timeout = followSlack
	}
	target := c.base + "/api/logs"
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	var resp web.LogsResponse
	err := c.do(fiber.Get(target), timeout, &resp)
	return resp, err
}

// FollowLogs long-polls the daemon and hands each batch to fn until ctx ends.
func (c *apiClient) FollowLogs(ctx context.Context, since uint64, fn func(web.LogsResponse)) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		resp, err := c.Logs(since, 0, true)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(resp.Events) > 0 {
			fn(resp)
		}
		if resp.Next > since {
			since = resp.Next
		}
	}
}

func (c *apiClient) do(agent *fiber.Agent, timeout time.Duration, out any) error {
	agent.Timeout(timeout)
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return wrapDialError(errs[0], c.base)
	}
	if code >= fiber.StatusMultipleChoices {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", code, payload.Error)
		}
		return fmt.Errorf("daemon returned %d", code)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}
