// Package relayclient is the HTTP side-channel client (§6): reachability
// probe and attachment fetch against the relay's HTTP API, both under
// Basic Auth. Grounded on the teacher's service/app/api.go http.Get
// pattern, generalized from one hardcoded peer to any number/attachment id.
package relayclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Client wraps net/http with the relay's base URL and basic-auth
// credentials (§6: "Both use HTTP Basic auth with the receiver's
// credentials").
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

func New(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{},
	}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "relayclient: build request")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return c.http.Do(req)
}

// ProbeDevice reports whether number is currently reachable, per §4.3's
// post-disconnect reconnect probe (`GET /v1/devices/<number>`).
func (c *Client) ProbeDevice(ctx context.Context, number string) (bool, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/v1/devices/%s", number))
	if err != nil {
		return false, errors.Wrap(err, "relayclient: probe device")
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// FetchAttachment downloads the raw (still-encrypted) bytes for an
// attachment id (`GET /attachments/<id>`).
func (c *Client) FetchAttachment(ctx context.Context, id uint64) ([]byte, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/attachments/%d", id))
	if err != nil {
		return nil, errors.Wrap(err, "relayclient: fetch attachment")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("relayclient: attachment %d: status %d", id, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "relayclient: read attachment body")
	}
	return body, nil
}
