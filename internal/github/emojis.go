package github

import (
	"context"
	"net/http"
)

// Emojis lists the emoji names GitHub renders, mapped to their image URLs.
func (c *Client) Emojis(ctx context.Context) (map[string]string, *Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, "emojis", nil)
	if err != nil {
		return nil, nil, err
	}

	var emojis map[string]string
	resp, err := c.Do(ctx, req, &emojis)
	if err != nil {
		return nil, resp, err
	}
	return emojis, resp, nil
}
