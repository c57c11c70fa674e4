package transport

import (
	"context"
	"encoding/json"
	"net/http"
)

// ConnectionResult is the outcome of CheckConnection. Error is set only when
// Connected is false.
type ConnectionResult struct {
	Connected bool            `json:"connected"`
	Status    int             `json:"status,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// CheckConnection probes /health with the short health timeout. It never
// fails; problems are reported in the result.
func (c *Client) CheckConnection(ctx context.Context) ConnectionResult {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return ConnectionResult{Error: err.Error()}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.rt(req)
	if err != nil {
		return ConnectionResult{Error: err.Error()}
	}
	res := ConnectionResult{Connected: true, Status: resp.Status}
	if json.Valid(resp.Body) {
		res.Data = json.RawMessage(resp.Body)
	}
	return res
}
