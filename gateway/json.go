package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
)

// DoJSON executes a JSON call: in (if non-nil) is sent as the body and a 2xx
// response body is decoded into out (if non-nil). Non-2xx responses become
// *APIError; session loss comes back as *SessionExpiredError from Execute.
func (g *Gateway) DoJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	req, err := NewJSONRequest(method, path, in)
	if err != nil {
		return err
	}
	req.Query = query

	resp, err := g.Execute(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: parseErrorBody(body).Detail, Body: body}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
