package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSessionExpired means the server rejected the access token and no new one could
// be obtained. Tokens have been cleared; the user must log in again.
var ErrSessionExpired = errors.New("session expired, please log in again")

// ErrNoToken is returned by Verify when there is no access token to check.
var ErrNoToken = errors.New("no access token")

// SessionExpiredError carries the details behind ErrSessionExpired. When the
// access token was rejected and there was no refresh token, Status and Body are
// those of the rejected call. When a refresh was attempted and failed, Cause holds
// the refresh failure: an *oauth2.RetrieveError for an HTTP error response, or the
// transport error.
type SessionExpiredError struct {
	Status int
	Body   []byte
	Cause  error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: refresh failed: %v", ErrSessionExpired, e.Cause)
	}
	return fmt.Sprintf("%v: access token rejected with status %d", ErrSessionExpired, e.Status)
}

func (e *SessionExpiredError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrSessionExpired}
	}
	return []error{ErrSessionExpired, e.Cause}
}

// AuthError is a rejected login: bad credentials or missing fields. Detail is the
// server's message, suitable for showing next to the login form.
type AuthError struct {
	Status int
	Detail string
	// Fields holds per-field validation messages, if the server sent any.
	Fields map[string][]string
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return "login failed: " + e.Detail
	}
	return fmt.Sprintf("login failed with status %d", e.Status)
}

// APIError is any non-2xx response from a resource endpoint that the gateway did
// not handle itself.
type APIError struct {
	Status int
	Detail string
	Body   []byte
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api request failed with status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api request failed with status %d: %s", e.Status, string(e.Body))
}

// errorBody is the error shape used by the API: {"detail": "..."} for most errors,
// or a map of field name to messages for validation failures.
type errorBody struct {
	Detail string
	Fields map[string][]string
}

func parseErrorBody(body []byte) errorBody {
	var out errorBody

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return out
	}
	for key, val := range raw {
		if key == "detail" {
			_ = json.Unmarshal(val, &out.Detail)
			continue
		}
		var msgs []string
		if err := json.Unmarshal(val, &msgs); err != nil {
			var one string
			if err := json.Unmarshal(val, &one); err != nil {
				continue
			}
			msgs = []string{one}
		}
		if out.Fields == nil {
			out.Fields = make(map[string][]string)
		}
		out.Fields[key] = msgs
	}
	return out
}
