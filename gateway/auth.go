package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

// tokenResponse is the body of a successful login or refresh. Refresh only carries
// a refresh token when the server rotates them.
type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (t tokenResponse) token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.Access,
		RefreshToken: t.Refresh,
		TokenType:    "Bearer",
	}
}

// Login exchanges username and password for a token pair and starts a session
// with it. A rejected login returns *AuthError and leaves the tokens untouched.
func (g *Gateway) Login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	req, err := NewJSONRequest(http.MethodPost, PathLogin, credentials{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	resp, err := g.Execute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		parsed := parseErrorBody(body)
		return nil, &AuthError{Status: resp.StatusCode, Detail: parsed.Detail, Fields: parsed.Fields}
	default:
		return nil, &APIError{Status: resp.StatusCode, Detail: parseErrorBody(body).Detail, Body: body}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.Access == "" || tr.Refresh == "" {
		return nil, errors.New("invalid token response: access and refresh tokens are required")
	}

	if err := g.sessions.Login(tr.Access, tr.Refresh); err != nil {
		return nil, err
	}
	return tr.token(), nil
}

// Verify asks the server whether the stored access token is still valid. If it is
// not, the normal recovery applies: a successful refresh counts as verified and the
// verify call is not repeated; otherwise the session expires.
func (g *Gateway) Verify(ctx context.Context) error {
	pair, err := g.store.Get()
	if err != nil {
		return fmt.Errorf("failed to read tokens: %w", err)
	}
	if !pair.HasAccess() {
		return ErrNoToken
	}

	req, err := NewJSONRequest(http.MethodPost, PathVerify, verifyRequest{Token: pair.Access})
	if err != nil {
		return err
	}

	resp, refreshed, err := g.execute(ctx, req, false)
	if err != nil {
		return err
	}
	if refreshed {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Detail: parseErrorBody(body).Detail, Body: body}
	}
	return nil
}

// requestRefresh calls the refresh endpoint. HTTP failures come back as
// *oauth2.RetrieveError.
func (g *Gateway) requestRefresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	req, err := NewJSONRequest(http.MethodPost, PathRefresh, refreshRequest{Refresh: refreshToken})
	if err != nil {
		return nil, err
	}
	req.id = uuid.NewString()

	resp, err := g.dispatch(ctx, req, "")
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &oauth2.RetrieveError{
			Response: resp,
			Body:     body,
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.Access == "" {
		return nil, errors.New("invalid token response: access token is empty")
	}
	return tr.token(), nil
}
