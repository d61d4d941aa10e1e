// Package gateway sends API calls with the current access token and recovers from
// an expired access token by refreshing it and retrying the call once.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/pazami01/sptb/tokenstore"
)

// DefaultTimeout bounds each outbound call, including the refresh call.
const DefaultTimeout = 10 * time.Second

// Doer sends one HTTP request. *retry.Client satisfies it.
type Doer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// SessionManager records the outcomes of login and of unrecoverable 401s.
// *session.Session satisfies it.
type SessionManager interface {
	Login(access, refresh string) error
	Expire(reason error) error
}

// Observer is told about the steps of the refresh-and-retry cycle.
type Observer interface {
	AccessTokenRejected(path string)
	TokenRefreshedRetrying(path string)
	ReAuthRequired(err error)
}

// Gateway wraps every API call. It is safe for concurrent use.
type Gateway struct {
	base     *url.URL
	client   Doer
	store    tokenstore.Store
	sessions SessionManager
	observer Observer
	limiter  *rate.Limiter
	timeout  time.Duration
	log      zerolog.Logger

	// mu makes "is the rejected token still current? then clear it" atomic.
	mu      sync.Mutex
	flights singleflight.Group
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClient sets the transport. The default is a go-httpretry client.
func WithClient(c Doer) Option {
	return func(g *Gateway) { g.client = c }
}

// WithSessionManager routes login results and session expiry through m. Without
// one, the gateway writes to the token store directly.
func WithSessionManager(m SessionManager) Option {
	return func(g *Gateway) { g.sessions = m }
}

// WithObserver reports refresh-and-retry progress to o.
func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// WithRateLimit caps outbound calls at perSecond with the given burst. Zero or
// negative perSecond disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *Gateway) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// New creates a Gateway for the API at baseURL holding its tokens in store.
func New(baseURL string, store tokenstore.Store, opts ...Option) (*Gateway, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme and host are required", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	g := &Gateway{
		base:     base,
		store:    store,
		observer: nopObserver{},
		timeout:  DefaultTimeout,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.sessions == nil {
		g.sessions = storeSessions{store: store}
	}
	if g.client == nil {
		c, err := NewRetryClient()
		if err != nil {
			return nil, err
		}
		g.client = c
	}
	return g, nil
}

// NewRetryClient builds the default transport: TLS 1.2+, pooled connections, and
// go-httpretry retries for transient failures.
func NewRetryClient(opts ...retry.Option) (*retry.Client, error) {
	base := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	c, err := retry.NewClient(append([]retry.Option{retry.WithHTTPClient(base)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	return c, nil
}

// Execute sends req with the current access token.
//
// Any response other than 401 is returned unchanged. A 401 from the login or
// refresh endpoint is also returned unchanged. Any other 401 triggers one refresh
// with the stored refresh token followed by exactly one retry, whose response is
// returned whatever its status. If there is no refresh token or the refresh fails,
// the tokens are cleared, the session is expired and a *SessionExpiredError is
// returned.
//
// The caller must close the response body.
func (g *Gateway) Execute(ctx context.Context, req *Request) (*http.Response, error) {
	resp, _, err := g.execute(ctx, req, true)
	return resp, err
}

// Restore refreshes the access token when the store holds only a refresh token,
// as left by a process that stopped between clearing a rejected access token and
// storing its replacement. It does nothing when an access token is stored or
// there is no refresh token. A failed refresh expires the session as in Execute.
func (g *Gateway) Restore(ctx context.Context) error {
	pair, err := g.store.Get()
	if err != nil {
		return fmt.Errorf("failed to read tokens: %w", err)
	}
	if pair.HasAccess() || !pair.HasRefresh() {
		return nil
	}
	g.log.Debug().Msg("no access token stored, refreshing")
	_, err = g.recoverAccess(ctx, "", nil)
	return err
}

// execute runs the protocol. With replay false, a successful refresh ends the call
// without resending req and returns a nil response with refreshed set.
func (g *Gateway) execute(
	ctx context.Context,
	req *Request,
	replay bool,
) (resp *http.Response, refreshed bool, err error) {
	if req.id == "" {
		req.id = uuid.NewString()
	}

	pair, err := g.store.Get()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read tokens: %w", err)
	}
	sent := pair.Access

	resp, err = g.dispatch(ctx, req, sent)
	if err != nil {
		return nil, false, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !recoverable(req.Path) {
		return resp, false, nil
	}

	g.log.Debug().
		Str("request_id", req.id).
		Str("path", req.Path).
		Msg("access token rejected")
	g.observer.AccessTokenRejected(req.Path)

	rejectedBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	access, err := g.recoverAccess(ctx, sent, rejectedBody)
	if err != nil {
		return nil, false, err
	}
	if !replay {
		return nil, true, nil
	}

	g.observer.TokenRefreshedRetrying(req.Path)
	retried, err := g.dispatch(ctx, req, access)
	if err != nil {
		return nil, true, fmt.Errorf("retry failed: %w", err)
	}
	return retried, true, nil
}

// recoverAccess returns an access token to retry with after sent was rejected.
func (g *Gateway) recoverAccess(ctx context.Context, sent string, rejectedBody []byte) (string, error) {
	g.mu.Lock()
	pair, err := g.store.Get()
	if err != nil {
		g.mu.Unlock()
		return "", fmt.Errorf("failed to read tokens: %w", err)
	}

	// Another call refreshed while this one was in flight.
	if pair.HasAccess() && pair.Access != sent {
		g.mu.Unlock()
		return pair.Access, nil
	}

	if pair.HasAccess() {
		if err := g.store.ClearAccess(); err != nil {
			g.mu.Unlock()
			return "", fmt.Errorf("failed to clear access token: %w", err)
		}
	}
	g.mu.Unlock()

	if !pair.HasRefresh() {
		return "", g.expire(&SessionExpiredError{
			Status: http.StatusUnauthorized,
			Body:   rejectedBody,
		})
	}

	access, err := g.refresh(ctx, pair.Refresh)
	if err != nil {
		if ctx.Err() != nil {
			// this caller gave up; the shared refresh may still succeed for others
			return "", ctx.Err()
		}
		return "", g.expire(&SessionExpiredError{Cause: err})
	}
	return access, nil
}

// refresh exchanges refreshToken for a new access token and persists it. Concurrent
// callers holding the same refresh token share one refresh call.
func (g *Gateway) refresh(ctx context.Context, refreshToken string) (string, error) {
	ch := g.flights.DoChan(refreshToken, func() (any, error) {
		// not bound to the first caller: its cancellation must not fail the others
		fctx := context.WithoutCancel(ctx)

		tok, err := g.requestRefresh(fctx, refreshToken)
		if err != nil {
			return "", err
		}

		g.mu.Lock()
		defer g.mu.Unlock()
		// rotation mode: the server issued a new refresh token as well
		if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
			err = g.store.Set(tok.AccessToken, tok.RefreshToken)
		} else {
			err = g.store.SetAccess(tok.AccessToken)
		}
		if err != nil {
			return "", fmt.Errorf("failed to store refreshed token: %w", err)
		}
		g.log.Debug().Msg("access token refreshed")
		return tok.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (g *Gateway) expire(e *SessionExpiredError) error {
	if err := g.sessions.Expire(e); err != nil {
		return errors.Join(e, err)
	}
	g.observer.ReAuthRequired(e)
	return e
}

// dispatch sends req once with access as bearer token (none when empty).
func (g *Gateway) dispatch(ctx context.Context, req *Request, access string) (*http.Response, error) {
	target, err := g.resolve(req)
	if err != nil {
		return nil, err
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, target, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", req.id)
	if access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}

	start := time.Now()
	resp, err := g.client.DoWithContext(reqCtx, httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s %s failed: %w", req.Method, req.Path, err)
	}
	g.log.Debug().
		Str("request_id", req.id).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("api call")

	// the timeout context must outlive this function until the body is consumed
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (g *Gateway) resolve(req *Request) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(req.Path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", req.Path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("request path %q must be relative to the API base", req.Path)
	}
	if len(req.Query) > 0 {
		q := ref.Query()
		for key, vals := range req.Query {
			for _, v := range vals {
				q.Add(key, v)
			}
		}
		ref.RawQuery = q.Encode()
	}
	return g.base.ResolveReference(ref).String(), nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// storeSessions is the SessionManager used when none is configured.
type storeSessions struct {
	store tokenstore.Store
}

func (s storeSessions) Login(access, refresh string) error { return s.store.Set(access, refresh) }
func (s storeSessions) Expire(error) error                 { return s.store.Clear() }

type nopObserver struct{}

func (nopObserver) AccessTokenRejected(string)    {}
func (nopObserver) TokenRefreshedRetrying(string) {}
func (nopObserver) ReAuthRequired(error)          {}
