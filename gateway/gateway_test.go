package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/pazami01/sptb/session"
	"github.com/pazami01/sptb/tokenstore"
)

// httpDoer adapts a plain http.Client to Doer, without transport-level retries.
type httpDoer struct{ c *http.Client }

func (d httpDoer) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return d.c.Do(req.WithContext(ctx))
}

// fakeAPI imitates the token endpoints and one protected resource.
type fakeAPI struct {
	validAccess  string
	validRefresh string
	freshAccess  string
	// rotatedRefresh, when set, is returned by refresh as a new refresh token.
	rotatedRefresh string
	refreshDelay   time.Duration
	// alwaysReject makes the protected resource reject every token.
	alwaysReject bool

	refreshCalls  atomic.Int32
	resourceCalls atomic.Int32
	verifyCalls   atomic.Int32

	mu          sync.Mutex
	authHeaders []string
	requestIDs  []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		validAccess:  "freshA",
		validRefresh: "validR",
		freshAccess:  "freshA",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/token/":
		var c credentials
		json.NewDecoder(r.Body).Decode(&c)
		if c.Username == "" || c.Password == "" {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"username": {"This field is required."}})
			return
		}
		if c.Username != "student" || c.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "No active account found with the given credentials",
			})
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{Access: f.validAccess, Refresh: f.validRefresh})

	case "/auth/token/refresh/":
		f.refreshCalls.Add(1)
		var body refreshRequest
		json.NewDecoder(r.Body).Decode(&body)
		if f.refreshDelay > 0 {
			time.Sleep(f.refreshDelay)
		}
		if body.Refresh != f.validRefresh {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Token is invalid or expired",
				"code":   "token_not_valid",
			})
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{Access: f.freshAccess, Refresh: f.rotatedRefresh})

	case "/auth/token/verify/":
		f.verifyCalls.Add(1)
		var body verifyRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Token != f.validAccess {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{})

	case "/api/projects/":
		f.resourceCalls.Add(1)
		f.mu.Lock()
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		f.requestIDs = append(f.requestIDs, r.Header.Get("X-Request-ID"))
		f.mu.Unlock()
		if f.alwaysReject || r.Header.Get("Authorization") != "Bearer "+f.validAccess {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
			})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "title": "Team Builder"}})

	case "/api/missing/":
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) headers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...)
}

// recordingObserver counts the observer callbacks.
type recordingObserver struct {
	rejected atomic.Int32
	retrying atomic.Int32
	reauth   atomic.Int32
}

func (o *recordingObserver) AccessTokenRejected(string)    { o.rejected.Add(1) }
func (o *recordingObserver) TokenRefreshedRetrying(string) { o.retrying.Add(1) }
func (o *recordingObserver) ReAuthRequired(error)          { o.reauth.Add(1) }

func newTestGateway(t *testing.T, api *fakeAPI, store tokenstore.Store, opts ...Option) *Gateway {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	opts = append([]Option{WithClient(httpDoer{c: server.Client()})}, opts...)
	g, err := New(server.URL, store, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g
}

func projectsRequest() *Request {
	return NewRequest(http.MethodGet, "api/projects/")
}

func assertTokens(t *testing.T, store tokenstore.Store, want tokenstore.Pair) {
	t.Helper()
	got, err := store.Get()
	if err != nil {
		t.Fatalf("store.Get() error = %v", err)
	}
	if got != want {
		t.Errorf("tokens = %+v, want %+v", got, want)
	}
}

func TestExecute_ValidTokenSingleCall(t *testing.T) {
	api := newFakeAPI()
	store := tokenstore.NewMemory("freshA", "validR")
	g := newTestGateway(t, api, store)

	resp, err := g.Execute(context.Background(), projectsRequest())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if n := api.resourceCalls.Load(); n != 1 {
		t.Errorf("resource calls = %d, want 1", n)
	}
	if n := api.refreshCalls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
	if h := api.headers(); h[0] != "Bearer freshA" {
		t.Errorf("Authorization = %q, want %q", h[0], "Bearer freshA")
	}
}

func TestExecute_NoTokenOmitsHeader(t *testing.T) {
	api := newFakeAPI()
	g := newTestGateway(t, api, &tokenstore.Memory{})

	_, err := g.Execute(context.Background(), projectsRequest())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Execute() error = %v, want ErrSessionExpired", err)
	}
	if h := api.headers(); h[0] != "" {
		t.Errorf("Authorization = %q, want none", h[0])
	}
}

// Store starts with an expired access token and a valid refresh token; the call is
// retried once with the refreshed token and the caller sees the retry's 200.
func TestExecute_RefreshAndRetry(t *testing.T) {
	api := newFakeAPI()
	store := tokenstore.NewMemory("expiredA", "validR")
	obs := &recordingObserver{}
	g := newTestGateway(t, api, store, WithObserver(obs))

	req := projectsRequest()
	resp, err := g.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var projects []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&projects); err != nil || len(projects) != 1 {
		t.Errorf("unexpected project list %v (err %v)", projects, err)
	}

	if n := api.resourceCalls.Load(); n != 2 {
		t.Errorf("resource calls = %d, want 2", n)
	}
	if n := api.refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	h := api.headers()
	if h[0] != "Bearer expiredA" || h[1] != "Bearer freshA" {
		t.Errorf("Authorization headers = %v", h)
	}
	ids := api.requestIDs
	if ids[0] == "" || ids[0] != ids[1] || ids[0] != req.ID() {
		t.Errorf("retry should reuse the request id, got %v", ids)
	}

	assertTokens(t, store, tokenstore.Pair{Access: "freshA", Refresh: "validR"})

	if obs.rejected.Load() != 1 || obs.retrying.Load() != 1 || obs.reauth.Load() != 0 {
		t.Errorf("observer = rejected %d retrying %d reauth %d",
			obs.rejected.Load(), obs.retrying.Load(), obs.reauth.Load())
	}
}

func TestExecute_RefreshRotatesRefreshToken(t *testing.T) {
	api := newFakeAPI()
	api.rotatedRefresh = "rotatedR"
	store := tokenstore.NewMemory("expiredA", "validR")
	g := newTestGateway(t, api, store)

	resp, err := g.Execute(context.Background(), projectsRequest())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	resp.Body.Close()

	assertTokens(t, store, tokenstore.Pair{Access: "freshA", Refresh: "rotatedR"})
}

func TestExecute_NoRefreshTokenExpiresSession(t *testing.T) {
	api := newFakeAPI()
	store := tokenstore.NewMemory("expiredA", "")
	sess, err := session.New(store)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	var events []session.State
	sess.OnChange(func(s session.State) { events = append(events, s) })

	obs := &recordingObserver{}
	g := newTestGateway(t, api, store, WithSessionManager(sess), WithObserver(obs))

	resp, err := g.Execute(context.Background(), projectsRequest())
	if resp != nil {
		t.Errorf("expected no response, got status %d", resp.StatusCode)
	}

	var expired *SessionExpiredError
	if !errors.As(err, &expired) {
		t.Fatalf("Execute() error = %v, want *SessionExpiredError", err)
	}
	if expired.Status != http.StatusUnauthorized || expired.Cause != nil {
		t.Errorf("SessionExpiredError = %+v, want original 401 without cause", expired)
	}
	if !strings.Contains(string(expired.Body), "not valid") {
		t.Errorf("expected original body, got %q", expired.Body)
	}

	if n := api.resourceCalls.Load(); n != 1 {
		t.Errorf("resource calls = %d, want 1 (no retry)", n)
	}
	if n := api.refreshCalls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
	assertTokens(t, store, tokenstore.Pair{})
	if sess.State() != session.Anonymous || len(events) != 1 {
		t.Errorf("session state = %v, events = %v", sess.State(), events)
	}
	if obs.reauth.Load() != 1 {
		t.Errorf("ReAuthRequired calls = %d, want 1", obs.reauth.Load())
	}
}

func TestExecute_RefreshRejectedExpiresSession(t *testing.T) {
	api := newFakeAPI()
	store := tokenstore.NewMemory("expiredA", "revokedR")
	sess, err := session.New(store)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	g := newTestGateway(t, api, store, WithSessionManager(sess))

	_, err = g.Execute(context.Background(), projectsRequest())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Execute() error = %v, want ErrSessionExpired", err)
	}

	// the surfaced failure is the refresh's, not the original request's
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		t.Fatalf("error %v does not wrap *oauth2.RetrieveError", err)
	}
	if retrieveErr.Response.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh status = %d, want 401", retrieveErr.Response.StatusCode)
	}
	if !strings.Contains(string(retrieveErr.Body), "token_not_valid") {
		t.Errorf("refresh body = %q", retrieveErr.Body)
	}

	if n := api.refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if n := api.resourceCalls.Load(); n != 1 {
		t.Errorf("resource calls = %d, want 1", n)
	}
	assertTokens(t, store, tokenstore.Pair{})
	if sess.State() != session.Anonymous {
		t.Errorf("session state = %v, want anonymous", sess.State())
	}
}

func TestExecute_RetriesOnlyOnce(t *testing.T) {
	api := newFakeAPI()
	api.alwaysReject = true
	store := tokenstore.NewMemory("expiredA", "validR")
	g := newTestGateway(t, api, store)

	resp, err := g.Execute(context.Background(), projectsRequest())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want the retry's 401", resp.StatusCode)
	}
	if n := api.resourceCalls.Load(); n != 2 {
		t.Errorf("resource calls = %d, want 2", n)
	}
	if n := api.refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	// the refreshed token stays; only the original request gave up
	assertTokens(t, store, tokenstore.Pair{Access: "freshA", Refresh: "validR"})
}

func TestExecute_TokenEndpointsNeverRecover(t *testing.T) {
	t.Run("refresh endpoint", func(t *testing.T) {
		api := newFakeAPI()
		store := tokenstore.NewMemory("expiredA", "validR")
		g := newTestGateway(t, api, store)

		req, err := NewJSONRequest(http.MethodPost, PathRefresh, refreshRequest{Refresh: "badR"})
		if err != nil {
			t.Fatalf("NewJSONRequest() error = %v", err)
		}
		resp, err := g.Execute(context.Background(), req)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
		if n := api.refreshCalls.Load(); n != 1 {
			t.Errorf("refresh calls = %d, want only the request itself", n)
		}
		assertTokens(t, store, tokenstore.Pair{Access: "expiredA", Refresh: "validR"})
	})

	t.Run("login endpoint with leading slash", func(t *testing.T) {
		api := newFakeAPI()
		store := tokenstore.NewMemory("expiredA", "validR")
		g := newTestGateway(t, api, store)

		req, _ := NewJSONRequest(http.MethodPost, "/"+PathLogin, credentials{"student", "wrong"})
		resp, err := g.Execute(context.Background(), req)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
		if n := api.refreshCalls.Load(); n != 0 {
			t.Errorf("refresh calls = %d, want 0", n)
		}
	})
}

func TestExecute_ConcurrentRejectionsShareOneRefresh(t *testing.T) {
	api := newFakeAPI()
	api.refreshDelay = 100 * time.Millisecond
	store := tokenstore.NewMemory("expiredA", "validR")
	g := newTestGateway(t, api, store)

	const callers = 5
	var (
		wg       sync.WaitGroup
		statuses [callers]int
		errs     [callers]error
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			resp, err := g.Execute(context.Background(), projectsRequest())
			if err != nil {
				errs[i] = err
				return
			}
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d: error = %v", i, errs[i])
			continue
		}
		if statuses[i] != http.StatusOK {
			t.Errorf("caller %d: status = %d, want 200", i, statuses[i])
		}
	}
	if n := api.refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}

	fresh := 0
	for _, h := range api.headers() {
		if h == "Bearer freshA" {
			fresh++
		}
	}
	if fresh != callers {
		t.Errorf("%d calls carried the refreshed token, want %d", fresh, callers)
	}
	assertTokens(t, store, tokenstore.Pair{Access: "freshA", Refresh: "validR"})
}

func TestExecute_NonAuthErrorsPassThrough(t *testing.T) {
	api := newFakeAPI()
	store := tokenstore.NewMemory("freshA", "validR")
	g := newTestGateway(t, api, store)

	resp, err := g.Execute(context.Background(), NewRequest(http.MethodGet, "api/missing/"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if n := api.refreshCalls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
	assertTokens(t, store, tokenstore.Pair{Access: "freshA", Refresh: "validR"})
}

func TestExecute_ContextCanceledDuringRefresh(t *testing.T) {
	api := newFakeAPI()
	api.refreshDelay = 300 * time.Millisecond
	store := tokenstore.NewMemory("expiredA", "validR")
	g := newTestGateway(t, api, store)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := g.Execute(ctx, projectsRequest())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute() error = %v, want context.DeadlineExceeded", err)
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Errorf("a canceled caller must not expire the session")
	}

	// the shared refresh still completes and persists its token
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pair, _ := store.Get(); pair.Access == "freshA" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("refreshed token was not persisted after caller canceled")
}

func TestLogin(t *testing.T) {
	t.Run("success starts session", func(t *testing.T) {
		api := newFakeAPI()
		store := &tokenstore.Memory{}
		sess, err := session.New(store)
		if err != nil {
			t.Fatalf("session.New() error = %v", err)
		}
		g := newTestGateway(t, api, store, WithSessionManager(sess))

		tok, err := g.Login(context.Background(), "student", "secret")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if tok.AccessToken != "freshA" || tok.RefreshToken != "validR" || tok.Type() != "Bearer" {
			t.Errorf("unexpected token %+v", tok)
		}
		assertTokens(t, store, tokenstore.Pair{Access: "freshA", Refresh: "validR"})
		if sess.State() != session.Authenticated {
			t.Errorf("session state = %v, want authenticated", sess.State())
		}
	})

	t.Run("bad credentials", func(t *testing.T) {
		api := newFakeAPI()
		store := tokenstore.NewMemory("keepA", "keepR")
		g := newTestGateway(t, api, store)

		_, err := g.Login(context.Background(), "student", "wrong")
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("Login() error = %v, want *AuthError", err)
		}
		if authErr.Status != http.StatusUnauthorized ||
			authErr.Detail != "No active account found with the given credentials" {
			t.Errorf("AuthError = %+v", authErr)
		}
		if n := api.refreshCalls.Load(); n != 0 {
			t.Errorf("refresh calls = %d, want 0", n)
		}
		assertTokens(t, store, tokenstore.Pair{Access: "keepA", Refresh: "keepR"})
	})

	t.Run("missing fields", func(t *testing.T) {
		api := newFakeAPI()
		g := newTestGateway(t, api, &tokenstore.Memory{})

		_, err := g.Login(context.Background(), "", "")
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("Login() error = %v, want *AuthError", err)
		}
		if authErr.Status != http.StatusBadRequest || len(authErr.Fields["username"]) != 1 {
			t.Errorf("AuthError = %+v", authErr)
		}
	})
}

func TestVerify(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		api := newFakeAPI()
		g := newTestGateway(t, api, tokenstore.NewMemory("freshA", "validR"))

		if err := g.Verify(context.Background()); err != nil {
			t.Errorf("Verify() error = %v", err)
		}
	})

	t.Run("expired token is refreshed without re-verifying", func(t *testing.T) {
		api := newFakeAPI()
		store := tokenstore.NewMemory("expiredA", "validR")
		g := newTestGateway(t, api, store)

		if err := g.Verify(context.Background()); err != nil {
			t.Errorf("Verify() error = %v", err)
		}
		if n := api.verifyCalls.Load(); n != 1 {
			t.Errorf("verify calls = %d, want 1", n)
		}
		assertTokens(t, store, tokenstore.Pair{Access: "freshA", Refresh: "validR"})
	})

	t.Run("no token", func(t *testing.T) {
		api := newFakeAPI()
		g := newTestGateway(t, api, &tokenstore.Memory{})

		if err := g.Verify(context.Background()); !errors.Is(err, ErrNoToken) {
			t.Errorf("Verify() error = %v, want ErrNoToken", err)
		}
		if n := api.verifyCalls.Load(); n != 0 {
			t.Errorf("verify calls = %d, want 0", n)
		}
	})
}

func TestDoJSON(t *testing.T) {
	api := newFakeAPI()
	g := newTestGateway(t, api, tokenstore.NewMemory("freshA", "validR"))

	var projects []struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}
	if err := g.DoJSON(context.Background(), http.MethodGet, "api/projects/", nil, nil, &projects); err != nil {
		t.Fatalf("DoJSON() error = %v", err)
	}
	if len(projects) != 1 || projects[0].Title != "Team Builder" {
		t.Errorf("projects = %+v", projects)
	}

	err := g.DoJSON(context.Background(), http.MethodGet, "api/missing/", nil, nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("DoJSON() error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Detail != "Not found." {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestResolve(t *testing.T) {
	g, err := New("https://api.example.com/v1", &tokenstore.Memory{}, WithClient(httpDoer{c: http.DefaultClient}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name    string
		req     *Request
		want    string
		wantErr bool
	}{
		{
			name: "relative path",
			req:  NewRequest(http.MethodGet, "api/projects/"),
			want: "https://api.example.com/v1/api/projects/",
		},
		{
			name: "leading slash stays under base",
			req:  NewRequest(http.MethodGet, "/api/projects/"),
			want: "https://api.example.com/v1/api/projects/",
		},
		{
			name: "inline and extra query",
			req: &Request{
				Method: http.MethodGet,
				Path:   "api/projects?order=descending",
				Query:  map[string][]string{"relation": {"active"}},
			},
			want: "https://api.example.com/v1/api/projects?order=descending&relation=active",
		},
		{
			name:    "absolute URL rejected",
			req:     NewRequest(http.MethodGet, "https://evil.example.com/steal"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.resolve(tt.req)
			if tt.wantErr {
				if err == nil {
					t.Errorf("resolve() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8000", "://bad"} {
		if _, err := New(raw, &tokenstore.Memory{}, WithClient(httpDoer{c: http.DefaultClient})); err == nil {
			t.Errorf("New(%q) expected error", raw)
		}
	}
}

func TestExecute_RateLimited(t *testing.T) {
	api := newFakeAPI()
	g := newTestGateway(t, api, tokenstore.NewMemory("freshA", "validR"), WithRateLimit(20, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := g.Execute(context.Background(), projectsRequest())
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	// burst 1 at 20/s: the 2nd and 3rd call each wait ~50ms
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 calls took %v, expected rate limiting", elapsed)
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name        string
		store       tokenstore.Pair
		wantRefresh int32
		wantTokens  tokenstore.Pair
		wantExpired bool
	}{
		{
			name:        "refresh token only",
			store:       tokenstore.Pair{Refresh: "validR"},
			wantRefresh: 1,
			wantTokens:  tokenstore.Pair{Access: "freshA", Refresh: "validR"},
		},
		{
			name:       "access token present",
			store:      tokenstore.Pair{Access: "someA", Refresh: "validR"},
			wantTokens: tokenstore.Pair{Access: "someA", Refresh: "validR"},
		},
		{
			name: "no tokens",
		},
		{
			name:        "refresh rejected",
			store:       tokenstore.Pair{Refresh: "revokedR"},
			wantRefresh: 1,
			wantExpired: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			store := tokenstore.NewMemory(tt.store.Access, tt.store.Refresh)
			g := newTestGateway(t, api, store)

			err := g.Restore(context.Background())
			if tt.wantExpired {
				if !errors.Is(err, ErrSessionExpired) {
					t.Fatalf("Restore() error = %v, want ErrSessionExpired", err)
				}
			} else if err != nil {
				t.Fatalf("Restore() error = %v", err)
			}

			if n := api.refreshCalls.Load(); n != tt.wantRefresh {
				t.Errorf("refresh calls = %d, want %d", n, tt.wantRefresh)
			}
			if n := api.resourceCalls.Load(); n != 0 {
				t.Errorf("resource calls = %d, want 0", n)
			}
			assertTokens(t, store, tt.wantTokens)
		})
	}
}
