package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newCodeExchangeServer is a token endpoint that accepts one authorization code
// and requires a PKCE verifier.
func newCodeExchangeServer(t *testing.T, wantCode string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != wantCode {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		assert.NotEmpty(t, r.PostForm.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "exchanged-access",
			"refresh_token": "exchanged-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOAuthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost",
		Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/o/oauth2/auth",
			TokenURL: tokenURL,
		},
	}
}

// browserFollowing simulates the user granting consent: it calls the
// redirect URI embedded in the consent URL with the given query values.
func browserFollowing(t *testing.T, extra url.Values) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()

		assert.Equal(t, "offline", q.Get("access_type"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))

		callback := url.Values{"state": {q.Get("state")}}
		for k, v := range extra {
			callback[k] = v
		}
		go func() {
			resp, err := http.Get(q.Get("redirect_uri") + "/?" + callback.Encode())
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func TestLoopbackFlow_Success(t *testing.T) {
	tokenSrv := newCodeExchangeServer(t, "good-code")
	var out bytes.Buffer
	flow := &LoopbackFlow{
		Addr:        "127.0.0.1:0",
		Timeout:     5 * time.Second,
		OpenBrowser: true,
		Out:         &out,
		openURL:     browserFollowing(t, url.Values{"code": {"good-code"}}),
	}

	token, err := flow.Authorize(context.Background(), testOAuthConfig(tokenSrv.URL))
	require.NoError(t, err)
	assert.Equal(t, "exchanged-refresh", token.RefreshToken)
	assert.Contains(t, out.String(), "https://accounts.example.com/o/oauth2/auth")
}

func TestLoopbackFlow_IgnoresBareRequest(t *testing.T) {
	tokenSrv := newCodeExchangeServer(t, "good-code")
	flow := &LoopbackFlow{
		Addr:        "127.0.0.1:0",
		Timeout:     5 * time.Second,
		OpenBrowser: true,
		openURL: func(authURL string) error {
			u, err := url.Parse(authURL)
			require.NoError(t, err)
			q := u.Query()
			go func() {
				// A reload of the bare callback URL arrives before the redirect.
				if resp, err := http.Get(q.Get("redirect_uri") + "/"); err == nil {
					resp.Body.Close()
				}
				callback := url.Values{"state": {q.Get("state")}, "code": {"good-code"}}
				if resp, err := http.Get(q.Get("redirect_uri") + "/?" + callback.Encode()); err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	token, err := flow.Authorize(context.Background(), testOAuthConfig(tokenSrv.URL))
	require.NoError(t, err)
	assert.Equal(t, "exchanged-refresh", token.RefreshToken)
}

func TestLoopbackFlow_Denied(t *testing.T) {
	flow := &LoopbackFlow{
		Addr:        "127.0.0.1:0",
		Timeout:     5 * time.Second,
		OpenBrowser: true,
		openURL:     browserFollowing(t, url.Values{"error": {"access_denied"}}),
	}

	_, err := flow.Authorize(context.Background(), testOAuthConfig("http://127.0.0.1:1/token"))
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestLoopbackFlow_Timeout(t *testing.T) {
	flow := &LoopbackFlow{Addr: "127.0.0.1:0", Timeout: 50 * time.Millisecond}

	_, err := flow.Authorize(context.Background(), testOAuthConfig("http://127.0.0.1:1/token"))
	assert.ErrorIs(t, err, ErrAuthorizationTimeout)
}

func TestLoopbackFlow_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	flow := &LoopbackFlow{Addr: "127.0.0.1:0", Timeout: time.Minute}

	_, err := flow.Authorize(ctx, testOAuthConfig("http://127.0.0.1:1/token"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoopbackFlow_DoesNotMutateConfig(t *testing.T) {
	conf := testOAuthConfig("http://127.0.0.1:1/token")
	flow := &LoopbackFlow{Addr: "127.0.0.1:0", Timeout: 10 * time.Millisecond}

	flow.Authorize(context.Background(), conf)
	assert.Equal(t, "http://localhost", conf.RedirectURL)
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
		wantErr    bool
	}{
		{name: "code", target: "/?state=s&code=abc", wantStatus: http.StatusOK, wantCode: "abc"},
		{name: "state mismatch", target: "/?state=other&code=abc", wantStatus: http.StatusBadRequest, wantErr: true},
		{name: "denied", target: "/?error=access_denied", wantStatus: http.StatusForbidden, wantErr: true},
		{name: "no code", target: "/?state=s", wantStatus: http.StatusBadRequest, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make(chan callbackResult, 1)
			rec := httptest.NewRecorder()
			callbackHandler("s", results).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			res := <-results
			assert.Equal(t, tt.wantCode, res.code)
			assert.Equal(t, tt.wantErr, res.err != nil)
		})
	}
}

func TestCallbackHandler_IgnoresOtherPaths(t *testing.T) {
	results := make(chan callbackResult, 1)
	rec := httptest.NewRecorder()
	callbackHandler("s", results).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, results)
}

func TestCallbackHandler_IgnoresBareRequest(t *testing.T) {
	results := make(chan callbackResult, 1)
	rec := httptest.NewRecorder()
	callbackHandler("s", results).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, results)
}

func TestManualFlow(t *testing.T) {
	tokenSrv := newCodeExchangeServer(t, "pasted-code")

	t.Run("exchanges pasted code", func(t *testing.T) {
		var out bytes.Buffer
		flow := &ManualFlow{In: strings.NewReader("  pasted-code \n"), Out: &out}

		token, err := flow.Authorize(context.Background(), testOAuthConfig(tokenSrv.URL))
		require.NoError(t, err)
		assert.Equal(t, "exchanged-refresh", token.RefreshToken)
		assert.Contains(t, out.String(), "Enter the authorization code")
	})

	t.Run("empty input aborts", func(t *testing.T) {
		flow := &ManualFlow{In: strings.NewReader("\n")}

		_, err := flow.Authorize(context.Background(), testOAuthConfig(tokenSrv.URL))
		assert.ErrorIs(t, err, ErrAuthorizationAborted)
	})

	t.Run("eof aborts", func(t *testing.T) {
		flow := &ManualFlow{In: strings.NewReader("")}

		_, err := flow.Authorize(context.Background(), testOAuthConfig(tokenSrv.URL))
		assert.ErrorIs(t, err, ErrAuthorizationAborted)
	})

	t.Run("rejected code", func(t *testing.T) {
		flow := &ManualFlow{In: strings.NewReader("wrong-code\n")}

		_, err := flow.Authorize(context.Background(), testOAuthConfig(tokenSrv.URL))
		assert.Error(t, err)
	})
}
