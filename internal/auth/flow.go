package auth

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/beekhof/upcoming/internal/logging"
)

const (
	// DefaultCallbackAddr is tried first for the loopback redirect.
	DefaultCallbackAddr = "127.0.0.1:8080"
	// DefaultAuthTimeout bounds how long the loopback flow waits for consent.
	DefaultAuthTimeout = 5 * time.Minute

	oobRedirectURL = "urn:ietf:wg:oauth:2.0:oob"
)

// LoopbackFlow receives the authorization code on a local HTTP server.
type LoopbackFlow struct {
	// Addr is the preferred listen address. A random port is used when it is busy.
	Addr    string
	Timeout time.Duration
	// OpenBrowser launches the system browser on the consent URL.
	OpenBrowser bool
	// Out receives the user-facing instructions.
	Out    io.Writer
	Logger *slog.Logger

	openURL func(string) error
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements Flow.
func (f *LoopbackFlow) Authorize(ctx context.Context, oauthConfig *oauth2.Config) (*oauth2.Token, error) {
	logger := logging.OrDiscard(f.Logger)
	out := f.Out
	if out == nil {
		out = io.Discard
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}

	listener, err := listenLoopback(f.Addr)
	if err != nil {
		return nil, err
	}

	conf := *oauthConfig
	conf.RedirectURL = "http://" + listener.Addr().String()

	state, err := randomState()
	if err != nil {
		listener.Close()
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier))

	results := make(chan callbackResult, 1)
	server := &http.Server{
		Handler:      callbackHandler(state, results),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(results, callbackResult{err: fmt.Errorf("callback server error: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Debug("waiting for authorization callback", slog.String("redirect_url", conf.RedirectURL))
	if f.Addr != "" && listener.Addr().String() != f.Addr {
		fmt.Fprintf(out, "Note: %s was unavailable. Make sure %s is an authorized redirect URI.\n", f.Addr, conf.RedirectURL)
	}
	fmt.Fprintln(out, "Please visit the following URL to authorize the application:")
	fmt.Fprintln(out, authURL)

	if f.OpenBrowser {
		open := f.openURL
		if open == nil {
			open = openBrowser
		}
		if err := open(authURL); err != nil {
			logger.Debug("could not open browser", logging.Err(err))
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var code string
	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		code = res.code
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response received within %s", ErrAuthorizationTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// callbackHandler serves the OAuth redirect and reports the outcome once.
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		query := r.URL.Query()
		if !query.Has("state") && !query.Has("code") && !query.Has("error") {
			// Not a redirect from the consent page; keep waiting.
			http.Error(w, "waiting for authorization", http.StatusBadRequest)
			return
		}

		if errMsg := query.Get("error"); errMsg != "" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "<html><body><h1>Authorization failed</h1><p>You can close this window.</p></body></html>")
			deliver(results, callbackResult{err: fmt.Errorf("%w: %s", ErrAuthorizationDenied, errMsg)})
			return
		}
		if query.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			deliver(results, callbackResult{err: fmt.Errorf("authorization callback state mismatch")})
			return
		}
		code := query.Get("code")
		if code == "" {
			http.Error(w, "no authorization code received", http.StatusBadRequest)
			deliver(results, callbackResult{err: fmt.Errorf("%w: no authorization code received", ErrAuthorizationAborted)})
			return
		}

		fmt.Fprint(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
		deliver(results, callbackResult{code: code})
	})
	return mux
}

// deliver sends res unless a result is already pending.
func deliver(results chan<- callbackResult, res callbackResult) {
	select {
	case results <- res:
	default:
	}
}

func listenLoopback(addr string) (net.Listener, error) {
	if addr == "" {
		addr = DefaultCallbackAddr
	}
	listener, err := net.Listen("tcp", addr)
	if err == nil {
		return listener, nil
	}
	listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start local callback server: %w", err)
	}
	return listener, nil
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ManualFlow prints the consent URL and reads the authorization code the
// user pastes back. It suits hosts without a browser.
type ManualFlow struct {
	In  io.Reader
	Out io.Writer
}

// Authorize implements Flow.
func (f *ManualFlow) Authorize(ctx context.Context, oauthConfig *oauth2.Config) (*oauth2.Token, error) {
	out := f.Out
	if out == nil {
		out = io.Discard
	}

	conf := *oauthConfig
	if conf.RedirectURL == "" {
		conf.RedirectURL = oobRedirectURL
	}

	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL("state-token",
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier))

	fmt.Fprintln(out, "Please visit the following URL to authorize the application:")
	fmt.Fprintln(out, authURL)
	fmt.Fprint(out, "Enter the authorization code: ")

	in := f.In
	if in == nil {
		in = os.Stdin
	}
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read authorization code: %w", err)
		}
		return nil, ErrAuthorizationAborted
	}
	code := strings.TrimSpace(scanner.Text())
	if code == "" {
		return nil, ErrAuthorizationAborted
	}

	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}
