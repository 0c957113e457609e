// Package auth obtains an authorized Google Calendar session. A cached
// credential is reused when one exists; otherwise an interactive OAuth2 flow
// runs once and its refresh token is persisted for later runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/beekhof/upcoming/internal/logging"
)

var (
	// ErrAuthorizationDenied is returned when the user declines consent.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrAuthorizationAborted is returned when the flow ends without a code.
	ErrAuthorizationAborted = errors.New("authorization aborted")
	// ErrAuthorizationTimeout is returned when no callback arrives in time.
	ErrAuthorizationTimeout = errors.New("authorization timed out")
	// ErrNoRefreshToken is returned when the token endpoint issues no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token received")
)

// Flow runs an interactive authorization and returns the issued token.
type Flow interface {
	Authorize(ctx context.Context, oauthConfig *oauth2.Config) (*oauth2.Token, error)
}

// ManagerConfig holds the explicit configuration of a Manager.
type ManagerConfig struct {
	Store            CredentialStore
	ClientSecretPath string
	Flow             Flow
	// Scopes defaults to read-only calendar access.
	Scopes []string
	// Endpoint used to refresh cached credentials. Defaults to google.Endpoint.
	Endpoint oauth2.Endpoint
	Logger   *slog.Logger
}

// Manager loads or creates the cached credential and builds sessions from it.
type Manager struct {
	store            CredentialStore
	clientSecretPath string
	flow             Flow
	scopes           []string
	endpoint         oauth2.Endpoint
	logger           *slog.Logger
}

// NewManager creates a Manager, filling in defaults for unset fields.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		store:            cfg.Store,
		clientSecretPath: cfg.ClientSecretPath,
		flow:             cfg.Flow,
		scopes:           cfg.Scopes,
		endpoint:         cfg.Endpoint,
		logger:           logging.OrDiscard(cfg.Logger),
	}
	if len(m.scopes) == 0 {
		m.scopes = []string{calendar.CalendarReadonlyScope}
	}
	if m.endpoint.TokenURL == "" {
		m.endpoint = google.Endpoint
	}
	return m
}

// LoadCached returns the cached credential and true when it can be reused.
// Any read or parse failure, or a credential without a refresh token, is
// reported as not authorized rather than as an error.
func (m *Manager) LoadCached() (*Credential, bool) {
	cred, err := m.store.LoadCredential()
	if err != nil {
		m.logger.Debug("ignoring unusable cached credential", logging.Err(err))
		return nil, false
	}
	if cred == nil {
		m.logger.Debug("no cached credential")
		return nil, false
	}
	if cred.RefreshToken == "" {
		m.logger.Debug("cached credential has no refresh token")
		return nil, false
	}
	return cred, true
}

// Authorize returns an HTTP client authorized for the calendar API. The
// interactive flow runs only when no reusable credential is cached; its
// result is persisted, overwriting the cache file.
func (m *Manager) Authorize(ctx context.Context) (*http.Client, error) {
	if cred, ok := m.LoadCached(); ok {
		m.logger.Debug("using cached credential")
		oauthConfig := &oauth2.Config{
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			Endpoint:     m.endpoint,
			Scopes:       m.scopes,
		}
		return m.newClient(ctx, oauthConfig, cred, &oauth2.Token{RefreshToken: cred.RefreshToken}), nil
	}

	if m.flow == nil {
		return nil, fmt.Errorf("no cached credential and no interactive flow configured")
	}

	oauthConfig, err := LoadClientConfig(m.clientSecretPath, m.scopes...)
	if err != nil {
		return nil, err
	}

	token, err := m.flow.Authorize(ctx, oauthConfig)
	if err != nil {
		return nil, fmt.Errorf("interactive authorization failed: %w", err)
	}
	if token == nil || token.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	cred := &Credential{
		Type:         AuthorizedUserType,
		ClientID:     oauthConfig.ClientID,
		ClientSecret: oauthConfig.ClientSecret,
		RefreshToken: token.RefreshToken,
	}
	if err := m.store.SaveCredential(cred); err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}
	m.logger.Info("authorization successful, credential saved")

	return m.newClient(ctx, oauthConfig, cred, token), nil
}

func (m *Manager) newClient(ctx context.Context, oauthConfig *oauth2.Config, cred *Credential, token *oauth2.Token) *http.Client {
	source := &autoSaveTokenSource{
		source:     oauthConfig.TokenSource(ctx, token),
		store:      m.store,
		credential: *cred,
		logger:     m.logger,
	}
	return oauth2.NewClient(ctx, source)
}

// LoadClientConfig reads the client-secret descriptor downloaded from the
// Google Cloud Console ("installed" or "web" section) into an oauth2.Config.
func LoadClientConfig(path string, scopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secret file: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secret file: %w", err)
	}

	return oauthConfig, nil
}

// autoSaveTokenSource wraps an oauth2.TokenSource and persists the credential
// when the token endpoint rotates the refresh token.
type autoSaveTokenSource struct {
	source oauth2.TokenSource
	store  CredentialStore
	logger *slog.Logger

	mu         sync.Mutex
	credential Credential
}

// Token implements oauth2.TokenSource. It is called concurrently by the
// transport, once per outgoing request.
func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if token.RefreshToken != "" && token.RefreshToken != a.credential.RefreshToken {
		updated := a.credential
		updated.RefreshToken = token.RefreshToken
		if err := a.store.SaveCredential(&updated); err != nil {
			a.logger.Warn("failed to save rotated refresh token", logging.Err(err))
		} else {
			a.credential = updated
			a.logger.Debug("saved rotated refresh token")
		}
	}

	return token, nil
}
