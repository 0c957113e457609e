package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AuthorizedUserType is the credential type written to the cache file.
const AuthorizedUserType = "authorized_user"

// Credential is the cached OAuth2 credential of the authorized user.
type Credential struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// CredentialStore is an interface for saving and loading the cached credential.
type CredentialStore interface {
	SaveCredential(cred *Credential) error
	LoadCredential() (*Credential, error)
}

// FileCredentialStore is a file-based implementation of credential storage.
type FileCredentialStore struct {
	Path string
}

// NewFileCredentialStore creates a new FileCredentialStore with the given path.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{Path: path}
}

// SaveCredential writes the credential to store.Path, replacing any previous content.
func (store *FileCredentialStore) SaveCredential(cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if dir := filepath.Dir(store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create credential directory: %w", err)
		}
	}

	if err := os.WriteFile(store.Path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}

	return nil
}

// LoadCredential loads the credential from store.Path.
// Returns nil, nil if the file does not exist.
func (store *FileCredentialStore) LoadCredential() (*Credential, error) {
	data, err := os.ReadFile(store.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	return &cred, nil
}
