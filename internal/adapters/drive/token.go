package drive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/crypto"
)

// EnvToken overrides the stored access token.
const EnvToken = "DOCSYNC_DRIVE_TOKEN"

// DefaultRevokeURL is Google's token revocation endpoint.
const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// TokenStore keeps the Drive access token in a file, sealed with an Encryptor
// when one is provided.
type TokenStore struct {
	path       string
	enc        *crypto.Encryptor
	revokeURL  string
	httpClient *http.Client
	getenv     func(string) string

	mu       sync.Mutex
	cached   string
	rejected string
}

// TokenOption configures a TokenStore.
type TokenOption func(*TokenStore)

// WithRevokeURL sets the revocation endpoint.
func WithRevokeURL(u string) TokenOption {
	return func(s *TokenStore) { s.revokeURL = u }
}

// WithTokenHTTPClient sets the client used for revocation.
func WithTokenHTTPClient(c *http.Client) TokenOption {
	return func(s *TokenStore) { s.httpClient = c }
}

// WithEnv replaces the environment lookup.
func WithEnv(getenv func(string) string) TokenOption {
	return func(s *TokenStore) { s.getenv = getenv }
}

// NewTokenStore creates a token store backed by path. enc may be nil.
func NewTokenStore(path string, enc *crypto.Encryptor, opts ...TokenOption) *TokenStore {
	s := &TokenStore{
		path:       path,
		enc:        enc,
		revokeURL:  DefaultRevokeURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		getenv:     os.Getenv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.Authenticator = (*TokenStore)(nil)

// Token returns the current access token. A token refused by Drive is not
// handed out again.
func (s *TokenStore) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v := strings.TrimSpace(s.getenv(EnvToken)); v != "" {
		if v == s.rejected {
			return "", errRejected(EnvToken + " holds a token drive already refused")
		}
		return v, nil
	}

	if s.cached != "" {
		return s.cached, nil
	}
	token, err := s.load()
	if err != nil {
		return "", err
	}
	if token == s.rejected {
		return "", errRejected("stored token was refused by drive")
	}
	s.cached = token
	return token, nil
}

// Invalidate marks token as refused and drops it from the cache.
func (s *TokenStore) Invalidate(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = token
	if s.cached == token {
		s.cached = ""
	}
}

func errRejected(reason string) error {
	return domainErrors.AuthExpired(reason+"; run 'docsync auth login'", nil)
}

// Reauthenticate drops the cached token and reloads it from disk, picking up a
// token saved by another process after the previous one expired. Reloading the
// token Drive refused fails.
func (s *TokenStore) Reauthenticate(ctx context.Context) error {
	s.mu.Lock()
	s.cached = ""
	s.mu.Unlock()
	_, err := s.Token(ctx)
	return err
}

// Save stores a new access token.
func (s *TokenStore) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainErrors.NewError(domainErrors.CodeValidation, "access token is empty", nil)
	}

	stored := token
	if s.enc != nil {
		sealed, err := s.enc.Seal(token)
		if err != nil {
			return fmt.Errorf("failed to seal token: %w", err)
		}
		stored = sealed
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(stored+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}

	s.mu.Lock()
	s.cached = token
	s.rejected = ""
	s.mu.Unlock()
	return nil
}

// Revoke asks Google to invalidate the token and removes it locally. The local
// copy is removed even when the remote call fails.
func (s *TokenStore) Revoke(ctx context.Context) error {
	s.mu.Lock()
	token := s.cached
	s.cached = ""
	s.mu.Unlock()

	if token == "" {
		token, _ = s.load()
	}

	var remoteErr error
	if token != "" {
		remoteErr = s.revokeRemote(ctx, token)
	}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return remoteErr
}

func (s *TokenStore) revokeRemote(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domainErrors.NewError(domainErrors.CodeValidation, "failed to create revoke request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domainErrors.NetworkFailure("token revocation failed", err)
	}
	resp.Body.Close()

	// An already invalid token answers 400; it is revoked either way.
	if resp.StatusCode >= 500 {
		return domainErrors.NetworkFailure(fmt.Sprintf("token revocation failed: HTTP %d", resp.StatusCode), nil)
	}
	return nil
}

func (s *TokenStore) load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", domainErrors.AuthExpired("not connected to Google Drive; run 'docsync auth login'", nil)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if crypto.IsSealed(token) {
		if s.enc == nil {
			return "", domainErrors.AuthExpired("stored token is sealed but no key is available", nil)
		}
		token, err = s.enc.Reveal(token)
		if err != nil {
			return "", domainErrors.AuthExpired("stored token cannot be decrypted", err)
		}
	}
	if token == "" {
		return "", domainErrors.AuthExpired("stored token is empty", nil)
	}
	return token, nil
}
