// Package githubauth owns the credentials this process uses against the
// GitHub API: the long-lived user token on disk, the short-lived delegated
// session exchanged from it, and the lazily resolved identity.
package githubauth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quotapace/quotapace/internal/json"
)

// EnvToken overrides the stored token when set.
const EnvToken = "QUOTAPACE_GITHUB_TOKEN"

// ErrNoToken means no long-lived token is available from any source.
var ErrNoToken = errors.New("no github token configured, run `quotapace login`")

// TokenProvider supplies the long-lived token on demand.
type TokenProvider interface {
	Token() (string, error)
}

type storedToken struct {
	GitHubToken string    `json:"github_token"`
	CreatedAt   time.Time `json:"created_at"`
}

// FileTokenStore persists the long-lived token as a 0600 file in the auth
// directory. The environment variable wins when present.
type FileTokenStore struct {
	dir string
}

func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{dir: dir}
}

func (s *FileTokenStore) path() string {
	return filepath.Join(s.dir, "auth.json")
}

// Token returns the long-lived token, preferring the environment.
func (s *FileTokenStore) Token() (string, error) {
	if env := strings.TrimSpace(os.Getenv(EnvToken)); env != "" {
		return env, nil
	}
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return "", fmt.Errorf("parse token file: %w", err)
	}
	if st.GitHubToken == "" {
		return "", ErrNoToken
	}
	return st.GitHubToken, nil
}

// Save writes the token with owner-only permissions.
func (s *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create auth dir: %w", err)
	}
	data, err := json.Marshal(storedToken{GitHubToken: token, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(), data, 0o600)
}

// Clear removes the stored token. Called when the core signals the
// credential is invalid.
func (s *FileTokenStore) Clear() error {
	err := os.Remove(s.path())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
