package githubauth

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/tidwall/gjson"

	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/quota"
	"github.com/quotapace/quotapace/internal/transport"
)

// Identity lazily resolves and caches the credential's canonical username.
// A NotFound from the billing path usually means this cache went stale, so
// the orchestrator asks for a forced re-resolution before retrying once.
type Identity struct {
	baseURL string
	client  *http.Client
	tokens  TokenProvider

	mu    sync.Mutex
	login string
}

func NewIdentity(baseURL string, client *http.Client, tokens TokenProvider) *Identity {
	return &Identity{baseURL: baseURL, client: client, tokens: tokens}
}

// Login returns the cached username, resolving it on first use.
func (id *Identity) Login(ctx context.Context) (string, error) {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.login != "" {
		return id.login, nil
	}
	login, err := id.resolve(ctx)
	if err != nil {
		return "", err
	}
	id.login = login
	return login, nil
}

// Invalidate drops the cached username.
func (id *Identity) Invalidate() {
	id.mu.Lock()
	id.login = ""
	id.mu.Unlock()
	log.Debug("identity cache invalidated")
}

func (id *Identity) resolve(ctx context.Context) (string, error) {
	token, err := id.tokens.Token()
	if err != nil {
		return "", err
	}
	req, err := transport.NewRequest(ctx, http.MethodGet, id.baseURL+"/user", token)
	if err != nil {
		return "", err
	}
	resp, err := id.client.Do(req)
	if err != nil {
		return "", quota.Transientf("identity lookup: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return "", quota.Unauthorized("identity lookup rejected the token")
	default:
		return "", quota.Transientf("identity lookup status %d", resp.StatusCode)
	}

	login := gjson.GetBytes(body, "login").String()
	if login == "" {
		return "", quota.Transient("identity lookup returned no login")
	}
	log.Debugf("resolved identity %s", login)
	return login, nil
}
