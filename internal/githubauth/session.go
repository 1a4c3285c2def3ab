package githubauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/quota"
	"github.com/quotapace/quotapace/internal/transport"
)

// ErrNoSession means a delegated session could not be obtained. This is an
// expected condition (no token, no subscription, exchange degraded), not a
// failure: callers fall through to the long-lived-token path.
var ErrNoSession = errors.New("no delegated session available")

// sessionExpiryBuffer keeps us from handing out tokens about to lapse.
const sessionExpiryBuffer = 60 * time.Second

// SessionManager exchanges the long-lived token for the short-lived
// delegated session and caches it until shortly before expiry. Concurrent
// exchanges are collapsed via singleflight; repeated exchange failures open
// a breaker that degrades to "no session" instead of erroring.
type SessionManager struct {
	baseURL string
	client  *http.Client
	tokens  TokenProvider

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	sf      singleflight.Group
	breaker *gobreaker.CircuitBreaker
}

func NewSessionManager(baseURL string, client *http.Client, tokens TokenProvider) *SessionManager {
	return &SessionManager{
		baseURL: baseURL,
		client:  client,
		tokens:  tokens,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "session-exchange",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Token returns a live delegated session token, exchanging if needed.
// Returns ErrNoSession when no session can be had; returns a classified
// error only for conditions the resolution cycle must react to
// (invalid credential, upstream rate limit).
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.token != "" && time.Now().Add(sessionExpiryBuffer).Before(m.expiresAt) {
		token := m.token
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	result, err, _ := m.sf.Do("exchange", func() (any, error) {
		m.mu.RLock()
		if m.token != "" && time.Now().Add(sessionExpiryBuffer).Before(m.expiresAt) {
			token := m.token
			m.mu.RUnlock()
			return token, nil
		}
		m.mu.RUnlock()
		return m.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (m *SessionManager) exchange(ctx context.Context) (string, error) {
	longLived, err := m.tokens.Token()
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return "", ErrNoSession
		}
		return "", err
	}

	result, err := m.breaker.Execute(func() (any, error) {
		return m.doExchange(ctx, longLived)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Debugf("session exchange breaker open, degrading to token path")
			return "", ErrNoSession
		}
		return "", err
	}
	return result.(string), nil
}

func (m *SessionManager) doExchange(ctx context.Context, longLived string) (string, error) {
	req, err := transport.NewRequest(ctx, http.MethodGet, m.baseURL+"/copilot_internal/v2/token", longLived)
	if err != nil {
		return "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		log.WithError(err).Debug("session exchange transport failure")
		return "", ErrNoSession
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return "", quota.Unauthorized("session exchange rejected the token")
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", quota.RateLimited(transport.RetryAfter(resp))
	case resp.StatusCode == http.StatusNotFound:
		// No Copilot subscription behind this token.
		return "", ErrNoSession
	default:
		log.Debugf("session exchange status %d: %s", resp.StatusCode, quota.Truncate(string(body), 120))
		return "", ErrNoSession
	}

	token := gjson.GetBytes(body, "token").String()
	if token == "" {
		return "", ErrNoSession
	}
	expiresAt := time.Now().Add(25 * time.Minute)
	if unix := gjson.GetBytes(body, "expires_at").Int(); unix > 0 {
		expiresAt = time.Unix(unix, 0)
	}

	m.mu.Lock()
	m.token = token
	m.expiresAt = expiresAt
	m.mu.Unlock()

	log.Debugf("delegated session refreshed, expires %s", expiresAt.Format(time.RFC3339))
	return token, nil
}

// Invalidate drops the cached session, forcing a fresh exchange.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
}
