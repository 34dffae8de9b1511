// internal/rfms/session.go
package rfms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// Credential is what every outbound RFMS call authenticates with: the store
// code as basic-auth user, the short-lived session token as password.
type Credential struct {
	StoreCode string
	Token     string
}

// SessionConfig carries the handshake parameters and renewal policy.
type SessionConfig struct {
	BaseURL   string
	StoreCode string
	APIKey    string
	// Margin renews the token this close to expiry so an in-flight call never
	// races expiry. Defaults to 60s.
	Margin time.Duration
	// RetryMax bounds transient handshake retries. Auth rejections are never
	// retried. Defaults to 3.
	RetryMax  int
	RetryBase time.Duration
}

// Session owns the RFMS authentication handshake and the session token shared
// by all outbound calls. Safe for concurrent Acquire — renewal is serialized so
// only one handshake runs even under concurrent demand. Never persisted.
type Session struct {
	cfg    SessionConfig
	client *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewSession(cfg SessionConfig, client *http.Client) *Session {
	if cfg.Margin <= 0 {
		cfg.Margin = 60 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 1 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Session{cfg: cfg, client: client}
}

// Acquire returns a valid credential, transparently performing the handshake
// if the held token is missing, expired, or inside the renewal margin.
func (s *Session) Acquire(ctx context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Add(s.cfg.Margin).Before(s.expiry) {
		return Credential{StoreCode: s.cfg.StoreCode, Token: s.token}, nil
	}

	token, expiry, err := s.handshake(ctx)
	if err != nil {
		return Credential{}, err
	}
	s.token = token
	s.expiry = expiry
	log.Printf("🔑 [SESSION] RFMS session renewed, valid until %s", expiry.Format(time.RFC3339))
	return Credential{StoreCode: s.cfg.StoreCode, Token: token}, nil
}

// Invalidate forces the next Acquire to perform a fresh handshake. Called by
// the dispatcher when RFMS answers 401 on a token that should still be valid.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiry = time.Time{}
	s.mu.Unlock()
	log.Println("🔑 [SESSION] RFMS session invalidated")
}

type beginSessionResult struct {
	SessionToken     string `json:"sessionToken"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

// handshake POSTs /v2/session/begin with the long-lived API key. Transient
// failures are retried with exponential backoff; an auth rejection is
// propagated immediately as *AuthError because retrying bad credentials
// cannot succeed.
func (s *Session) handshake(ctx context.Context) (string, time.Time, error) {
	var lastErr error

	for attempt := 0; attempt < s.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			delay := s.cfg.RetryBase * time.Duration(1<<(attempt-1))
			log.Printf("🔁 [SESSION] Handshake attempt %d failed: %v → retrying in %v", attempt, lastErr, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", time.Time{}, ctx.Err()
			}
		}

		token, expiry, err := s.beginSession(ctx)
		if err == nil {
			return token, expiry, nil
		}
		if authErr, ok := err.(*AuthError); ok {
			return "", time.Time{}, authErr
		}
		lastErr = err
	}

	return "", time.Time{}, &TransportError{Op: "session/begin", Attempts: s.cfg.RetryMax, Err: lastErr}
}

func (s *Session) beginSession(ctx context.Context) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/v2/session/begin", bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.cfg.StoreCode, s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", time.Time{}, &AuthError{Op: "session/begin", Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", time.Time{}, fmt.Errorf("session/begin returned HTTP %d", resp.StatusCode)
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", time.Time{}, fmt.Errorf("session/begin: invalid envelope: %w", err)
	}
	// The handshake is synchronous on the RFMS side — "failed" here means the
	// credentials themselves were rejected, not a transient condition.
	if env.Status == StatusFailed {
		return "", time.Time{}, &AuthError{Op: "session/begin", Detail: env.Detail}
	}
	if env.Status != StatusSuccess {
		return "", time.Time{}, fmt.Errorf("session/begin: unexpected status %q", env.Status)
	}

	var result beginSessionResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return "", time.Time{}, fmt.Errorf("session/begin: invalid result: %w", err)
	}
	if result.SessionToken == "" {
		return "", time.Time{}, fmt.Errorf("session/begin: empty session token")
	}
	ttl := time.Duration(result.ExpiresInSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return result.SessionToken, time.Now().Add(ttl), nil
}
