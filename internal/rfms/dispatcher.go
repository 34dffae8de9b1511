// internal/rfms/dispatcher.go
package rfms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Every RFMS response body follows one envelope. Only Status and Result drive
// control flow — Detail is diagnostic payload and never an authority signal.
type Envelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Detail string          `json:"detail"`
}

const (
	StatusSuccess = "success"
	StatusWaiting = "waiting"
	StatusFailed  = "failed"
)

// DispatcherConfig holds the retry/poll policy. Zero values take the
// documented defaults.
type DispatcherConfig struct {
	BaseURL        string
	RequestTimeout time.Duration // per attempt, distinct from the retry/poll budget
	PollMax        int           // polls of a "waiting" response before giving up
	PollDelay      time.Duration
	RetryMax       int // transport-level retries before surfacing a TransportError
	RetryBase      time.Duration
}

func (c *DispatcherConfig) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.PollMax <= 0 {
		c.PollMax = 5
	}
	if c.PollDelay <= 0 {
		c.PollDelay = 2 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 1 * time.Second
	}
}

// Dispatcher is the generic call path to RFMS: build request, send,
// resolve the tri-state envelope, retry what is transient, surface what is
// terminal. It has no business-data knowledge — callers interpret Result.
type Dispatcher struct {
	cfg     DispatcherConfig
	session *Session
	client  *http.Client
}

func NewDispatcher(cfg DispatcherConfig, session *Session, client *http.Client) *Dispatcher {
	cfg.applyDefaults()
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{cfg: cfg, session: session, client: client}
}

// Call issues one logical request and resolves it to a final payload.
//   - "waiting" is polled up to PollMax times — RFMS processes some requests
//     asynchronously and answers before it is done.
//   - "failed" returns *ApplicationError immediately; whether that is worth a
//     higher-level retry is the caller's decision.
//   - transport errors are retried RetryMax times with exponential backoff,
//     then surface as *TransportError.
//   - an HTTP 401 invalidates the session and retries exactly once with a
//     fresh credential; a second 401 is a terminal *AuthError.
func (d *Dispatcher) Call(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body for %s: %w", path, err)
		}
	}

	transportFailures := 0
	polls := 0
	authRetried := false
	var lastTransportErr error

	for {
		cred, err := d.session.Acquire(ctx)
		if err != nil {
			return nil, err
		}

		env, httpStatus, err := d.doOnce(ctx, method, path, payload, cred)
		if err != nil {
			transportFailures++
			lastTransportErr = err
			if transportFailures > d.cfg.RetryMax {
				return nil, &TransportError{Op: path, Attempts: transportFailures, Err: lastTransportErr}
			}
			delay := d.cfg.RetryBase * time.Duration(1<<(transportFailures-1))
			log.Printf("🔁 [RFMS] %s %s transport failure (%d/%d): %v → retrying in %v",
				method, path, transportFailures, d.cfg.RetryMax, err, delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if httpStatus == http.StatusUnauthorized {
			if authRetried {
				return nil, &AuthError{Op: path, Detail: "session token rejected twice"}
			}
			authRetried = true
			d.session.Invalidate()
			log.Printf("🔑 [RFMS] %s %s got 401 → renewing session and retrying once", method, path)
			continue
		}

		switch env.Status {
		case StatusSuccess:
			return env.Result, nil

		case StatusWaiting:
			polls++
			if polls > d.cfg.PollMax {
				return nil, &ApplicationError{Op: path, Waiting: true}
			}
			log.Printf("⏳ [RFMS] %s %s still waiting (poll %d/%d)", method, path, polls, d.cfg.PollMax)
			if err := sleepCtx(ctx, d.cfg.PollDelay); err != nil {
				return nil, err
			}
			continue

		case StatusFailed:
			return nil, &ApplicationError{Op: path, Detail: env.Detail}

		default:
			// An unknown status is a protocol violation; treat like a garbled
			// response and go through the transport retry budget.
			transportFailures++
			lastTransportErr = fmt.Errorf("unknown envelope status %q", env.Status)
			if transportFailures > d.cfg.RetryMax {
				return nil, &TransportError{Op: path, Attempts: transportFailures, Err: lastTransportErr}
			}
			if err := sleepCtx(ctx, d.cfg.RetryBase); err != nil {
				return nil, err
			}
		}
	}
}

// doOnce performs a single HTTP attempt. A non-nil error means the attempt
// never produced a usable envelope (transport-level).
func (d *Dispatcher) doOnce(ctx context.Context, method, path string, payload []byte, cred Credential) (*Envelope, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, d.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(cred.StoreCode, cred.Token)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncateBody(body))
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("invalid envelope: %w", err)
	}
	return &env, resp.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "…"
}
