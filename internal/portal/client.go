package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/vecindapp/portalsync/internal/errs"
)

// LoginPath is the one Portal path that must work without a credential.
const LoginPath = "auth/login"

// ReloginFunc re-establishes a Portal session for the given identity email.
// The auth manager registers itself here so the client stays self-healing
// across process restarts without a package cycle.
type ReloginFunc func(ctx context.Context, email string) error

// ClientOptions configures a Client. Zero values get sane defaults.
type ClientOptions struct {
	BaseURL    string
	Sessions   SessionStore
	HTTPClient *http.Client
	Logger     *zap.Logger
	MaxRetries uint64        // transport retries per request
	RetryDelay time.Duration // constant delay between transport retries
}

// Client is the low-level Portal request builder. It composes URLs, attaches
// auth headers, serializes bodies, and normalizes the Portal's heterogeneous
// error shapes into the errs taxonomy.
type Client struct {
	baseURL    string
	sessions   SessionStore
	httpClient *http.Client
	log        *zap.Logger
	maxRetries uint64
	retryDelay time.Duration

	// mu guards the self-healing state below; concurrent handlers all pass
	// through Request and may record identities at the same time.
	mu        sync.Mutex
	relogin   ReloginFunc
	lastEmail string
}

// NewClient constructs a Portal client.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 300 * time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		sessions:   opts.Sessions,
		httpClient: httpClient,
		log:        log,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// SetRelogin registers the auth manager's login hook.
func (c *Client) SetRelogin(fn ReloginFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relogin = fn
}

// RememberIdentity records the identity email used for self-healing login.
func (c *Client) RememberIdentity(email string) {
	if strings.TrimSpace(email) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastEmail = email
}

// healState snapshots the relogin hook and last identity under the lock.
func (c *Client) healState() (ReloginFunc, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relogin, c.lastEmail
}

// RequestOptions describes one Portal call.
type RequestOptions struct {
	Method  string
	Body    any
	Params  map[string]string
	Headers map[string]string
}

// Request performs one Portal call and returns the raw JSON payload.
// Transport failures map to errs.ErrNetwork; application-level failures
// (non-2xx, or a body whose own status field is "error") map to
// *errs.PortalError.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	reqURL, err := c.buildURL(path, opts.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrNetwork, err)
	}

	var bodyBytes []byte
	if opts.Body != nil {
		bodyBytes, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
	}

	cred, haveCred := c.sessions.Credential()
	if !haveCred && !strings.Contains(path, LoginPath) {
		if relogin, email := c.healState(); relogin != nil && email != "" {
			if err := relogin(ctx, email); err == nil {
				cred, haveCred = c.sessions.Credential()
			}
		}
	}

	start := time.Now()
	var resp *http.Response
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewConstant(c.retryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if haveCred {
			req.Header.Set("Authorization", cred.TokenType+" "+cred.Token)
		}
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		c.log.Warn("portal request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s", errs.ErrNetwork, err)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("%w: read response: %s", errs.ErrNetwork, readErr)
	}

	c.log.Debug("portal request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if ok && !bodyReportsError(respBody) {
		return respBody, nil
	}
	return nil, normalizeError(resp.StatusCode, respBody)
}

// buildURL joins base and path and appends query parameters for non-empty
// values only.
func (c *Client) buildURL(path string, params map[string]string) (string, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			if v != "" {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// portalEnvelope covers the error-bearing shapes the Portal responds with.
type portalEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   *struct {
		Message     string `json:"message"`
		StatusCode  string `json:"statusCode"`
		Description string `json:"description"`
	} `json:"error"`
}

// bodyReportsError reports whether a 2xx body still declares status "error".
func bodyReportsError(body []byte) bool {
	var env portalEnvelope
	if json.Unmarshal(body, &env) != nil {
		return false
	}
	return env.Status == "error"
}

// normalizeError maps any Portal failure body to one error taxonomy:
// structured nested error object, generic message payload, the specific
// HTTP 404 "no record found" case, or an unexpected-error fallback carrying
// the raw HTTP status.
func normalizeError(httpStatus int, body []byte) error {
	var env portalEnvelope
	_ = json.Unmarshal(body, &env)

	if env.Error != nil {
		msg := env.Error.Message
		if msg == "" {
			msg = env.Message
		}
		return errs.NewPortalError(msg, env.Error.StatusCode, env.Error.Description, httpStatus)
	}
	if httpStatus == http.StatusNotFound {
		return errs.NewNoRecordError(env.Message, httpStatus)
	}
	if env.Message != "" {
		return errs.NewPortalError(env.Message, "", "", httpStatus)
	}
	return errs.NewPortalError(fmt.Sprintf("unexpected error (http %d)", httpStatus), "", "", httpStatus)
}

// DecodeList normalizes the Portal's list envelopes: a bare array,
// {data:[...]}, {items:[...]}, or {result:[...]}.
func DecodeList(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var bare []map[string]any
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}
	var wrapped struct {
		Data   json.RawMessage `json:"data"`
		Items  json.RawMessage `json:"items"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	for _, inner := range []json.RawMessage{wrapped.Data, wrapped.Items, wrapped.Result} {
		if len(inner) == 0 {
			continue
		}
		var out []map[string]any
		if err := json.Unmarshal(inner, &out); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return out, nil
	}
	return nil, nil
}

// DecodeObject unwraps a single-object payload, tolerating both a bare
// object and the {data:{...}} envelope.
func DecodeObject(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wrapped struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	var bare map[string]any
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return bare, nil
}
