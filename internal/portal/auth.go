package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/vecindapp/portalsync/internal/errs"
	"github.com/vecindapp/portalsync/internal/model"
	"github.com/vecindapp/portalsync/internal/repository"
	"github.com/vecindapp/portalsync/internal/translate"
)

// SessionManager acquires Portal credentials for an identity email, persists
// them, and keeps the local user's role aligned with the Portal's role claim.
type SessionManager struct {
	client   *Client
	sessions SessionStore
	store    repository.MirrorStore
	log      *zap.Logger

	// mu guards lastEmail; every orchestrator handler calls EnsureAuth and
	// handlers may run concurrently with each other and with a drain.
	mu        sync.Mutex
	lastEmail string
}

// NewSessionManager wires the manager and registers it as the client's
// self-healing login hook.
func NewSessionManager(client *Client, sessions SessionStore, store repository.MirrorStore, log *zap.Logger) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &SessionManager{client: client, sessions: sessions, store: store, log: log}
	client.SetRelogin(func(ctx context.Context, email string) error {
		_, err := m.Login(ctx, email)
		return err
	})
	return m
}

type loginResponse struct {
	Data struct {
		Role      string `json:"rol"`
		Token     string `json:"token"`
		TokenType string `json:"tokenType"`
	} `json:"data"`
}

// Login authenticates the identity email against the Portal, persists the
// returned credential, and best-effort syncs the Portal's role claim onto
// the local user. An unmapped role skips the sync silently; login still
// succeeds whenever a token was obtained.
func (m *SessionManager) Login(ctx context.Context, email string) (model.Credential, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.Credential{}, fmt.Errorf("%w: empty identity email", errs.ErrAuth)
	}

	raw, err := m.client.Request(ctx, LoginPath, RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"correo": email},
	})
	if err != nil {
		return model.Credential{}, fmt.Errorf("%w: login: %s", errs.ErrAuth, err)
	}

	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.Credential{}, fmt.Errorf("%w: login response: %s", errs.ErrAuth, err)
	}
	if resp.Data.Token == "" {
		return model.Credential{}, fmt.Errorf("%w: login response carried no token", errs.ErrAuth)
	}

	cred := model.Credential{Token: resp.Data.Token, TokenType: resp.Data.TokenType}
	if cred.TokenType == "" {
		cred.TokenType = "Bearer"
	}
	if err := m.sessions.SetCredential(cred); err != nil {
		return model.Credential{}, fmt.Errorf("%w: persist credential: %s", errs.ErrAuth, err)
	}
	m.rememberEmail(email)

	if resp.Data.Role != "" {
		_ = m.sessions.SetRole(resp.Data.Role)
		m.syncRole(ctx, email, resp.Data.Role)
	}
	return cred, nil
}

// syncRole maps the Portal role claim through the fixed vocabulary and
// writes it back to the local user record and role list. Unknown roles and
// local-store hiccups never fail the login.
func (m *SessionManager) syncRole(ctx context.Context, email, portalRole string) {
	role, ok := translate.Role(portalRole)
	if !ok {
		m.log.Debug("portal role has no local mapping, skipping sync",
			zap.String("portalRole", portalRole))
		return
	}
	user, err := m.store.GetUserByEmail(ctx, email)
	if err != nil {
		m.log.Warn("role sync: local user lookup failed", zap.Error(err))
		return
	}
	if err := m.store.UpdateUserProfile(ctx, user.ID, map[string]any{"role": role}); err != nil {
		m.log.Warn("role sync: profile update failed", zap.Error(err))
		return
	}
	if err := m.store.SetUserRoles(ctx, user.ID, []string{role}); err != nil {
		m.log.Warn("role sync: role list update failed", zap.Error(err))
	}
}

// EnsureAuth guarantees a usable Portal credential before any authenticated
// operation. An existing, unexpired credential is reused without a network
// call; otherwise an identity email (argument or last seen) triggers Login;
// with neither, the Portal session cannot be established.
func (m *SessionManager) EnsureAuth(ctx context.Context, email string) (model.Credential, error) {
	if cred, ok := m.sessions.Credential(); ok && !tokenExpired(cred.Token) {
		if email != "" {
			m.rememberEmail(email)
		}
		return cred, nil
	}
	if email == "" {
		email = m.rememberedEmail()
	}
	if email == "" {
		return model.Credential{}, fmt.Errorf("%w: cannot establish Portal session (no credential, no identity email)", errs.ErrAuth)
	}
	return m.Login(ctx, email)
}

func (m *SessionManager) rememberEmail(email string) {
	m.mu.Lock()
	m.lastEmail = email
	m.mu.Unlock()
	m.client.RememberIdentity(email)
}

func (m *SessionManager) rememberedEmail() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEmail
}

// tokenExpired reads the exp claim of a JWT-shaped token without verifying
// the signature. Opaque tokens carry no expiry and are assumed live; a dead
// stored token must trigger re-login instead of being replayed.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
