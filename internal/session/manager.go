package session

import (
	"fmt"
	"sync"
	"time"

	"storefront-sync/internal/credstore"
	"storefront-sync/internal/domain"
	"storefront-sync/internal/observability"

	"github.com/golang-jwt/jwt/v5"
)

// Manager owns the auth credential and its time-bounded validity for one
// tab. It is the only component that mutates the session; consumers read
// through Session() and Token().
//
// State machine: absent -> valid on a well-formed, unexpired token;
// valid -> expired on timer fire, decode failure, explicit logout, or an
// authoritative 401/403 from any collaborator. absent and expired are
// terminal until the next SetToken.
type Manager struct {
	mu    sync.Mutex
	store *credstore.Store

	sess  domain.Session
	user  *domain.User
	timer *time.Timer
	epoch uint64

	onExpired  []func()
	onRedirect func()
}

func NewManager(store *credstore.Store) *Manager {
	return &Manager{
		store: store,
		sess:  domain.Session{State: domain.SessionAbsent},
	}
}

// OnExpired registers a cascade hook run after any transition to expired.
// Hooks run outside the manager lock.
func (m *Manager) OnExpired(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpired = append(m.onExpired, fn)
}

// OnRedirect registers the redirect-to-login intent emitted when the
// expiry timer fires.
func (m *Manager) OnRedirect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRedirect = fn
}

// Bootstrap restores the session from persisted credentials without a
// network round trip. No stored token leaves the state absent; a malformed
// or already-expired token fails closed to expired and clears the store.
func (m *Manager) Bootstrap() error {
	creds, err := m.store.Load()
	if err != nil {
		m.mu.Lock()
		m.sess = domain.Session{State: domain.SessionAbsent}
		m.mu.Unlock()
		observability.Debug("session bootstrap found no credentials")
		return nil
	}

	if err := m.adopt(creds.Token, creds.User, false); err != nil {
		observability.Warn("stored token rejected at bootstrap", "error", err.Error())
		m.expire("decode_failure", false)
		return nil
	}

	observability.Info("session restored from storage", "subject", m.SubjectID())
	return nil
}

// SetToken installs a freshly issued token (login path) and persists it.
func (m *Manager) SetToken(token string, user *domain.User) error {
	if err := m.adopt(token, user, true); err != nil {
		m.expire("decode_failure", false)
		return err
	}
	observability.Info("session established", "subject", m.SubjectID())
	return nil
}

// adopt decodes, validates, arms the expiry timer and optionally persists.
func (m *Manager) adopt(token string, user *domain.User, persist bool) error {
	claims, err := DecodeClaims(token)
	if err != nil {
		return err
	}

	remaining := time.Until(claims.ExpiresAt)
	if remaining <= 0 {
		return fmt.Errorf("%w: token expired at %s", domain.ErrSessionExpired, claims.ExpiresAt.Format(time.RFC3339))
	}

	m.mu.Lock()
	m.cancelLocked()
	m.sess = domain.Session{
		Token:  token,
		Claims: claims,
		State:  domain.SessionValid,
	}
	m.user = user
	m.scheduleLocked(remaining)

	// Persist inside the critical section so a concurrent expiry cannot
	// interleave its store.Clear with this write.
	if persist {
		if err := m.store.Save(&credstore.Credentials{Token: token, User: user}); err != nil {
			observability.Warn("failed to persist credentials", "error", err.Error())
		}
	}
	m.mu.Unlock()

	return nil
}

// scheduleLocked arms the one-shot expiry timer. The epoch counter makes a
// superseded timer a no-op even if it already fired.
func (m *Manager) scheduleLocked(d time.Duration) {
	m.epoch++
	epoch := m.epoch
	if d < 0 {
		d = 0
	}
	m.timer = time.AfterFunc(d, func() {
		m.timerFired(epoch)
	})
}

// timerFired expires the session the timer was armed for. The epoch check
// and the state transition share one critical section: a SetToken that
// supersedes this timer either bumps the epoch before we look, or blocks
// until the expiry has completed and installs its session afterwards. A
// stale timer can never destroy a session it did not watch.
func (m *Manager) timerFired(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.sess.State != domain.SessionValid {
		m.mu.Unlock()
		return
	}
	observability.Info("session expiry timer fired")
	hooks, redirectFn := m.expireLocked("timer")
	m.mu.Unlock()

	m.cascade(hooks, redirectFn, true)
}

// CancelScheduled disarms the pending expiry timer. It must be called
// whenever the token changes hands or the owning context is torn down.
func (m *Manager) CancelScheduled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
}

func (m *Manager) cancelLocked() {
	m.epoch++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Invalidate forces the session to expired. An authoritative 401/403 from
// any collaborator lands here; the server's word beats the local clock.
func (m *Manager) Invalidate() {
	m.expire("auth_failure", false)
}

// Logout destroys the session explicitly.
func (m *Manager) Logout() {
	m.expire("logout", false)
}

// expire forces the transition unconditionally (logout, auth failure,
// decode failure) and cascades.
func (m *Manager) expire(trigger string, redirect bool) {
	m.mu.Lock()
	if m.sess.State == domain.SessionExpired {
		m.mu.Unlock()
		return
	}
	hooks, redirectFn := m.expireLocked(trigger)
	m.mu.Unlock()

	m.cascade(hooks, redirectFn, redirect)
}

// expireLocked clears the credential, both in memory and in the store, and
// disarms the timer. The store write stays under the lock so it cannot race
// a concurrent adopt's persist. Returns the cascade to run outside the lock.
func (m *Manager) expireLocked(trigger string) (hooks []func(), redirectFn func()) {
	m.cancelLocked()
	m.sess = domain.Session{State: domain.SessionExpired}
	m.user = nil

	if err := m.store.Clear(); err != nil {
		observability.Warn("failed to clear stored credentials", "error", err.Error())
	}

	observability.SessionExpiriesTotal.WithLabelValues(trigger).Inc()
	observability.Info("session expired", "trigger", trigger)

	return append([]func(){}, m.onExpired...), m.onRedirect
}

// cascade runs the expiry hooks and the optional redirect intent. Hooks run
// outside the manager lock so they may call back into the manager.
func (m *Manager) cascade(hooks []func(), redirectFn func(), redirect bool) {
	for _, fn := range hooks {
		fn()
	}
	if redirect && redirectFn != nil {
		redirectFn()
	}
}

// Close tears the manager down, disarming the timer.
func (m *Manager) Close() {
	m.CancelScheduled()
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.sess
	if m.sess.Claims != nil {
		claims := *m.sess.Claims
		snap.Claims = &claims
	}
	return snap
}

// User returns the identity persisted next to the token, if any.
func (m *Manager) User() *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Valid reports whether the session currently gates authenticated work.
func (m *Manager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.Valid()
}

// SubjectID returns the authenticated subject, or empty.
func (m *Manager) SubjectID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.Claims == nil {
		return ""
	}
	return m.sess.Claims.SubjectID
}

// Token implements the bearer token provider for the API client.
func (m *Manager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sess.Valid() {
		return "", domain.ErrNoSession
	}
	return m.sess.Token, nil
}

// DecodeClaims parses the subject and expiry out of a bearer token. The
// client holds no verification key; the token is decoded, not verified,
// and the server remains the authority via 401/403 responses. A malformed
// token is domain.ErrInvalidToken and is never retried.
func DecodeClaims(token string) (*domain.Claims, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	sub, err := mapClaims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry", domain.ErrInvalidToken)
	}

	return &domain.Claims{
		SubjectID: sub,
		ExpiresAt: exp.Time,
	}, nil
}
