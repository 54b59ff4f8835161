package session

import (
	"path/filepath"
	"testing"
	"time"

	"storefront-sync/internal/credstore"
	"storefront-sync/internal/domain"
	"storefront-sync/internal/testutil"
)

func newManager(t *testing.T) (*Manager, *credstore.Store) {
	t.Helper()
	store := credstore.NewStore(filepath.Join(t.TempDir(), "creds.json"))
	m := NewManager(store)
	t.Cleanup(m.Close)
	return m, store
}

func TestManager_Bootstrap_NoCredentials(t *testing.T) {
	m, _ := newManager(t)

	if err := m.Bootstrap(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Session().State; got != domain.SessionAbsent {
		t.Errorf("expected absent, got %s", got)
	}
	if _, err := m.Token(); err != domain.ErrNoSession {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestManager_Bootstrap_RestoresValidSession(t *testing.T) {
	m, store := newManager(t)

	token := testutil.MakeToken(t, "usr_1", time.Hour)
	if err := store.Save(&credstore.Credentials{Token: token, User: &domain.User{ID: "usr_1"}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := m.Bootstrap(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess := m.Session()
	if sess.State != domain.SessionValid {
		t.Fatalf("expected valid, got %s", sess.State)
	}
	if sess.Claims.SubjectID != "usr_1" {
		t.Errorf("expected subject usr_1, got %s", sess.Claims.SubjectID)
	}
	if got, err := m.Token(); err != nil || got != token {
		t.Errorf("Token() = %q, %v", got, err)
	}
}

func TestManager_Bootstrap_ExpiredTokenFailsClosed(t *testing.T) {
	m, store := newManager(t)

	token := testutil.MakeToken(t, "usr_1", -time.Minute)
	if err := store.Save(&credstore.Credentials{Token: token}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := m.Bootstrap(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Session().State; got != domain.SessionExpired {
		t.Errorf("expected expired, got %s", got)
	}
	if _, err := store.Load(); err != credstore.ErrNoCredentials {
		t.Errorf("expected store cleared, got %v", err)
	}
}

func TestManager_SetToken_DecodeFailureFailsClosed(t *testing.T) {
	m, _ := newManager(t)

	err := m.SetToken("not-a-jwt", nil)
	if err == nil {
		t.Fatal("expected error for malformed token")
	}
	if got := m.Session().State; got != domain.SessionExpired {
		t.Errorf("expected expired after decode failure, got %s", got)
	}
}

func TestManager_SetToken_RejectsTokenWithoutExpiry(t *testing.T) {
	m, _ := newManager(t)

	if err := m.SetToken(testutil.MakeTokenWithoutExpiry(t, "usr_1"), nil); err == nil {
		t.Fatal("expected error for token without exp claim")
	}
}

func TestManager_SetToken_Persists(t *testing.T) {
	m, store := newManager(t)

	token := testutil.MakeToken(t, "usr_2", time.Hour)
	if err := m.SetToken(token, &domain.User{ID: "usr_2", Email: "b@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	creds, err := store.Load()
	if err != nil {
		t.Fatalf("expected persisted credentials: %v", err)
	}
	if creds.Token != token || creds.User.ID != "usr_2" {
		t.Errorf("unexpected persisted credentials: %+v", creds)
	}
}

func TestManager_ExpiryCascade(t *testing.T) {
	m, store := newManager(t)

	cartCleared := false
	redirected := false
	m.OnExpired(func() { cartCleared = true })
	m.OnRedirect(func() { redirected = true })

	if err := m.SetToken(testutil.MakeToken(t, "usr_1", 80*time.Millisecond), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Valid() {
		t.Fatal("session should be valid before expiry")
	}

	time.Sleep(250 * time.Millisecond)

	if got := m.Session().State; got != domain.SessionExpired {
		t.Fatalf("expected expired after timer fire, got %s", got)
	}
	if !cartCleared {
		t.Error("expiry must cascade to registered hooks")
	}
	if !redirected {
		t.Error("expiry timer must emit the redirect-to-login intent")
	}
	if _, err := store.Load(); err != credstore.ErrNoCredentials {
		t.Errorf("expected store cleared on expiry, got %v", err)
	}
}

func TestManager_CancelScheduledPreventsStaleFire(t *testing.T) {
	m, _ := newManager(t)

	expired := false
	m.OnExpired(func() { expired = true })

	if err := m.SetToken(testutil.MakeToken(t, "usr_1", 60*time.Millisecond), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.CancelScheduled()

	time.Sleep(200 * time.Millisecond)

	if expired {
		t.Error("cancelled timer must not fire the cascade")
	}
	if got := m.Session().State; got != domain.SessionValid {
		t.Errorf("session should still be valid, got %s", got)
	}
}

func TestManager_NewTokenSupersedesOldTimer(t *testing.T) {
	m, _ := newManager(t)

	if err := m.SetToken(testutil.MakeToken(t, "usr_1", 60*time.Millisecond), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.SetToken(testutil.MakeToken(t, "usr_1", time.Hour), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	if !m.Valid() {
		t.Error("old timer must not expire the superseding session")
	}
}

func TestManager_TimerFiringDuringSetTokenCannotDestroyNewSession(t *testing.T) {
	m, store := newManager(t)

	// Arm short-lived tokens so the expiry timer keeps firing right as the
	// replacement token lands. Whatever the interleaving, a SetToken that
	// returned success must leave a valid session and its credentials.
	longToken := ""
	for i := 0; i < 300; i++ {
		// A short token may already be past its expiry by the time it is
		// adopted; that iteration simply cannot race and is skipped.
		if err := m.SetToken(testutil.MakeToken(t, "usr_1", 3*time.Millisecond), nil); err != nil {
			continue
		}
		time.Sleep(3 * time.Millisecond)

		longToken = testutil.MakeToken(t, "usr_1", time.Hour)
		if err := m.SetToken(longToken, &domain.User{ID: "usr_1"}); err != nil {
			t.Fatalf("iteration %d: long token rejected: %v", i, err)
		}
		if !m.Valid() {
			t.Fatalf("iteration %d: superseded timer expired the fresh session", i)
		}
	}

	// The persisted credential must be the surviving token, not a cleared
	// file repopulated out of order.
	creds, err := store.Load()
	if err != nil {
		t.Fatalf("expected persisted credentials after the last SetToken: %v", err)
	}
	if creds.Token != longToken {
		t.Error("store does not hold the surviving session's token")
	}
}

func TestManager_Invalidate(t *testing.T) {
	m, _ := newManager(t)

	redirected := false
	m.OnRedirect(func() { redirected = true })

	if err := m.SetToken(testutil.MakeToken(t, "usr_1", time.Hour), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Invalidate()

	if got := m.Session().State; got != domain.SessionExpired {
		t.Errorf("expected expired after 401/403, got %s", got)
	}
	if redirected {
		t.Error("redirect intent belongs to the timer path only")
	}
}

func TestManager_Logout(t *testing.T) {
	m, store := newManager(t)

	if err := m.SetToken(testutil.MakeToken(t, "usr_1", time.Hour), &domain.User{ID: "usr_1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Logout()

	if got := m.Session().State; got != domain.SessionExpired {
		t.Errorf("expected expired after logout, got %s", got)
	}
	if m.User() != nil {
		t.Error("user must be cleared on logout")
	}
	if _, err := store.Load(); err != credstore.ErrNoCredentials {
		t.Errorf("expected store cleared on logout, got %v", err)
	}
}

func TestManager_ExpireIsIdempotent(t *testing.T) {
	m, _ := newManager(t)

	cascades := 0
	m.OnExpired(func() { cascades++ })

	if err := m.SetToken(testutil.MakeToken(t, "usr_1", time.Hour), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Invalidate()
	m.Invalidate()
	m.Logout()

	if cascades != 1 {
		t.Errorf("cascade should run once, ran %d times", cascades)
	}
}

func TestDecodeClaims(t *testing.T) {
	t.Run("well_formed", func(t *testing.T) {
		claims, err := DecodeClaims(testutil.MakeToken(t, "usr_9", time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if claims.SubjectID != "usr_9" {
			t.Errorf("expected subject usr_9, got %s", claims.SubjectID)
		}
		if until := time.Until(claims.ExpiresAt); until < 59*time.Minute || until > time.Hour {
			t.Errorf("unexpected expiry distance: %v", until)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := DecodeClaims("garbage.token.value"); err == nil {
			t.Fatal("expected decode failure")
		}
	})

	t.Run("missing_expiry", func(t *testing.T) {
		if _, err := DecodeClaims(testutil.MakeTokenWithoutExpiry(t, "usr_9")); err == nil {
			t.Fatal("expected failure for missing exp")
		}
	})
}
