package abandon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-sync/internal/domain"
	"storefront-sync/internal/lifecycle"
)

type mockSender struct {
	mu          sync.Mutex
	jsonSignals []domain.AbandonmentSignal
	beacons     []domain.AbandonmentSignal
	beaconErr   error
	jsonErr     error
}

func (m *mockSender) MarkAbandoning(ctx context.Context, sig domain.AbandonmentSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jsonErr != nil {
		return m.jsonErr
	}
	m.jsonSignals = append(m.jsonSignals, sig)
	return nil
}

func (m *mockSender) MarkAbandoningBeacon(sig domain.AbandonmentSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beaconErr != nil {
		return m.beaconErr
	}
	m.beacons = append(m.beacons, sig)
	return nil
}

func (m *mockSender) counts() (beacons, jsons int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.beacons), len(m.jsonSignals)
}

func TestDetector_UnloadSendsBeaconOnce(t *testing.T) {
	sender := &mockSender{}
	signals := lifecycle.NewSignals()
	d := NewDetector(sender, signals)

	d.Arm("chk_1", "cart_1")

	// Two firings during one armed lifetime: at most one signal
	signals.NotifyUnload()
	signals.NotifyUnload()

	beacons, jsons := sender.counts()
	if beacons != 1 || jsons != 0 {
		t.Fatalf("expected exactly one beacon, got beacons=%d jsons=%d", beacons, jsons)
	}

	sig := sender.beacons[0]
	if sig.CheckoutID != "chk_1" || sig.CartID != "cart_1" || sig.Reason != domain.ReasonBrowserClosed {
		t.Errorf("unexpected signal: %+v", sig)
	}
}

func TestDetector_UnloadFallsBackWhenBeaconUnavailable(t *testing.T) {
	sender := &mockSender{beaconErr: errors.New("beacon unavailable")}
	signals := lifecycle.NewSignals()
	d := NewDetector(sender, signals)

	d.Arm("chk_1", "cart_1")
	signals.NotifyUnload()

	_, jsons := sender.counts()
	if jsons != 1 {
		t.Fatalf("expected the JSON fallback, got %d sends", jsons)
	}
	if sender.jsonSignals[0].Reason != domain.ReasonBrowserClosed {
		t.Errorf("fallback must keep the unload reason, got %s", sender.jsonSignals[0].Reason)
	}
}

func TestDetector_NavigateSendsJSON(t *testing.T) {
	sender := &mockSender{}
	signals := lifecycle.NewSignals()
	d := NewDetector(sender, signals)

	d.Arm("chk_1", "cart_1")
	signals.NotifyNavigate()

	waitFor(t, func() bool {
		_, jsons := sender.counts()
		return jsons == 1
	})

	if sender.jsonSignals[0].Reason != domain.ReasonNavigationAway {
		t.Errorf("unexpected reason: %s", sender.jsonSignals[0].Reason)
	}
}

func TestDetector_MixedFiringsStillSendOnce(t *testing.T) {
	sender := &mockSender{}
	signals := lifecycle.NewSignals()
	d := NewDetector(sender, signals)

	d.Arm("chk_1", "cart_1")
	signals.NotifyNavigate()
	signals.NotifyUnload()

	time.Sleep(100 * time.Millisecond)

	beacons, jsons := sender.counts()
	if beacons+jsons != 1 {
		t.Fatalf("expected one signal across both observers, got beacons=%d jsons=%d", beacons, jsons)
	}
}

func TestDetector_DisarmPreventsFalsePositives(t *testing.T) {
	sender := &mockSender{}
	signals := lifecycle.NewSignals()
	d := NewDetector(sender, signals)

	d.Arm("chk_1", "cart_1")
	d.Disarm()

	signals.NotifyUnload()
	signals.NotifyNavigate()
	time.Sleep(50 * time.Millisecond)

	beacons, jsons := sender.counts()
	if beacons != 0 || jsons != 0 {
		t.Errorf("disarmed detector must not signal, got beacons=%d jsons=%d", beacons, jsons)
	}
}

func TestDetector_RearmResetsTheFiredFlag(t *testing.T) {
	sender := &mockSender{}
	signals := lifecycle.NewSignals()
	d := NewDetector(sender, signals)

	d.Arm("chk_1", "cart_1")
	signals.NotifyUnload()

	d.Arm("chk_2", "cart_1")
	signals.NotifyUnload()

	beacons, _ := sender.counts()
	if beacons != 2 {
		t.Fatalf("each armed lifetime allows one signal, got %d", beacons)
	}
	if sender.beacons[1].CheckoutID != "chk_2" {
		t.Errorf("second signal must carry the new checkout, got %s", sender.beacons[1].CheckoutID)
	}
}

func TestDetector_LostSignalIsAcceptable(t *testing.T) {
	sender := &mockSender{beaconErr: errors.New("down"), jsonErr: errors.New("also down")}
	signals := lifecycle.NewSignals()
	d := NewDetector(sender, signals)

	d.Arm("chk_1", "cart_1")

	// Must not panic or retry; the signal is simply lost
	signals.NotifyUnload()

	beacons, jsons := sender.counts()
	if beacons != 0 || jsons != 0 {
		t.Errorf("expected no delivered signals, got beacons=%d jsons=%d", beacons, jsons)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
