package abandon

import (
	"context"
	"sync"
	"time"

	"storefront-sync/internal/domain"
	"storefront-sync/internal/lifecycle"
	"storefront-sync/internal/observability"
)

// Sender is the slice of the storefront client used for abandonment
// telemetry.
type Sender interface {
	MarkAbandoning(ctx context.Context, sig domain.AbandonmentSignal) error
	MarkAbandoningBeacon(sig domain.AbandonmentSignal) error
}

// Detector reports, best effort, that an in-progress checkout was left
// incomplete. Delivery is at-most-once per armed lifetime: no retry, no
// acknowledgement awaited. The signal is advisory telemetry, not a
// correctness-critical write.
type Detector struct {
	mu      sync.Mutex
	sender  Sender
	signals *lifecycle.Signals

	checkoutID string
	cartID     string
	armed      bool
	fired      bool

	unsubUnload   func()
	unsubNavigate func()
}

func NewDetector(sender Sender, signals *lifecycle.Signals) *Detector {
	return &Detector{
		sender:  sender,
		signals: signals,
	}
}

// Arm attaches the two lifecycle observers for a checkout. Arming while
// already armed rebinds to the new checkout and resets the fired flag.
func (d *Detector) Arm(checkoutID, cartID string) {
	d.mu.Lock()
	d.disarmLocked()
	d.checkoutID = checkoutID
	d.cartID = cartID
	d.armed = true
	d.fired = false
	d.unsubUnload = d.signals.OnUnload(d.handleUnload)
	d.unsubNavigate = d.signals.OnNavigate(d.handleNavigate)
	d.mu.Unlock()

	observability.Info("abandonment detector armed",
		"checkout_id", checkoutID, "cart_id", cartID)
}

// Disarm removes both observers. It must be called on normal checkout
// completion or teardown so no false positive fires afterwards.
func (d *Detector) Disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disarmLocked()
}

func (d *Detector) disarmLocked() {
	if d.unsubUnload != nil {
		d.unsubUnload()
		d.unsubUnload = nil
	}
	if d.unsubNavigate != nil {
		d.unsubNavigate()
		d.unsubNavigate = nil
	}
	d.armed = false
}

// take claims the single send permitted per armed lifetime.
func (d *Detector) take(reason domain.AbandonReason) (domain.AbandonmentSignal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.armed || d.fired {
		return domain.AbandonmentSignal{}, false
	}
	d.fired = true
	return domain.AbandonmentSignal{
		CheckoutID: d.checkoutID,
		CartID:     d.cartID,
		Reason:     reason,
	}, true
}

// handleUnload runs synchronously during page teardown, so it uses the
// beacon-style send that survives teardown, falling back to one ordinary
// request if the beacon cannot be delivered.
func (d *Detector) handleUnload() {
	sig, ok := d.take(domain.ReasonBrowserClosed)
	if !ok {
		return
	}

	if err := d.sender.MarkAbandoningBeacon(sig); err != nil {
		observability.Warn("beacon send failed, falling back",
			"checkout_id", sig.CheckoutID, "error", err.Error())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := d.sender.MarkAbandoning(ctx, sig); err != nil {
			// Best effort only. The signal is lost and that is acceptable.
			observability.Warn("abandonment fallback failed",
				"checkout_id", sig.CheckoutID, "error", err.Error())
			return
		}
		observability.AbandonSignalsTotal.WithLabelValues(string(sig.Reason), "json").Inc()
		return
	}

	observability.AbandonSignalsTotal.WithLabelValues(string(sig.Reason), "beacon").Inc()
}

// handleNavigate fires an ordinary asynchronous request so in-app
// navigation is never blocked on telemetry.
func (d *Detector) handleNavigate() {
	sig, ok := d.take(domain.ReasonNavigationAway)
	if !ok {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := d.sender.MarkAbandoning(ctx, sig); err != nil {
			observability.Warn("abandonment signal failed",
				"checkout_id", sig.CheckoutID, "error", err.Error())
			return
		}
		observability.AbandonSignalsTotal.WithLabelValues(string(sig.Reason), "json").Inc()
	}()
}
