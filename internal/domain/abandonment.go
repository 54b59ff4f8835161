package domain

// AbandonReason names the lifecycle event that interrupted the checkout.
type AbandonReason string

const (
	ReasonBrowserClosed  AbandonReason = "browser_closed"
	ReasonNavigationAway AbandonReason = "navigation_away"
)

// AbandonmentSignal is the advisory telemetry payload sent at most once
// per armed checkout when the page is torn down mid-flow.
type AbandonmentSignal struct {
	CheckoutID string        `json:"checkoutId"`
	CartID     string        `json:"cartId"`
	Reason     AbandonReason `json:"reason"`
}
