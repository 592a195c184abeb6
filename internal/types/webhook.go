package types

import (
	"encoding/json"
	"time"
)

const (
	// Billing events
	WebhookEventSubscriptionBilled        = "subscription.billed"
	WebhookEventSubscriptionBillingFailed = "subscription.billing_failed"
	WebhookEventSubscriptionUpcoming      = "subscription.upcoming_billing"

	// Lifecycle events
	WebhookEventSubscriptionSuspended   = "subscription.suspended"
	WebhookEventSubscriptionCancelled   = "subscription.cancelled"
	WebhookEventSubscriptionReactivated = "subscription.reactivated"
	WebhookEventSubscriptionPlanChanged = "subscription.plan_changed"
)

// WebhookEvent is the envelope emitted to the notification collaborators.
// The engine only publishes; rendering and delivery live outside the core.
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventName string          `json:"event_name"`
	TenantID  string          `json:"tenant_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
