package billing

import (
	"encoding/json"
	"time"
)

// CheckResult is the entitlement state for one feature or event on the
// authenticated customer.
type CheckResult struct {
	Allowed       bool       `json:"allowed"`
	Balance       float64    `json:"balance"`
	Usage         float64    `json:"usage"`
	IncludedUsage float64    `json:"included_usage"`
	Unlimited     bool       `json:"unlimited"`
	Interval      string     `json:"interval"`
	NextResetAt   *time.Time `json:"next_reset_at"`
	Code          string     `json:"code"`
}

// TrackResult acknowledges a recorded usage event.
type TrackResult struct {
	Message    string  `json:"message"`
	EventID    string  `json:"event_id"`
	CustomerID string  `json:"customer_id"`
	FeatureID  *string `json:"feature_id"`
}

// SetUsageResult acknowledges an absolute usage overwrite.
type SetUsageResult struct {
	Message    string  `json:"message"`
	CustomerID string  `json:"customer_id"`
	FeatureID  *string `json:"feature_id"`
}

// Feature describes one feature attached to a customer. Fields the API adds
// beyond id and name are preserved in Extra.
type Feature struct {
	ID    string
	Name  string
	Extra map[string]json.RawMessage
}

func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &f.ID); err != nil {
			return err
		}
		delete(raw, "id")
	}
	if v, ok := raw["name"]; ok {
		if err := json.Unmarshal(v, &f.Name); err != nil {
			return err
		}
		delete(raw, "name")
	}
	if len(raw) > 0 {
		f.Extra = raw
	}
	return nil
}

// Customer is the response of the customer endpoint. Top-level fields other
// than features are preserved in Extra.
type Customer struct {
	Features []Feature
	Extra    map[string]json.RawMessage
}

func (c *Customer) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["features"]; ok {
		if err := json.Unmarshal(v, &c.Features); err != nil {
			return err
		}
		delete(raw, "features")
	}
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// CheckoutOptions are the optional fields of a checkout request.
type CheckoutOptions struct {
	Email       string         `json:"email,omitempty"`
	Name        string         `json:"name,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Currency    string         `json:"currency,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CheckoutSession is a pending payment or subscription flow. The lifecycle
// ends when the customer completes or abandons the redirect, outside the
// SDK's visibility.
type CheckoutSession struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	CustomerID       string `json:"customer_id"`
}

// RevokeResult acknowledges a subscription revocation. Subscription is set
// when a single subscription was targeted; RevokedCount when all active
// subscriptions were revoked.
type RevokeResult struct {
	Message      string         `json:"message"`
	Subscription map[string]any `json:"subscription,omitempty"`
	RevokedCount *int           `json:"revoked_count,omitempty"`
}

type checkRequest struct {
	FeatureID string `json:"feature_id,omitempty"`
	EventName string `json:"event_name,omitempty"`
}

type usageRequest struct {
	FeatureID string         `json:"feature_id,omitempty"`
	EventName string         `json:"event_name,omitempty"`
	Value     float64        `json:"value"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type checkoutRequest struct {
	PlanID      string         `json:"plan_id"`
	Amount      float64        `json:"amount"`
	Email       string         `json:"email,omitempty"`
	Name        string         `json:"name,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Currency    string         `json:"currency,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type revokeRequest struct {
	SubscriptionID string `json:"subscription_id,omitempty"`
}
