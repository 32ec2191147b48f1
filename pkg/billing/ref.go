package billing

import "strings"

// Ref identifies the subject of a usage operation: either a feature or a
// named event. Exactly one of the two is set; the zero Ref is invalid.
type Ref struct {
	featureID string
	eventName string
}

// FeatureRef builds a Ref for a billable feature id.
func FeatureRef(id string) Ref {
	return Ref{featureID: id}
}

// EventRef builds a Ref for a named usage event.
func EventRef(name string) Ref {
	return Ref{eventName: name}
}

// ParseRef applies the legacy disambiguation rule: identifiers containing a
// hyphen are treated as feature ids, everything else as event names.
//
// The rule is a convention, not a type: an event name that happens to contain
// a hyphen is misrouted to feature_id. Callers that control their
// identifiers should use FeatureRef or EventRef directly.
func ParseRef(s string) Ref {
	if strings.Contains(s, "-") {
		return FeatureRef(s)
	}
	return EventRef(s)
}

// IsZero reports whether the Ref identifies nothing.
func (r Ref) IsZero() bool {
	return r.featureID == "" && r.eventName == ""
}

// FeatureID returns the feature id, or "" for event refs.
func (r Ref) FeatureID() string { return r.featureID }

// EventName returns the event name, or "" for feature refs.
func (r Ref) EventName() string { return r.eventName }

// String returns whichever identifier is set. Used as a cache key operand.
func (r Ref) String() string {
	if r.featureID != "" {
		return r.featureID
	}
	return r.eventName
}
