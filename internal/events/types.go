package events

import "time"

// EventType represents the type/severity of a Kubernetes Event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// Sync run event reasons
const (
	// ReasonSyncSucceeded indicates every component of the instance was applied.
	ReasonSyncSucceeded EventReason = "SyncSucceeded"

	// ReasonSyncPartiallyFailed indicates some actions or components failed.
	ReasonSyncPartiallyFailed EventReason = "SyncPartiallyFailed"

	// ReasonSyncFailed indicates the run failed as a whole.
	ReasonSyncFailed EventReason = "SyncFailed"
)

// Component event reasons
const (
	// ReasonComponentFailed indicates a component could not be rendered or applied.
	ReasonComponentFailed EventReason = "ComponentFailed"

	// ReasonVisibilityDowngraded indicates a component was exposed with a
	// narrower visibility than requested.
	ReasonVisibilityDowngraded EventReason = "VisibilityDowngraded"
)

// EventData contains the values a message template may reference.
type EventData struct {
	Instance  string
	Namespace string
	RunID     string
	Cluster   string

	Component string
	Requested string
	Effective string

	Creates int
	Updates int
	Deletes int

	// Failed lists the names of failed components.
	Failed   []string
	Error    string
	Duration time.Duration
}

// Event is one event to record.
type Event struct {
	Type    EventType
	Reason  EventReason
	Message string
}

// getEventType returns the severity of reason.
func getEventType(reason EventReason) EventType {
	switch reason {
	case ReasonSyncSucceeded:
		return EventTypeNormal
	default:
		return EventTypeWarning
	}
}
