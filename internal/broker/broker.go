// Package broker implements the per-application subscription and presence
// state engine: channel subscriptions, personal (alias) channel expansion,
// presence membership with member_added/member_removed transitions, peer
// channel derivation, channel authentication, and event fan-out.
//
// The broker owns no sockets. The transport layer hands it Connection values
// and drives Connect/Disconnect/Subscribe/Unsubscribe; application servers
// publish through the Dispatcher.
package broker

import "errors"

// Errors surfaced by the broker. Delivery failures are logged and never
// propagated; persistence failures are wrapped and returned from Trigger.
var (
	// ErrAuthentication is returned when a channel requiring authentication
	// is subscribed with a missing or invalid signature.
	ErrAuthentication = errors.New("channel authentication failed")

	// ErrAppNotFound is returned when no application matches the given
	// application id or key.
	ErrAppNotFound = errors.New("application not found")
)

// Connection is a live client socket owned by the transport layer.
// Send must not block the caller; slow consumers are the transport's problem.
type Connection interface {
	ID() string
	Send(payload []byte) error
}

// App is an application tenant record as stored durably.
type App struct {
	ID     string
	Key    string
	Secret []byte
	Name   string
}

// AppStore resolves application records by id or key.
// Implementations return ErrAppNotFound for unknown applications.
type AppStore interface {
	AppByID(id string) (App, error)
	AppByKey(key string) (App, error)
}

// SecretStore resolves the signing secret for an application key.
type SecretStore interface {
	SecretFor(appKey string) ([]byte, error)
}

// EventStore persists published events and their per-user associations,
// which back personal-channel history replay.
type EventStore interface {
	SaveEvent(ev *Event) error
	SaveAssociation(eventID, userID string) error
}

// SubscriptionStore reads the durable per-user channel subscriptions used
// for persistence fan-out and personal-channel alias preloading.
type SubscriptionStore interface {
	FindSubscriptions(appID, channel string) ([]string, error)
}

// DeliveryHandler is an external delivery path (mobile push, web push, ...)
// notified on every publish. The notified set carries the socket ids already
// reached over live connections so handlers can avoid double delivery.
type DeliveryHandler interface {
	Name() string
	Send(appID, channel string, envelope []byte, notified map[string]struct{}) error
}
