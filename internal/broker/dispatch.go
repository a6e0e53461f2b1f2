package broker

import (
	"encoding/json"
	"fmt"

	"github.com/markb/pushlite/internal/log"
)

// DefaultChannel receives publishes that name no target channels.
const DefaultChannel = "broadcast"

// TriggerOptions control a single publish.
type TriggerOptions struct {
	// Channels are the target channels; empty means DefaultChannel.
	Channels []string
	// Persist writes the event and its per-user associations to the event
	// store before fan-out.
	Persist bool
	// OwnerID is the socket that originated the publish; it is skipped
	// during live fan-out.
	OwnerID string
	// Verify re-checks that OwnerID is still subscribed to each target
	// channel before persisting or sending on it.
	Verify bool
}

// Dispatcher publishes events: persists them for replay, fans them out to
// live subscribers, and notifies external delivery handlers.
type Dispatcher struct {
	registry *Registry
	tracker  *PresenceTracker
	events   EventStore
	subs     SubscriptionStore
	handlers []DeliveryHandler
}

// NewDispatcher wires a dispatcher. events and subs may be nil when
// persistence is never requested.
func NewDispatcher(registry *Registry, tracker *PresenceTracker, events EventStore, subs SubscriptionStore, handlers ...DeliveryHandler) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		tracker:  tracker,
		events:   events,
		subs:     subs,
		handlers: handlers,
	}
}

// Trigger publishes an event to the target channels. Persistence failures
// are returned to the caller; delivery failures are logged per socket or
// handler and never abort the fan-out. A socket subscribed to several target
// channels receives the payload once.
func (d *Dispatcher) Trigger(appID, event string, payload map[string]any, opts TriggerOptions) error {
	app, err := d.registry.ByID(appID)
	if err != nil {
		return err
	}

	channels := opts.Channels
	if len(channels) == 0 {
		channels = []string{DefaultChannel}
	}

	notified := make(map[string]struct{})
	for _, channel := range channels {
		if opts.Persist {
			if err := d.logChannel(app, channel, event, payload, opts); err != nil {
				return fmt.Errorf("persist event on %s: %w", channel, err)
			}
		}
		d.sendChannel(app, channel, event, payload, opts, notified)
	}
	return nil
}

// logChannel persists the event and one association per distinct durable
// subscriber of the channel.
func (d *Dispatcher) logChannel(app *AppState, channel, event string, payload map[string]any, opts TriggerOptions) error {
	if opts.Verify && opts.OwnerID != "" && !d.tracker.isSubscribedState(app, opts.OwnerID, channel) {
		log.Debug("broker: owner absent, skipping persist", "app_id", app.ID(), "channel", channel, "owner", opts.OwnerID)
		return nil
	}
	if d.events == nil {
		return nil
	}

	ev := NewEvent(app.ID(), channel, event, opts.OwnerID, payload)
	if err := d.events.SaveEvent(ev); err != nil {
		return err
	}

	if d.subs == nil {
		return nil
	}
	users, err := d.subs.FindSubscriptions(app.ID(), channel)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(users))
	for _, userID := range users {
		if _, dup := seen[userID]; dup {
			// A user with several subscriptions to the same channel still
			// gets a single association.
			continue
		}
		seen[userID] = struct{}{}
		if err := d.events.SaveAssociation(ev.ID, userID); err != nil {
			return err
		}
	}
	return nil
}

// sendChannel fans the payload out to every live subscriber of channel,
// skipping the owner and sockets already notified in this publish, then
// invokes the delivery handlers. The subscriber set is copied under the
// tenant lock and sends happen after release.
func (d *Dispatcher) sendChannel(app *AppState, channel, event string, payload map[string]any, opts TriggerOptions, notified map[string]struct{}) {
	if opts.Verify && opts.OwnerID != "" && !d.tracker.isSubscribedState(app, opts.OwnerID, channel) {
		log.Debug("broker: owner absent, skipping send", "app_id", app.ID(), "channel", channel, "owner", opts.OwnerID)
		return
	}

	envelope, err := json.Marshal(map[string]any{
		"event":   event,
		"channel": channel,
		"data":    payload,
	})
	if err != nil {
		log.Error("broker: encode event", "channel", channel, "error", err.Error())
		return
	}

	app.mu.Lock()
	targets := make([]Connection, 0, len(app.channelSockets[channel]))
	for socketID := range app.channelSockets[channel] {
		if socketID == opts.OwnerID {
			continue
		}
		if _, done := notified[socketID]; done {
			continue
		}
		if conn, ok := app.conns[socketID]; ok {
			notified[socketID] = struct{}{}
			targets = append(targets, conn)
		}
	}
	app.mu.Unlock()

	for _, conn := range targets {
		if err := conn.Send(envelope); err != nil {
			log.Debug("broker: send failed", "socket_id", conn.ID(), "channel", channel, "error", err.Error())
		}
	}

	for _, handler := range d.handlers {
		if err := dispatchHandler(handler, app.ID(), channel, envelope, notified); err != nil {
			log.Warn("broker: delivery handler failed", "handler", handler.Name(), "channel", channel, "error", err.Error())
		}
	}
}

// dispatchHandler isolates one handler invocation: a panicking or failing
// handler must not block delivery through the others.
func dispatchHandler(h DeliveryHandler, appID, channel string, envelope []byte, notified map[string]struct{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Send(appID, channel, envelope, notified)
}
