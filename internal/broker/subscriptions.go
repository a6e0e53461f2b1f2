package broker

import (
	"encoding/json"
	"sort"

	"github.com/markb/pushlite/internal/log"
)

// outbound is a payload queued while the tenant lock is held and delivered
// after release, so slow sockets never stall subscribe/unsubscribe.
type outbound struct {
	conn    Connection
	payload []byte
}

// SubscriptionManager drives the connect/disconnect/subscribe/unsubscribe
// state machine for every tenant. Authentication is enforced only on the
// public Subscribe entry point; the internal expansion paths (personal
// aliases, peer fan-out) recurse through the locked methods and cannot be
// reached with a caller-supplied channel name.
type SubscriptionManager struct {
	registry *Registry
	verifier *Verifier
	presence *PresenceTracker
}

// NewSubscriptionManager wires the manager and its presence tracker.
func NewSubscriptionManager(registry *Registry, verifier *Verifier) *SubscriptionManager {
	m := &SubscriptionManager{registry: registry, verifier: verifier}
	m.presence = &PresenceTracker{registry: registry, manager: m}
	return m
}

// Presence returns the tracker bound to this manager.
func (m *SubscriptionManager) Presence() *PresenceTracker { return m.presence }

// Connect registers a live connection with its tenant.
func (m *SubscriptionManager) Connect(appKey string, conn Connection) error {
	app, err := m.registry.ByKey(appKey)
	if err != nil {
		return err
	}
	app.mu.Lock()
	app.conns[conn.ID()] = conn
	app.mu.Unlock()
	log.Debug("broker: connected", "app_id", app.ID(), "socket_id", conn.ID())
	return nil
}

// Disconnect unwinds every subscription held by the socket, including the
// peer-channel fan-out, and drops its connection-level entries. It is the
// cancellation primitive: always succeeds, idempotent, unknown apps and
// sockets are a no-op.
func (m *SubscriptionManager) Disconnect(appKey, socketID string) {
	if appKey == "" || socketID == "" {
		return
	}
	app, err := m.registry.ByKey(appKey)
	if err != nil {
		return
	}

	app.mu.Lock()
	// Snapshot before iterating: unsubscribe mutates the set.
	channels := make([]string, 0, len(app.socketChannels[socketID]))
	for channel := range app.socketChannels[socketID] {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	var pending []outbound
	for _, channel := range channels {
		pending = append(pending, m.unsubscribeLocked(app, socketID, channel)...)
	}
	delete(app.socketChannels, socketID)
	delete(app.conns, socketID)
	app.mu.Unlock()

	deliver(pending)
	log.Debug("broker: disconnected", "app_id", app.ID(), "socket_id", socketID, "channels", len(channels))
}

// Subscribe binds a socket to a channel. Channels with a private, presence,
// peer, or personal prefix require a valid auth token; failure leaves the
// socket's subscriptions untouched and returns ErrAuthentication. data is
// only meaningful for presence channels and is discarded elsewhere.
func (m *SubscriptionManager) Subscribe(appKey, socketID, channel, auth string, data *ChannelData) error {
	app, err := m.registry.ByKey(appKey)
	if err != nil {
		return err
	}
	if RequiresAuth(channel) {
		if err := m.verifier.Verify(appKey, socketID, channel, auth); err != nil {
			return err
		}
	}

	app.mu.Lock()
	pending := m.subscribeLocked(app, socketID, channel, data)
	app.mu.Unlock()

	deliver(pending)
	return nil
}

// Unsubscribe unbinds a socket from a channel. Already-unsubscribed pairs
// are a no-op.
func (m *SubscriptionManager) Unsubscribe(appKey, socketID, channel string) error {
	app, err := m.registry.ByKey(appKey)
	if err != nil {
		return err
	}

	app.mu.Lock()
	pending := m.unsubscribeLocked(app, socketID, channel)
	app.mu.Unlock()

	deliver(pending)
	return nil
}

// subscribeLocked is the internal subscribe path: no authentication, caller
// holds app.mu. Returns the member broadcasts to deliver after unlock.
func (m *SubscriptionManager) subscribeLocked(app *AppState, socketID, channel string, data *ChannelData) []outbound {
	// Personal channels are pure aliases: expand and recurse, never
	// subscribe to the personal name itself.
	if IsPersonal(channel) {
		var pending []outbound
		for _, target := range app.aliases.Resolve(channel) {
			pending = append(pending, m.subscribeLocked(app, socketID, target, data)...)
		}
		return pending
	}

	// Only presence channels carry member metadata.
	if !IsPresence(channel) {
		data = nil
	}

	var pending []outbound
	if app.subscribedLocked(socketID, channel) {
		// Re-subscribe is unsubscribe-then-subscribe.
		pending = append(pending, m.unsubscribeLocked(app, socketID, channel)...)
	}

	app.addIndexLocked(socketID, channel)
	if data == nil {
		return pending
	}

	app.setDataLocked(channel, socketID, data)
	info := app.infoLocked(channel)
	info.conns = append(info.conns, socketID)
	isNew := len(info.users[data.UserID]) == 0
	info.users[data.UserID] = append(info.users[data.UserID], socketID)
	info.members[data.UserID] = data
	if isNew {
		info.userCount++
	}

	if data.Peer {
		pending = append(pending, m.presence.subscribeAllPeersLocked(app, channel, socketID, data.UserID)...)
	}
	if isNew {
		pending = append(pending, m.memberAddedLocked(app, channel, socketID, data)...)
	}
	return pending
}

// unsubscribeLocked is the internal unsubscribe path: caller holds app.mu.
// Missing entries at any step mean the pair was already cleaned up and the
// remaining steps are skipped.
func (m *SubscriptionManager) unsubscribeLocked(app *AppState, socketID, channel string) []outbound {
	if IsPersonal(channel) {
		var pending []outbound
		for _, target := range app.aliases.Resolve(channel) {
			pending = append(pending, m.unsubscribeLocked(app, socketID, target)...)
		}
		return pending
	}

	app.removeIndexLocked(socketID, channel)

	data := app.dataLocked(channel, socketID)
	if data == nil {
		return nil
	}
	app.clearDataLocked(channel, socketID)

	info := app.channelInfo[channel]
	if info == nil {
		return nil
	}
	info.conns = remove(info.conns, socketID)
	info.users[data.UserID] = remove(info.users[data.UserID], socketID)
	isOld := len(info.users[data.UserID]) == 0
	if isOld {
		delete(info.users, data.UserID)
		delete(info.members, data.UserID)
		info.userCount--
	}

	var pending []outbound
	if data.Peer {
		pending = append(pending, m.presence.unsubscribeAllPeersLocked(app, channel, socketID, data.UserID)...)
	}
	if !isOld {
		return pending
	}

	remaining := make([]string, len(info.conns))
	copy(remaining, info.conns)
	if len(info.conns) == 0 {
		delete(app.channelInfo, channel)
	}
	pending = append(pending, m.memberRemovedLocked(app, channel, socketID, data, remaining)...)
	return pending
}

// memberAddedLocked queues a member_added broadcast to every other
// data-bearing subscriber of channel. For peer-enabled members, each
// notified socket that carries channel data is additionally subscribed to
// the peer channel pairing its user with the new member.
func (m *SubscriptionManager) memberAddedLocked(app *AppState, channel, socketID string, member *ChannelData) []outbound {
	info := app.channelInfo[channel]
	if info == nil {
		return nil
	}
	payload := memberEnvelope("member_added", channel, member.Map())

	var pending []outbound
	for _, other := range append([]string(nil), info.conns...) {
		if other == socketID {
			continue
		}
		if conn, ok := app.conns[other]; ok {
			pending = append(pending, outbound{conn: conn, payload: payload})
		}
		if member.Peer {
			otherData := app.dataLocked(channel, other)
			if otherData != nil && otherData.UserID != member.UserID {
				pending = append(pending, m.subscribeLocked(app, other, PeerChannel(channel, member.UserID, otherData.UserID), nil)...)
			}
		}
	}
	return pending
}

// memberRemovedLocked queues a member_removed broadcast to the remaining
// data-bearing subscribers, unwinding peer channels the same way
// memberAddedLocked set them up.
func (m *SubscriptionManager) memberRemovedLocked(app *AppState, channel, socketID string, member *ChannelData, remaining []string) []outbound {
	payload := memberEnvelope("member_removed", channel, member.Map())

	var pending []outbound
	for _, other := range remaining {
		if other == socketID {
			continue
		}
		if conn, ok := app.conns[other]; ok {
			pending = append(pending, outbound{conn: conn, payload: payload})
		}
		if member.Peer {
			otherData := app.dataLocked(channel, other)
			if otherData != nil && otherData.UserID != member.UserID {
				pending = append(pending, m.unsubscribeLocked(app, other, PeerChannel(channel, member.UserID, otherData.UserID))...)
			}
		}
	}
	return pending
}

// memberEnvelope renders a member transition event for the wire.
func memberEnvelope(event, channel string, member map[string]any) []byte {
	payload, err := json.Marshal(map[string]any{
		"event":   event,
		"channel": channel,
		"member":  member,
	})
	if err != nil {
		log.Error("broker: encode member event", "event", event, "channel", channel, "error", err.Error())
		return nil
	}
	return payload
}

// deliver sends queued payloads outside the tenant lock. Send failures are
// per-socket and never abort the rest of the fan-out.
func deliver(pending []outbound) {
	for _, out := range pending {
		if out.payload == nil {
			continue
		}
		if err := out.conn.Send(out.payload); err != nil {
			log.Debug("broker: delivery failed", "socket_id", out.conn.ID(), "error", err.Error())
		}
	}
}
