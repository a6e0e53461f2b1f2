package broker

// PresenceTracker answers membership queries and performs the peer-channel
// fan-out when a peer-enabled member joins or leaves a presence channel.
// It is created by NewSubscriptionManager and shares the manager's locking
// discipline: the *Locked helpers run under the tenant mutex.
type PresenceTracker struct {
	registry *Registry
	manager  *SubscriptionManager
}

// IsSubscribed reports whether the socket is currently subscribed to the
// channel within the application identified by key.
func (t *PresenceTracker) IsSubscribed(appKey, socketID, channel string) bool {
	app, err := t.registry.ByKey(appKey)
	if err != nil {
		return false
	}
	return t.isSubscribedState(app, socketID, channel)
}

func (t *PresenceTracker) isSubscribedState(app *AppState, socketID, channel string) bool {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.subscribedLocked(socketID, channel)
}

// subscribeAllPeersLocked subscribes socketID to the peer channel derived
// from pairing userID with every other distinct user already present on
// channel. Self-pairs and users already visited in this call are skipped.
func (t *PresenceTracker) subscribeAllPeersLocked(app *AppState, channel, socketID, userID string) []outbound {
	var pending []outbound
	for _, peerUser := range t.peerUsersLocked(app, channel, socketID, userID) {
		pending = append(pending, t.manager.subscribeLocked(app, socketID, PeerChannel(channel, userID, peerUser), nil)...)
	}
	return pending
}

// unsubscribeAllPeersLocked is the inverse of subscribeAllPeersLocked.
func (t *PresenceTracker) unsubscribeAllPeersLocked(app *AppState, channel, socketID, userID string) []outbound {
	var pending []outbound
	for _, peerUser := range t.peerUsersLocked(app, channel, socketID, userID) {
		pending = append(pending, t.manager.unsubscribeLocked(app, socketID, PeerChannel(channel, userID, peerUser))...)
	}
	return pending
}

// peerUsersLocked collects the distinct other users with channel data on
// channel, in join order.
func (t *PresenceTracker) peerUsersLocked(app *AppState, channel, socketID, userID string) []string {
	info := app.channelInfo[channel]
	if info == nil {
		return nil
	}
	visited := map[string]struct{}{userID: {}}
	var users []string
	for _, other := range info.conns {
		if other == socketID {
			continue
		}
		data := app.dataLocked(channel, other)
		if data == nil {
			continue
		}
		if _, seen := visited[data.UserID]; seen {
			continue
		}
		visited[data.UserID] = struct{}{}
		users = append(users, data.UserID)
	}
	return users
}

// Members returns a snapshot of the member data currently on a presence
// channel, keyed by user id.
func (t *PresenceTracker) Members(appKey, channel string) map[string]map[string]any {
	app, err := t.registry.ByKey(appKey)
	if err != nil {
		return nil
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	info := app.channelInfo[channel]
	if info == nil {
		return nil
	}
	out := make(map[string]map[string]any, len(info.members))
	for userID, data := range info.members {
		out[userID] = data.Map()
	}
	return out
}

// UserCount returns the number of distinct users present on a channel.
func (t *PresenceTracker) UserCount(appKey, channel string) int {
	app, err := t.registry.ByKey(appKey)
	if err != nil {
		return 0
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	if info := app.channelInfo[channel]; info != nil {
		return info.userCount
	}
	return 0
}
