package broker

import "sync"

// AppState is the per-tenant aggregate: every index the engine maintains for
// one application. All multi-step mutations happen under mu so that readers
// (in particular publish fan-out) observe subscribe/unsubscribe atomically.
// Network sends never happen under mu; mutating operations collect outbound
// payloads and deliver them after release.
type AppState struct {
	mu  sync.Mutex
	app App

	aliases *AliasIndex

	// Live connections registered through Connect, by socket id.
	conns map[string]Connection

	// Bidirectional subscription index. Invariant: for every channel c and
	// socket s, s is in channelSockets[c] iff c is in socketChannels[s].
	socketChannels map[string]map[string]struct{}
	channelSockets map[string]map[string]struct{}

	// Presence membership per channel, only for channels that ever saw
	// channel data.
	channelInfo map[string]*channelInfo

	// Channel data per (channel, socket), present only while the socket is
	// an active data-bearing subscriber of the channel.
	channelData map[string]map[string]*ChannelData
}

// channelInfo tracks the data-bearing members of a single channel.
type channelInfo struct {
	users     map[string][]string     // user id -> socket ids, join order
	members   map[string]*ChannelData // user id -> last supplied data
	conns     []string                // socket ids that supplied data, join order
	userCount int                     // distinct users with at least one socket
}

func newAppState(app App) *AppState {
	return &AppState{
		app:            app,
		aliases:        NewAliasIndex(),
		conns:          make(map[string]Connection),
		socketChannels: make(map[string]map[string]struct{}),
		channelSockets: make(map[string]map[string]struct{}),
		channelInfo:    make(map[string]*channelInfo),
		channelData:    make(map[string]map[string]*ChannelData),
	}
}

// ID returns the application id.
func (a *AppState) ID() string { return a.app.ID }

// Key returns the application key.
func (a *AppState) Key() string { return a.app.Key }

// Aliases returns the personal-channel alias index. Outside of startup
// preload it must only be touched while holding the state's lock.
func (a *AppState) Aliases() *AliasIndex { return a.aliases }

// addIndexLocked links socket and channel in both directions.
func (a *AppState) addIndexLocked(socketID, channel string) {
	chans := a.socketChannels[socketID]
	if chans == nil {
		chans = make(map[string]struct{})
		a.socketChannels[socketID] = chans
	}
	chans[channel] = struct{}{}

	socks := a.channelSockets[channel]
	if socks == nil {
		socks = make(map[string]struct{})
		a.channelSockets[channel] = socks
	}
	socks[socketID] = struct{}{}
}

// removeIndexLocked unlinks socket and channel in both directions, dropping
// empty channel entries. Idempotent.
func (a *AppState) removeIndexLocked(socketID, channel string) {
	if chans, ok := a.socketChannels[socketID]; ok {
		delete(chans, channel)
	}
	if socks, ok := a.channelSockets[channel]; ok {
		delete(socks, socketID)
		if len(socks) == 0 {
			delete(a.channelSockets, channel)
		}
	}
}

// subscribedLocked reports whether socket is subscribed to channel.
func (a *AppState) subscribedLocked(socketID, channel string) bool {
	_, ok := a.socketChannels[socketID][channel]
	return ok
}

// dataLocked returns the channel data for (channel, socket), or nil.
func (a *AppState) dataLocked(channel, socketID string) *ChannelData {
	return a.channelData[channel][socketID]
}

// setDataLocked records channel data for (channel, socket).
func (a *AppState) setDataLocked(channel, socketID string, data *ChannelData) {
	bydata := a.channelData[channel]
	if bydata == nil {
		bydata = make(map[string]*ChannelData)
		a.channelData[channel] = bydata
	}
	bydata[socketID] = data
}

// clearDataLocked removes channel data for (channel, socket).
func (a *AppState) clearDataLocked(channel, socketID string) {
	if bydata, ok := a.channelData[channel]; ok {
		delete(bydata, socketID)
		if len(bydata) == 0 {
			delete(a.channelData, channel)
		}
	}
}

// infoLocked returns the presence info for channel, creating it on demand.
func (a *AppState) infoLocked(channel string) *channelInfo {
	info := a.channelInfo[channel]
	if info == nil {
		info = &channelInfo{
			users:   make(map[string][]string),
			members: make(map[string]*ChannelData),
		}
		a.channelInfo[channel] = info
	}
	return info
}

// connectionsLocked resolves socket ids to live connections, skipping ids
// with no registered connection (already gone).
func (a *AppState) connectionsLocked(socketIDs []string) []Connection {
	out := make([]Connection, 0, len(socketIDs))
	for _, id := range socketIDs {
		if conn, ok := a.conns[id]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// AppStats is a diagnostic snapshot of one tenant's indices.
type AppStats struct {
	AppID       string `json:"app_id"`
	Connections int    `json:"connections"`
	Channels    int    `json:"channels"`
	Presence    int    `json:"presence_channels"`
}

// Stats snapshots counts for diagnostics. It takes the lock briefly; callers
// needing only eventual consistency can tolerate the staleness.
func (a *AppState) Stats() AppStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AppStats{
		AppID:       a.app.ID,
		Connections: len(a.conns),
		Channels:    len(a.channelSockets),
		Presence:    len(a.channelInfo),
	}
}
