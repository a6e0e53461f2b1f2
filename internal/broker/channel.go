package broker

import "strings"

// Channel name prefixes. Behavior is selected purely by prefix; any other
// name is a public channel.
const (
	PrefixPrivate  = "private-"
	PrefixPresence = "presence-"
	PrefixPeer     = "peer-"
	PrefixPersonal = "personal-"
)

// IsPrivate reports whether the channel requires authentication but carries
// no presence state.
func IsPrivate(channel string) bool {
	return strings.HasPrefix(channel, PrefixPrivate)
}

// IsPresence reports whether the channel tracks member identity.
func IsPresence(channel string) bool {
	return strings.HasPrefix(channel, PrefixPresence)
}

// IsPeer reports whether the channel is a derived 1:1 channel.
func IsPeer(channel string) bool {
	return strings.HasPrefix(channel, PrefixPeer)
}

// IsPersonal reports whether the channel is a per-user alias channel.
func IsPersonal(channel string) bool {
	return strings.HasPrefix(channel, PrefixPersonal)
}

// RequiresAuth reports whether subscribing to the channel needs a signature.
func RequiresAuth(channel string) bool {
	return IsPrivate(channel) || IsPresence(channel) || IsPeer(channel) || IsPersonal(channel)
}

// PeerChannel derives the 1:1 channel name for two users inside a presence
// channel. Both participants compute the same name regardless of join order:
// user ids are sorted lexicographically and joined with "_", and the suffix
// is the presence channel name with its "presence-" prefix stripped.
func PeerChannel(presenceChannel, userA, userB string) string {
	suffix := strings.TrimPrefix(presenceChannel, PrefixPresence)
	a, b := userA, userB
	if b < a {
		a, b = b, a
	}
	return PrefixPeer + suffix + ":" + a + "_" + b
}
