package broker

// AliasIndex maps a personal channel to the underlying channels it stands
// for, and back. Personal channels have no subscriber set of their own;
// subscribing to one transparently subscribes to its resolved channels.
//
// The index keeps insertion order on both sides. It carries no lock of its
// own: it is only touched under the owning AppState's mutex, except during
// preload before the state is published.
type AliasIndex struct {
	forward map[string][]string // personal channel -> underlying channels
	inverse map[string][]string // underlying channel -> personal channels
}

// NewAliasIndex creates an empty index.
func NewAliasIndex() *AliasIndex {
	return &AliasIndex{
		forward: make(map[string][]string),
		inverse: make(map[string][]string),
	}
}

// Add registers target as one of the channels channel resolves to.
// Duplicate pairs are ignored.
func (ai *AliasIndex) Add(channel, target string) {
	if contains(ai.forward[channel], target) {
		return
	}
	ai.forward[channel] = append(ai.forward[channel], target)
	ai.inverse[target] = append(ai.inverse[target], channel)
}

// Remove drops the channel -> target pair. Unknown pairs are a no-op.
func (ai *AliasIndex) Remove(channel, target string) {
	ai.forward[channel] = remove(ai.forward[channel], target)
	if len(ai.forward[channel]) == 0 {
		delete(ai.forward, channel)
	}
	ai.inverse[target] = remove(ai.inverse[target], channel)
	if len(ai.inverse[target]) == 0 {
		delete(ai.inverse, target)
	}
}

// Resolve returns the underlying channels for a personal channel, in
// insertion order. The returned slice is a copy.
func (ai *AliasIndex) Resolve(channel string) []string {
	targets := ai.forward[channel]
	if len(targets) == 0 {
		return nil
	}
	out := make([]string, len(targets))
	copy(out, targets)
	return out
}

// Owners returns the personal channels that resolve to target.
func (ai *AliasIndex) Owners(target string) []string {
	owners := ai.inverse[target]
	if len(owners) == 0 {
		return nil
	}
	out := make([]string, len(owners))
	copy(out, owners)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
