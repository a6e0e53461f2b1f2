package broker

import (
	"errors"
	"fmt"
)

// ChannelData is the member metadata supplied when subscribing to a
// presence channel. It is validated once at subscribe time; the rest of the
// engine never probes raw payloads.
type ChannelData struct {
	UserID string
	Peer   bool
	Extra  map[string]any
}

// ErrInvalidChannelData is returned when a presence subscription carries a
// payload without a usable user id.
var ErrInvalidChannelData = errors.New("channel data requires a user_id")

// ParseChannelData validates a raw subscribe payload. A nil payload is a
// bare subscription and parses to nil.
func ParseChannelData(raw map[string]any) (*ChannelData, error) {
	if raw == nil {
		return nil, nil
	}
	data := &ChannelData{}
	for k, v := range raw {
		switch k {
		case "user_id":
			s, ok := v.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("%w: got %T", ErrInvalidChannelData, v)
			}
			data.UserID = s
		case "peer":
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("peer flag must be a boolean, got %T", v)
			}
			data.Peer = b
		default:
			if data.Extra == nil {
				data.Extra = make(map[string]any)
			}
			data.Extra[k] = v
		}
	}
	if data.UserID == "" {
		return nil, ErrInvalidChannelData
	}
	return data, nil
}

// Map renders the data back into its wire shape for member broadcasts.
func (d *ChannelData) Map() map[string]any {
	out := make(map[string]any, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	out["user_id"] = d.UserID
	if d.Peer {
		out["peer"] = true
	}
	return out
}
