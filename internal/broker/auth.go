package broker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Verifier validates signed channel-subscription tokens. The token is an
// HMAC-SHA256 over "socketID:channel" keyed with the application secret,
// hex encoded, optionally prefixed with "appKey:".
type Verifier struct {
	secrets SecretStore
}

// NewVerifier creates a verifier resolving secrets through the given store.
func NewVerifier(secrets SecretStore) *Verifier {
	return &Verifier{secrets: secrets}
}

// Verify checks token for a (socket, channel) pair within an application.
// An empty or mismatched token fails with ErrAuthentication.
func (v *Verifier) Verify(appKey, socketID, channel, token string) error {
	secret, err := v.secrets.SecretFor(appKey)
	if err != nil {
		return err
	}
	token = strings.TrimPrefix(token, appKey+":")
	want := ChannelSignature(secret, socketID, channel)
	if token == "" || !hmac.Equal([]byte(token), []byte(want)) {
		return fmt.Errorf("%w: socket %s channel %s", ErrAuthentication, socketID, channel)
	}
	return nil
}

// ChannelSignature computes the hex signature a client must present to
// subscribe socketID to channel.
func ChannelSignature(secret []byte, socketID, channel string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(socketID + ":" + channel))
	return hex.EncodeToString(mac.Sum(nil))
}
