package broker

import "github.com/markb/pushlite/internal/log"

// LoggingHandler is a DeliveryHandler that only records each publish in the
// structured log. It serves as the reference handler implementation and as a
// stand-in in deployments with no external delivery path configured.
type LoggingHandler struct{}

// Name implements DeliveryHandler.
func (LoggingHandler) Name() string { return "logging" }

// Send implements DeliveryHandler.
func (LoggingHandler) Send(appID, channel string, envelope []byte, notified map[string]struct{}) error {
	log.Debug("broker: delivered",
		"app_id", appID,
		"channel", channel,
		"bytes", len(envelope),
		"live_sockets", len(notified))
	return nil
}
