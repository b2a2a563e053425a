package messaging

import (
	"testing"

	"sensorhub/config"
)

func TestClientOptionsOrderedDispatch(t *testing.T) {
	c := NewClient(&config.MQTTConfig{Broker: "localhost", Port: 1883, ClientID: "test"})
	opts := c.clientOptions()

	// Per-topic processing depends on handlers seeing messages in broker
	// delivery order, which only holds with ordered dispatch.
	if !opts.Order {
		t.Error("Order = false, want true")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if !opts.ConnectRetry {
		t.Error("ConnectRetry = false, want true")
	}
}
