// Package mqtt is the hearth's outbound event bus. The hub publishes
// canonical device state and availability as devices are polled, and
// subscribes to refresh requests so external tools can trigger an
// immediate poll.
//
//	Hearth Core ↔ MQTT Broker ↔ Dashboards / Automations / Vendor push feeds
//
// The client auto-reconnects with backoff, replays subscriptions after a
// reconnect, and arms a Last Will so the broker announces an unexpected
// disappearance on the status topic. TLS is expected for anything beyond
// local development; payloads are not encrypted beyond the transport.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllRefreshRequests(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("refresh requested: %s", topic)
//	        return nil
//	    })
//
//	client.PublishRetained(mqtt.Topics{}.DeviceState("loft-thermostat"),
//	    []byte(`{"temperature":21.5}`))
package mqtt
