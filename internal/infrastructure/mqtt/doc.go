// Package mqtt is the bridge's session with the MQTT broker.
//
// zigbee2mqtt owns the radio network and speaks JSON over the broker; this
// package carries that traffic for the zigbee bridge:
//
//	zigbridge <-> broker <-> zigbee2mqtt <-> Zigbee network
//
// Subscriptions are tracked and re-issued after every reconnect because
// sessions are clean. Commands on {base}/{device}/set are refused when
// retained so the broker never replays them. The service's own
// availability is published retained on StatusTopic, with a Last Will
// covering crashes.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("zigbee2mqtt/#", 1, bridge.HandleMessage)
//	err = client.Publish("zigbee2mqtt/hall_lamp/set", []byte(`{"state":"ON"}`), 1, false)
//
// Tests that need a broker at 127.0.0.1:1883 carry the integration build tag.
package mqtt
