// Package mqtt provides the sensor node's broker session.
//
// This package manages:
//   - Connection with a fixed retry interval, driven by the node loop
//   - Retained publishes of readings and presence
//   - Subscriptions restored on every reconnect
//   - Last Will and Testament (retained "offline") for offline detection
//   - A bounded inbox so inbound messages are handled on the loop goroutine
//
// # Architecture
//
//	sensors → node loop → Client.Publish → broker
//	broker → paho goroutine → inbox → Client.Poll → node loop
//
// Paho's automatic reconnect is disabled. When the session drops, the next
// loop step calls EnsureConnected, which blocks until the broker accepts the
// connection, every tracked topic is subscribed, and "online" is announced.
//
// # Topics
//
// All channels share a prefix (default "IFCE_Iran"):
//
//	<prefix>/temperatura  <prefix>/umidade  <prefix>/ldr
//	<prefix>/botoes       <prefix>/leds     <prefix>/status
//	<prefix>/cmd (in)     <prefix>/msg (in)
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, clientID, mqtt.Topics{Prefix: "IFCE_Iran"},
//	    mqtt.WithLogger(logger))
//	_ = client.Subscribe(client.Topics().Command(), 0)
//	if err := client.EnsureConnected(ctx); err != nil {
//	    return err
//	}
//	client.Poll(func(m mqtt.Message) { ... })
//	_ = client.PublishRetained(client.Topics().Temperature(), "23.50")
package mqtt
