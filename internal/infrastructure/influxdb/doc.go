// Package influxdb mirrors the node's published readings into InfluxDB.
//
// The mirror is optional and secondary: MQTT remains the node's only
// required outbound channel, and a failed mirror write never prevents or
// delays a publish beyond the write timeout.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // mirror off
//	}
//	defer client.Close()
//
//	err = client.WriteEnvironment(ctx, influxdb.EnvironmentPoint{
//	    ClientID: "esp32-1a2b3c4d", Temperature: 23.5, Humidity: 41.2,
//	    Light: 512, Buttons: "000000", LEDs: "010", Time: now,
//	})
//
// # Error Handling
//
// Writes are blocking with a per-write timeout. After
// influxdb.breaker_failures consecutive failures, writes return
// ErrBreakerOpen immediately for influxdb.breaker_timeout.
package influxdb
