// Package mqtt connects the hub to an MQTT broker.
//
// The hub publishes its lifecycle events and periodic stats and can accept
// control commands from the network:
//
//	indihub/status          retained online/offline, also the Last Will
//	indihub/stats           retained broker totals from the telemetry loop
//	indihub/events/<kind>   one message per broker event (JSON)
//	indihub/control         start/stop lines, one command per line
//
// Client wraps paho with auto-reconnect and restores subscriptions after a
// reconnect. EventPublisher adapts a Client to events.Sink.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	pub := mqtt.NewEventPublisher(client, byte(cfg.MQTT.QoS), 0)
//	fanout.Add(pub)
//	go pub.Run(ctx)
package mqtt
