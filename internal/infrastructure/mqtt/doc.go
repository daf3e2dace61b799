// Package mqtt connects the identity service to an MQTT broker so other
// services can follow its domain events.
//
// Events are published on <prefix>/event/<EventType> as JSON envelopes,
// not retained. The client keeps a retained status document on
// <prefix>/system/status: "online" after every (re)connect, "offline" on
// Close, and the same "offline" document as its last will when the
// connection is lost.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	client.PublishJSON(client.Topics().Event("UserLoggedIn"), envelope)
//
// Subscriptions survive reconnects: the client replays them from its own
// table when paho reports a new connection.
package mqtt
