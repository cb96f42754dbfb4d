// Package mqtt provides a publish-only MQTT client for tswrite.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - A retained online/offline status topic backed by a Last Will
//   - JSON publishing of dead-letter events
//
// # Topics
//
// All topics live under a configurable prefix (default "tswrite"):
//
//	<prefix>/status                   retained, online/offline
//	<prefix>/deadletter/<reason>      one message per lost batch
//
// # Security Considerations
//
//   - Use TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Dead-letter payloads contain measurement data; restrict topic ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.NewTopics("tswrite"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().DeadLetter("permanent"), event)
package mqtt
